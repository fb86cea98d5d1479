package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/takeout/pkg/audit"
	"github.com/example/takeout/pkg/models"
	"github.com/example/takeout/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const listingTTL = 30 * time.Minute

func listingKey(kind models.ItemKind, categoryID int64) string {
	return fmt.Sprintf("catalog:%s:%d", kind, categoryID)
}

// CatalogQuery is the read side over dishes, combos and categories. It sits
// above the catalog tables so category removal can count dishes and combos
// without the stores knowing about each other.
type CatalogQuery struct {
	db      *gorm.DB
	catalog *repository.CatalogRepository
	cache   Cache
	auditor Auditor
	logger  *zap.Logger
}

func NewCatalogQuery(db *gorm.DB, cache Cache, auditor Auditor, logger *zap.Logger) *CatalogQuery {
	if auditor == nil {
		auditor = nopAuditor{}
	}
	return &CatalogQuery{
		db:      db,
		catalog: repository.NewCatalogRepository(db),
		cache:   cache,
		auditor: auditor,
		logger:  logger.Named("catalog"),
	}
}

// ListDishes returns the on-sale dishes of a category with their flavors.
func (q *CatalogQuery) ListDishes(ctx context.Context, categoryID int64) ([]models.Dish, error) {
	key := listingKey(models.KindDish, categoryID)

	var dishes []models.Dish
	if err := q.cache.GetJSON(ctx, key, &dishes); err == nil {
		return dishes, nil
	} else if !errors.Is(err, repository.ErrCacheMiss) {
		q.logger.Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
	}

	dishes, err := q.catalog.ListDishes(ctx, categoryID)
	if err != nil {
		return nil, persistence("list dishes", err)
	}
	if err := q.cache.SetJSON(ctx, key, dishes, listingTTL); err != nil {
		q.logger.Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
	return dishes, nil
}

// ListCombos returns the on-sale combos of a category with their member rows.
func (q *CatalogQuery) ListCombos(ctx context.Context, categoryID int64) ([]models.Combo, error) {
	key := listingKey(models.KindCombo, categoryID)

	var combos []models.Combo
	if err := q.cache.GetJSON(ctx, key, &combos); err == nil {
		return combos, nil
	} else if !errors.Is(err, repository.ErrCacheMiss) {
		q.logger.Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
	}

	combos, err := q.catalog.ListCombos(ctx, categoryID)
	if err != nil {
		return nil, persistence("list combos", err)
	}
	if err := q.cache.SetJSON(ctx, key, combos, listingTTL); err != nil {
		q.logger.Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
	return combos, nil
}

// RemoveCategory deletes a category nothing live is filed under.
func (q *CatalogQuery) RemoveCategory(ctx context.Context, id int64) error {
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		catalog := q.catalog.WithTx(tx)

		dishes, combos, err := catalog.CountInCategory(ctx, id)
		if err != nil {
			return err
		}
		if dishes > 0 {
			return &ConflictError{Kind: "category", ItemID: id, Reason: "category still holds dishes",
				BlockedBy: fmt.Sprintf("%d dishes", dishes)}
		}
		if combos > 0 {
			return &ConflictError{Kind: "category", ItemID: id, Reason: "category still holds combos",
				BlockedBy: fmt.Sprintf("%d combos", combos)}
		}

		n, err := catalog.DeleteCategory(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return &NotFoundError{Entity: "category", ID: id}
		}
		return nil
	})
	if err != nil {
		return persistence("remove category", err)
	}

	q.auditor.Record(audit.Entry{
		Service:  serviceName,
		Action:   "category.delete",
		EntityID: fmt.Sprintf("%d", id),
	})
	return nil
}

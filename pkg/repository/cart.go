package repository

import (
	"context"
	"fmt"

	"github.com/example/takeout/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartKey is the unique key of a cart line.
type CartKey struct {
	UserID int64
	Kind   models.ItemKind
	ItemID int64
	Flavor string
}

type CartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) *CartRepository {
	return &CartRepository{db: db}
}

// WithTx binds the repository to a running transaction.
func (r *CartRepository) WithTx(tx *gorm.DB) *CartRepository {
	return &CartRepository{db: tx}
}

// FindLine returns gorm.ErrRecordNotFound (wrapped) when the line is absent.
// With lock set the row stays locked until the surrounding transaction ends.
func (r *CartRepository) FindLine(ctx context.Context, key CartKey, lock bool) (*models.CartEntry, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var entry models.CartEntry
	err := q.Where("user_id = ? AND item_kind = ? AND item_id = ? AND flavor = ?",
		key.UserID, key.Kind, key.ItemID, key.Flavor).
		Take(&entry).Error
	if err != nil {
		return nil, fmt.Errorf("find cart line: %w", err)
	}
	return &entry, nil
}

func (r *CartRepository) Create(ctx context.Context, entry *models.CartEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create cart line: %w", err)
	}
	return nil
}

// UpsertLine inserts the line or, when its unique key already exists, adds
// entry.Quantity to the stored row. entry.ID is not reliable afterwards;
// reload the line by key.
func (r *CartRepository) UpsertLine(ctx context.Context, entry *models.CartEntry) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "item_kind"}, {Name: "item_id"}, {Name: "flavor"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"number": gorm.Expr(models.CartEntry{}.TableName()+".number + ?", entry.Quantity),
			}),
		}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("upsert cart line: %w", err)
	}
	return nil
}

// AddQuantity adjusts the quantity in SQL so the update never works from a
// stale read. It reports how many rows changed; 0 means the line is gone.
func (r *CartRepository) AddQuantity(ctx context.Context, id int64, delta int) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.CartEntry{}).
		Where("id = ?", id).
		Update("number", gorm.Expr("number + ?", delta))
	if res.Error != nil {
		return 0, fmt.Errorf("update cart line %d: %w", id, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *CartRepository) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Delete(&models.CartEntry{}, id).Error; err != nil {
		return fmt.Errorf("delete cart line %d: %w", id, err)
	}
	return nil
}

// ListByUser returns the user's lines, oldest first.
func (r *CartRepository) ListByUser(ctx context.Context, userID int64, lock bool) ([]models.CartEntry, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var entries []models.CartEntry
	err := q.Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list cart of user %d: %w", userID, err)
	}
	return entries, nil
}

func (r *CartRepository) ClearByUser(ctx context.Context, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear cart of user %d: %w", userID, res.Error)
	}
	return res.RowsAffected, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/takeout/pkg/metrics"
	"github.com/example/takeout/pkg/models"
	"github.com/example/takeout/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ItemRef points at a dish or a combo.
type ItemRef struct {
	Kind models.ItemKind
	ID   int64
}

// addAttempts bounds reruns of a cart add the database aborted.
const addAttempts = 3

type CartService struct {
	db      *gorm.DB
	carts   *repository.CartRepository
	catalog *repository.CatalogRepository
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewCartService(db *gorm.DB, m *metrics.Metrics, logger *zap.Logger) *CartService {
	return &CartService{
		db:      db,
		carts:   repository.NewCartRepository(db),
		catalog: repository.NewCatalogRepository(db),
		metrics: m,
		logger:  logger.Named("cart"),
		now:     time.Now,
	}
}

func cartKey(userID int64, ref ItemRef, flavor string) (repository.CartKey, error) {
	if !ref.Kind.Valid() {
		return repository.CartKey{}, &ValidationError{Code: "invalid_item_kind", Message: fmt.Sprintf("unknown item kind %q", ref.Kind)}
	}
	if ref.ID <= 0 {
		return repository.CartKey{}, &ValidationError{Code: "invalid_item_id", Message: "item id is required"}
	}
	if ref.Kind == models.KindCombo && flavor != "" {
		return repository.CartKey{}, &ValidationError{Code: "invalid_flavor", Message: "combos have no flavor"}
	}
	return repository.CartKey{UserID: userID, Kind: ref.Kind, ItemID: ref.ID, Flavor: flavor}, nil
}

// AddOrIncrement adds one unit of the item to the user's cart. An existing
// line is incremented; a new line snapshots the catalog price, name and image.
func (s *CartService) AddOrIncrement(ctx context.Context, userID int64, ref ItemRef, flavor string) (*models.CartEntry, error) {
	key, err := cartKey(userID, ref, flavor)
	if err != nil {
		return nil, err
	}

	var entry *models.CartEntry
	for attempt := 1; ; attempt++ {
		entry, err = s.addOnce(ctx, key)
		if err == nil || attempt == addAttempts || !(errors.Is(err, gorm.ErrDuplicatedKey) || repository.IsRetryable(err)) {
			break
		}
		s.logger.Debug("Cart add aborted by a concurrent writer, retrying",
			zap.Int64("user_id", userID), zap.Int64("item_id", ref.ID), zap.Int("attempt", attempt), zap.Error(err))
	}
	if err != nil {
		return nil, persistence("add to cart", err)
	}

	s.metrics.CartOp("add")
	return entry, nil
}

// addOnce increments an existing line or inserts a new one. The read takes no
// lock: two first adds of the same key both reach UpsertLine, and the unique
// key turns the second insert into an increment.
func (s *CartService) addOnce(ctx context.Context, key repository.CartKey) (*models.CartEntry, error) {
	var result *models.CartEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)

		line, err := carts.FindLine(ctx, key, false)
		switch {
		case err == nil:
			n, err := carts.AddQuantity(ctx, line.ID, 1)
			if err != nil {
				return err
			}
			if n > 0 {
				result, err = carts.FindLine(ctx, key, false)
				return err
			}
			// removed since the read
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		item, err := s.catalog.WithTx(tx).FindItem(ctx, key.Kind, key.ItemID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Entity: string(key.Kind), ID: key.ItemID}
		}
		if err != nil {
			return err
		}
		if item.Deleted {
			return &NotFoundError{Entity: string(key.Kind), ID: key.ItemID}
		}
		if item.Status != models.OnSale {
			return &ValidationError{Code: "item_off_sale", Message: fmt.Sprintf("%s %q is not on sale", key.Kind, item.Name)}
		}

		entry := &models.CartEntry{
			UserID:    key.UserID,
			ItemKind:  key.Kind,
			ItemID:    key.ItemID,
			Flavor:    key.Flavor,
			Quantity:  1,
			UnitPrice: item.Price,
			Name:      item.Name,
			Image:     item.Image,
			CreatedAt: s.now(),
		}
		if err := carts.UpsertLine(ctx, entry); err != nil {
			return err
		}
		result, err = carts.FindLine(ctx, key, false)
		return err
	})
	return result, err
}

// DecrementOrRemove takes one unit of the item out of the cart. When the last
// unit goes the line is deleted and the entry comes back with quantity 0.
func (s *CartService) DecrementOrRemove(ctx context.Context, userID int64, ref ItemRef, flavor string) (*models.CartEntry, error) {
	key, err := cartKey(userID, ref, flavor)
	if err != nil {
		return nil, err
	}

	var result *models.CartEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)

		line, err := carts.FindLine(ctx, key, true)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Entity: "cart line", ID: ref.ID}
		}
		if err != nil {
			return err
		}

		if line.Quantity > 1 {
			if _, err := carts.AddQuantity(ctx, line.ID, -1); err != nil {
				return err
			}
			line.Quantity--
		} else {
			if err := carts.Delete(ctx, line.ID); err != nil {
				return err
			}
			line.Quantity = 0
		}
		result = line
		return nil
	})
	if err != nil {
		return nil, persistence("remove from cart", err)
	}

	s.metrics.CartOp("sub")
	return result, nil
}

// List returns the user's cart, oldest line first.
func (s *CartService) List(ctx context.Context, userID int64) ([]models.CartEntry, error) {
	entries, err := s.carts.ListByUser(ctx, userID, false)
	if err != nil {
		return nil, persistence("list cart", err)
	}
	return entries, nil
}

func (s *CartService) Clear(ctx context.Context, userID int64) error {
	n, err := s.carts.ClearByUser(ctx, userID)
	if err != nil {
		return persistence("clear cart", err)
	}
	s.metrics.CartOp("clear")
	s.logger.Debug("Cart cleared", zap.Int64("user_id", userID), zap.Int64("lines", n))
	return nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/example/takeout/pkg/models"
	"gorm.io/gorm"
)

// OrderFilter narrows a back-office order page. Nil fields are ignored;
// the time bounds are exclusive.
type OrderFilter struct {
	ID        *int64
	BeginTime *time.Time
	EndTime   *time.Time
	Offset    int
	Limit     int
}

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithTx(tx *gorm.DB) *OrderRepository {
	return &OrderRepository{db: tx}
}

// Create writes the header and its lines. Callers run it inside the
// transaction that also clears the cart.
func (r *OrderRepository) Create(ctx context.Context, header *models.OrderHeader, lines []models.OrderLine) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit("Lines").Create(header).Error; err != nil {
		return fmt.Errorf("create order %d: %w", header.ID, err)
	}
	if len(lines) == 0 {
		return nil
	}
	if err := db.CreateInBatches(lines, 100).Error; err != nil {
		return fmt.Errorf("create lines of order %d: %w", header.ID, err)
	}
	return nil
}

// Get loads one order with its lines.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*models.OrderHeader, error) {
	var order models.OrderHeader
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ?", id).
		Take(&order).Error
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return &order, nil
}

// Page returns one page of orders, newest first, each with its lines, plus
// the total number of matching orders.
func (r *OrderRepository) Page(ctx context.Context, f OrderFilter) ([]models.OrderHeader, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.OrderHeader{})
	if f.ID != nil {
		query = query.Where("id = ?", *f.ID)
	}
	if f.BeginTime != nil {
		query = query.Where("order_time > ?", *f.BeginTime)
	}
	if f.EndTime != nil {
		query = query.Where("order_time < ?", *f.EndTime)
	}
	// shared by the count and the page query
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	var orders []models.OrderHeader
	err := query.
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("order_time DESC").
		Order("id DESC").
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

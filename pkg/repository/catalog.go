package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/example/takeout/pkg/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogItem is the kind-independent view of a dish or combo.
type CatalogItem struct {
	Kind       models.ItemKind
	ID         int64
	Name       string
	Image      string
	CategoryID int64
	Price      decimal.Decimal
	Status     models.SaleStatus
	Deleted    bool
}

// ComboRef names an on-sale combo that holds a dish.
type ComboRef struct {
	DishID    int64
	ComboID   int64
	ComboName string
}

// MemberDish is the sale state of one dish inside a combo.
type MemberDish struct {
	ComboID     int64
	DishID      int64
	DishName    string
	DishStatus  models.SaleStatus
	DishDeleted bool
}

type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) WithTx(tx *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: tx}
}

func tableOf(kind models.ItemKind) string {
	if kind == models.KindCombo {
		return models.Combo{}.TableName()
	}
	return models.Dish{}.TableName()
}

func (r *CatalogRepository) items(ctx context.Context, kind models.ItemKind, ids []int64, lock bool) ([]CatalogItem, error) {
	q := r.db.WithContext(ctx).Table(tableOf(kind)).
		Select("id, name, image, category_id, price, status, deleted").
		Where("id IN ?", ids).
		Order("id ASC")
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var items []CatalogItem
	if err := q.Scan(&items).Error; err != nil {
		return nil, fmt.Errorf("load %s items: %w", kind, err)
	}
	for i := range items {
		items[i].Kind = kind
	}
	return items, nil
}

// FindItem returns gorm.ErrRecordNotFound (wrapped) when no row has the id.
// Deleted rows are returned; callers decide what deletion means for them.
func (r *CatalogRepository) FindItem(ctx context.Context, kind models.ItemKind, id int64) (*CatalogItem, error) {
	items, err := r.items(ctx, kind, []int64{id}, false)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("find %s %d: %w", kind, id, gorm.ErrRecordNotFound)
	}
	return &items[0], nil
}

func (r *CatalogRepository) Items(ctx context.Context, kind models.ItemKind, ids []int64) ([]CatalogItem, error) {
	return r.items(ctx, kind, ids, false)
}

// LockItems loads the rows with FOR UPDATE, ordered by id.
func (r *CatalogRepository) LockItems(ctx context.Context, kind models.ItemKind, ids []int64) ([]CatalogItem, error) {
	return r.items(ctx, kind, ids, true)
}

// OnSaleCombosReferencing lists every live membership of the given dishes in
// an on-sale, non-deleted combo.
func (r *CatalogRepository) OnSaleCombosReferencing(ctx context.Context, dishIDs []int64) ([]ComboRef, error) {
	var refs []ComboRef
	err := r.db.WithContext(ctx).
		Table("setmeal_dish").
		Select("setmeal_dish.dish_id AS dish_id, setmeal.id AS combo_id, setmeal.name AS combo_name").
		Joins("JOIN setmeal ON setmeal.id = setmeal_dish.setmeal_id").
		Where("setmeal_dish.dish_id IN ?", dishIDs).
		Where("setmeal_dish.deleted = ?", false).
		Where("setmeal.deleted = ? AND setmeal.status = ?", false, models.OnSale).
		Order("setmeal_dish.dish_id ASC").
		Order("setmeal.id ASC").
		Scan(&refs).Error
	if err != nil {
		return nil, fmt.Errorf("find on-sale combos for dishes: %w", err)
	}
	return refs, nil
}

// MemberDishes returns the dishes of the given combos. With lock set the dish
// rows are locked, which serialises combo activation against dish deactivation.
func (r *CatalogRepository) MemberDishes(ctx context.Context, comboIDs []int64, lock bool) ([]MemberDish, error) {
	q := r.db.WithContext(ctx).
		Table("setmeal_dish").
		Select("setmeal_dish.setmeal_id AS combo_id, dish.id AS dish_id, dish.name AS dish_name, " +
			"dish.status AS dish_status, dish.deleted AS dish_deleted").
		Joins("JOIN dish ON dish.id = setmeal_dish.dish_id").
		Where("setmeal_dish.setmeal_id IN ?", comboIDs).
		Where("setmeal_dish.deleted = ?", false).
		Order("setmeal_dish.setmeal_id ASC").
		Order("dish.id ASC")
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "dish"}})
	}

	var members []MemberDish
	if err := q.Scan(&members).Error; err != nil {
		return nil, fmt.Errorf("load combo members: %w", err)
	}
	return members, nil
}

func (r *CatalogRepository) SetStatus(ctx context.Context, kind models.ItemKind, ids []int64, status models.SaleStatus, at time.Time) error {
	err := r.db.WithContext(ctx).Table(tableOf(kind)).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"status": status, "updated_at": at}).Error
	if err != nil {
		return fmt.Errorf("set %s status: %w", kind, err)
	}
	return nil
}

// SoftDeleteDishes flags the dishes and their flavor rows as deleted.
func (r *CatalogRepository) SoftDeleteDishes(ctx context.Context, ids []int64, at time.Time) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.DishFlavor{}).Where("dish_id IN ?", ids).Update("deleted", true).Error; err != nil {
		return fmt.Errorf("delete dish flavors: %w", err)
	}
	err := db.Model(&models.Dish{}).Where("id IN ?", ids).
		Updates(map[string]interface{}{"deleted": true, "updated_at": at}).Error
	if err != nil {
		return fmt.Errorf("delete dishes: %w", err)
	}
	return nil
}

// SoftDeleteCombos flags the combos and their member rows as deleted.
func (r *CatalogRepository) SoftDeleteCombos(ctx context.Context, ids []int64, at time.Time) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.ComboMember{}).Where("setmeal_id IN ?", ids).Update("deleted", true).Error; err != nil {
		return fmt.Errorf("delete combo members: %w", err)
	}
	err := db.Model(&models.Combo{}).Where("id IN ?", ids).
		Updates(map[string]interface{}{"deleted": true, "updated_at": at}).Error
	if err != nil {
		return fmt.Errorf("delete combos: %w", err)
	}
	return nil
}

// ListDishes returns on-sale dishes of a category with their live flavors.
func (r *CatalogRepository) ListDishes(ctx context.Context, categoryID int64) ([]models.Dish, error) {
	var dishes []models.Dish
	err := r.db.WithContext(ctx).
		Preload("Flavors", "deleted = ?", false).
		Where("category_id = ? AND status = ? AND deleted = ?", categoryID, models.OnSale, false).
		Order("sort ASC").
		Order("updated_at DESC").
		Find(&dishes).Error
	if err != nil {
		return nil, fmt.Errorf("list dishes of category %d: %w", categoryID, err)
	}
	return dishes, nil
}

// ListCombos returns on-sale combos of a category with their live members.
func (r *CatalogRepository) ListCombos(ctx context.Context, categoryID int64) ([]models.Combo, error) {
	var combos []models.Combo
	err := r.db.WithContext(ctx).
		Preload("Members", "deleted = ?", false).
		Where("category_id = ? AND status = ? AND deleted = ?", categoryID, models.OnSale, false).
		Order("sort ASC").
		Order("updated_at DESC").
		Find(&combos).Error
	if err != nil {
		return nil, fmt.Errorf("list combos of category %d: %w", categoryID, err)
	}
	return combos, nil
}

// CountInCategory counts live dishes and combos filed under a category.
func (r *CatalogRepository) CountInCategory(ctx context.Context, categoryID int64) (dishes, combos int64, err error) {
	db := r.db.WithContext(ctx)
	if err = db.Model(&models.Dish{}).Where("category_id = ? AND deleted = ?", categoryID, false).Count(&dishes).Error; err != nil {
		return 0, 0, fmt.Errorf("count dishes of category %d: %w", categoryID, err)
	}
	if err = db.Model(&models.Combo{}).Where("category_id = ? AND deleted = ?", categoryID, false).Count(&combos).Error; err != nil {
		return 0, 0, fmt.Errorf("count combos of category %d: %w", categoryID, err)
	}
	return dishes, combos, nil
}

func (r *CatalogRepository) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&models.Category{}, id)
	if res.Error != nil {
		return 0, fmt.Errorf("delete category %d: %w", id, res.Error)
	}
	return res.RowsAffected, nil
}

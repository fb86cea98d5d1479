package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/example/takeout/pkg/audit"
	"github.com/example/takeout/pkg/metrics"
	"github.com/example/takeout/pkg/models"
	"github.com/example/takeout/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LifecycleOp is a guarded transition of a dish or combo.
type LifecycleOp string

const (
	OpActivate   LifecycleOp = "activate"
	OpDeactivate LifecycleOp = "deactivate"
	OpDelete     LifecycleOp = "delete"
)

// LifecycleGuard changes the sale status of dishes and combos and deletes
// them, refusing any batch that would leave an on-sale combo pointing at an
// unavailable dish. Batches are all-or-nothing.
type LifecycleGuard struct {
	db      *gorm.DB
	catalog *repository.CatalogRepository
	cache   Cache
	auditor Auditor
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewLifecycleGuard(db *gorm.DB, cache Cache, auditor Auditor, m *metrics.Metrics, logger *zap.Logger) *LifecycleGuard {
	if auditor == nil {
		auditor = nopAuditor{}
	}
	return &LifecycleGuard{
		db:      db,
		catalog: repository.NewCatalogRepository(db),
		cache:   cache,
		auditor: auditor,
		metrics: m,
		logger:  logger.Named("lifecycle"),
		now:     time.Now,
	}
}

func normalizeIDs(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, &ValidationError{Code: "missing_ids", Message: "at least one id is required"}
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, &ValidationError{Code: "invalid_id", Message: fmt.Sprintf("invalid id %d", id)}
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func checkKind(kind models.ItemKind) error {
	if !kind.Valid() {
		return &ValidationError{Code: "invalid_item_kind", Message: fmt.Sprintf("unknown item kind %q", kind)}
	}
	return nil
}

// SetStatus puts every item of the batch on or off sale.
func (g *LifecycleGuard) SetStatus(ctx context.Context, kind models.ItemKind, ids []int64, status models.SaleStatus) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if !status.Valid() {
		return &ValidationError{Code: "invalid_status", Message: fmt.Sprintf("unknown sale status %d", status)}
	}
	ids, err := normalizeIDs(ids)
	if err != nil {
		return err
	}

	op := OpDeactivate
	if status == models.OnSale {
		op = OpActivate
	}

	var items []repository.CatalogItem
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		catalog := g.catalog.WithTx(tx)
		items, err = g.evaluate(ctx, catalog, kind, ids, op)
		if err != nil {
			return err
		}
		return catalog.SetStatus(ctx, kind, ids, status, g.now())
	})
	if err != nil {
		return persistence("set sale status", err)
	}

	g.afterChange(ctx, kind, op, items, map[string]interface{}{"status": int(status)})
	return nil
}

// Delete soft-deletes every item of the batch. Dish flavors and combo member
// rows go with their owner.
func (g *LifecycleGuard) Delete(ctx context.Context, kind models.ItemKind, ids []int64) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	ids, err := normalizeIDs(ids)
	if err != nil {
		return err
	}

	var items []repository.CatalogItem
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		catalog := g.catalog.WithTx(tx)
		items, err = g.evaluate(ctx, catalog, kind, ids, OpDelete)
		if err != nil {
			return err
		}
		if kind == models.KindDish {
			return catalog.SoftDeleteDishes(ctx, ids, g.now())
		}
		return catalog.SoftDeleteCombos(ctx, ids, g.now())
	})
	if err != nil {
		return persistence("delete items", err)
	}

	g.afterChange(ctx, kind, OpDelete, items, nil)
	return nil
}

// CanDeactivateOrDelete runs the removal checks for the batch inside tx
// without changing anything. The target rows stay locked until tx ends.
func (g *LifecycleGuard) CanDeactivateOrDelete(ctx context.Context, tx *gorm.DB, kind models.ItemKind, ids []int64, op LifecycleOp) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if op != OpDeactivate && op != OpDelete {
		return &ValidationError{Code: "invalid_op", Message: fmt.Sprintf("%q is not a removal", op)}
	}
	ids, err := normalizeIDs(ids)
	if err != nil {
		return err
	}
	_, err = g.evaluate(ctx, g.catalog.WithTx(tx), kind, ids, op)
	return err
}

func (g *LifecycleGuard) evaluate(ctx context.Context, catalog *repository.CatalogRepository, kind models.ItemKind, ids []int64, op LifecycleOp) ([]repository.CatalogItem, error) {
	items, err := lockTargets(ctx, catalog, kind, ids)
	if err != nil {
		return nil, err
	}

	if op == OpActivate {
		err = checkActivation(ctx, catalog, kind, items)
	} else {
		err = checkRemoval(ctx, catalog, kind, items, op)
	}

	var conflict *ConflictError
	if errors.As(err, &conflict) {
		g.metrics.LifecycleConflict(string(kind), string(op))
		g.logger.Info("Lifecycle change refused",
			zap.String("kind", string(kind)),
			zap.String("op", string(op)),
			zap.Int64("item_id", conflict.ItemID),
			zap.String("reason", conflict.Reason))
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

// lockTargets loads the batch FOR UPDATE. Every id must name a live item.
func lockTargets(ctx context.Context, catalog *repository.CatalogRepository, kind models.ItemKind, ids []int64) ([]repository.CatalogItem, error) {
	items, err := catalog.LockItems(ctx, kind, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]repository.CatalogItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	for _, id := range ids {
		it, ok := byID[id]
		if !ok || it.Deleted {
			return nil, &NotFoundError{Entity: string(kind), ID: id}
		}
	}
	return items, nil
}

func checkRemoval(ctx context.Context, catalog *repository.CatalogRepository, kind models.ItemKind, items []repository.CatalogItem, op LifecycleOp) error {
	if op == OpDelete {
		for _, it := range items {
			if it.Status == models.OnSale {
				return &ConflictError{
					Kind:     string(kind),
					ItemID:   it.ID,
					ItemName: it.Name,
					Reason:   "item is on sale, take it off sale before deleting",
				}
			}
		}
	}
	if kind == models.KindCombo {
		return nil
	}

	names := make(map[int64]string, len(items))
	dishIDs := make([]int64, 0, len(items))
	for _, it := range items {
		names[it.ID] = it.Name
		dishIDs = append(dishIDs, it.ID)
	}
	refs, err := catalog.OnSaleCombosReferencing(ctx, dishIDs)
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		ref := refs[0]
		return &ConflictError{
			Kind:      string(kind),
			ItemID:    ref.DishID,
			ItemName:  names[ref.DishID],
			BlockedBy: fmt.Sprintf("combo %q", ref.ComboName),
			Reason:    "dish belongs to an on-sale combo",
		}
	}
	return nil
}

// checkActivation refuses to put a combo on sale while one of its dishes is
// off sale or deleted. Member dish rows are locked so a concurrent dish
// deactivation waits for this transaction.
func checkActivation(ctx context.Context, catalog *repository.CatalogRepository, kind models.ItemKind, items []repository.CatalogItem) error {
	if kind != models.KindCombo {
		return nil
	}

	names := make(map[int64]string, len(items))
	comboIDs := make([]int64, 0, len(items))
	for _, it := range items {
		names[it.ID] = it.Name
		comboIDs = append(comboIDs, it.ID)
	}
	members, err := catalog.MemberDishes(ctx, comboIDs, true)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.DishDeleted || m.DishStatus != models.OnSale {
			return &ConflictError{
				Kind:      string(kind),
				ItemID:    m.ComboID,
				ItemName:  names[m.ComboID],
				BlockedBy: fmt.Sprintf("dish %q", m.DishName),
				Reason:    "combo contains a dish that is not on sale",
			}
		}
	}
	return nil
}

func (g *LifecycleGuard) afterChange(ctx context.Context, kind models.ItemKind, op LifecycleOp, items []repository.CatalogItem, data map[string]interface{}) {
	g.metrics.LifecycleChange(string(kind), string(op))

	keys := make([]string, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, strconv.FormatInt(it.ID, 10))
		if _, ok := seen[it.CategoryID]; ok {
			continue
		}
		seen[it.CategoryID] = struct{}{}
		keys = append(keys, listingKey(kind, it.CategoryID))
	}
	if err := g.cache.Del(ctx, keys...); err != nil {
		g.logger.Warn("Failed to invalidate catalog listings", zap.Strings("keys", keys), zap.Error(err))
	}

	// one entry per item so the audit trail can be read by entity id
	action := fmt.Sprintf("%s.%s", kind, op)
	for _, id := range ids {
		entryData := make(map[string]interface{}, len(data)+1)
		for k, v := range data {
			entryData[k] = v
		}
		entryData["batch"] = ids
		g.auditor.Record(audit.Entry{
			Service:  serviceName,
			Action:   action,
			EntityID: id,
			Data:     entryData,
		})
	}

	g.logger.Info("Catalog items updated",
		zap.String("kind", string(kind)),
		zap.String("op", string(op)),
		zap.Strings("ids", ids))
}

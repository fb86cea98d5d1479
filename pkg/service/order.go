package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/example/takeout/pkg/audit"
	"github.com/example/takeout/pkg/messaging"
	"github.com/example/takeout/pkg/metrics"
	"github.com/example/takeout/pkg/models"
	"github.com/example/takeout/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	userCacheTTL = 30 * time.Minute

	// idempotencyTTL keeps a finished submission's order id. The pending
	// marker expires sooner so a lost release cannot block a key for a day.
	idempotencyTTL = 24 * time.Hour
	idemPendingTTL = 2 * time.Minute
	idemPending    = "pending"

	// detachedTimeout bounds cache and broker writes that must finish even
	// when the caller has gone away.
	detachedTimeout = 5 * time.Second

	defaultPageSize = 10
	maxPageSize     = 100
	defaultPay      = 1
	maxRemarkLen    = 100
)

// detached keeps ctx's values but not its cancellation.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), detachedTimeout)
}

// DraftOrder carries what the customer supplies at checkout. The lines come
// from the cart.
type DraftOrder struct {
	AddressBookID  int64
	Remark         string
	PayMethod      int
	IdempotencyKey string
}

type OrderPageQuery struct {
	Page      int
	PageSize  int
	Number    *int64
	BeginTime *time.Time
	EndTime   *time.Time
}

type OrderPage struct {
	Records  []models.OrderHeader `json:"records"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
}

type OrderService struct {
	db      *gorm.DB
	users   *repository.UserRepository
	carts   *repository.CartRepository
	orders  *repository.OrderRepository
	cache   Cache
	ids     IDGenerator
	auditor Auditor
	events  EventPublisher
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewOrderService wires the assembler. auditor and events may be nil when
// the audit store or the broker is disabled.
func NewOrderService(db *gorm.DB, cache Cache, ids IDGenerator, auditor Auditor, events EventPublisher, m *metrics.Metrics, logger *zap.Logger) *OrderService {
	if auditor == nil {
		auditor = nopAuditor{}
	}
	return &OrderService{
		db:      db,
		users:   repository.NewUserRepository(db),
		carts:   repository.NewCartRepository(db),
		orders:  repository.NewOrderRepository(db),
		cache:   cache,
		ids:     ids,
		auditor: auditor,
		events:  events,
		metrics: m,
		logger:  logger.Named("order"),
		now:     time.Now,
	}
}

func idempotencyKey(userID int64, key string) string {
	return fmt.Sprintf("order:idem:%d:%s", userID, key)
}

// Submit turns the user's cart into an order. Header, lines and the cart
// clear commit together or not at all. With an idempotency key a repeated
// call returns the order the first call created.
func (s *OrderService) Submit(ctx context.Context, userID int64, draft DraftOrder) (*models.OrderHeader, error) {
	if draft.IdempotencyKey == "" {
		return s.submit(ctx, userID, draft)
	}

	key := idempotencyKey(userID, draft.IdempotencyKey)
	existing, reserved, err := s.reserve(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	order, err := s.submit(ctx, userID, draft)
	if !reserved {
		return order, err
	}

	wctx, cancel := detached(ctx)
	defer cancel()
	if err != nil {
		if derr := s.cache.Del(wctx, key); derr != nil {
			s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(derr))
		}
		return nil, err
	}
	if serr := s.cache.Set(wctx, key, strconv.FormatInt(order.ID, 10), idempotencyTTL); serr != nil {
		s.logger.Warn("Failed to store idempotency result", zap.String("key", key), zap.Error(serr))
	}
	return order, nil
}

// reserve claims key for this submission. It returns the earlier order when
// the key already completed. An unreachable cache downgrades to a plain submit.
func (s *OrderService) reserve(ctx context.Context, key string) (*models.OrderHeader, bool, error) {
	ok, err := s.cache.SetNX(ctx, key, idemPending, idemPendingTTL)
	if err != nil {
		s.logger.Warn("Idempotency check skipped", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	if ok {
		return nil, true, nil
	}

	inFlight := &ConflictError{Kind: "order", Reason: "a submission with this idempotency key is in progress"}
	val, err := s.cache.Get(ctx, key)
	if err != nil || val == idemPending {
		return nil, false, inFlight
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, false, inFlight
	}

	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, false, persistence("load order", err)
	}
	order.Lines = nil
	s.logger.Info("Repeated submission answered from idempotency key",
		zap.String("key", key), zap.Int64("order_id", id))
	return order, false, nil
}

func (s *OrderService) submit(ctx context.Context, userID int64, draft DraftOrder) (*models.OrderHeader, error) {
	if utf8.RuneCountInString(draft.Remark) > maxRemarkLen {
		return nil, &ValidationError{Code: "invalid_remark", Message: fmt.Sprintf("remark must be at most %d characters", maxRemarkLen)}
	}

	user, err := s.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if draft.AddressBookID <= 0 {
		return nil, ErrInvalidAddress
	}
	addr, err := s.users.GetAddress(ctx, draft.AddressBookID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidAddress
	}
	if err != nil {
		return nil, persistence("load address", err)
	}
	if addr.UserID != userID {
		return nil, ErrInvalidAddress
	}

	payMethod := draft.PayMethod
	if payMethod == 0 {
		payMethod = defaultPay
	}

	now := s.now()
	id := s.ids.NextID()
	header := &models.OrderHeader{
		ID:            id,
		Number:        strconv.FormatInt(id, 10),
		Status:        models.OrderAwaitingDelivery,
		UserID:        userID,
		UserName:      user.Name,
		AddressBookID: addr.ID,
		Address:       addr.Flatten(),
		Consignee:     addr.Consignee,
		Phone:         addr.Phone,
		Remark:        draft.Remark,
		PayMethod:     payMethod,
		OrderTime:     now,
		CheckoutTime:  now,
	}

	var lineCount int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)

		entries, err := carts.ListByUser(ctx, userID, true)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return ErrEmptyCart
		}

		lines, total := buildLines(id, entries)
		header.Amount = total
		lineCount = len(lines)

		if err := s.orders.WithTx(tx).Create(ctx, header, lines); err != nil {
			return err
		}
		_, err = carts.ClearByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, persistence("submit order", err)
	}

	s.afterSubmit(ctx, header, lineCount)
	return header, nil
}

// buildLines snapshots cart entries as order lines and sums their amounts.
func buildLines(orderID int64, entries []models.CartEntry) ([]models.OrderLine, decimal.Decimal) {
	lines := make([]models.OrderLine, 0, len(entries))
	total := decimal.Zero
	for _, e := range entries {
		amount := e.UnitPrice.Mul(decimal.NewFromInt(int64(e.Quantity)))
		lines = append(lines, models.OrderLine{
			OrderID:    orderID,
			ItemKind:   e.ItemKind,
			ItemID:     e.ItemID,
			Flavor:     e.Flavor,
			Quantity:   e.Quantity,
			UnitPrice:  e.UnitPrice,
			LineAmount: amount,
			Name:       e.Name,
			Image:      e.Image,
		})
		total = total.Add(amount)
	}
	return lines, total
}

// afterSubmit runs once the order is committed, so it ignores cancellation
// of the request that placed it.
func (s *OrderService) afterSubmit(ctx context.Context, order *models.OrderHeader, lineCount int) {
	ctx, cancel := detached(ctx)
	defer cancel()

	s.metrics.OrderSubmitted(order.Amount)

	s.auditor.Record(audit.Entry{
		Service:  serviceName,
		Action:   "order.submit",
		EntityID: order.Number,
		Data: map[string]interface{}{
			"user_id": order.UserID,
			"amount":  order.Amount.StringFixed(2),
			"lines":   lineCount,
		},
	})

	if s.events != nil {
		evt := &messaging.OrderPlaced{
			OrderID:   order.Number,
			UserID:    order.UserID,
			Consignee: order.Consignee,
			Address:   order.Address,
			Amount:    order.Amount,
			LineCount: lineCount,
			OrderTime: order.OrderTime,
		}
		if err := s.events.PublishOrderPlaced(ctx, evt); err != nil {
			s.logger.Error("Failed to publish order event", zap.String("order", order.Number), zap.Error(err))
		}
	}

	s.logger.Info("Order submitted",
		zap.String("order", order.Number),
		zap.Int64("user_id", order.UserID),
		zap.String("amount", order.Amount.StringFixed(2)),
		zap.Int("lines", lineCount))
}

// lookupUser reads the profile through the Redis cache.
func (s *OrderService) lookupUser(ctx context.Context, userID int64) (*models.User, error) {
	key := fmt.Sprintf("user:%d", userID)

	var user models.User
	err := s.cache.GetJSON(ctx, key, &user)
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.Warn("User cache read failed", zap.String("key", key), zap.Error(err))
	}

	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Entity: "user", ID: userID}
	}
	if err != nil {
		return nil, persistence("load user", err)
	}
	if err := s.cache.SetJSON(ctx, key, u, userCacheTTL); err != nil {
		s.logger.Warn("User cache write failed", zap.String("key", key), zap.Error(err))
	}
	return u, nil
}

// Page lists orders newest first, each with its lines.
func (s *OrderService) Page(ctx context.Context, q OrderPageQuery) (*OrderPage, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	if q.Page-1 > math.MaxInt32/q.PageSize {
		return nil, &ValidationError{Code: "invalid_page", Message: "page is out of range"}
	}
	if q.BeginTime != nil && q.EndTime != nil && !q.BeginTime.Before(*q.EndTime) {
		return nil, &ValidationError{Code: "invalid_time_range", Message: "beginTime must be before endTime"}
	}

	records, total, err := s.orders.Page(ctx, repository.OrderFilter{
		ID:        q.Number,
		BeginTime: q.BeginTime,
		EndTime:   q.EndTime,
		Offset:    (q.Page - 1) * q.PageSize,
		Limit:     q.PageSize,
	})
	if err != nil {
		return nil, persistence("page orders", err)
	}
	if records == nil {
		records = []models.OrderHeader{}
	}
	return &OrderPage{Records: records, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// Get returns one order with its lines.
func (s *OrderService) Get(ctx context.Context, id int64) (*models.OrderHeader, error) {
	order, err := s.orders.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Entity: "order", ID: id}
	}
	if err != nil {
		return nil, persistence("get order", err)
	}
	return order, nil
}

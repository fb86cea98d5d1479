package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/takeout/pkg/audit"
	"github.com/example/takeout/pkg/messaging"
	"github.com/example/takeout/pkg/models"
	"github.com/example/takeout/pkg/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testCategory int64 = 10

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), repository.GormConfig(zap.NewNop()))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.Migrate(db))
	return db
}

// memCache implements Cache over a map. Setting err makes every call fail,
// and like Redis every call fails once its context is done.
type memCache struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (c *memCache) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.err
}

func (c *memCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(ctx); err != nil {
		return "", err
	}
	v, ok := c.data[key]
	if !ok {
		return "", repository.ErrCacheMiss
	}
	return v, nil
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, exp time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(ctx); err != nil {
		return err
	}
	c.data[key] = toString(value)
	c.ttls[key] = exp
	return nil
}

func (c *memCache) SetNX(ctx context.Context, key string, value interface{}, exp time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(ctx); err != nil {
		return false, err
	}
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = toString(value)
	c.ttls[key] = exp
	return true, nil
}

func (c *memCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(ctx); err != nil {
		return err
	}
	for _, k := range keys {
		delete(c.data, k)
		delete(c.ttls, k)
	}
	return nil
}

func (c *memCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	v, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(v), dest)
}

func (c *memCache) SetJSON(ctx context.Context, key string, value interface{}, exp time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, exp)
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

func (c *memCache) ttl(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttls[key]
}

// cancelingCache cancels the caller's request right after the idempotency
// key is reserved, as a client that disconnects mid-checkout would.
type cancelingCache struct {
	*memCache
	cancel     context.CancelFunc
	pendingTTL time.Duration
}

func (c *cancelingCache) SetNX(ctx context.Context, key string, value interface{}, exp time.Duration) (bool, error) {
	ok, err := c.memCache.SetNX(ctx, key, value, exp)
	c.pendingTTL = c.memCache.ttl(key)
	c.cancel()
	return ok, err
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAuditor) Record(e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

// entities lists the entity ids recorded for action, in order.
func (a *recordingAuditor) entities(action string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		if e.Action == action {
			out = append(out, e.EntityID)
		}
	}
	return out
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type recordingPublisher struct {
	mu        sync.Mutex
	events    []*messaging.OrderPlaced
	err       error
	onPublish func()
}

func (p *recordingPublisher) PublishOrderPlaced(ctx context.Context, evt *messaging.OrderPlaced) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onPublish != nil {
		p.onPublish()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

type seqIDs struct {
	next int64
}

func (g *seqIDs) NextID() int64 {
	return atomic.AddInt64(&g.next, 1)
}

// stepClock returns base, base+1s, base+2s, ...
func stepClock(base time.Time) func() time.Time {
	var n int64
	return func() time.Time {
		i := atomic.AddInt64(&n, 1) - 1
		return base.Add(time.Duration(i) * time.Second)
	}
}

func seedUser(t *testing.T, db *gorm.DB, id int64, name string) {
	t.Helper()
	require.NoError(t, db.Create(&models.User{ID: id, Name: name, Phone: "13800000000", Status: 1}).Error)
}

func seedAddress(t *testing.T, db *gorm.DB, id, userID int64) *models.AddressBook {
	t.Helper()
	addr := &models.AddressBook{
		ID:           id,
		UserID:       userID,
		Consignee:    "Li Lei",
		Phone:        "13900000000",
		ProvinceName: "Zhejiang",
		CityName:     "Hangzhou",
		DistrictName: "Xihu",
		Detail:       " No. 1 Road",
	}
	require.NoError(t, db.Create(addr).Error)
	return addr
}

func seedDish(t *testing.T, db *gorm.DB, id int64, name, price string, status models.SaleStatus) {
	t.Helper()
	require.NoError(t, db.Create(&models.Dish{
		ID:         id,
		Name:       name,
		CategoryID: testCategory,
		Price:      decimal.RequireFromString(price),
		Image:      name + ".png",
		Status:     status,
	}).Error)
}

func seedFlavor(t *testing.T, db *gorm.DB, dishID int64, name, value string) {
	t.Helper()
	require.NoError(t, db.Create(&models.DishFlavor{DishID: dishID, Name: name, Value: value}).Error)
}

func seedCombo(t *testing.T, db *gorm.DB, id int64, name, price string, status models.SaleStatus, dishIDs ...int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.Combo{
		ID:         id,
		Name:       name,
		CategoryID: testCategory + 1,
		Price:      decimal.RequireFromString(price),
		Image:      name + ".png",
		Status:     status,
	}).Error)
	for i, dishID := range dishIDs {
		require.NoError(t, db.Create(&models.ComboMember{
			ComboID: id,
			DishID:  dishID,
			Copies:  1,
			Sort:    i,
		}).Error)
	}
}

func dishStatus(t *testing.T, db *gorm.DB, id int64) models.SaleStatus {
	t.Helper()
	var d models.Dish
	require.NoError(t, db.Where("id = ?", id).Take(&d).Error)
	return d.Status
}

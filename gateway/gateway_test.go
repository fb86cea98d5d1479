package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/takeout/pkg/config"
	"github.com/example/takeout/pkg/metrics"
	"github.com/example/takeout/pkg/models"
	"github.com/example/takeout/pkg/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret = "test-secret"
	testIssuer = "takeout"
)

type fakeCart struct {
	lastUser int64
	lastRef  service.ItemRef
	err      error
}

func (f *fakeCart) AddOrIncrement(_ context.Context, userID int64, ref service.ItemRef, flavor string) (*models.CartEntry, error) {
	f.lastUser, f.lastRef = userID, ref
	if f.err != nil {
		return nil, f.err
	}
	return &models.CartEntry{ID: 1, UserID: userID, ItemKind: ref.Kind, ItemID: ref.ID, Flavor: flavor, Quantity: 1,
		UnitPrice: decimal.RequireFromString("10.00")}, nil
}

func (f *fakeCart) DecrementOrRemove(_ context.Context, userID int64, ref service.ItemRef, _ string) (*models.CartEntry, error) {
	f.lastUser, f.lastRef = userID, ref
	return &models.CartEntry{ID: 1, UserID: userID, ItemKind: ref.Kind, ItemID: ref.ID}, f.err
}

func (f *fakeCart) List(context.Context, int64) ([]models.CartEntry, error) {
	return nil, f.err
}

func (f *fakeCart) Clear(context.Context, int64) error {
	return f.err
}

type fakeOrders struct {
	lastDraft service.DraftOrder
	lastQuery service.OrderPageQuery
	err       error
}

func (f *fakeOrders) Submit(_ context.Context, userID int64, draft service.DraftOrder) (*models.OrderHeader, error) {
	f.lastDraft = draft
	if f.err != nil {
		return nil, f.err
	}
	return &models.OrderHeader{ID: 1790000000000000001, Number: "1790000000000000001", UserID: userID,
		Amount: decimal.RequireFromString("45.00")}, nil
}

func (f *fakeOrders) Page(_ context.Context, q service.OrderPageQuery) (*service.OrderPage, error) {
	f.lastQuery = q
	return &service.OrderPage{Records: []models.OrderHeader{}, Page: q.Page, PageSize: q.PageSize}, f.err
}

func (f *fakeOrders) Get(_ context.Context, id int64) (*models.OrderHeader, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.OrderHeader{ID: id}, nil
}

type fakeLifecycle struct {
	kind   models.ItemKind
	ids    []int64
	status models.SaleStatus
	err    error
}

func (f *fakeLifecycle) SetStatus(_ context.Context, kind models.ItemKind, ids []int64, status models.SaleStatus) error {
	f.kind, f.ids, f.status = kind, ids, status
	return f.err
}

func (f *fakeLifecycle) Delete(_ context.Context, kind models.ItemKind, ids []int64) error {
	f.kind, f.ids = kind, ids
	return f.err
}

type fakeCatalog struct {
	err error
}

func (f *fakeCatalog) ListDishes(context.Context, int64) ([]models.Dish, error) {
	return []models.Dish{{ID: 1, Name: "rice", Status: models.OnSale}}, f.err
}

func (f *fakeCatalog) ListCombos(context.Context, int64) ([]models.Combo, error) {
	return nil, f.err
}

func (f *fakeCatalog) RemoveCategory(context.Context, int64) error {
	return f.err
}

type fixture struct {
	gw        *Gateway
	cart      *fakeCart
	orders    *fakeOrders
	lifecycle *fakeLifecycle
	catalog   *fakeCatalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		HTTP: config.HTTPConfig{Host: "127.0.0.1", Port: 0},
		Auth: config.AuthConfig{JWTSecret: testSecret, Issuer: testIssuer},
	}
	f := &fixture{
		cart:      &fakeCart{},
		orders:    &fakeOrders{},
		lifecycle: &fakeLifecycle{},
		catalog:   &fakeCatalog{},
	}
	reg := prometheus.NewRegistry()
	f.gw = NewGateway(cfg, zap.NewNop(), Services{
		Cart:      f.cart,
		Orders:    f.orders,
		Lifecycle: f.lifecycle,
		Catalog:   f.catalog,
	}, metrics.New(reg), reg)
	f.gw.SetupRoutes()
	return f
}

func token(t *testing.T, userID int64, role string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, testIssuer, userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, tok string, body interface{}, headers ...string) (*httptest.ResponseRecorder, Result) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	f.gw.Handler().ServeHTTP(w, req)

	var res Result
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	}
	return w, res
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w, _ := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestAuth(t *testing.T) {
	f := newFixture(t)

	w, res := f.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, res.Code)

	w, _ = f.do(t, http.MethodGet, "/api/v1/cart", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other, err := IssueToken("other-secret", testIssuer, 7, RoleCustomer, time.Hour)
	require.NoError(t, err)
	w, _ = f.do(t, http.MethodGet, "/api/v1/cart", other, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := IssueToken(testSecret, testIssuer, 7, RoleCustomer, -time.Minute)
	require.NoError(t, err)
	w, _ = f.do(t, http.MethodGet, "/api/v1/cart", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = f.do(t, http.MethodDelete, "/api/v1/admin/dishes?ids=1", token(t, 7, RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAddToCart(t *testing.T) {
	f := newFixture(t)

	w, res := f.do(t, http.MethodPost, "/api/v1/cart/add", token(t, 7, RoleCustomer),
		map[string]string{"itemKind": "dish", "itemId": "42", "flavor": "hot"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, res.Code)
	assert.Equal(t, int64(7), f.cart.lastUser)
	assert.Equal(t, service.ItemRef{Kind: models.KindDish, ID: 42}, f.cart.lastRef)

	w, _ = f.do(t, http.MethodPost, "/api/v1/cart/add", token(t, 7, RoleCustomer), map[string]string{"itemKind": "dish"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCartIsNeverNull(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, http.MethodGet, "/api/v1/cart", token(t, 7, RoleCustomer), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":1,"data":[]}`, w.Body.String())
}

func TestSubmitOrder(t *testing.T) {
	f := newFixture(t)

	w, _ := f.do(t, http.MethodPost, "/api/v1/orders/submit", token(t, 7, RoleCustomer),
		map[string]interface{}{"addressBookId": "70", "remark": "no onion", "payMethod": 1},
		idempotencyHeader, "k-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"1790000000000000001"`)
	assert.Equal(t, service.DraftOrder{AddressBookID: 70, Remark: "no onion", PayMethod: 1, IdempotencyKey: "k-1"}, f.orders.lastDraft)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{name: "empty cart", err: service.ErrEmptyCart, status: http.StatusBadRequest, msg: "shopping cart is empty"},
		{name: "not found", err: &service.NotFoundError{Entity: "user", ID: 7}, status: http.StatusNotFound, msg: "user 7 not found"},
		{name: "conflict", err: &service.ConflictError{Kind: "order", Reason: "busy"}, status: http.StatusConflict},
		{name: "persistence", err: &service.PersistenceError{Op: "submit order", Err: errors.New("dial tcp: refused")},
			status: http.StatusInternalServerError, msg: "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.orders.err = tt.err

			w, res := f.do(t, http.MethodPost, "/api/v1/orders/submit", token(t, 7, RoleCustomer),
				map[string]interface{}{"addressBookId": "70"})
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, 0, res.Code)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, res.Msg)
			}
			assert.NotContains(t, w.Body.String(), "dial tcp")
		})
	}
}

func TestAdminStatusAndDelete(t *testing.T) {
	f := newFixture(t)
	admin := token(t, 1, RoleEmployee)

	w, _ := f.do(t, http.MethodPost, "/api/v1/admin/combos/status/0?ids=3,4", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.KindCombo, f.lifecycle.kind)
	assert.Equal(t, []int64{3, 4}, f.lifecycle.ids)
	assert.Equal(t, models.OffSale, f.lifecycle.status)

	w, _ = f.do(t, http.MethodDelete, "/api/v1/admin/dishes?ids=1,x", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.lifecycle.err = &service.ConflictError{Kind: "dish", ItemID: 1, ItemName: "rice", Reason: "dish belongs to an on-sale combo"}
	w, res := f.do(t, http.MethodDelete, "/api/v1/admin/dishes?ids=1", admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, res.Msg, "rice")
}

func TestPageOrdersParsesQuery(t *testing.T) {
	f := newFixture(t)
	admin := token(t, 1, RoleEmployee)

	w, _ := f.do(t, http.MethodGet,
		"/api/v1/admin/orders/page?page=2&pageSize=5&number=99&beginTime=2024-05-01%2000:00:00&endTime=2024-05-02%2000:00:00",
		admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	q := f.orders.lastQuery
	assert.Equal(t, 2, q.Page)
	assert.Equal(t, 5, q.PageSize)
	require.NotNil(t, q.Number)
	assert.Equal(t, int64(99), *q.Number)
	require.NotNil(t, q.BeginTime)
	assert.True(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.Local).Equal(*q.BeginTime))

	w, _ = f.do(t, http.MethodGet, "/api/v1/admin/orders/page?beginTime=yesterday", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogRoutes(t *testing.T) {
	f := newFixture(t)
	tok := token(t, 7, RoleCustomer)

	w, _ := f.do(t, http.MethodGet, "/api/v1/dishes?categoryId=10", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"rice"`)

	w, _ = f.do(t, http.MethodGet, "/api/v1/combos", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.catalog.err = &service.ConflictError{Kind: "category", ItemID: 10, Reason: "category still holds dishes"}
	w, _ = f.do(t, http.MethodDelete, "/api/v1/admin/categories/10", token(t, 1, RoleEmployee), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/health", "", nil)

	w, _ := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "takeout_http_request_duration_seconds")
}

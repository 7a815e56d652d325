package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loyaltydesk/backoffice/internal/domain/customer"
	"github.com/loyaltydesk/backoffice/internal/domain/ledger"
	"github.com/loyaltydesk/backoffice/internal/domain/order"
	"github.com/loyaltydesk/backoffice/internal/domain/settings"
)

// --- In-memory fakes ---
//
// The fakes reproduce the storage-level guarantees the handlers rely on:
// guarded balance debits, the award idempotency marker, and the shared
// points balance between the customer and ledger views.

type fakeStore struct {
	mu        sync.Mutex
	customers map[string]*customer.Customer
	orders    map[string]*order.Order
	ledger    map[string][]ledger.Transaction
	settings  map[string]json.RawMessage

	awardErr  error
	verifyErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		customers: map[string]*customer.Customer{},
		orders:    map[string]*order.Order{},
		ledger:    map[string][]ledger.Transaction{},
		settings:  map[string]json.RawMessage{},
	}
}

type fakeCustomers struct{ s *fakeStore }

func (f fakeCustomers) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (f fakeCustomers) List(_ context.Context, _, _ int) ([]customer.Customer, int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]customer.Customer, 0, len(f.s.customers))
	for _, c := range f.s.customers {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (f fakeCustomers) Create(_ context.Context, c *customer.Customer) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	clone := *c
	clone.CreatedAt = time.Now()
	clone.UpdatedAt = clone.CreatedAt
	f.s.customers[c.ID] = &clone
	return nil
}

func (f fakeCustomers) Update(_ context.Context, c *customer.Customer) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	cur, ok := f.s.customers[c.ID]
	if !ok {
		return customer.ErrNotFound
	}
	cur.Name, cur.Phone, cur.Type = c.Name, c.Phone, c.Type
	cur.DiscountRate, cur.DiscountCode = c.DiscountRate, c.DiscountCode
	cur.UpdatedAt = time.Now()
	return nil
}

type fakeOrders struct{ s *fakeStore }

func (f fakeOrders) Create(_ context.Context, o *order.Order) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if o.PointsRedeemed > 0 {
		c, ok := f.s.customers[o.CustomerID]
		if !ok || c.Points < o.PointsRedeemed {
			return ledger.ErrInsufficientPoints
		}
		c.Points -= o.PointsRedeemed
		f.s.appendTx(o.CustomerID, -o.PointsRedeemed, ledger.TypeRedeem,
			fmt.Sprintf("points redeemed against order %s", o.InvoiceNo))
	}
	clone := *o
	f.s.orders[o.ID] = &clone
	return nil
}

func (f fakeOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	o, ok := f.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	clone := *o
	return &clone, nil
}

func (f fakeOrders) List(_ context.Context, fl order.ListFilter) ([]order.Order, int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []order.Order
	for _, o := range f.s.orders {
		if fl.Status != "" && o.Status != fl.Status {
			continue
		}
		if fl.CustomerID != "" && o.CustomerID != fl.CustomerID {
			continue
		}
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (f fakeOrders) SetStatus(_ context.Context, id string, from, to order.Status) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	o, ok := f.s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrStaleStatus
	}
	o.Status = to
	return nil
}

func (f fakeOrders) Award(_ context.Context, orderID, customerID string, points int64, description string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.awardErr != nil {
		return f.s.awardErr
	}
	o, ok := f.s.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	if o.PointsAwardedAt != nil {
		return order.ErrAlreadyAwarded
	}
	now := time.Now()
	o.PointsAwardedAt = &now
	if c, ok := f.s.customers[customerID]; ok {
		c.Points += points
	}
	f.s.appendTx(customerID, points, ledger.TypeEarn, description)
	return nil
}

func (f fakeOrders) ListUnawarded(_ context.Context) ([]order.Order, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []order.Order
	for _, o := range f.s.orders {
		if o.Status == order.StatusCompleted && o.PointsAwardedAt == nil {
			out = append(out, *o)
		}
	}
	return out, nil
}

type fakeLedger struct{ s *fakeStore }

func (f fakeLedger) ListByCustomer(_ context.Context, customerID string, _, _ int) ([]ledger.Transaction, int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	txs := f.s.ledger[customerID]
	return txs, len(txs), nil
}

func (f fakeLedger) Adjust(_ context.Context, customerID string, amount int64, description string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.customers[customerID]
	if !ok {
		return customer.ErrNotFound
	}
	if c.Points+amount < 0 {
		return ledger.ErrInsufficientPoints
	}
	c.Points += amount
	f.s.appendTx(customerID, amount, ledger.TypeAdjust, description)
	return nil
}

func (f fakeLedger) VerifyBalance(_ context.Context, customerID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.verifyErr != nil {
		return f.s.verifyErr
	}
	if _, ok := f.s.customers[customerID]; !ok {
		return customer.ErrNotFound
	}
	return nil
}

type fakeSettings struct{ s *fakeStore }

func (f fakeSettings) Get(_ context.Context, key string) (json.RawMessage, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	v, ok := f.s.settings[key]
	if !ok {
		return nil, settings.ErrNotFound
	}
	return v, nil
}

func (f fakeSettings) Put(_ context.Context, key string, value json.RawMessage) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.settings[key] = value
	return nil
}

func (f fakeSettings) List(_ context.Context) ([]settings.Setting, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]settings.Setting, 0, len(f.s.settings))
	for k, v := range f.s.settings {
		out = append(out, settings.Setting{Key: k, Value: v, UpdatedAt: time.Now()})
	}
	return out, nil
}

// appendTx must be called with s.mu held.
func (s *fakeStore) appendTx(customerID string, amount int64, typ ledger.Type, description string) {
	s.ledger[customerID] = append(s.ledger[customerID], ledger.Transaction{
		ID:          int64(len(s.ledger[customerID]) + 1),
		CustomerID:  customerID,
		Amount:      amount,
		Type:        typ,
		Description: description,
		CreatedAt:   time.Now(),
	})
}

// --- Helpers ---

func newTestHandler(store *fakeStore) http.Handler {
	customers := fakeCustomers{s: store}
	orders := fakeOrders{s: store}
	svc := order.NewService(customers, orders, settings.NewStoreProvider(fakeSettings{s: store}))
	return NewHandler(svc, customers, fakeLedger{s: store}, fakeSettings{s: store}).Routes()
}

func seedCustomer(store *fakeStore, id string, points int64, rate int64) {
	store.customers[id] = &customer.Customer{
		ID:           id,
		Name:         "Ada Lovelace",
		Type:         customer.TypeRegular,
		DiscountRate: decimal.NewFromInt(rate),
		Points:       points,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[errorBody](t, rec).Code
}

func settleCart(t *testing.T, h http.Handler, customerID string, points int64) orderResponse {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, "/orders", map[string]any{
		"customer_id": customerID,
		"items": []map[string]any{
			{"name": "Chair", "quantity": 2, "unit_price": "50.00"},
			{"name": "Lamp", "quantity": 1, "unit_price": "20.00"},
		},
		"points_to_redeem": points,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[orderResponse](t, rec)
}

// --- Order endpoints ---

func TestCreateOrder_Settlement(t *testing.T) {
	store := newFakeStore()
	seedCustomer(store, "c1", 150, 10)
	h := newTestHandler(store)

	resp := settleCart(t, h, "c1", 50)

	assert.Equal(t, "c1", resp.CustomerID)
	assert.InDelta(t, 120.0, resp.Amount, 1e-9)
	assert.InDelta(t, 12.0, resp.DiscountAmount, 1e-9)
	assert.Equal(t, int64(50), resp.PointsRedeemed)
	assert.InDelta(t, 0.5, resp.RedemptionValue, 1e-9)
	assert.InDelta(t, 107.5, resp.Total, 1e-9)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "local", resp.SyncStatus)
	require.Len(t, resp.Items, 2)
	assert.InDelta(t, 100.0, resp.Items[0].LineTotal, 1e-9)

	// The redemption debited the balance and left a ledger row.
	assert.Equal(t, int64(100), store.customers["c1"].Points)
	require.Len(t, store.ledger["c1"], 1)
	assert.Equal(t, int64(-50), store.ledger["c1"][0].Amount)
	assert.Equal(t, ledger.TypeRedeem, store.ledger["c1"][0].Type)
}

func TestCreateOrder_BadJSON(t *testing.T) {
	h := newTestHandler(newFakeStore())

	rec := doRequest(t, h, http.MethodPost, "/orders", `{"customer_id": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorCode(t, rec))
}

func TestCreateOrder_CustomerNotFound(t *testing.T) {
	h := newTestHandler(newFakeStore())

	rec := doRequest(t, h, http.MethodPost, "/orders", map[string]any{
		"customer_id": "missing",
		"items":       []map[string]any{{"name": "Chair", "quantity": 1, "unit_price": "10.00"}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "customer_not_found", errorCode(t, rec))
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	store := newFakeStore()
	seedCustomer(store, "c1", 0, 0)
	h := newTestHandler(store)

	rec := doRequest(t, h, http.MethodPost, "/orders", map[string]any{"customer_id": "c1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_cart", errorCode(t, rec))
}

func TestCreateOrder_InsufficientPoints(t *testing.T) {
	store := newFakeStore()
	seedCustomer(store, "c1", 150, 0)
	h := newTestHandler(store)

	// Storage sees a smaller balance than the service read.
	store.customers["c1"].Points = 10

	rec := doRequest(t, h, http.MethodPost, "/orders", map[string]any{
		"customer_id":      "c1",
		"items":            []map[string]any{{"name": "Chair", "quantity": 1, "unit_price": "10.00"}},
		"points_to_redeem": 50,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_points", errorCode(t, rec))
}

func TestUpdateOrderStatus_CompletionAwards(t *testing.T) {
	store := newFakeStore()
	seedCustomer(store, "c1", 150, 10)
	h := newTestHandler(store)

	created := settleCart(t, h, "c1", 50)

	rec := doRequest(t, h, http.MethodPatch, "/orders/"+created.ID+"/status",
		map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[orderResponse](t, rec)
	assert.Equal(t, "completed", resp.Status)

	// floor(107.50) points credited on top of the post-redemption balance.
	assert.Equal(t, int64(100+107), store.customers["c1"].Points)
	require.Len(t, store.ledger["c1"], 2)
	assert.Equal(t, int64(107), store.ledger["c1"][1].Amount)
	assert.Equal(t, ledger.TypeEarn, store.ledger["c1"][1].Type)
}

func TestUpdateOrderStatus_InvalidValue(t *testing.T) {
	h := newTestHandler(newFakeStore())

	rec := doRequest(t, h, http.MethodPatch, "/orders/any/status", map[string]any{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorCode(t, rec))
}

func TestUpdateOrderStatus_UnknownOrder(t *testing.T) {
	h := newTestHandler(newFakeStore())

	rec := doRequest(t, h, http.MethodPatch, "/orders/missing/status", map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "order_not_found", errorCode(t, rec))
}

func TestUpdateOrderStatus_TerminalConflict(t *testing.T) {
	store := newFakeStore()
	seedCustomer(store, "c1", 0, 0)
	h := newTestHandler(store)

	created := settleCart(t, h, "c1", 0)

	rec := doRequest(t, h, http.MethodPatch, "/orders/"+created.ID+"/status",
		map[string]any{"status": "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodPatch, "/orders/"+created.ID+"/status",
		map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", errorCode(t, rec))
}

func TestAwardReconciliation(t *testing.T) {
	store := newFakeStore()
	seedCustomer(store, "c1", 0, 0)
	h := newTestHandler(store)

	created := settleCart(t, h, "c1", 0)

	// Completion succeeds but the award transaction fails.
	store.awardErr = fmt.Errorf("ledger write failed")

	rec := doRequest(t, h, http.MethodPatch, "/orders/"+created.ID+"/status",
		map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "award_failed", errorCode(t, rec))

	// The order is completed and queryable as unawarded.
	rec = doRequest(t, h, http.MethodGet, "/orders/unawarded", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[struct {
		Data []orderResponse `json:"data"`
	}](t, rec)
	require.Len(t, page.Data, 1)
	assert.Equal(t, created.ID, page.Data[0].ID)

	// Retry succeeds once the fault clears.
	store.awardErr = nil
	rec = doRequest(t, h, http.MethodPost, "/orders/"+created.ID+"/award", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[orderResponse](t, rec)
	assert.NotNil(t, resp.PointsAwardedAt)

	// A second retry is a conflict, not a second credit.
	rec = doRequest(t, h, http.MethodPost, "/orders/"+created.ID+"/award", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_awarded", errorCode(t, rec))
	require.Len(t, store.ledger["c1"], 1)
}

func TestListOrders_StatusFilter(t *testing.T) {
	store := newFakeStore()
	seedCustomer(store, "c1", 0, 0)
	h := newTestHandler(store)

	first := settleCart(t, h, "c1", 0)
	settleCart(t, h, "c1", 0)

	rec := doRequest(t, h, http.MethodPatch, "/orders/"+first.ID+"/status",
		map[string]any{"status": "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/orders?status=cancelled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[struct {
		Data []orderResponse `json:"data"`
		Meta pageMeta        `json:"meta"`
	}](t, rec)
	require.Len(t, page.Data, 1)
	assert.Equal(t, first.ID, page.Data[0].ID)
	assert.Equal(t, 1, page.Meta.Total)

	rec = doRequest(t, h, http.MethodGet, "/orders?status=refunded", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Customer endpoints ---

func TestCreateCustomer(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)

	rec := doRequest(t, h, http.MethodPost, "/customers", map[string]any{
		"name":          "Grace Hopper",
		"type":          "contractor",
		"discount_rate": "15",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[customerResponse](t, rec)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "contractor", resp.Type)
	assert.Equal(t, int64(0), resp.Points)
}

func TestCreateCustomer_Validation(t *testing.T) {
	h := newTestHandler(newFakeStore())

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"type": "regular"}},
		{"unknown type", map[string]any{"name": "X", "type": "vip"}},
		{"rate out of range", map[string]any{"name": "X", "discount_rate": "120"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/customers", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		})
	}
}

func TestGetCustomer_NotFound(t *testing.T) {
	h := newTestHandler(newFakeStore())

	rec := doRequest(t, h, http.MethodGet, "/customers/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "customer_not_found", errorCode(t, rec))
}

func TestAdjustPoints(t *testing.T) {
	store := newFakeStore()
	seedCustomer(store, "c1", 100, 0)
	h := newTestHandler(store)

	rec := doRequest(t, h, http.MethodPost, "/customers/c1/points/adjust",
		map[string]any{"amount": 25, "description": "goodwill credit"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[customerResponse](t, rec)
	assert.Equal(t, int64(125), resp.Points)

	rec = doRequest(t, h, http.MethodPost, "/customers/c1/points/adjust",
		map[string]any{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/customers/c1/points/adjust",
		map[string]any{"amount": -1000, "description": "clawback"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_points", errorCode(t, rec))
}

func TestVerifyLedger(t *testing.T) {
	store := newFakeStore()
	seedCustomer(store, "c1", 0, 0)
	h := newTestHandler(store)

	rec := doRequest(t, h, http.MethodGet, "/customers/c1/ledger/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	store.verifyErr = &ledger.InconsistencyError{CustomerID: "c1", Balance: 10, LedgerSum: 7}
	rec = doRequest(t, h, http.MethodGet, "/customers/c1/ledger/verify", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "ledger_inconsistency", errorCode(t, rec))
}

func TestListLedger(t *testing.T) {
	store := newFakeStore()
	seedCustomer(store, "c1", 150, 10)
	h := newTestHandler(store)

	created := settleCart(t, h, "c1", 50)
	rec := doRequest(t, h, http.MethodPatch, "/orders/"+created.ID+"/status",
		map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/customers/c1/ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[struct {
		Data []ledgerTransactionResponse `json:"data"`
	}](t, rec)
	require.Len(t, page.Data, 2)
	assert.Equal(t, int64(-50), page.Data[0].Amount)
	assert.Equal(t, "redeem", page.Data[0].Type)
	assert.Equal(t, int64(107), page.Data[1].Amount)
	assert.Equal(t, "earn", page.Data[1].Type)
}

// --- Settings endpoints ---

func TestPutSetting_AffectsNextSettlement(t *testing.T) {
	store := newFakeStore()
	seedCustomer(store, "c1", 0, 0)
	h := newTestHandler(store)

	rec := doRequest(t, h, http.MethodPut, "/settings/discount_rates",
		`{"default": "50"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := settleCart(t, h, "c1", 0)
	assert.InDelta(t, 60.0, resp.DiscountAmount, 1e-9)
	assert.InDelta(t, 60.0, resp.Total, 1e-9)
}

func TestPutSetting_RejectsInvalidJSON(t *testing.T) {
	h := newTestHandler(newFakeStore())

	rec := doRequest(t, h, http.MethodPut, "/settings/points", `{"earn_rate": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSettings(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)

	rec := doRequest(t, h, http.MethodPut, "/settings/points", `{"earn_rate": "2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[struct {
		Data []settingResponse `json:"data"`
	}](t, rec)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "points", page.Data[0].Key)
}

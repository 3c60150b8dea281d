package routes_test

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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/merakilabs/marketplace-backend/api/controllers/webhooks"
	"github.com/merakilabs/marketplace-backend/api/routes"
	"github.com/merakilabs/marketplace-backend/internal/app"
	"github.com/merakilabs/marketplace-backend/internal/payments"
	"github.com/merakilabs/marketplace-backend/pkg/auth"
	"github.com/merakilabs/marketplace-backend/pkg/config"
	"github.com/merakilabs/marketplace-backend/pkg/db"
	"github.com/merakilabs/marketplace-backend/pkg/db/dbtest"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
)

const webhookSecret = "whsec-test"

type fakeGateway struct{}

func (fakeGateway) Name() string { return "fake" }

func (fakeGateway) CreateSession(_ context.Context, req payments.SessionRequest) (*payments.Session, error) {
	return &payments.Session{
		Link:       "https://pay.example.com/" + req.TransactionID.String(),
		GatewayRef: "ref-" + req.TransactionID.String(),
	}, nil
}

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	switch v := value.(type) {
	case string:
		m.keys[key] = v
	case []byte:
		m.keys[key] = string(v)
	default:
		m.keys[key] = "1"
	}
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

type harness struct {
	t       *testing.T
	cfg     *config.Config
	conn    *db.Client
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		JWT:     config.JWTConfig{Secret: "secret", Issuer: "marketplace", ExpirationMinutes: 60},
		Payments: config.PaymentsConfig{
			WebhookSecret:  webhookSecret,
			SuccessURL:     "https://shop.example.com/pay/{transactionId}/ok",
			FailureURL:     "https://shop.example.com/pay/{transactionId}/ko",
			IdempotencyTTL: time.Hour,
		},
	}
	conn := dbtest.Open(t)
	deps, err := app.Build(app.Params{
		Config:  cfg,
		DB:      conn,
		Store:   &memoryStore{keys: map[string]string{}},
		Gateway: fakeGateway{},
	})
	require.NoError(t, err)
	return &harness{t: t, cfg: cfg, conn: conn, handler: routes.NewRouter(cfg, nil, deps)}
}

func (h *harness) token(account models.Account) string {
	h.t.Helper()
	token, err := auth.MintAccessToken(h.cfg.JWT, time.Now(), auth.AccessTokenPayload{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
	})
	require.NoError(h.t, err)
	return token
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(h.t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) webhook(payload map[string]any, signature string) *httptest.ResponseRecorder {
	h.t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(h.t, err)
	if signature == "" {
		signature = webhooks.Sign(body, webhookSecret)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(body))
	req.Header.Set(webhooks.SignatureHeader, signature)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	envelope := struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Error.Code
}

type orderView struct {
	ID         uuid.UUID         `json:"id"`
	Status     enums.OrderStatus `json:"status"`
	TotalMoney decimal.Decimal   `json:"totalMoney"`
}

type linkView struct {
	URL           string    `json:"link"`
	TransactionID uuid.UUID `json:"transactionId"`
}

func TestHealthAndGuards(t *testing.T) {
	h := newHarness(t)
	customer := dbtest.SeedAccount(t, h.conn.DB(), "buyer@example.com")

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health/live", "", nil).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health/ready", "", nil).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/metrics", "", nil).Code)

	rec := h.do(http.MethodGet, "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/admin/orders", h.token(customer), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.webhook(map[string]any{"transactionId": uuid.New(), "status": "success"}, "deadbeef")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCartCheckoutPayAndReplay(t *testing.T) {
	h := newHarness(t)
	buyer := dbtest.SeedAccount(t, h.conn.DB(), "buyer@example.com")
	seller := dbtest.SeedAccount(t, h.conn.DB(), "seller@example.com")
	product := dbtest.SeedProduct(t, h.conn.DB(), seller.ID, "lamp", "10.00")
	buyerToken := h.token(buyer)

	rec := h.do(http.MethodPost, "/api/v1/cart/items", buyerToken, map[string]any{"productId": product.ID, "quantity": "2"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = h.do(http.MethodPost, "/api/v1/cart/items", buyerToken, map[string]any{"productId": product.ID, "quantity": "1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var cartView struct {
		Lines []struct {
			ID       uuid.UUID       `json:"id"`
			Quantity decimal.Decimal `json:"quantity"`
		} `json:"lines"`
		Subtotal decimal.Decimal `json:"subtotal"`
	}
	rec = h.do(http.MethodGet, "/api/v1/cart", buyerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &cartView)
	require.Len(t, cartView.Lines, 1)
	require.True(t, cartView.Lines[0].Quantity.Equal(decimal.NewFromInt(3)))
	require.True(t, cartView.Subtotal.Equal(decimal.RequireFromString("30")))

	rec = h.do(http.MethodPost, "/api/v1/checkout", buyerToken, map[string]any{"cartLineIds": []uuid.UUID{cartView.Lines[0].ID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order orderView
	decodeData(t, rec, &order)
	require.Equal(t, enums.OrderStatusPendingPayment, order.Status)
	require.True(t, order.TotalMoney.Equal(decimal.RequireFromString("30.00")))

	rec = h.do(http.MethodPost, "/api/v1/payments/orders/"+order.ID.String()+"/link", buyerToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var link linkView
	decodeData(t, rec, &link)
	require.NotEmpty(t, link.URL)

	notification := map[string]any{"transactionId": link.TransactionID, "status": "success", "amount": "30.00"}
	rec = h.webhook(notification, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.webhook(notification, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ack struct {
		Duplicate bool `json:"duplicate"`
	}
	decodeData(t, rec, &ack)
	require.True(t, ack.Duplicate)

	rec = h.do(http.MethodGet, "/api/v1/orders/"+order.ID.String(), buyerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &order)
	require.Equal(t, enums.OrderStatusPaid, order.Status)

	var rows int64
	require.NoError(t, h.conn.DB().Model(&models.Transaction{}).Where("order_id = ?", order.ID).Count(&rows).Error)
	require.EqualValues(t, 1, rows)

	var earnings struct {
		Earnings decimal.Decimal `json:"earnings"`
	}
	rec = h.do(http.MethodGet, "/api/v1/reports/me/earnings", h.token(seller), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &earnings)
	require.True(t, earnings.Earnings.Equal(decimal.RequireFromString("30")))

	rec = h.do(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/cancel", buyerToken, map[string]any{"reason": "changed my mind"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "INVALID_TRANSITION", errorCode(t, rec))
}

func TestFailureThenSuccessCountsOnce(t *testing.T) {
	h := newHarness(t)
	buyer := dbtest.SeedAccount(t, h.conn.DB(), "buyer@example.com")
	seller := dbtest.SeedAccount(t, h.conn.DB(), "seller@example.com")
	order := dbtest.SeedOrder(t, h.conn.DB(), dbtest.OrderSeed{Buyer: buyer.ID, Seller: seller.ID, Total: "12.00"})
	buyerToken := h.token(buyer)
	path := "/api/v1/payments/orders/" + order.ID.String() + "/link"

	var first, second linkView
	rec := h.do(http.MethodPost, path, buyerToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decodeData(t, rec, &first)
	rec = h.do(http.MethodPost, path, buyerToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decodeData(t, rec, &second)
	require.NotEqual(t, first.TransactionID, second.TransactionID)

	rec = h.do(http.MethodGet, "/api/v1/payments/failed/"+first.TransactionID.String(), buyerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(http.MethodGet, "/api/v1/payments/success/"+second.TransactionID.String(), buyerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rows int64
	require.NoError(t, h.conn.DB().Model(&models.Transaction{}).Where("order_id = ?", order.ID).Count(&rows).Error)
	require.EqualValues(t, 2, rows)

	var earnings struct {
		Earnings decimal.Decimal `json:"earnings"`
	}
	rec = h.do(http.MethodGet, "/api/v1/reports/me/earnings", h.token(seller), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &earnings)
	require.True(t, earnings.Earnings.Equal(decimal.RequireFromString("12")))

	intruder := dbtest.SeedAccount(t, h.conn.DB(), "intruder@example.com")
	rec = h.do(http.MethodGet, "/api/v1/payments/success/"+first.TransactionID.String(), h.token(intruder), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExchangeRefuseTwice(t *testing.T) {
	h := newHarness(t)
	requester := dbtest.SeedAccount(t, h.conn.DB(), "requester@example.com")
	owner := dbtest.SeedAccount(t, h.conn.DB(), "owner@example.com")
	target := dbtest.SeedProduct(t, h.conn.DB(), owner.ID, "bike", "80.00")

	rec := h.do(http.MethodPost, "/api/v1/exchanges", h.token(requester), map[string]any{"targetProductId": target.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result struct {
		Order orderView `json:"order"`
	}
	decodeData(t, rec, &result)
	require.Equal(t, enums.OrderStatusAwaitingCounterparty, result.Order.Status)

	refusePath := "/api/v1/exchanges/" + result.Order.ID.String() + "/refuse"
	rec = h.do(http.MethodPost, refusePath, h.token(requester), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "UNAUTHORIZED_COUNTERPARTY", errorCode(t, rec))

	rec = h.do(http.MethodPost, refusePath, h.token(owner), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, refusePath, h.token(owner), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "ALREADY_RESOLVED", errorCode(t, rec))
}

func TestAdminReadsAndCounts(t *testing.T) {
	h := newHarness(t)
	buyer := dbtest.SeedAccount(t, h.conn.DB(), "buyer@example.com")
	seller := dbtest.SeedAccount(t, h.conn.DB(), "seller@example.com")
	admin := dbtest.SeedAccount(t, h.conn.DB(), "admin@example.com")
	require.NoError(t, h.conn.DB().Model(&models.Account{}).Where("id = ?", admin.ID).Update("role", enums.AccountRoleAdmin).Error)
	admin.Role = enums.AccountRoleAdmin

	dbtest.SeedOrder(t, h.conn.DB(), dbtest.OrderSeed{Buyer: buyer.ID, Seller: seller.ID, Total: "5.00"})
	dbtest.SeedOrder(t, h.conn.DB(), dbtest.OrderSeed{Buyer: buyer.ID, Seller: seller.ID, Total: "7.00", Status: enums.OrderStatusCancelled})
	adminToken := h.token(admin)

	var page struct {
		Items []orderView `json:"items"`
	}
	rec := h.do(http.MethodGet, "/api/v1/admin/orders?type=buy", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &page)
	require.Len(t, page.Items, 2)

	var count struct {
		Count int64 `json:"count"`
	}
	rec = h.do(http.MethodGet, "/api/v1/admin/reports/counts?status=cancelled", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &count)
	require.EqualValues(t, 1, count.Count)

	rec = h.do(http.MethodGet, "/api/v1/admin/reports/counts?status=cancelled&type=buy", adminToken, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/reports/me/counts", h.token(buyer), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &count)
	require.EqualValues(t, 2, count.Count)

	rec = h.do(http.MethodGet, "/api/v1/admin/transactions", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

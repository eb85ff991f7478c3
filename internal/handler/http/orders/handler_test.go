package orders_http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paygate/internal/app/orders"
	"paygate/internal/app/recon"
	"paygate/internal/domain"
	"paygate/internal/gateway"
	"paygate/internal/handler/http/middleware"
	event_memory "paygate/internal/repository/event_repo/memory"
	"paygate/internal/repository/ledger_repo"
	ledger_memory "paygate/internal/repository/ledger_repo/memory"
	order_memory "paygate/internal/repository/order_repo/memory"
	outbox_memory "paygate/internal/repository/outbox_repo/memory"
)

type stubAdapter struct {
	name domain.Gateway
}

func (s *stubAdapter) Name() domain.Gateway { return s.name }

func (s *stubAdapter) Initiate(_ context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	return &gateway.InitiateResult{GatewayReference: "ref-" + req.OrderID, RedirectOrToken: "https://pay.example/" + req.OrderID}, nil
}

func (s *stubAdapter) ParseWebhook([]byte, http.Header) (*domain.GatewayEvent, error) {
	return nil, gateway.ErrMalformedPayload
}

type fixture struct {
	router *chi.Mux
	orders *order_memory.OrderRepository
	ledger ledger_repo.LedgerRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	orderRepo := order_memory.NewOrderRepository()
	ledger := ledger_memory.NewLedgerRepository()
	outboxRepo := outbox_memory.NewOutboxRepository()
	engine := recon.NewEngine(orderRepo, ledger, event_memory.NewEventRepository(), outboxRepo, zap.NewNop())
	registry := gateway.NewRegistry(&stubAdapter{name: domain.GatewayAlphaPay})
	service := orders.NewOrderService(orderRepo, ledger, outboxRepo, registry, engine, zap.NewNop())

	router := chi.NewRouter()
	RegisterRoutes(router, service, zap.NewNop())
	return &fixture{router: router, orders: orderRepo, ledger: ledger}
}

func (f *fixture) seedAccount(t *testing.T, id, balance string) {
	t.Helper()
	require.NoError(t, f.ledger.CreateAccount(context.Background(), &domain.Account{
		ID: id, Balance: decimal.RequireFromString(balance), CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
}

func (f *fixture) do(method, path, accountID string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if accountID != "" {
		req.Header.Set(middleware.AccountIDHeader, accountID)
	}
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "acct-1", "0")

	resp := f.do(http.MethodPost, "/orders", "acct-1", `{"amount":"150.25","currency":"INR","gateway":"alphapay"}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	var created CreateOrderResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	assert.NotEmpty(t, created.OrderID)
	assert.Equal(t, string(domain.OrderStatusInitiated), created.Status)
	assert.Equal(t, "150.25", created.Amount)
	assert.Equal(t, "alphapay", created.Gateway)
	assert.NotEmpty(t, created.GatewayReference)
	assert.NotEmpty(t, created.GatewayRedirectOrToken)
}

func TestCreateOrderRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodPost, "/orders", "", `{"amount":"10","currency":"INR","gateway":"alphapay"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "acct-1", "0")

	tests := []struct {
		name string
		body string
	}{
		{"zero amount", `{"amount":"0","currency":"INR","gateway":"alphapay"}`},
		{"bad currency", `{"amount":"10","currency":"RUPEES","gateway":"alphapay"}`},
		{"unknown gateway", `{"amount":"10","currency":"INR","gateway":"charliepay"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(http.MethodPost, "/orders", "acct-1", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}

	resp := f.do(http.MethodPost, "/orders", "acct-1", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetAndListOrders(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "acct-1", "0")
	f.seedAccount(t, "acct-2", "0")

	resp := f.do(http.MethodPost, "/orders", "acct-1", `{"amount":"10","currency":"INR","gateway":"alphapay"}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	var created CreateOrderResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	resp = f.do(http.MethodGet, "/orders/"+created.OrderID, "acct-1", "")
	require.Equal(t, http.StatusOK, resp.Code)

	// Another account cannot see it.
	resp = f.do(http.MethodGet, "/orders/"+created.OrderID, "acct-2", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = f.do(http.MethodGet, "/orders", "acct-1", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var list []OrderResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, created.OrderID, list[0].OrderID)

	resp = f.do(http.MethodGet, "/orders", "acct-2", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.Empty(t, list)
}

func TestRefundOrder(t *testing.T) {
	f := newFixture(t)
	f.seedAccount(t, "acct-1", "0")

	order, err := domain.NewOrder("ord-1", "acct-1", decimal.RequireFromString("20"), "INR", domain.GatewayAlphaPay)
	require.NoError(t, err)
	require.NoError(t, f.orders.Create(context.Background(), order))

	// An order that was never charged cannot be refunded.
	resp := f.do(http.MethodPost, "/orders/ord-1/refund", "acct-1", "")
	assert.Equal(t, http.StatusConflict, resp.Code)

	// Charge it via the engine path, then refund.
	_, err = f.orders.CompareAndUpdate(context.Background(), "ord-1", order.Version, func(o *domain.Order) error {
		o.Status = domain.OrderStatusCharged
		return nil
	})
	require.NoError(t, err)
	_, err = f.ledger.Credit(context.Background(), "acct-1", decimal.RequireFromString("20"), "order:ord-1")
	require.NoError(t, err)

	resp = f.do(http.MethodPost, "/orders/ord-1/refund", "acct-1", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var refunded OrderResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &refunded))
	assert.Equal(t, string(domain.OrderStatusRefunded), refunded.Status)

	account, err := f.ledger.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero())

	resp = f.do(http.MethodPost, "/orders/missing/refund", "acct-1", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAccountEndpoints(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodPost, "/accounts", "", `{"account_id":"acct-9","balance":"500"}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	var account AccountResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &account))
	assert.Equal(t, "acct-9", account.AccountID)
	assert.Equal(t, "500", account.Balance)

	// Duplicate id conflicts.
	resp = f.do(http.MethodPost, "/accounts", "", `{"account_id":"acct-9","balance":"0"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)

	// Negative opening balance is rejected.
	resp = f.do(http.MethodPost, "/accounts", "", `{"account_id":"acct-10","balance":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = f.do(http.MethodGet, "/accounts/acct-9/balance", "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &account))
	assert.Equal(t, "500", account.Balance)

	resp = f.do(http.MethodGet, "/accounts/missing/balance", "", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

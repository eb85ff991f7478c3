package webhooks_http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paygate/internal/app/recon"
	"paygate/internal/domain"
	"paygate/internal/gateway"
	"paygate/internal/gateway/alphapay"
	"paygate/internal/gateway/bravopay"
	event_memory "paygate/internal/repository/event_repo/memory"
	"paygate/internal/repository/ledger_repo"
	ledger_memory "paygate/internal/repository/ledger_repo/memory"
	order_memory "paygate/internal/repository/order_repo/memory"
	outbox_memory "paygate/internal/repository/outbox_repo/memory"
)

const (
	alphaSecret = "whsec_test"
	bravoSecret = "bp_secret"
)

type fixture struct {
	router *chi.Mux
	orders *order_memory.OrderRepository
	ledger ledger_repo.LedgerRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	orders := order_memory.NewOrderRepository()
	ledger := ledger_memory.NewLedgerRepository()
	engine := recon.NewEngine(orders, ledger, event_memory.NewEventRepository(), outbox_memory.NewOutboxRepository(), zap.NewNop())
	registry := gateway.NewRegistry(
		alphapay.New(alphapay.Config{WebhookSecret: alphaSecret}),
		bravopay.New(bravopay.Config{Secret: bravoSecret}),
	)

	router := chi.NewRouter()
	RegisterRoutes(router, registry, engine, zap.NewNop())
	return &fixture{router: router, orders: orders, ledger: ledger}
}

func (f *fixture) seedOrder(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.ledger.CreateAccount(ctx, &domain.Account{
		ID: "acct-1", Balance: decimal.Zero, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	order, err := domain.NewOrder("ord-1", "acct-1", decimal.RequireFromString("75.00"), "INR", domain.GatewayAlphaPay)
	require.NoError(t, err)
	order.GatewayReference = "ch_1"
	require.NoError(t, f.orders.Create(ctx, order))
}

func (f *fixture) post(path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	for key, values := range header {
		req.Header[key] = values
	}
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func alphaWebhook(body string) ([]byte, http.Header) {
	header := http.Header{}
	header.Set(alphapay.SignatureHeader, alphapay.Sign(alphaSecret, []byte(body)))
	return []byte(body), header
}

func TestReceiveAppliesEvent(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t)

	body, header := alphaWebhook(`{"event_id":"evt_1","charge_id":"ch_1","merchant_order_id":"ord-1","status":"success"}`)
	resp := f.post("/webhooks/alphapay", body, header)

	require.Equal(t, http.StatusOK, resp.Code)
	var ack map[string]bool
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &ack))
	assert.True(t, ack["received"])

	order, err := f.orders.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCharged, order.Status)

	account, err := f.ledger.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("75.00")))
}

func TestReceiveRedeliveryIsAcknowledgedOnce(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t)

	body, header := alphaWebhook(`{"event_id":"evt_1","charge_id":"ch_1","merchant_order_id":"ord-1","status":"success"}`)
	require.Equal(t, http.StatusOK, f.post("/webhooks/alphapay", body, header).Code)
	require.Equal(t, http.StatusOK, f.post("/webhooks/alphapay", body, header).Code)

	entries, err := f.ledger.ListEntries(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "redelivery must not credit twice")
}

func TestReceiveStaleEventIsStillAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t)

	body, header := alphaWebhook(`{"event_id":"evt_1","charge_id":"ch_1","merchant_order_id":"ord-1","status":"success"}`)
	require.Equal(t, http.StatusOK, f.post("/webhooks/alphapay", body, header).Code)

	// A late "pending" after the charge is stale but durably recorded, so
	// the gateway must not retry it.
	body, header = alphaWebhook(`{"event_id":"evt_2","charge_id":"ch_1","merchant_order_id":"ord-1","status":"pending"}`)
	assert.Equal(t, http.StatusOK, f.post("/webhooks/alphapay", body, header).Code)

	order, err := f.orders.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCharged, order.Status)
}

func TestReceiveUnresolvedEventIsAcknowledged(t *testing.T) {
	f := newFixture(t)

	body, header := alphaWebhook(`{"event_id":"evt_x","charge_id":"ch_missing","status":"success"}`)
	assert.Equal(t, http.StatusOK, f.post("/webhooks/alphapay", body, header).Code)
}

func TestReceiveUnknownGateway(t *testing.T) {
	f := newFixture(t)
	resp := f.post("/webhooks/charliepay", []byte(`{}`), nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestReceiveInvalidSignature(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t)

	body := []byte(`{"event_id":"evt_1","charge_id":"ch_1","status":"success"}`)
	header := http.Header{}
	header.Set(alphapay.SignatureHeader, alphapay.Sign("wrong-secret", body))
	resp := f.post("/webhooks/alphapay", body, header)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	order, err := f.orders.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusInitiated, order.Status, "forged call must not move the order")
}

func TestReceiveMalformedPayload(t *testing.T) {
	f := newFixture(t)

	body := []byte(`not json`)
	header := http.Header{}
	header.Set(alphapay.SignatureHeader, alphapay.Sign(alphaSecret, body))
	resp := f.post("/webhooks/alphapay", body, header)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestReceiveBravopayCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.CreateAccount(ctx, &domain.Account{
		ID: "acct-2", Balance: decimal.Zero, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	order, err := domain.NewOrder("ord-2", "acct-2", decimal.RequireFromString("40"), "INR", domain.GatewayBravoPay)
	require.NoError(t, err)
	order.GatewayReference = "txn_2"
	require.NoError(t, f.orders.Create(ctx, order))

	body := []byte(fmt.Sprintf(`{"txn_ref":"txn_2","order_ref":"ord-2","state":2,"digest":%q}`,
		bravopay.Digest(bravoSecret, "txn_2", "ord-2", 2)))
	resp := f.post("/webhooks/bravopay", body, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	got, err := f.orders.Get(ctx, "ord-2")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCharged, got.Status)
}

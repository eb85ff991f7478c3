package recon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paygate/internal/domain"
	event_memory "paygate/internal/repository/event_repo/memory"
	"paygate/internal/repository/ledger_repo"
	ledger_memory "paygate/internal/repository/ledger_repo/memory"
	order_memory "paygate/internal/repository/order_repo/memory"
	outbox_memory "paygate/internal/repository/outbox_repo/memory"
)

type fixture struct {
	engine *Engine
	orders *order_memory.OrderRepository
	ledger ledger_repo.LedgerRepository
	events *event_memory.EventRepository
	outbox *outbox_memory.OutboxRepository
}

func newFixture(t *testing.T, ledger ledger_repo.LedgerRepository) *fixture {
	t.Helper()
	orders := order_memory.NewOrderRepository()
	if ledger == nil {
		ledger = ledger_memory.NewLedgerRepository()
	}
	events := event_memory.NewEventRepository()
	outboxRepo := outbox_memory.NewOutboxRepository()
	engine := NewEngine(orders, ledger, events, outboxRepo, zap.NewNop())
	return &fixture{engine: engine, orders: orders, ledger: ledger, events: events, outbox: outboxRepo}
}

func (f *fixture) seedOrder(t *testing.T, amount string) *domain.Order {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.ledger.CreateAccount(ctx, &domain.Account{
		ID: "acct-1", Balance: decimal.Zero, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	amt, err := decimal.NewFromString(amount)
	require.NoError(t, err)
	order, err := domain.NewOrder("ord-1", "acct-1", amt, "INR", domain.GatewayAlphaPay)
	require.NoError(t, err)
	order.GatewayReference = "ref-1"
	require.NoError(t, f.orders.Create(ctx, order))
	return order
}

func event(id string, status domain.ReportedStatus) *domain.GatewayEvent {
	return &domain.GatewayEvent{
		Gateway:          domain.GatewayAlphaPay,
		GatewayReference: "ref-1",
		OrderID:          "ord-1",
		ReportedStatus:   status,
		EventID:          id,
		ReceivedAt:       time.Now(),
	}
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	account, err := f.ledger.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	return account.Balance
}

func TestSuccessChargesAndCreditsOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.seedOrder(t, "100.50")
	ctx := context.Background()

	result, err := f.engine.Apply(ctx, event("e1", domain.ReportedStatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)
	assert.Equal(t, domain.OrderStatusCharged, result.Order.Status)
	assert.False(t, result.Order.LedgerPending)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("100.50")))

	// Redelivery of e1 replays the recorded outcome without re-crediting.
	result, err = f.engine.Apply(ctx, event("e1", domain.ReportedStatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)
	order, err := f.orders.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCharged, order.Status)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("100.50")))

	entries, err := f.ledger.ListEntries(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPendingThenSuccess(t *testing.T) {
	f := newFixture(t, nil)
	f.seedOrder(t, "10")
	ctx := context.Background()

	result, err := f.engine.Apply(ctx, event("e2", domain.ReportedStatusPending))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)
	assert.Equal(t, domain.OrderStatusPending, result.Order.Status)

	result, err = f.engine.Apply(ctx, event("e1", domain.ReportedStatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)
	assert.Equal(t, domain.OrderStatusCharged, result.Order.Status)
}

func TestPendingAfterSuccessIsStale(t *testing.T) {
	f := newFixture(t, nil)
	f.seedOrder(t, "10")
	ctx := context.Background()

	_, err := f.engine.Apply(ctx, event("e1", domain.ReportedStatusSuccess))
	require.NoError(t, err)

	result, err := f.engine.Apply(ctx, event("e2", domain.ReportedStatusPending))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejectedStale, result.Outcome)

	order, err := f.orders.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCharged, order.Status)
}

func TestFailureAfterSuccessIsStale(t *testing.T) {
	f := newFixture(t, nil)
	f.seedOrder(t, "10")
	ctx := context.Background()

	_, err := f.engine.Apply(ctx, event("e1", domain.ReportedStatusSuccess))
	require.NoError(t, err)

	result, err := f.engine.Apply(ctx, event("e2", domain.ReportedStatusFailure))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejectedStale, result.Outcome)

	order, err := f.orders.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCharged, order.Status)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(10)))
}

func TestSuccessAfterFailureIsStale(t *testing.T) {
	f := newFixture(t, nil)
	f.seedOrder(t, "10")
	ctx := context.Background()

	_, err := f.engine.Apply(ctx, event("e1", domain.ReportedStatusFailure))
	require.NoError(t, err)

	result, err := f.engine.Apply(ctx, event("e2", domain.ReportedStatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejectedStale, result.Outcome)
	assert.True(t, f.balance(t).IsZero())
}

func TestDuplicatePendingIsNoOp(t *testing.T) {
	f := newFixture(t, nil)
	f.seedOrder(t, "10")
	ctx := context.Background()

	_, err := f.engine.Apply(ctx, event("e1", domain.ReportedStatusPending))
	require.NoError(t, err)

	result, err := f.engine.Apply(ctx, event("e2", domain.ReportedStatusPending))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, result.Outcome)
}

func TestUnresolvedEventCreatesNoOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	evt := &domain.GatewayEvent{
		Gateway:          domain.GatewayAlphaPay,
		GatewayReference: "ref-nowhere",
		OrderID:          "ord-nowhere",
		ReportedStatus:   domain.ReportedStatusSuccess,
		EventID:          "e1",
		ReceivedAt:       time.Now(),
	}
	result, err := f.engine.Apply(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnresolved, result.Outcome)
	assert.Nil(t, result.Order)

	_, err = f.orders.Get(ctx, "ord-nowhere")
	assert.Error(t, err)

	recorded, err := f.events.Get(ctx, domain.GatewayAlphaPay, "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnresolved, recorded.Outcome)
}

func TestResolveByGatewayReference(t *testing.T) {
	f := newFixture(t, nil)
	f.seedOrder(t, "10")
	ctx := context.Background()

	evt := event("e1", domain.ReportedStatusSuccess)
	evt.OrderID = ""
	result, err := f.engine.Apply(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)
	assert.Equal(t, "ord-1", result.Order.ID)
}

func TestConcurrentSuccessEventsCreditOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.seedOrder(t, "25")
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	outcomes := make([]domain.EventOutcome, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			result, err := f.engine.Apply(ctx, event("evt-"+id, domain.ReportedStatusSuccess))
			if err == nil {
				outcomes[i] = result.Outcome
			}
		}(i)
	}
	wg.Wait()

	order, err := f.orders.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCharged, order.Status)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(25)))

	entries, err := f.ledger.ListEntries(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	applied := 0
	for _, outcome := range outcomes {
		if outcome == domain.OutcomeApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied, "exactly one event should win the charge")
}

// flakyLedger fails credits until armed otherwise.
type flakyLedger struct {
	ledger_repo.LedgerRepository
	mu   sync.Mutex
	fail bool
}

func (f *flakyLedger) Credit(ctx context.Context, accountID string, amount decimal.Decimal, reason string) (*domain.LedgerEntry, error) {
	f.mu.Lock()
	failing := f.fail
	f.mu.Unlock()
	if failing {
		return nil, errors.New("ledger store unavailable")
	}
	return f.LedgerRepository.Credit(ctx, accountID, amount, reason)
}

func (f *flakyLedger) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func TestLedgerCreditFailureLeavesOrderChargedAndPending(t *testing.T) {
	flaky := &flakyLedger{LedgerRepository: ledger_memory.NewLedgerRepository(), fail: true}
	f := newFixture(t, flaky)
	f.seedOrder(t, "50")
	ctx := context.Background()

	result, err := f.engine.Apply(ctx, event("e1", domain.ReportedStatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)
	// Charged is authoritative even though the credit failed.
	assert.Equal(t, domain.OrderStatusCharged, result.Order.Status)
	assert.True(t, result.Order.LedgerPending)
	assert.True(t, f.balance(t).IsZero())

	pending, err := f.orders.ListLedgerPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// Catch-up settles the credit once the ledger recovers.
	flaky.setFail(false)
	require.NoError(t, f.engine.CatchUpLedger(ctx, "ord-1"))
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(50)))

	order, err := f.orders.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.False(t, order.LedgerPending)

	// A second catch-up is a no-op.
	require.NoError(t, f.engine.CatchUpLedger(ctx, "ord-1"))
	entries, err := f.ledger.ListEntries(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRefund(t *testing.T) {
	f := newFixture(t, nil)
	f.seedOrder(t, "30")
	ctx := context.Background()

	_, err := f.engine.Refund(ctx, "ord-1")
	assert.ErrorIs(t, err, ErrOrderNotRefundable)

	_, err = f.engine.Apply(ctx, event("e1", domain.ReportedStatusSuccess))
	require.NoError(t, err)

	order, err := f.engine.Refund(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRefunded, order.Status)
	assert.True(t, f.balance(t).IsZero())

	// Refund is idempotent.
	order, err = f.engine.Refund(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRefunded, order.Status)
	entries, err := f.ledger.ListEntries(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestOutboxMessageWrittenOnTransition(t *testing.T) {
	f := newFixture(t, nil)
	f.seedOrder(t, "10")
	ctx := context.Background()

	_, err := f.engine.Apply(ctx, event("e1", domain.ReportedStatusSuccess))
	require.NoError(t, err)

	pending, err := f.outbox.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ord-1", pending[0].OrderID)
	assert.Equal(t, "order_status_changed", pending[0].MessageType)
}

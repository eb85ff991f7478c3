package recon

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paygate/internal/domain"
	ledger_memory "paygate/internal/repository/ledger_repo/memory"
)

func TestRetryerSweepSettlesPendingCredits(t *testing.T) {
	flaky := &flakyLedger{LedgerRepository: ledger_memory.NewLedgerRepository(), fail: true}
	f := newFixture(t, flaky)
	f.seedOrder(t, "60")
	ctx := context.Background()

	_, err := f.engine.Apply(ctx, event("e1", domain.ReportedStatusSuccess))
	require.NoError(t, err)
	require.True(t, f.balance(t).IsZero())

	retryer := NewRetryer(f.engine, f.orders, time.Minute, 10, zap.NewNop())

	// While the ledger is down the sweep leaves the order pending.
	retryer.sweep(ctx)
	pending, err := f.orders.ListLedgerPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	flaky.setFail(false)
	retryer.sweep(ctx)

	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(60)))
	pending, err = f.orders.ListLedgerPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRetryerRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t, nil)
	retryer := NewRetryer(f.engine, f.orders, time.Millisecond, 10, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- retryer.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("retryer did not stop after context cancellation")
	}
}

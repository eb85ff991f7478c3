package recon

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"paygate/internal/repository/order_repo"
)

// Retryer periodically sweeps orders whose ledger credit did not complete
// and replays the credit step. It is the only component besides the engine
// that touches ledger_pending orders.
type Retryer struct {
	engine    *Engine
	orders    order_repo.OrderRepository
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewRetryer(engine *Engine, orders order_repo.OrderRepository, interval time.Duration, batchSize int, logger *zap.Logger) *Retryer {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Retryer{
		engine:    engine,
		orders:    orders,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (r *Retryer) Run(ctx context.Context) error {
	r.logger.Info("Ledger catch-up worker starting", zap.Duration("interval", r.interval))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Ledger catch-up worker stopping")
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Retryer) sweep(ctx context.Context) {
	pending, err := r.orders.ListLedgerPending(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("Failed to list ledger-pending orders", zap.Error(err))
		return
	}
	for _, order := range pending {
		orderID := order.ID
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			return struct{}{}, r.engine.CatchUpLedger(ctx, orderID)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
		if err != nil {
			r.logger.Error("Ledger catch-up failed, will retry next sweep",
				zap.String("order_id", orderID), zap.Error(err))
		}
	}
}

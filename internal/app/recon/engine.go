// Package recon holds the reconciliation engine: the single writer of order
// status transitions. Webhook events from all gateways funnel through
// Engine.Apply, which validates them against the transition table and
// applies order and ledger updates exactly once, regardless of duplicate,
// delayed or reordered delivery.
package recon

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"paygate/internal/domain"
	"paygate/internal/outbox"
	"paygate/internal/repository/event_repo"
	"paygate/internal/repository/ledger_repo"
	"paygate/internal/repository/order_repo"
	"paygate/internal/repository/outbox_repo"
)

var (
	// ErrUnresolvedOrder marks an event that matches no known order. It is
	// acknowledged to the gateway but flagged for operator review.
	ErrUnresolvedOrder = errors.New("event does not resolve to a known order")
	// ErrReconciliationConflict surfaces after the bounded retry budget for
	// concurrent updates on the same order is exhausted.
	ErrReconciliationConflict = errors.New("reconciliation conflict on concurrent order update")
	// ErrOrderNotRefundable rejects refunds of orders that were never charged.
	ErrOrderNotRefundable = errors.New("order is not in a refundable status")
)

// maxApplyAttempts bounds the version-conflict retry loop.
const maxApplyAttempts = 3

// Result reports what applying one event did.
type Result struct {
	Outcome domain.EventOutcome
	Order   *domain.Order
}

type Engine struct {
	orders order_repo.OrderRepository
	ledger ledger_repo.LedgerRepository
	events event_repo.EventRepository
	outbox outbox_repo.OutboxRepository
	logger *zap.Logger
}

func NewEngine(
	orders order_repo.OrderRepository,
	ledger ledger_repo.LedgerRepository,
	events event_repo.EventRepository,
	outboxRepo outbox_repo.OutboxRepository,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		orders: orders,
		ledger: ledger,
		events: events,
		outbox: outboxRepo,
		logger: logger,
	}
}

// CreditReason returns the ledger idempotency key for an order's charge.
func CreditReason(orderID string) string { return "order:" + orderID }

// RefundReason returns the ledger idempotency key for an order's refund.
func RefundReason(orderID string) string { return "refund:" + orderID }

// Apply processes one gateway event end to end. The returned Result is
// always meaningful when err is nil, including the no-op outcomes
// (duplicate, rejected-stale, unresolved); the caller acknowledges all of
// those to the gateway.
func (e *Engine) Apply(ctx context.Context, event *domain.GatewayEvent) (*Result, error) {
	order, err := e.resolve(ctx, event)
	if err != nil {
		if errors.Is(err, ErrUnresolvedOrder) {
			return e.recordUnresolved(ctx, event)
		}
		return nil, err
	}

	record := &domain.WebhookEvent{
		Gateway:        event.Gateway,
		EventID:        event.EventID,
		OrderID:        order.ID,
		ReportedStatus: event.ReportedStatus,
		Outcome:        domain.OutcomeReceived,
		Payload:        event.RawPayload,
		ReceivedAt:     event.ReceivedAt,
	}
	if err := e.events.Record(ctx, record); err != nil {
		if !errors.Is(err, event_repo.ErrAlreadyRecorded) {
			return nil, fmt.Errorf("failed to record webhook event: %w", err)
		}
		prior, getErr := e.events.Get(ctx, event.Gateway, event.EventID)
		if getErr != nil {
			return nil, fmt.Errorf("failed to load prior webhook event: %w", getErr)
		}
		// A finished prior outcome is replayed as-is. RECEIVED means an
		// earlier delivery crashed mid-flight (or is racing us); processing
		// continues because every step below is idempotent.
		if prior.Outcome != domain.OutcomeReceived {
			e.logger.Info("Duplicate webhook event, replaying recorded outcome",
				zap.String("gateway", string(event.Gateway)),
				zap.String("event_id", event.EventID),
				zap.String("outcome", string(prior.Outcome)))
			return &Result{Outcome: prior.Outcome, Order: order}, nil
		}
	}

	return e.transition(ctx, order, event)
}

// resolve finds the order an event refers to, by order id first and gateway
// reference second. Unresolvable events must never create phantom orders.
func (e *Engine) resolve(ctx context.Context, event *domain.GatewayEvent) (*domain.Order, error) {
	if event.OrderID != "" {
		order, err := e.orders.Get(ctx, event.OrderID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, order_repo.ErrNotFound) {
			return nil, fmt.Errorf("failed to resolve order %s: %w", event.OrderID, err)
		}
	}
	if event.GatewayReference != "" {
		order, err := e.orders.FindByGatewayReference(ctx, event.Gateway, event.GatewayReference)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, order_repo.ErrNotFound) {
			return nil, fmt.Errorf("failed to resolve order by gateway reference %s: %w", event.GatewayReference, err)
		}
	}
	return nil, ErrUnresolvedOrder
}

func (e *Engine) recordUnresolved(ctx context.Context, event *domain.GatewayEvent) (*Result, error) {
	e.logger.Warn("Webhook event does not resolve to any order, flagging for operator review",
		zap.String("gateway", string(event.Gateway)),
		zap.String("event_id", event.EventID),
		zap.String("order_id", event.OrderID),
		zap.String("gateway_reference", event.GatewayReference))

	record := &domain.WebhookEvent{
		Gateway:        event.Gateway,
		EventID:        event.EventID,
		OrderID:        event.OrderID,
		ReportedStatus: event.ReportedStatus,
		Outcome:        domain.OutcomeUnresolved,
		Payload:        event.RawPayload,
		ReceivedAt:     event.ReceivedAt,
	}
	if err := e.events.Record(ctx, record); err != nil && !errors.Is(err, event_repo.ErrAlreadyRecorded) {
		return nil, fmt.Errorf("failed to record unresolved webhook event: %w", err)
	}
	return &Result{Outcome: domain.OutcomeUnresolved}, nil
}

// transition runs the state-machine step with a bounded retry on version
// conflicts. Each attempt re-reads the order so concurrent writers converge.
func (e *Engine) transition(ctx context.Context, order *domain.Order, event *domain.GatewayEvent) (*Result, error) {
	target, ok := event.ReportedStatus.TargetOrderStatus()
	if !ok {
		// Adapters reject unknown statuses before events reach the engine.
		return nil, fmt.Errorf("unrecognized reported status %q", event.ReportedStatus)
	}

	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		if attempt > 0 {
			fresh, err := e.orders.Get(ctx, order.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to re-read order %s: %w", order.ID, err)
			}
			order = fresh
		}

		if order.Status == target {
			return e.finish(ctx, event, domain.OutcomeDuplicate, order)
		}
		if !order.Status.CanTransitionTo(target) {
			// Reordered delivery: a weaker or contradicting event arrived
			// after a stronger one was applied. Never a state regression.
			e.logger.Info("Rejecting stale webhook event",
				zap.String("order_id", order.ID),
				zap.String("current_status", string(order.Status)),
				zap.String("target_status", string(target)),
				zap.String("event_id", event.EventID))
			return e.finish(ctx, event, domain.OutcomeRejectedStale, order)
		}

		updated, err := e.orders.CompareAndUpdate(ctx, order.ID, order.Version, func(o *domain.Order) error {
			if err := o.Transition(target); err != nil {
				return err
			}
			if o.GatewayReference == "" && event.GatewayReference != "" {
				o.GatewayReference = event.GatewayReference
			}
			if target == domain.OrderStatusCharged {
				// Cleared only after the ledger credit lands; a crash in
				// between leaves the flag set for the catch-up worker.
				o.LedgerPending = true
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, order_repo.ErrVersionConflict) {
				continue
			}
			if errors.Is(err, domain.ErrIllegalTransition) {
				return e.finish(ctx, event, domain.OutcomeRejectedStale, order)
			}
			return nil, fmt.Errorf("failed to update order %s: %w", order.ID, err)
		}

		if target == domain.OrderStatusCharged {
			updated = e.credit(ctx, updated)
		}
		e.publishStatus(ctx, updated)
		return e.finish(ctx, event, domain.OutcomeApplied, updated)
	}

	e.logger.Error("Order update retry budget exhausted",
		zap.String("order_id", order.ID),
		zap.String("event_id", event.EventID),
		zap.Int("attempts", maxApplyAttempts))
	return nil, ErrReconciliationConflict
}

// credit books the wallet credit for a charged order and clears the
// ledger_pending flag. Failure is not fatal for the event: money-in
// confirmation from the gateway is authoritative and the order stays
// CHARGED; the catch-up worker owns the retry.
func (e *Engine) credit(ctx context.Context, order *domain.Order) *domain.Order {
	if _, err := e.ledger.Credit(ctx, order.AccountID, order.Amount, CreditReason(order.ID)); err != nil {
		e.logger.Error("Ledger credit failed after charge, order left ledger-pending",
			zap.String("order_id", order.ID),
			zap.String("account_id", order.AccountID),
			zap.Error(err))
		return order
	}
	cleared, err := e.clearLedgerPending(ctx, order)
	if err != nil {
		e.logger.Warn("Failed to clear ledger-pending flag, catch-up worker will settle it",
			zap.String("order_id", order.ID), zap.Error(err))
		return order
	}
	return cleared
}

// CatchUpLedger retries the ledger credit for one charged order whose credit
// step did not complete. Safe to call repeatedly: the credit is keyed by
// reason and applies at most once.
func (e *Engine) CatchUpLedger(ctx context.Context, orderID string) error {
	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to read order %s for ledger catch-up: %w", orderID, err)
	}
	if !order.LedgerPending {
		return nil
	}
	if order.Status != domain.OrderStatusCharged && order.Status != domain.OrderStatusRefunded {
		return fmt.Errorf("order %s is ledger-pending but in status %s", orderID, order.Status)
	}
	if _, err := e.ledger.Credit(ctx, order.AccountID, order.Amount, CreditReason(order.ID)); err != nil {
		return fmt.Errorf("ledger catch-up credit for order %s: %w", orderID, err)
	}
	if _, err := e.clearLedgerPending(ctx, order); err != nil {
		return fmt.Errorf("failed to clear ledger-pending flag for order %s: %w", orderID, err)
	}
	e.logger.Info("Ledger catch-up settled order", zap.String("order_id", orderID))
	return nil
}

func (e *Engine) clearLedgerPending(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		updated, err := e.orders.CompareAndUpdate(ctx, order.ID, order.Version, func(o *domain.Order) error {
			o.LedgerPending = false
			return nil
		})
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, order_repo.ErrVersionConflict) {
			return nil, err
		}
		fresh, getErr := e.orders.Get(ctx, order.ID)
		if getErr != nil {
			return nil, getErr
		}
		if !fresh.LedgerPending {
			return fresh, nil
		}
		order = fresh
	}
	return nil, ErrReconciliationConflict
}

// Refund moves a charged order to REFUNDED and debits the wallet. The debit
// is keyed by reason, so a retried refund never debits twice.
func (e *Engine) Refund(ctx context.Context, orderID string) (*domain.Order, error) {
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		order, err := e.orders.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order.Status == domain.OrderStatusRefunded {
			return order, nil
		}
		if order.Status != domain.OrderStatusCharged {
			return nil, ErrOrderNotRefundable
		}
		if order.LedgerPending {
			// The charge credit has not landed yet; refunding now would
			// debit money that was never credited.
			return nil, fmt.Errorf("order %s has an unsettled ledger credit", orderID)
		}

		if _, err := e.ledger.Debit(ctx, order.AccountID, order.Amount, RefundReason(order.ID)); err != nil {
			return nil, fmt.Errorf("refund debit for order %s: %w", orderID, err)
		}

		updated, err := e.orders.CompareAndUpdate(ctx, orderID, order.Version, func(o *domain.Order) error {
			return o.Transition(domain.OrderStatusRefunded)
		})
		if err != nil {
			if errors.Is(err, order_repo.ErrVersionConflict) {
				continue
			}
			return nil, fmt.Errorf("failed to mark order %s refunded: %w", orderID, err)
		}
		e.publishStatus(ctx, updated)
		return updated, nil
	}
	return nil, ErrReconciliationConflict
}

// finish stores the event's outcome. Losing this update only widens the
// window in which a redelivery reprocesses the event; the transition table
// and ledger keys keep that harmless.
func (e *Engine) finish(ctx context.Context, event *domain.GatewayEvent, outcome domain.EventOutcome, order *domain.Order) (*Result, error) {
	if err := e.events.SetOutcome(ctx, event.Gateway, event.EventID, outcome); err != nil {
		e.logger.Warn("Failed to record webhook event outcome",
			zap.String("gateway", string(event.Gateway)),
			zap.String("event_id", event.EventID),
			zap.Error(err))
	}
	return &Result{Outcome: outcome, Order: order}, nil
}

func (e *Engine) publishStatus(ctx context.Context, order *domain.Order) {
	msg, err := outbox.NewOrderStatusMessage(order)
	if err != nil {
		e.logger.Error("Failed to build order status outbox message",
			zap.String("order_id", order.ID), zap.Error(err))
		return
	}
	if err := e.outbox.CreateMessage(ctx, msg); err != nil {
		e.logger.Error("Failed to enqueue order status outbox message",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}

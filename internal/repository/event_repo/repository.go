package event_repo

import (
	"context"
	"errors"

	"paygate/internal/domain"
)

var (
	ErrAlreadyRecorded = errors.New("webhook event already recorded")
	ErrNotFound        = errors.New("webhook event not found")
)

// EventRepository is the dedup store for webhook deliveries, keyed by
// (gateway, event_id). Record inserts exactly once and fails with
// ErrAlreadyRecorded on redelivery; the caller then reads the previously
// recorded outcome with Get instead of reprocessing.
type EventRepository interface {
	Record(ctx context.Context, event *domain.WebhookEvent) error
	Get(ctx context.Context, gateway domain.Gateway, eventID string) (*domain.WebhookEvent, error)
	SetOutcome(ctx context.Context, gateway domain.Gateway, eventID string, outcome domain.EventOutcome) error
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"paygate/internal/domain"
	"paygate/internal/repository/event_repo"
)

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Record(ctx context.Context, event *domain.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (gateway, event_id, order_id, reported_status, outcome, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (gateway, event_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		string(event.Gateway), event.EventID, event.OrderID, string(event.ReportedStatus),
		string(event.Outcome), event.Payload, event.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to record webhook event %s/%s: %w", event.Gateway, event.EventID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for webhook event insert: %w", err)
	}
	if affected == 0 {
		return event_repo.ErrAlreadyRecorded
	}
	return nil
}

func (r *EventRepository) Get(ctx context.Context, gateway domain.Gateway, eventID string) (*domain.WebhookEvent, error) {
	query := `
		SELECT gateway, event_id, order_id, reported_status, outcome, payload, received_at, processed_at
		FROM webhook_events WHERE gateway = $1 AND event_id = $2
	`
	event := &domain.WebhookEvent{}
	var processedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, string(gateway), eventID).Scan(
		&event.Gateway, &event.EventID, &event.OrderID, &event.ReportedStatus,
		&event.Outcome, &event.Payload, &event.ReceivedAt, &processedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, event_repo.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get webhook event %s/%s: %w", gateway, eventID, err)
	}
	if processedAt.Valid {
		event.ProcessedAt = &processedAt.Time
	}
	return event, nil
}

func (r *EventRepository) SetOutcome(ctx context.Context, gateway domain.Gateway, eventID string, outcome domain.EventOutcome) error {
	query := `
		UPDATE webhook_events SET outcome = $1, processed_at = $2
		WHERE gateway = $3 AND event_id = $4
	`
	res, err := r.db.ExecContext(ctx, query, string(outcome), time.Now(), string(gateway), eventID)
	if err != nil {
		return fmt.Errorf("failed to set outcome for webhook event %s/%s: %w", gateway, eventID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for webhook event update: %w", err)
	}
	if affected == 0 {
		return event_repo.ErrNotFound
	}
	return nil
}

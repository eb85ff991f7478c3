package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"paygate/internal/domain"
)

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) CreateMessage(ctx context.Context, msg *domain.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (id, order_id, message_type, key, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.OrderID, msg.MessageType, msg.Key, msg.Payload, string(msg.Status), msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create outbox message %s: %w", msg.ID, err)
	}
	return nil
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	query := `
		SELECT id, order_id, message_type, key, payload, status, created_at, sent_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, string(domain.OutboxStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.OutboxMessage
	for rows.Next() {
		msg := &domain.OutboxMessage{}
		var sentAt sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.OrderID, &msg.MessageType, &msg.Key, &msg.Payload, &msg.Status, &msg.CreatedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		if sentAt.Valid {
			msg.SentAt = &sentAt.Time
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox messages: %w", err)
	}
	return messages, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.OutboxStatusSent, true)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.OutboxStatusFailed, false)
}

func (r *OutboxRepository) setStatus(ctx context.Context, id string, status domain.OutboxMessageStatus, sent bool) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, sent_at = CASE WHEN $2 THEN $3 ELSE sent_at END
		WHERE id = $4
	`
	res, err := r.db.ExecContext(ctx, query, string(status), sent, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update outbox message %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for outbox message update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("outbox message %s not found", id)
	}
	return nil
}

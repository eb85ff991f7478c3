package outbox_repo

import (
	"context"

	"paygate/internal/domain"
)

// OutboxRepository stores order-status events awaiting publication. Messages
// are written alongside the state change they announce and drained by the
// outbox processor.
type OutboxRepository interface {
	CreateMessage(ctx context.Context, msg *domain.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"paygate/internal/domain"
)

type OutboxRepository struct {
	mu       sync.Mutex
	messages []*domain.OutboxMessage
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{}
}

func (r *OutboxRepository) CreateMessage(_ context.Context, msg *domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *msg
	r.messages = append(r.messages, &cp)
	return nil
}

func (r *OutboxRepository) GetPendingMessages(_ context.Context, limit int) ([]*domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []*domain.OutboxMessage
	for _, msg := range r.messages {
		if msg.Status == domain.OutboxStatusPending {
			cp := *msg
			pending = append(pending, &cp)
			if limit > 0 && len(pending) == limit {
				break
			}
		}
	}
	return pending, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.setStatus(id, domain.OutboxStatusSent, true)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.setStatus(id, domain.OutboxStatusFailed, false)
}

func (r *OutboxRepository) setStatus(id string, status domain.OutboxMessageStatus, sent bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			msg.Status = status
			if sent {
				now := time.Now()
				msg.SentAt = &now
			}
			return nil
		}
	}
	return fmt.Errorf("outbox message %s not found", id)
}

package memory

import (
	"context"
	"sync"
	"time"

	"paygate/internal/domain"
	"paygate/internal/repository/event_repo"
)

type EventRepository struct {
	mu     sync.Mutex
	events map[string]*domain.WebhookEvent
}

func NewEventRepository() *EventRepository {
	return &EventRepository{events: make(map[string]*domain.WebhookEvent)}
}

func key(gateway domain.Gateway, eventID string) string {
	return string(gateway) + "\x00" + eventID
}

func (r *EventRepository) Record(_ context.Context, event *domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(event.Gateway, event.EventID)
	if _, ok := r.events[k]; ok {
		return event_repo.ErrAlreadyRecorded
	}
	cp := *event
	r.events[k] = &cp
	return nil
}

func (r *EventRepository) Get(_ context.Context, gateway domain.Gateway, eventID string) (*domain.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[key(gateway, eventID)]
	if !ok {
		return nil, event_repo.ErrNotFound
	}
	cp := *event
	return &cp, nil
}

func (r *EventRepository) SetOutcome(_ context.Context, gateway domain.Gateway, eventID string, outcome domain.EventOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[key(gateway, eventID)]
	if !ok {
		return event_repo.ErrNotFound
	}
	now := time.Now()
	event.Outcome = outcome
	event.ProcessedAt = &now
	return nil
}

// Package memory provides an in-process OrderRepository with the same
// version-guarded update contract as the postgres implementation. It backs
// tests and single-node demo deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"paygate/internal/domain"
	"paygate/internal/repository/order_repo"
)

type OrderRepository struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	byRef  map[string]string // gateway + "\x00" + reference -> order id
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*domain.Order),
		byRef:  make(map[string]string),
	}
}

func refKey(gateway domain.Gateway, reference string) string {
	return string(gateway) + "\x00" + reference
}

func clone(o *domain.Order) *domain.Order {
	cp := *o
	return &cp
}

func (r *OrderRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return order_repo.ErrDuplicateOrder
	}
	r.orders[order.ID] = clone(order)
	if order.GatewayReference != "" {
		r.byRef[refKey(order.Gateway, order.GatewayReference)] = order.ID
	}
	return nil
}

func (r *OrderRepository) Get(_ context.Context, orderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, order_repo.ErrNotFound
	}
	return clone(order), nil
}

func (r *OrderRepository) FindByGatewayReference(_ context.Context, gateway domain.Gateway, reference string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[refKey(gateway, reference)]
	if !ok {
		return nil, order_repo.ErrNotFound
	}
	return clone(r.orders[id]), nil
}

func (r *OrderRepository) ListByAccount(_ context.Context, accountID string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var orders []*domain.Order
	for _, o := range r.orders {
		if o.AccountID == accountID {
			orders = append(orders, clone(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

func (r *OrderRepository) ListLedgerPending(_ context.Context, limit int) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var orders []*domain.Order
	for _, o := range r.orders {
		if o.LedgerPending {
			orders = append(orders, clone(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].UpdatedAt.Before(orders[j].UpdatedAt) })
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (r *OrderRepository) CompareAndUpdate(_ context.Context, orderID string, expectedVersion int64, mutate order_repo.Mutator) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[orderID]
	if !ok {
		return nil, order_repo.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, order_repo.ErrVersionConflict
	}

	updated := clone(current)
	if err := mutate(updated); err != nil {
		return nil, err
	}
	updated.Version = expectedVersion + 1
	updated.UpdatedAt = time.Now()

	if current.GatewayReference != updated.GatewayReference {
		if current.GatewayReference != "" {
			delete(r.byRef, refKey(current.Gateway, current.GatewayReference))
		}
		if updated.GatewayReference != "" {
			r.byRef[refKey(updated.Gateway, updated.GatewayReference)] = updated.ID
		}
	}
	r.orders[orderID] = updated
	return clone(updated), nil
}

package order_repo

import (
	"context"
	"errors"

	"paygate/internal/domain"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrDuplicateOrder  = errors.New("order already exists")
	ErrVersionConflict = errors.New("order version conflict")
)

// Mutator edits an order in place during a compare-and-update. It must not
// touch Version, UpdatedAt or CreatedAt; the store owns those.
type Mutator func(o *domain.Order) error

// OrderRepository is the durable order store. CompareAndUpdate is the only
// write path after creation and the sole concurrency primitive the rest of
// the system relies on: the update is persisted with version+1 only if the
// stored version still equals expectedVersion, otherwise ErrVersionConflict.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, orderID string) (*domain.Order, error)
	FindByGatewayReference(ctx context.Context, gateway domain.Gateway, reference string) (*domain.Order, error)
	ListByAccount(ctx context.Context, accountID string) ([]*domain.Order, error)
	ListLedgerPending(ctx context.Context, limit int) ([]*domain.Order, error)
	CompareAndUpdate(ctx context.Context, orderID string, expectedVersion int64, mutate Mutator) (*domain.Order, error)
}

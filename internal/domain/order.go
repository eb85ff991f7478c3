package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrDuplicateOrder     = errors.New("order already exists")
	ErrIllegalTransition  = errors.New("illegal order status transition")
	ErrUnsupportedGateway = errors.New("unsupported gateway")
)

type Gateway string

const (
	GatewayAlphaPay Gateway = "alphapay"
	GatewayBravoPay Gateway = "bravopay"
)

func (g Gateway) Supported() bool {
	switch g {
	case GatewayAlphaPay, GatewayBravoPay:
		return true
	}
	return false
}

type OrderStatus string

const (
	OrderStatusInitiated OrderStatus = "INITIATED"
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCharged   OrderStatus = "CHARGED"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// legalTransitions is the full transition table. Anything not listed here
// is rejected; webhook reordering relies on that being a no-op, not an error.
var legalTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusInitiated: {OrderStatusPending, OrderStatusCharged, OrderStatusFailed},
	OrderStatusPending:   {OrderStatusCharged, OrderStatusFailed},
	OrderStatusCharged:   {OrderStatusRefunded},
}

func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, t := range legalTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFailed || s == OrderStatusRefunded
}

type Order struct {
	ID               string
	AccountID        string
	Amount           decimal.Decimal
	Currency         string
	Gateway          Gateway
	GatewayReference string
	Status           OrderStatus
	LedgerPending    bool
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func NewOrder(id, accountID string, amount decimal.Decimal, currency string, gateway Gateway) (*Order, error) {
	if id == "" || accountID == "" {
		return nil, errors.New("invalid order data")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("order amount must be positive")
	}
	if currency == "" {
		return nil, errors.New("order currency is required")
	}
	if !gateway.Supported() {
		return nil, ErrUnsupportedGateway
	}
	now := time.Now()
	return &Order{
		ID:        id,
		AccountID: accountID,
		Amount:    amount,
		Currency:  currency,
		Gateway:   gateway,
		Status:    OrderStatusInitiated,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Transition moves the order to target, returning ErrIllegalTransition when
// the transition table forbids it. Version bookkeeping belongs to the store.
func (o *Order) Transition(target OrderStatus) error {
	if !o.Status.CanTransitionTo(target) {
		return ErrIllegalTransition
	}
	o.Status = target
	o.UpdatedAt = time.Now()
	return nil
}

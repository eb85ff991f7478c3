package orders

import (
	"github.com/shopspring/decimal"

	"paygate/internal/domain"
)

type CreateOrderParams struct {
	AccountID string
	Amount    decimal.Decimal
	Currency  string
	Gateway   domain.Gateway
}

// CreatedOrder pairs the persisted order with the client-facing handle the
// gateway returned (redirect URL or client token).
type CreatedOrder struct {
	Order           *domain.Order
	RedirectOrToken string
}

package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrAccountNotFound = errors.New("account not found")
var ErrAccountAlreadyExists = errors.New("account already exists")
var ErrInsufficientFunds = errors.New("insufficient funds")

type Account struct {
	ID        string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LedgerEntry is a single immutable balance movement. The sum of all deltas
// for an account equals the account's current balance; ResultingBalance is
// captured under the same lock as the balance update.
type LedgerEntry struct {
	ID               string
	AccountID        string
	Delta            decimal.Decimal
	Reason           string
	ResultingBalance decimal.Decimal
	CreatedAt        time.Time
}

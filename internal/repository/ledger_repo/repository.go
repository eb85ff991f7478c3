package ledger_repo

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"paygate/internal/domain"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrEntryNotFound        = errors.New("ledger entry not found")
)

// LedgerRepository is the durable wallet store. Credit and Debit insert a
// ledger entry and move the account balance atomically with respect to
// concurrent calls on the same account; Debit fails with
// ErrInsufficientFunds rather than taking a balance below zero. Reason is
// the caller's idempotency handle: at most one entry per reason, and a
// repeated reason returns the already-recorded entry without moving the
// balance again.
type LedgerRepository interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	Credit(ctx context.Context, accountID string, amount decimal.Decimal, reason string) (*domain.LedgerEntry, error)
	Debit(ctx context.Context, accountID string, amount decimal.Decimal, reason string) (*domain.LedgerEntry, error)
	FindEntryByReason(ctx context.Context, reason string) (*domain.LedgerEntry, error)
	ListEntries(ctx context.Context, accountID string) ([]*domain.LedgerEntry, error)
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"paygate/internal/domain"
	"paygate/internal/repository/ledger_repo"
	"paygate/internal/util"
)

type LedgerRepository struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	entries  []*domain.LedgerEntry
	byReason map[string]*domain.LedgerEntry
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		accounts: make(map[string]*domain.Account),
		byReason: make(map[string]*domain.LedgerEntry),
	}
}

func (r *LedgerRepository) CreateAccount(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.ID]; ok {
		return ledger_repo.ErrAccountAlreadyExists
	}
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *LedgerRepository) GetAccount(_ context.Context, accountID string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return nil, ledger_repo.ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (r *LedgerRepository) Credit(ctx context.Context, accountID string, amount decimal.Decimal, reason string) (*domain.LedgerEntry, error) {
	return r.move(accountID, amount, reason)
}

func (r *LedgerRepository) Debit(ctx context.Context, accountID string, amount decimal.Decimal, reason string) (*domain.LedgerEntry, error) {
	return r.move(accountID, amount.Neg(), reason)
}

func (r *LedgerRepository) move(accountID string, delta decimal.Decimal, reason string) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.byReason[reason]; ok {
		cp := *prior
		return &cp, nil
	}
	account, ok := r.accounts[accountID]
	if !ok {
		return nil, ledger_repo.ErrAccountNotFound
	}
	resulting := account.Balance.Add(delta)
	if resulting.IsNegative() {
		return nil, ledger_repo.ErrInsufficientFunds
	}

	entry := &domain.LedgerEntry{
		ID:               util.GenerateUUID(),
		AccountID:        accountID,
		Delta:            delta,
		Reason:           reason,
		ResultingBalance: resulting,
		CreatedAt:        time.Now(),
	}
	account.Balance = resulting
	account.UpdatedAt = entry.CreatedAt
	r.entries = append(r.entries, entry)
	r.byReason[reason] = entry

	cp := *entry
	return &cp, nil
}

func (r *LedgerRepository) FindEntryByReason(_ context.Context, reason string) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byReason[reason]
	if !ok {
		return nil, ledger_repo.ErrEntryNotFound
	}
	cp := *entry
	return &cp, nil
}

func (r *LedgerRepository) ListEntries(_ context.Context, accountID string) ([]*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var entries []*domain.LedgerEntry
	for _, e := range r.entries {
		if e.AccountID == accountID {
			cp := *e
			entries = append(entries, &cp)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	return entries, nil
}

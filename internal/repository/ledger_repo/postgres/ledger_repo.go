package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"paygate/internal/domain"
	"paygate/internal/repository/ledger_repo"
	"paygate/internal/util"
)

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.Balance, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ledger_repo.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to create account %s: %w", account.ID, err)
	}
	return nil
}

func (r *LedgerRepository) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	query := `SELECT id, balance, created_at, updated_at FROM accounts WHERE id = $1`
	account := &domain.Account{}
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&account.ID, &account.Balance, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger_repo.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account %s: %w", accountID, err)
	}
	return account, nil
}

func (r *LedgerRepository) Credit(ctx context.Context, accountID string, amount decimal.Decimal, reason string) (*domain.LedgerEntry, error) {
	return r.move(ctx, accountID, amount, reason)
}

func (r *LedgerRepository) Debit(ctx context.Context, accountID string, amount decimal.Decimal, reason string) (*domain.LedgerEntry, error) {
	return r.move(ctx, accountID, amount.Neg(), reason)
}

// move applies a signed delta and inserts the entry in one transaction. The
// FOR UPDATE read serializes concurrent movements on the same account.
func (r *LedgerRepository) move(ctx context.Context, accountID string, delta decimal.Decimal, reason string) (*domain.LedgerEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	var balance decimal.Decimal
	err = tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger_repo.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lock account %s: %w", accountID, err)
	}

	resulting := balance.Add(delta)
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
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, delta, reason, resulting_balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.AccountID, entry.Delta, entry.Reason, entry.ResultingBalance, entry.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Reason already ledgered; the prior entry is the answer.
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				return nil, fmt.Errorf("failed to roll back after duplicate reason %s: %w", reason, rbErr)
			}
			return r.FindEntryByReason(ctx, reason)
		}
		return nil, fmt.Errorf("failed to insert ledger entry for account %s: %w", accountID, err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE accounts SET balance = $1, updated_at = $2 WHERE id = $3`,
		resulting, time.Now(), accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance for account %s: %w", accountID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return entry, nil
}

func (r *LedgerRepository) FindEntryByReason(ctx context.Context, reason string) (*domain.LedgerEntry, error) {
	query := `
		SELECT id, account_id, delta, reason, resulting_balance, created_at
		FROM ledger_entries WHERE reason = $1
	`
	entry := &domain.LedgerEntry{}
	err := r.db.QueryRowContext(ctx, query, reason).Scan(
		&entry.ID, &entry.AccountID, &entry.Delta, &entry.Reason, &entry.ResultingBalance, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger_repo.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to find ledger entry by reason %s: %w", reason, err)
	}
	return entry, nil
}

func (r *LedgerRepository) ListEntries(ctx context.Context, accountID string) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT id, account_id, delta, reason, resulting_balance, created_at
		FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		entry := &domain.LedgerEntry{}
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Delta, &entry.Reason, &entry.ResultingBalance, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}

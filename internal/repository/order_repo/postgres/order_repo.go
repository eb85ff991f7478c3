package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"paygate/internal/domain"
	"paygate/internal/repository/order_repo"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, account_id, amount, currency, gateway, gateway_reference, status, ledger_pending, version, created_at, updated_at`

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		order.ID, order.AccountID, order.Amount, order.Currency, string(order.Gateway),
		order.GatewayReference, string(order.Status), order.LedgerPending, order.Version,
		order.CreatedAt, order.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return order_repo.ErrDuplicateOrder
		}
		return fmt.Errorf("failed to create order %s: %w", order.ID, err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, orderID))
}

func (r *OrderRepository) FindByGatewayReference(ctx context.Context, gateway domain.Gateway, reference string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE gateway = $1 AND gateway_reference = $2`
	return r.scanOne(r.db.QueryRowContext(ctx, query, string(gateway), reference))
}

func (r *OrderRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE account_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for account %s: %w", accountID, err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *OrderRepository) ListLedgerPending(ctx context.Context, limit int) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ledger_pending ORDER BY updated_at ASC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger-pending orders: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *OrderRepository) CompareAndUpdate(ctx context.Context, orderID string, expectedVersion int64, mutate order_repo.Mutator) (*domain.Order, error) {
	current, err := r.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, order_repo.ErrVersionConflict
	}

	if err := mutate(current); err != nil {
		return nil, err
	}
	current.Version = expectedVersion + 1
	current.UpdatedAt = time.Now()

	query := `
		UPDATE orders
		SET amount = $1, currency = $2, gateway_reference = NULLIF($3, ''), status = $4,
		    ledger_pending = $5, version = $6, updated_at = $7
		WHERE id = $8 AND version = $9
	`
	res, err := r.db.ExecContext(ctx, query,
		current.Amount, current.Currency, current.GatewayReference, string(current.Status),
		current.LedgerPending, current.Version, current.UpdatedAt,
		orderID, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to update order %s: %w", orderID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected for order %s: %w", orderID, err)
	}
	if affected == 0 {
		// Row changed (or vanished) between the read and the guarded write.
		return nil, order_repo.ErrVersionConflict
	}
	return current, nil
}

func (r *OrderRepository) scanOne(row *sql.Row) (*domain.Order, error) {
	order := &domain.Order{}
	var gatewayReference sql.NullString
	err := row.Scan(
		&order.ID, &order.AccountID, &order.Amount, &order.Currency, &order.Gateway,
		&gatewayReference, &order.Status, &order.LedgerPending, &order.Version,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order_repo.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	order.GatewayReference = gatewayReference.String
	return order, nil
}

func (r *OrderRepository) scanAll(rows *sql.Rows) ([]*domain.Order, error) {
	var orders []*domain.Order
	for rows.Next() {
		order := &domain.Order{}
		var gatewayReference sql.NullString
		if err := rows.Scan(
			&order.ID, &order.AccountID, &order.Amount, &order.Currency, &order.Gateway,
			&gatewayReference, &order.Status, &order.LedgerPending, &order.Version,
			&order.CreatedAt, &order.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		order.GatewayReference = gatewayReference.String
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order rows: %w", err)
	}
	return orders, nil
}

package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paygate/internal/app/recon"
	"paygate/internal/domain"
	"paygate/internal/gateway"
	"paygate/internal/outbox"
	"paygate/internal/repository/ledger_repo"
	"paygate/internal/repository/order_repo"
	"paygate/internal/repository/outbox_repo"
	"paygate/internal/util"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrOrderNotFound = errors.New("order not found")
)

// currencyCodeLen is the length of an ISO 4217 alphabetic code.
const currencyCodeLen = 3

type OrderService interface {
	CreateOrder(ctx context.Context, params CreateOrderParams) (*CreatedOrder, error)
	GetOrder(ctx context.Context, accountID, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, accountID string) ([]*domain.Order, error)
	RefundOrder(ctx context.Context, accountID, orderID string) (*domain.Order, error)
	CreateAccount(ctx context.Context, accountID string, openingBalance decimal.Decimal) (*domain.Account, error)
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
}

type orderService struct {
	orders     order_repo.OrderRepository
	ledger     ledger_repo.LedgerRepository
	outboxRepo outbox_repo.OutboxRepository
	gateways   *gateway.Registry
	engine     *recon.Engine
	logger     *zap.Logger
}

func NewOrderService(
	orders order_repo.OrderRepository,
	ledger ledger_repo.LedgerRepository,
	outboxRepo outbox_repo.OutboxRepository,
	gateways *gateway.Registry,
	engine *recon.Engine,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		orders:     orders,
		ledger:     ledger,
		outboxRepo: outboxRepo,
		gateways:   gateways,
		engine:     engine,
		logger:     logger,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, params CreateOrderParams) (*CreatedOrder, error) {
	if params.AccountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrValidation)
	}
	if params.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if len(params.Currency) != currencyCodeLen {
		return nil, fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrValidation)
	}
	adapter, ok := s.gateways.Lookup(params.Gateway)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported gateway %q", ErrValidation, params.Gateway)
	}
	if _, err := s.ledger.GetAccount(ctx, params.AccountID); err != nil {
		if errors.Is(err, ledger_repo.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: no wallet account for %s", ErrValidation, params.AccountID)
		}
		return nil, fmt.Errorf("failed to verify account %s: %w", params.AccountID, err)
	}

	orderID := util.GenerateUUID()
	result, err := adapter.Initiate(ctx, gateway.InitiateRequest{
		OrderID:  orderID,
		Amount:   params.Amount,
		Currency: params.Currency,
		Metadata: map[string]string{"account_id": params.AccountID},
	})
	if err != nil {
		s.logger.Warn("Gateway initiation failed",
			zap.String("gateway", string(params.Gateway)),
			zap.String("order_id", orderID),
			zap.Error(err))
		return nil, err
	}

	order, err := domain.NewOrder(orderID, params.AccountID, params.Amount, params.Currency, params.Gateway)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	order.GatewayReference = result.GatewayReference

	if err := s.orders.Create(ctx, order); err != nil {
		// The gateway-side charge may exist; the webhook for it will land as
		// unresolved and reach an operator rather than silently vanish.
		s.logger.Error("Failed to persist initiated order",
			zap.String("order_id", orderID),
			zap.String("gateway_reference", result.GatewayReference),
			zap.Error(err))
		return nil, fmt.Errorf("failed to persist order %s: %w", orderID, err)
	}

	s.enqueueStatusEvent(ctx, order)

	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("account_id", order.AccountID),
		zap.String("gateway", string(order.Gateway)),
		zap.String("amount", order.Amount.String()),
		zap.String("currency", order.Currency))

	return &CreatedOrder{Order: order, RedirectOrToken: result.RedirectOrToken}, nil
}

func (s *orderService) GetOrder(ctx context.Context, accountID, orderID string) (*domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, order_repo.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	// Foreign orders are indistinguishable from missing ones.
	if order.AccountID != accountID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, accountID string) ([]*domain.Order, error) {
	orders, err := s.orders.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for account %s: %w", accountID, err)
	}
	return orders, nil
}

func (s *orderService) RefundOrder(ctx context.Context, accountID, orderID string) (*domain.Order, error) {
	if _, err := s.GetOrder(ctx, accountID, orderID); err != nil {
		return nil, err
	}
	order, err := s.engine.Refund(ctx, orderID)
	if err != nil {
		s.logger.Warn("Refund failed",
			zap.String("order_id", orderID),
			zap.String("account_id", accountID),
			zap.Error(err))
		return nil, err
	}
	s.logger.Info("Order refunded",
		zap.String("order_id", orderID),
		zap.String("account_id", accountID),
		zap.String("amount", order.Amount.String()))
	return order, nil
}

func (s *orderService) CreateAccount(ctx context.Context, accountID string, openingBalance decimal.Decimal) (*domain.Account, error) {
	if accountID == "" {
		accountID = util.GenerateUUID()
	}
	if openingBalance.IsNegative() {
		return nil, fmt.Errorf("%w: opening balance cannot be negative", ErrValidation)
	}
	now := time.Now()
	account := &domain.Account{
		ID:        accountID,
		Balance:   openingBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.ledger.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	s.logger.Info("Account created",
		zap.String("account_id", account.ID),
		zap.String("opening_balance", openingBalance.String()))
	return account, nil
}

func (s *orderService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.ledger.GetAccount(ctx, accountID)
}

func (s *orderService) enqueueStatusEvent(ctx context.Context, order *domain.Order) {
	msg, err := outbox.NewOrderStatusMessage(order)
	if err != nil {
		s.logger.Error("Failed to build order status outbox message", zap.String("order_id", order.ID), zap.Error(err))
		return
	}
	if err := s.outboxRepo.CreateMessage(ctx, msg); err != nil {
		s.logger.Error("Failed to enqueue order status outbox message", zap.String("order_id", order.ID), zap.Error(err))
	}
}

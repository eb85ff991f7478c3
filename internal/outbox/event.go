package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"paygate/internal/domain"
	"paygate/internal/util"
)

// OrderStatusEvent is the message published to Kafka whenever an order's
// status changes. Downstream consumers (notification senders, analytics)
// never read the order store directly.
type OrderStatusEvent struct {
	OrderID          string    `json:"order_id"`
	AccountID        string    `json:"account_id"`
	Amount           string    `json:"amount"`
	Currency         string    `json:"currency"`
	Gateway          string    `json:"gateway"`
	GatewayReference string    `json:"gateway_reference,omitempty"`
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewOrderStatusMessage wraps an order's current state in a pending outbox
// message keyed by order id, so per-order events stay in partition order.
func NewOrderStatusMessage(order *domain.Order) (*domain.OutboxMessage, error) {
	payload, err := json.Marshal(OrderStatusEvent{
		OrderID:          order.ID,
		AccountID:        order.AccountID,
		Amount:           order.Amount.String(),
		Currency:         order.Currency,
		Gateway:          string(order.Gateway),
		GatewayReference: order.GatewayReference,
		Status:           string(order.Status),
		Timestamp:        order.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order status event: %w", err)
	}
	return &domain.OutboxMessage{
		ID:          util.GenerateUUID(),
		OrderID:     order.ID,
		MessageType: "order_status_changed",
		Key:         order.ID,
		Payload:     payload,
		Status:      domain.OutboxStatusPending,
		CreatedAt:   time.Now(),
	}, nil
}

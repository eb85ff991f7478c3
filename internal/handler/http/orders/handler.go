package orders_http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paygate/internal/app/orders"
	"paygate/internal/app/recon"
	"paygate/internal/domain"
	"paygate/internal/gateway"
	"paygate/internal/handler/http/middleware"
	"paygate/internal/repository/ledger_repo"
)

type OrderHandler struct {
	service orders.OrderService
	logger  *zap.Logger
}

func NewOrderHandler(s orders.OrderService, l *zap.Logger) *OrderHandler {
	return &OrderHandler{service: s, logger: l}
}

type CreateOrderRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Gateway  string          `json:"gateway"`
}

type OrderResponse struct {
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Gateway          string `json:"gateway"`
	GatewayReference string `json:"gateway_reference,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

type CreateOrderResponse struct {
	OrderResponse
	GatewayRedirectOrToken string `json:"gateway_redirect_or_token,omitempty"`
}

type CreateAccountRequest struct {
	AccountID string          `json:"account_id,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
}

type AccountResponse struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	return OrderResponse{
		OrderID:          o.ID,
		Status:           string(o.Status),
		Amount:           o.Amount.String(),
		Currency:         o.Currency,
		Gateway:          string(o.Gateway),
		GatewayReference: o.GatewayReference,
		CreatedAt:        o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        o.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *OrderHandler) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing account identity", http.StatusUnauthorized)
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid create-order request body", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.service.CreateOrder(r.Context(), orders.CreateOrderParams{
		AccountID: accountID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Gateway:   domain.Gateway(req.Gateway),
	})
	if err != nil {
		h.writeServiceError(w, accountID, err)
		return
	}

	resp := CreateOrderResponse{
		OrderResponse:          toOrderResponse(created.Order),
		GatewayRedirectOrToken: created.RedirectOrToken,
	}
	writeJSON(w, http.StatusCreated, resp, h.logger)
}

func (h *OrderHandler) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing account identity", http.StatusUnauthorized)
		return
	}

	list, err := h.service.ListOrders(r.Context(), accountID)
	if err != nil {
		h.logger.Error("Failed to list orders", zap.String("account_id", accountID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := make([]OrderResponse, 0, len(list))
	for _, o := range list {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

func (h *OrderHandler) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing account identity", http.StatusUnauthorized)
		return
	}
	orderID := chi.URLParam(r, "id")

	order, err := h.service.GetOrder(r.Context(), accountID, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get order", zap.String("order_id", orderID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order), h.logger)
}

func (h *OrderHandler) RefundOrderHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing account identity", http.StatusUnauthorized)
		return
	}
	orderID := chi.URLParam(r, "id")

	order, err := h.service.RefundOrder(r.Context(), accountID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			http.Error(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, recon.ErrOrderNotRefundable):
			http.Error(w, "Order is not refundable", http.StatusConflict)
		case errors.Is(err, ledger_repo.ErrInsufficientFunds):
			http.Error(w, "Insufficient funds", http.StatusBadRequest)
		default:
			h.logger.Error("Failed to refund order", zap.String("order_id", orderID), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order), h.logger)
}

func (h *OrderHandler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid create-account request body", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.service.CreateAccount(r.Context(), req.AccountID, req.Balance)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ledger_repo.ErrAccountAlreadyExists):
			http.Error(w, "Account already exists", http.StatusConflict)
		default:
			h.logger.Error("Failed to create account", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, AccountResponse{AccountID: account.ID, Balance: account.Balance.String()}, h.logger)
}

func (h *OrderHandler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ledger_repo.ErrAccountNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to get account", zap.String("account_id", accountID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{AccountID: account.ID, Balance: account.Balance.String()}, h.logger)
}

func (h *OrderHandler) writeServiceError(w http.ResponseWriter, accountID string, err error) {
	switch {
	case errors.Is(err, orders.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, gateway.ErrGatewayRejected):
		http.Error(w, "Payment gateway rejected the request", http.StatusUnprocessableEntity)
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		http.Error(w, "Payment gateway unavailable", http.StatusBadGateway)
	default:
		h.logger.Error("Order creation failed", zap.String("account_id", accountID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

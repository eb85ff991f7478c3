// Package webhooks_http receives gateway callbacks. The contract with the
// gateways: a 2xx response means the event is durably recorded and must not
// be retried, regardless of whether the business transition was applied,
// found stale, or did not resolve to an order. Anything short of durable
// recording answers non-2xx so the gateway retries.
package webhooks_http

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"paygate/internal/app/recon"
	"paygate/internal/domain"
	"paygate/internal/gateway"
)

// maxBodySize caps webhook payloads at 1 MiB.
const maxBodySize = 1 << 20

type WebhookHandler struct {
	gateways *gateway.Registry
	engine   *recon.Engine
	logger   *zap.Logger
}

func NewWebhookHandler(gateways *gateway.Registry, engine *recon.Engine, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{gateways: gateways, engine: engine, logger: logger}
}

func (h *WebhookHandler) ReceiveHandler(w http.ResponseWriter, r *http.Request) {
	gatewayName := domain.Gateway(chi.URLParam(r, "gateway"))
	adapter, ok := h.gateways.Lookup(gatewayName)
	if !ok {
		http.Error(w, "Unknown gateway", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.logger.Warn("Failed to read webhook body", zap.String("gateway", string(gatewayName)), zap.Error(err))
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	event, err := adapter.ParseWebhook(body, r.Header)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrInvalidSignature):
			// Integrity failure, not a transient error. Logged loudly and
			// never acknowledged as processed.
			h.logger.Warn("Webhook signature verification failed",
				zap.String("gateway", string(gatewayName)),
				zap.String("remote_addr", r.RemoteAddr))
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
		case errors.Is(err, gateway.ErrMalformedPayload):
			h.logger.Warn("Malformed webhook payload",
				zap.String("gateway", string(gatewayName)),
				zap.Error(err))
			http.Error(w, "Malformed payload", http.StatusBadRequest)
		default:
			h.logger.Error("Webhook parsing failed", zap.String("gateway", string(gatewayName)), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	result, err := h.engine.Apply(r.Context(), event)
	if err != nil {
		// Not durably settled; a non-2xx makes the gateway retry, and the
		// dedup record keeps the retry from double-applying.
		h.logger.Error("Webhook reconciliation failed",
			zap.String("gateway", string(gatewayName)),
			zap.String("event_id", event.EventID),
			zap.Error(err))
		http.Error(w, "Reconciliation failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Webhook event settled",
		zap.String("gateway", string(gatewayName)),
		zap.String("event_id", event.EventID),
		zap.String("outcome", string(result.Outcome)))

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"received":true}`))
}

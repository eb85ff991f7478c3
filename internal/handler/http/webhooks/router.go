package webhooks_http

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"paygate/internal/app/recon"
	"paygate/internal/gateway"
)

func RegisterRoutes(r chi.Router, gateways *gateway.Registry, engine *recon.Engine, l *zap.Logger) {
	handler := NewWebhookHandler(gateways, engine, l.With(zap.String("component", "WebhookHTTPHandler")))

	r.Post("/webhooks/{gateway}", handler.ReceiveHandler)
}

package orders_http

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"paygate/internal/app/orders"
	"paygate/internal/handler/http/middleware"
)

func RegisterRoutes(r chi.Router, s orders.OrderService, l *zap.Logger) {
	handler := NewOrderHandler(s, l.With(zap.String("component", "OrderHTTPHandler")))

	r.Route("/orders", func(r chi.Router) {
		r.Use(middleware.RequireAccountID)
		r.Post("/", handler.CreateOrderHandler)
		r.Get("/", handler.ListOrdersHandler)
		r.Get("/{id}", handler.GetOrderHandler)
		r.Post("/{id}/refund", handler.RefundOrderHandler)
	})

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", handler.CreateAccountHandler)
		r.Get("/{id}/balance", handler.GetBalanceHandler)
	})
}

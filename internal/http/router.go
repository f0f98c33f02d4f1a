package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/services/stocksync-service-go/internal/metrics"
)

type RouterOptions struct {
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
}

func NewRouter(inv *InventoryHandler, orders *OrderHandler, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(correlationID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(instrument(opts.Metrics))

	r.Get("/health", inv.Health)
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(withTimeout(opts.RequestTimeout))

		r.Route("/api/products", func(r chi.Router) {
			r.Post("/", inv.CreateProduct)
			r.Get("/{productId}", inv.GetProduct)
		})

		r.Route("/api/inventory", func(r chi.Router) {
			r.Post("/validate", inv.Validate)
			r.Post("/adjust", inv.Adjust)
			r.Get("/low-stock", inv.LowStock)
			r.Get("/{productId}/ledger", inv.Ledger)
		})

		r.Route("/api/orders", func(r chi.Router) {
			r.Post("/", orders.CreateOrder)
			r.Get("/", orders.ListOrdersByUser)
			r.Get("/{orderId}", orders.GetOrder)
			r.Post("/{orderId}/cancel", orders.CancelOrder)
			r.Post("/{orderId}/status", orders.UpdateStatus)
		})
	})

	return r
}

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Orders         OrderProcessor
	Products       ProductCatalog
	Idempotency    IdempotencyStore
	ProductToken   string
	OrderToken     string
	CORSOrigins    []string
	Logger         *zap.Logger
	Metrics        HTTPMetrics
	MetricsHandler http.Handler
	DB             Pinger
}

// NewRouter wires the public API under /api/v1 plus the operational
// endpoints.
func NewRouter(d RouterDeps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(logger))
	r.Use(Recoverer(logger))
	r.Use(Metrics(d.Metrics))
	r.Use(func(next http.Handler) http.Handler { return CORS(d.CORSOrigins, next) })

	r.NotFound(NotFoundHandler().ServeHTTP)
	r.MethodNotAllowed(MethodNotAllowedHandler().ServeHTTP)

	r.Get("/health", HealthHandler)
	if d.DB != nil {
		r.Get("/ready", ReadyHandler(d.DB))
	}
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Use(RequireToken(d.ProductToken))
			r.Get("/", HandleListProducts(d.Products, logger))
			r.Post("/", HandleCreateProduct(d.Products, logger))
		})
		r.Route("/orders", func(r chi.Router) {
			r.Use(RequireToken(d.OrderToken))
			r.Post("/", HandleCreateOrder(d.Orders, d.Idempotency, logger))
			r.Get("/{orderID}", HandleGetOrder(d.Orders, logger))
		})
	})

	return r
}

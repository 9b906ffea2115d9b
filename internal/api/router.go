package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/retail-orders/internal/api/middleware"
	"github.com/example/retail-orders/internal/auth"
)

// RouterConfig tunes the cross-cutting behaviour of the router.
type RouterConfig struct {
	RequestTimeout time.Duration
	// ProofRate and ProofBurst bound payment proof uploads per client.
	ProofRate  rate.Limit
	ProofBurst int
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		RequestTimeout: 15 * time.Second,
		ProofRate:      rate.Every(6 * time.Second),
		ProofBurst:     5,
	}
}

func NewRouter(h *Handlers, jwtService *auth.JWTService, cfg RouterConfig, log *zap.Logger) *chi.Mux {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(chimw.RealIP, middleware.RequestLogger(log), chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.RequestTimeout))

	operator := chi.Chain(
		middleware.AuthMiddleware(jwtService),
		middleware.RequireRole(auth.RoleOperator),
	)

	r.Get("/healthz", h.Health)

	r.Route("/customers", func(r chi.Router) {
		r.Post("/", h.CreateCustomer)
		r.Get("/", h.ListCustomers)
		r.Get("/{id}", h.GetCustomer)
		r.With(operator...).Put("/{id}", h.UpdateCustomer)
		r.With(operator...).Delete("/{id}", h.DeleteCustomer)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
		r.Group(func(r chi.Router) {
			r.Use(operator...)
			r.Post("/", h.CreateProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
			r.Post("/{id}/image", h.UploadProductImage)
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.PlaceOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.With(operator...).Delete("/{id}", h.DeleteOrder)
	})

	proofLimiter := middleware.NewRateLimiter(cfg.ProofRate, cfg.ProofBurst)
	r.With(proofLimiter.Handler).Post("/payments/proof", h.UploadPaymentProof)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Group(func(r chi.Router) {
			r.Use(operator...)
			r.Post("/sweep", h.Sweep)
			r.Post("/reconcile", h.Reconcile)
		})
	})

	return r
}

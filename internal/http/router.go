package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	RequestTimeout time.Duration
	AdminToken     string
	HealthChecks   map[string]HealthCheck
}

type Handlers struct {
	Cart     *CartHandler
	Orders   *OrdersHandler
	Products *ProductHandler
	Loyalty  *LoyaltyHandler
}

func NewRouter(cfg RouterConfig, h Handlers, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(IdentityMiddleware)

	r.Get("/health", healthHandler(cfg.HealthChecks))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session", h.Cart.StartSession)
		r.Delete("/session", h.Cart.EndSession)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.GetCart)
			r.Delete("/", h.Cart.ClearCart)
			r.Post("/items", h.Cart.AddItem)
			r.Put("/items/{lineID}", h.Cart.UpdateQuantity)
			r.Delete("/items/{lineID}", h.Cart.RemoveItem)
			r.Put("/loyalty", h.Cart.SelectLoyalty)
			r.Post("/loyalty/confirm", h.Cart.ConfirmLoyalty)
			r.Delete("/loyalty", h.Cart.ResetLoyalty)
		})
		r.Post("/checkout", h.Cart.Checkout)

		r.Get("/orders", h.Orders.ListOrders)
		r.Get("/orders/{orderID}", h.Orders.GetOrder)

		r.Get("/products", h.Products.ListProducts)
		r.Get("/products/{productID}", h.Products.GetProduct)

		r.Get("/loyalty/cards", h.Loyalty.ListCards)
		r.Post("/loyalty/cards", h.Loyalty.ClaimCard)
		r.Post("/loyalty/cards/{cardID}/stamps", h.Loyalty.ActivateStamp)

		r.Get("/coins", h.Loyalty.GetCoins)
		r.Post("/coins/transfer", h.Loyalty.Transfer)
		r.Post("/coins/redeem", h.Loyalty.Redeem)

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminMiddleware(cfg.AdminToken))
			r.Get("/orders", h.Orders.AdminListOrders)
			r.Post("/orders/{orderID}/status", h.Orders.AdminUpdateStatus)
			r.Post("/orders/{orderID}/dispatch", h.Orders.AdminDispatch)
			r.Post("/cards", h.Loyalty.AdminIssueCard)
			r.Post("/coins/grant", h.Loyalty.AdminGrantCoins)
		})
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}
		respondJSON(w, status, body)
	}
}

package v1

import (
	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/paygate/handler"
	"github.com/mstgnz/paygate/infra/middle"
)

// Handlers groups the handlers mounted under /v1. Auth may be nil when no
// JWT secret is configured.
type Handlers struct {
	Gateways *handler.GatewayHandler
	Payments *handler.PaymentHandler
	Auth     *handler.AuthHandler
}

// Routes registers all API routes. Callers must put the session middleware
// in front of r.
func Routes(r chi.Router, h Handlers, limiter *middle.RateLimiter) {
	r.Get("/gateways", h.Gateways.ListAvailable)

	r.Route("/payments", func(r chi.Router) {
		if limiter != nil {
			r.With(middle.RateLimitMiddleware(limiter)).Post("/", h.Payments.Charge)
		} else {
			r.Post("/", h.Payments.Charge)
		}
		r.Get("/", h.Payments.ListTransactions)
		r.Get("/{idempotencyKey}", h.Payments.GetTransaction)
	})

	if h.Auth != nil {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/token", h.Auth.IssueToken)
			r.Post("/refresh", h.Auth.RefreshToken)
		})
	}
}

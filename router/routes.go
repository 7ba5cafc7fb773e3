package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mstgnz/paygate/handler"
	"github.com/mstgnz/paygate/infra/auth"
	"github.com/mstgnz/paygate/infra/middle"
	"github.com/mstgnz/paygate/infra/response"
	v1 "github.com/mstgnz/paygate/router/v1"
)

// Options carries everything the HTTP surface needs
type Options struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	Verifier       auth.Verifier
	RateLimiter    *middle.RateLimiter
	Health         *handler.HealthHandler
	V1             v1.Handlers
}

// New builds the chi router: shared middleware, the public health check and
// the authenticated /v1 API.
func New(opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middle.RequestLoggingMiddleware())
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.RequestValidationMiddleware())

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"Idempotency-Key", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: !containsWildcard(opts.CORSOrigins),
		MaxAge:           300,
	}))

	r.Get("/health", opts.Health.CheckHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middle.SessionMiddleware(opts.Verifier))
		v1.Routes(r, opts.V1, opts.RateLimiter)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
	})

	return r
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

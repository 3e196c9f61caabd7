package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/event-ticket-inventory/internal/idempotency"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
)

type RouterOptions struct {
	Verifier    TokenVerifier
	Limiter     Limiter
	Idempotency *idempotency.Idempotency
	PerUserRate int
	PerIPRate   int
}

func SetupRouter(h *Handlers, logger observability.Logger, opts RouterOptions) *chi.Mux {
	if opts.PerUserRate <= 0 {
		opts.PerUserRate = 60
	}
	if opts.PerIPRate <= 0 {
		opts.PerIPRate = 300
	}
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(opts.Limiter, opts.PerUserRate, opts.PerIPRate))
		r.Get("/v1/events", h.ListEvents)
		r.Get("/v1/events/{id}", h.GetEvent)
		r.Get("/v1/events/{id}/capacity", h.EventCapacity)
	})

	r.Group(func(r chi.Router) {
		r.Use(JWTMiddleware(opts.Verifier))
		r.Use(RateLimitMiddleware(opts.Limiter, opts.PerUserRate, opts.PerIPRate))
		r.Use(IdempotencyMiddleware(opts.Idempotency))

		r.Post("/v1/events", h.CreateEvent)
		r.Patch("/v1/events/{id}", h.UpdateEvent)
		r.Delete("/v1/events/{id}", h.DeleteEvent)

		r.Post("/v1/bookings", h.CreateBooking)
		r.Get("/v1/bookings", h.ListBookings)
		r.Get("/v1/bookings/{id}", h.GetBooking)
		r.Post("/v1/bookings/{id}/payment", h.CapturePayment)
		r.Post("/v1/bookings/{id}/cancel", h.CancelBooking)

		r.Get("/v1/payments", h.ListPayments)
		r.Get("/v1/payments/all", h.ListAllPayments)
		r.Get("/v1/payments/{id}", h.GetPayment)
		r.Delete("/v1/payments/{id}", h.CancelPayment)
	})

	return r
}

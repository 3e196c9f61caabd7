package http

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robertarktes/event-ticket-inventory/internal/auth"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/idempotency"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

type loggerKey struct{}

// TokenVerifier is implemented by auth.Verifier.
type TokenVerifier interface {
	Verify(token string) (domain.Actor, error)
}

// Limiter is implemented by rateLimit.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, rate int, period time.Duration) (bool, error)
}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

// LoggerMiddleware attaches a request-scoped logger and records one log line
// and one metric sample per request.
func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			ctx := context.WithValue(r.Context(), loggerKey{}, entry)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(status), r.Method).Inc()
			entry.WithFields(map[string]interface{}{
				"method":      r.Method,
				"route":       route,
				"status":      status,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("request")
		})
	}
}

// JWTMiddleware requires a valid bearer token and stores its actor in the
// request context.
func JWTMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, r, domain.ErrUnauthenticated)
				return
			}
			actor, err := verifier.Verify(token)
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx := auth.WithActor(r.Context(), actor)
			ctx = context.WithValue(ctx, loggerKey{}, loggerFrom(ctx).WithField("user_id", actor.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rec *recorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *recorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	rec.body.Write(b)
	return rec.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response of a POST retried with
// the same Idempotency-Key. Keys are scoped to the caller and route.
func IdempotencyMiddleware(idemp *idempotency.Idempotency) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if idemp == nil || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) < 16 || len(key) > 128 {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: "invalid Idempotency-Key"})
				return
			}
			scope := "anon"
			if actor, ok := auth.ActorFrom(r.Context()); ok {
				scope = actor.UserID.String()
			}
			fullKey := scope + ":" + r.URL.Path + ":" + key

			stored, err := idemp.Begin(r.Context(), fullKey)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if stored != nil {
				w.Header().Set("Content-Type", stored.ContentType)
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Result)
				return
			}

			rec := &recorder{ResponseWriter: w}
			defer func() {
				resp := &idempotency.Response{Status: rec.status, ContentType: rec.Header().Get("Content-Type"), Result: rec.body.Bytes()}
				if rec.status == 0 {
					resp = nil
				}
				if err := idemp.Finish(context.WithoutCancel(r.Context()), fullKey, resp); err != nil {
					loggerFrom(r.Context()).WithError(err).Warn("failed to store idempotent response")
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// RateLimitMiddleware limits each authenticated user and each client IP.
// When the limiter backend fails the request is let through.
func RateLimitMiddleware(rl Limiter, perUser, perIP int) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl == nil {
				next.ServeHTTP(w, r)
				return
			}
			keys := []struct {
				key  string
				rate int
			}{{"ip:" + clientIP(r), perIP}}
			if actor, ok := auth.ActorFrom(r.Context()); ok {
				keys = append(keys, struct {
					key  string
					rate int
				}{"user:" + actor.UserID.String(), perUser})
			}
			for _, k := range keys {
				allowed, err := rl.Allow(r.Context(), k.key, k.rate, time.Minute)
				if err != nil {
					loggerFrom(r.Context()).WithError(err).Warn("rate limiter unavailable")
					break
				}
				if !allowed {
					w.Header().Set("Retry-After", "60")
					writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limited", Message: "rate limit exceeded"})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		tracer := otel.Tracer("http")
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
			attribute.String("request.id", middleware.GetReqID(r.Context())),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

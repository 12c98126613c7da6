package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"SynthLedger/internal/observability"
)

// AccountResolver turns the X-Account header into an account id. Deployments
// that front the API with an auth proxy plug in their own resolver.
type AccountResolver interface {
	Resolve(header string) (uuid.UUID, error)
}

// HeaderResolver trusts the header to carry the account UUID directly.
type HeaderResolver struct{}

func (HeaderResolver) Resolve(header string) (uuid.UUID, error) {
	if header == "" {
		return uuid.Nil, errors.New("missing X-Account header")
	}
	return uuid.Parse(header)
}

// throttle applies a global token-bucket limit; over-limit requests get 429.
func throttle(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// instrument records per-endpoint request counts and latency.
func instrument(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			// Route patterns keep the label cardinality bounded.
			endpoint := r.Method + " " + chi.RouteContext(r.Context()).RoutePattern()
			m.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(sw.status)).Inc()
			m.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

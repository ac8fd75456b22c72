package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/lockstake-ledger/internal/ledger"
	"github.com/yourorg/lockstake-ledger/internal/otel"
)

// observe traces the request and records its route, status and latency
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := otel.StartSpan(r.Context(), r.Method+" "+r.URL.Path,
			attribute.String("http.method", r.Method),
		)
		defer span.End()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", recorder.status),
		)

		duration := time.Since(start)
		s.metrics.requestCounter.WithLabelValues(route, r.Method, http.StatusText(recorder.status)).Inc()
		s.metrics.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"route":    route,
			"status":   recorder.status,
			"duration": duration,
		}).Debug("Request served")
	})
}

// limit applies the mutating-route rate limit
func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimit != nil && !s.rateLimit.Allow() {
			s.metrics.rejected.WithLabelValues("rate_limit").Inc()
			s.errorResponse(w, r, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// guard refuses mutations while the solvency breaker is open
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Breaker != nil {
			if err := s.deps.Breaker.Allow(); err != nil {
				s.metrics.setBreaker(s.deps.Breaker.GetState())
				s.metrics.rejected.WithLabelValues("circuit_open").Inc()
				s.errorResponse(w, r, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate verifies the signed caller proof of an admin request and
// passes the verified principal on in the request context
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: read body: %v", ledger.ErrValidation, err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		who, err := s.verifyCaller(r, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, who)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

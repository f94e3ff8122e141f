// Package core provides the HTTP chassis of the Litmus billing service.
// It builds a chi router that serves both a standard HTTP listener (local
// development) and AWS Lambda behind API Gateway (via LambdaAdapter), and it
// enforces the cross-cutting concerns (security headers, CORS, logging,
// metrics, panic recovery and error rendering) before requests reach the
// billing handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"litmus/internal/config"
	"litmus/internal/types"
)

// MetricsCollector records API telemetry. Implementations publish to
// Prometheus (HTTP mode) or CloudWatch (Lambda mode).
type MetricsCollector interface {
	// RecordRequest records latency and count for one request. endpoint is
	// the matched route pattern, not the raw path.
	RecordRequest(method, endpoint, status string, duration time.Duration)

	// RecordWebhookEvent counts one processed Stripe event.
	RecordWebhookEvent(eventType, outcome string)
}

// TokenVerifier resolves a bearer token to the caller's identity.
type TokenVerifier interface {
	Verify(token string) (types.Identity, error)
}

// RouteRegistrar mounts a group of handlers on a router.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the dependencies of the billing API so that tests and
// the two runtime modes can assemble it differently.
type Server struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  MetricsCollector
	Reporter ErrorReporter
	Tokens   TokenVerifier

	// MetricsHandler serves /metrics when set (HTTP mode).
	MetricsHandler http.Handler

	HealthChecks    []HealthCheck
	RouteRegistrars []RouteRegistrar

	closers []namedCloser
	router  *chi.Mux
}

type namedCloser struct {
	name  string
	close func() error
}

// NewServer validates the critical dependencies and prepares an empty router.
// The caller appends RouteRegistrars and then calls MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:   cfg,
		Logger:   logger,
		Reporter: NopReporter{},
		router:   chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// OnShutdown registers a resource to release in Shutdown. Resources are
// closed in reverse registration order.
func (s *Server) OnShutdown(name string, fn func() error) {
	s.closers = append(s.closers, namedCloser{name: name, close: fn})
}

// Shutdown releases registered resources and flushes the error reporter.
// All closers run even if one fails; the joined error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.close(); err != nil {
			s.Logger.ErrorContext(ctx, "error closing resource", "resource", c.name, "error", err)
			errs = append(errs, fmt.Errorf("closing %s: %w", c.name, err))
		}
	}

	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	s.Reporter.Flush(timeout)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}

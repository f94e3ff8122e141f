package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// healthCheckTimeout bounds the whole health run, not each check.
const healthCheckTimeout = 2 * time.Second

// HealthCheck checks one backing dependency (database, Redis, PostgREST).
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

type funcCheck struct {
	name  string
	check func(ctx context.Context) error
}

func (p funcCheck) Name() string                    { return p.name }
func (p funcCheck) Check(ctx context.Context) error { return p.check(ctx) }

// NewHealthCheck adapts a ping function into a HealthCheck.
func NewHealthCheck(name string, check func(ctx context.Context) error) HealthCheck {
	return funcCheck{name: name, check: check}
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs all checks concurrently under a shared 2-second budget.
// It returns 200 when every check passes and 503 otherwise. Checks that
// have not finished by the deadline are reported as timed out.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}
	if len(s.HealthChecks) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	var (
		mu      sync.Mutex
		results = make(map[string]error, len(s.HealthChecks))
		g       errgroup.Group
	)
	for _, hc := range s.HealthChecks {
		g.Go(func() error {
			err := runCheck(ctx, hc)
			mu.Lock()
			results[hc.Name()] = err
			mu.Unlock()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	resp.Components = make(map[string]componentStatus, len(s.HealthChecks))
	for _, hc := range s.HealthChecks {
		name := hc.Name()
		err, finished := results[name]
		switch {
		case !finished:
			resp.Status = "unhealthy"
			resp.Components[name] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		case err != nil:
			resp.Status = "unhealthy"
			resp.Components[name] = componentStatus{Status: "unhealthy", Message: err.Error()}
		default:
			resp.Components[name] = componentStatus{Status: "healthy"}
		}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}

func runCheck(ctx context.Context, p HealthCheck) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("check panicked: %v", rvr)
		}
	}()
	return p.Check(ctx)
}

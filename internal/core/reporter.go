package core

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"litmus/internal/types"
)

// ErrorReporter captures failures that are handled without surfacing to the
// caller, such as swallowed webhook persistence errors and recovered panics.
type ErrorReporter interface {
	CaptureError(ctx context.Context, err error, tags map[string]string)
	Flush(timeout time.Duration) bool
}

// NopReporter discards everything. It is the default when no DSN is set.
type NopReporter struct{}

func (NopReporter) CaptureError(context.Context, error, map[string]string) {}
func (NopReporter) Flush(time.Duration) bool                               { return true }

// SentryOptions configures InitSentry.
type SentryOptions struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
}

// InitSentry initializes the global Sentry client. It returns a NopReporter
// when DSN is empty.
func InitSentry(opts SentryOptions) (ErrorReporter, error) {
	if opts.DSN == "" {
		return NopReporter{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		TracesSampleRate: opts.TracesSampleRate,
	})
	if err != nil {
		return NopReporter{}, fmt.Errorf("sentry init: %w", err)
	}
	return NewSentryReporter(sentry.CurrentHub()), nil
}

// SentryReporter sends errors to Sentry through a hub.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter wraps hub; nil selects the global hub.
func NewSentryReporter(hub *sentry.Hub) *SentryReporter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryReporter{hub: hub}
}

// CaptureError sends err with tags and the request id on an isolated scope.
func (r *SentryReporter) CaptureError(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := r.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		if id := types.GetRequestID(ctx); id != "" {
			scope.SetTag("request_id", id)
		}
		hub.CaptureException(err)
	})
}

func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

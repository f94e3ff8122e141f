package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"

	"litmus/internal/types"
)

// newCapturingHub returns a hub whose client hands every event to the
// returned slice and drops it before transport.
func newCapturingHub(t *testing.T) (*sentry.Hub, *[]*sentry.Event) {
	t.Helper()
	var events []*sentry.Event
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn: "https://public@example.com/1",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			events = append(events, event)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("sentry.NewClient: %v", err)
	}
	return sentry.NewHub(client, sentry.NewScope()), &events
}

func TestSentryReporter_CaptureErrorWithTags(t *testing.T) {
	hub, events := newCapturingHub(t)
	rep := NewSentryReporter(hub)

	ctx := types.WithRequestID(context.Background(), "req_42")
	rep.CaptureError(ctx, errors.New("user store unavailable"), map[string]string{
		"event_type": "checkout.session.completed",
		"event_id":   "evt_1",
	})

	if len(*events) != 1 {
		t.Fatalf("captured %d events, want 1", len(*events))
	}
	ev := (*events)[0]
	if ev.Tags["event_type"] != "checkout.session.completed" || ev.Tags["event_id"] != "evt_1" {
		t.Errorf("tags = %v", ev.Tags)
	}
	if ev.Tags["request_id"] != "req_42" {
		t.Errorf("request_id tag = %q", ev.Tags["request_id"])
	}
	if len(ev.Exception) == 0 || ev.Exception[len(ev.Exception)-1].Value != "user store unavailable" {
		t.Errorf("exception = %+v", ev.Exception)
	}
}

func TestSentryReporter_ScopeIsolation(t *testing.T) {
	hub, events := newCapturingHub(t)
	rep := NewSentryReporter(hub)

	rep.CaptureError(context.Background(), errors.New("first"), map[string]string{"event_type": "a"})
	rep.CaptureError(context.Background(), errors.New("second"), nil)

	if len(*events) != 2 {
		t.Fatalf("captured %d events", len(*events))
	}
	if _, leaked := (*events)[1].Tags["event_type"]; leaked {
		t.Error("tags from the first capture leaked into the second")
	}
}

func TestSentryReporter_NilErrorIgnored(t *testing.T) {
	hub, events := newCapturingHub(t)
	NewSentryReporter(hub).CaptureError(context.Background(), nil, nil)
	if len(*events) != 0 {
		t.Errorf("captured %d events for nil error", len(*events))
	}
}

func TestInitSentry_EmptyDSN(t *testing.T) {
	rep, err := InitSentry(SentryOptions{})
	if err != nil {
		t.Fatalf("InitSentry: %v", err)
	}
	if _, ok := rep.(NopReporter); !ok {
		t.Errorf("reporter = %T, want NopReporter", rep)
	}
	if !rep.Flush(time.Millisecond) {
		t.Error("NopReporter.Flush should report success")
	}
}

func TestInitSentry_InvalidDSN(t *testing.T) {
	if _, err := InitSentry(SentryOptions{DSN: "::not a dsn"}); err == nil {
		t.Error("expected error for invalid DSN")
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"litmus/internal/billing"
	"litmus/internal/core"
	"litmus/internal/external"
	"litmus/internal/types"
)

// maxWebhookBodySize is the maximum accepted Stripe webhook payload (64 KB).
const maxWebhookBodySize = 64 * 1024

// EventLedger records which event ids are being or have been processed.
type EventLedger interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// EventPublisher forwards invoice notifications downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt types.BillingEvent) error
}

// WebhookMetrics counts processed webhook events by outcome.
type WebhookMetrics interface {
	RecordWebhookEvent(eventType, outcome string)
}

// StripeWebhookDeps groups the collaborators of StripeWebhookHandler. Only
// Verifier is required; every other dependency switches its feature off when
// nil.
type StripeWebhookDeps struct {
	Verifier  external.WebhookVerifier
	Store     external.UserStore
	Ledger    EventLedger
	Publisher EventPublisher
	Catalog   *billing.Catalog
	Metrics   WebhookMetrics
	Reporter  core.ErrorReporter
	Secret    string
}

// StripeWebhookHandler handles asynchronous events from Stripe. It is not
// behind any auth; the Stripe-Signature header authenticates the body.
type StripeWebhookHandler struct {
	verifier  external.WebhookVerifier
	store     external.UserStore
	ledger    EventLedger
	publisher EventPublisher
	catalog   *billing.Catalog
	metrics   WebhookMetrics
	reporter  core.ErrorReporter
	secret    string
	logger    *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(deps StripeWebhookDeps, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Catalog == nil {
		deps.Catalog = billing.DefaultCatalog()
	}
	if deps.Reporter == nil {
		deps.Reporter = core.NopReporter{}
	}
	return &StripeWebhookHandler{
		verifier:  deps.Verifier,
		store:     deps.Store,
		ledger:    deps.Ledger,
		publisher: deps.Publisher,
		catalog:   deps.Catalog,
		metrics:   deps.Metrics,
		reporter:  deps.Reporter,
		secret:    deps.Secret,
		logger:    logger,
	}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/stripe-webhook", h.Handle)
}

type webhookAck struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// Handle verifies and processes one Stripe event.
//
// Anything that goes wrong after the signature has been verified is logged,
// reported and counted, and the event is still acknowledged with 200 so that
// Stripe does not enter a retry loop for a failure it cannot fix.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.secret == "" || h.verifier == nil {
		h.logger.ErrorContext(ctx, "stripe webhook secret not configured")
		core.Error(w, r, types.NewAppError(types.ErrCodeConfigWebhookSecret, "Webhook secret not configured", nil).
			WithHint("Set STRIPE_WEBHOOK_SECRET in your environment variables"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body", "error", err)
		h.reject(w, r, "unable to read request body")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(ctx, "missing Stripe-Signature header")
		h.reject(w, r, "missing Stripe-Signature header")
		return
	}
	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(ctx, "webhook signature verification failed", "error", err)
		h.reject(w, r, err.Error())
		return
	}

	var evt stripeEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.ErrorContext(ctx, "failed to parse webhook event JSON", "error", err)
		h.reject(w, r, "invalid event payload")
		return
	}

	log := h.logger.With("event_id", evt.ID, "event_type", evt.Type)
	log.InfoContext(ctx, "processing stripe webhook event")

	if h.ledger != nil && evt.ID != "" {
		claimed, err := h.ledger.Claim(ctx, evt.ID)
		if err != nil {
			h.fail(ctx, log, &evt, "event ledger unavailable, processing without dedupe", err)
		}
		if !claimed {
			log.InfoContext(ctx, "duplicate webhook event ignored")
			h.record(evt.Type, outcomeDuplicate)
			core.JSON(w, r, http.StatusOK, webhookAck{Received: true, Duplicate: true})
			return
		}
	}

	outcome, err := h.process(ctx, &evt)
	if err != nil {
		h.fail(ctx, log, &evt, "webhook event processing failed", err)
		h.release(ctx, log, &evt)
	} else {
		log.InfoContext(ctx, "stripe webhook event processed", "outcome", outcome)
	}
	h.record(evt.Type, outcome)

	core.JSON(w, r, http.StatusOK, webhookAck{Received: true})
}

func (h *StripeWebhookHandler) process(ctx context.Context, evt *stripeEvent) (string, error) {
	action, err := decodeAction(evt, h.catalog)
	if err != nil {
		return outcomeFailed, err
	}
	return action.apply(ctx, h)
}

// reject answers a request that failed before its signature was accepted.
func (h *StripeWebhookHandler) reject(w http.ResponseWriter, r *http.Request, reason string) {
	h.record("unverified", outcomeRejected)
	core.Error(w, r, types.NewAppError(types.ErrCodeValidationSignature, "Webhook Error: "+reason, nil))
}

// fail logs and reports a swallowed error.
func (h *StripeWebhookHandler) fail(ctx context.Context, log *slog.Logger, evt *stripeEvent, msg string, err error) {
	log.ErrorContext(ctx, msg, "error", err)
	h.reporter.CaptureError(ctx, err, map[string]string{
		"event_id":   evt.ID,
		"event_type": evt.Type,
	})
}

// release drops the claim on a failed event. The receiver always answers 200,
// so Stripe does not retry on its own; this only lets a manual resend from the
// dashboard or CLI process the event again.
func (h *StripeWebhookHandler) release(ctx context.Context, log *slog.Logger, evt *stripeEvent) {
	if h.ledger == nil || evt.ID == "" {
		return
	}
	if err := h.ledger.Release(ctx, evt.ID); err != nil {
		log.ErrorContext(ctx, "failed to release event ledger entry", "error", err)
	}
}

func (h *StripeWebhookHandler) record(eventType, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(eventType, outcome)
	}
}

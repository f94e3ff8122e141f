package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"litmus/internal/types"
)

// Outcomes recorded per webhook event in the WebhookEvent metric.
const (
	outcomeApplied   = "applied"
	outcomeStale     = "stale"
	outcomeSkipped   = "skipped"
	outcomeIgnored   = "ignored"
	outcomePublished = "published"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

// webhookAction is one of the closed set of things a verified event can do.
type webhookAction interface {
	apply(ctx context.Context, h *StripeWebhookHandler) (outcome string, err error)
}

// activateSubscription links a completed checkout to the user with the
// matching email.
type activateSubscription struct {
	Email          string
	Plan           types.PlanID
	CustomerID     string
	SubscriptionID string
	EventAt        time.Time
}

func (a activateSubscription) apply(ctx context.Context, h *StripeWebhookHandler) (string, error) {
	if h.store == nil {
		h.logger.WarnContext(ctx, "user store not configured, skipping checkout activation", "plan", a.Plan)
		return outcomeSkipped, nil
	}
	if a.Email == "" {
		h.logger.WarnContext(ctx, "checkout session has no customer email", "customer_id", a.CustomerID)
		return outcomeSkipped, nil
	}

	user, err := h.store.FindByEmail(ctx, a.Email)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
			h.logger.WarnContext(ctx, "no user matches checkout email", "customer_id", a.CustomerID)
			return outcomeSkipped, nil
		}
		return outcomeFailed, fmt.Errorf("find user for checkout: %w", err)
	}

	applied, err := h.store.ActivateSubscription(ctx, user.UserID, types.SubscriptionActivation{
		Tier:           a.Plan,
		CustomerID:     a.CustomerID,
		SubscriptionID: a.SubscriptionID,
		EventAt:        a.EventAt,
	})
	if err != nil {
		return outcomeFailed, fmt.Errorf("activate subscription: %w", err)
	}
	if !applied {
		return outcomeStale, nil
	}

	h.logger.InfoContext(ctx, "subscription activated",
		"user_id", user.UserID,
		"plan", a.Plan,
		"subscription_id", a.SubscriptionID,
	)
	return outcomeApplied, nil
}

// updateSubscriptionStatus mirrors Stripe's status onto the user row.
type updateSubscriptionStatus struct {
	SubscriptionID string
	Status         types.SubscriptionStatus
	EventAt        time.Time
}

func (a updateSubscriptionStatus) apply(ctx context.Context, h *StripeWebhookHandler) (string, error) {
	if h.store == nil {
		h.logger.WarnContext(ctx, "user store not configured, skipping status update", "subscription_id", a.SubscriptionID)
		return outcomeSkipped, nil
	}
	if a.SubscriptionID == "" {
		h.logger.WarnContext(ctx, "subscription update without subscription id")
		return outcomeSkipped, nil
	}

	applied, err := h.store.UpdateSubscriptionStatus(ctx, a.SubscriptionID, a.Status, a.EventAt)
	if err != nil {
		return outcomeFailed, fmt.Errorf("update subscription status: %w", err)
	}
	if !applied {
		return outcomeStale, nil
	}

	h.logger.InfoContext(ctx, "subscription status updated",
		"subscription_id", a.SubscriptionID,
		"status", a.Status,
	)
	return outcomeApplied, nil
}

// cancelSubscription returns the user to the free tier.
type cancelSubscription struct {
	SubscriptionID string
	EventAt        time.Time
}

func (a cancelSubscription) apply(ctx context.Context, h *StripeWebhookHandler) (string, error) {
	if h.store == nil {
		h.logger.WarnContext(ctx, "user store not configured, skipping cancellation", "subscription_id", a.SubscriptionID)
		return outcomeSkipped, nil
	}
	if a.SubscriptionID == "" {
		h.logger.WarnContext(ctx, "subscription deletion without subscription id")
		return outcomeSkipped, nil
	}

	applied, err := h.store.CancelSubscription(ctx, a.SubscriptionID, a.EventAt)
	if err != nil {
		return outcomeFailed, fmt.Errorf("cancel subscription: %w", err)
	}
	if !applied {
		return outcomeStale, nil
	}

	h.logger.InfoContext(ctx, "subscription cancelled", "subscription_id", a.SubscriptionID)
	return outcomeApplied, nil
}

// invoiceNotification changes no stored state. It is forwarded to the
// billing-events queue when one is configured.
type invoiceNotification struct {
	Event types.BillingEvent
}

func (a invoiceNotification) apply(ctx context.Context, h *StripeWebhookHandler) (string, error) {
	logFn := h.logger.InfoContext
	if a.Event.EventType == types.EventInvoicePaymentFailed {
		logFn = h.logger.WarnContext
	}
	logFn(ctx, "invoice event received",
		"event_type", a.Event.EventType,
		"customer_id", a.Event.CustomerID,
		"subscription_id", a.Event.SubscriptionID,
		"amount_cents", a.Event.AmountCents,
	)

	if h.publisher == nil {
		return outcomeIgnored, nil
	}

	evt := a.Event
	evt.RequestID = types.GetRequestID(ctx)
	if err := h.publisher.Publish(ctx, evt); err != nil {
		return outcomeFailed, fmt.Errorf("publish invoice event: %w", err)
	}
	return outcomePublished, nil
}

// noOpAction is logged and acknowledged.
type noOpAction struct {
	Reason string
}

func (a noOpAction) apply(ctx context.Context, h *StripeWebhookHandler) (string, error) {
	h.logger.InfoContext(ctx, "webhook event acknowledged without action", "reason", a.Reason)
	return outcomeIgnored, nil
}

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"litmus/internal/core"
	"litmus/internal/types"
)

// statusQuery carries the subscription-status query parameters through the
// validator so both ids are checked before they reach a Stripe URL.
type statusQuery struct {
	CustomerID     string `json:"customer_id" validate:"omitempty,stripe_id"`
	SubscriptionID string `json:"subscription_id" validate:"omitempty,stripe_id"`
}

// GetSubscriptionStatus handles GET subscription-status. subscription_id wins
// when both parameters are given; customer_id alone looks up the first active
// subscription.
func (h *BillingHandler) GetSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := statusQuery{
		CustomerID:     strings.TrimSpace(r.URL.Query().Get("customer_id")),
		SubscriptionID: strings.TrimSpace(r.URL.Query().Get("subscription_id")),
	}

	if q.CustomerID == "" && q.SubscriptionID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "Missing parameter", nil).
			WithDetails("Please provide either customer_id or subscription_id"))
		return
	}
	if err := h.validator.ValidateStruct(q); err != nil {
		core.Error(w, r, err)
		return
	}

	if !h.stripeReady() {
		core.Error(w, r, errStripeNotConfigured)
		return
	}

	var (
		sub *types.Subscription
		err error
	)
	if q.SubscriptionID != "" {
		sub, err = h.stripe.GetSubscription(ctx, q.SubscriptionID)
	} else {
		sub, err = h.stripe.FindActiveSubscription(ctx, q.CustomerID)
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundSubscription {
		sub, err = nil, nil
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to retrieve subscription",
			"customer_id", q.CustomerID,
			"subscription_id", q.SubscriptionID,
			"error", err,
		)
		core.Error(w, r, upstreamError(err, "Unable to retrieve subscription status"))
		return
	}

	core.JSON(w, r, http.StatusOK, h.summarize(sub))
}

// summarize maps a Stripe subscription onto the response body. A nil
// subscription is the free plan with a null status.
func (h *BillingHandler) summarize(sub *types.Subscription) types.SubscriptionSummary {
	if sub == nil {
		return types.SubscriptionSummary{Plan: types.PlanFree}
	}

	status := sub.Status
	amount := float64(sub.UnitAmountCents) / 100
	return types.SubscriptionSummary{
		HasSubscription:   true,
		Plan:              h.catalog.Resolve(sub.PlanHint, sub.UnitAmountCents),
		Status:            &status,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		SubscriptionID:    sub.ID,
		CustomerID:        sub.CustomerID,
		Amount:            &amount,
		Interval:          sub.Interval,
	}
}

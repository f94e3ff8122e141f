package handlers

import (
	"net/http"
	"strings"

	"litmus/internal/core"
	"litmus/internal/types"
)

// CreateCheckoutSession handles POST checkout-session.
//
// Checks run in a fixed order so the client sees the most actionable error
// first: configuration, plan presence, plan validity, free plan, email.
// In mock mode the configuration check is skipped and no Stripe call is made.
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mock := h.cfg.Stripe.MockEnabled()

	if !mock && !h.stripeReady() {
		h.logger.ErrorContext(ctx, "checkout requested but Stripe is not configured")
		core.Error(w, r, errStripeNotConfigured)
		return
	}

	var req types.CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if strings.TrimSpace(req.Plan) == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "Plan is required", nil))
		return
	}

	plan, ok := h.catalog.Lookup(req.Plan)
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationUnknownPlan, "Unknown plan selected", nil))
		return
	}
	if plan.IsFree() {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationFreePlan, "Free plan does not require checkout", nil))
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.UserID = strings.TrimSpace(req.UserID)
	if identity, ok := types.GetIdentity(ctx); ok {
		if req.Email == "" {
			req.Email = strings.ToLower(strings.TrimSpace(identity.Email))
		}
		if req.UserID == "" {
			req.UserID = identity.UserID
		}
	}

	if req.Email == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "Email is required to start checkout", nil))
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	base := h.cfg.FrontendBaseURL()

	if mock {
		h.logger.InfoContext(ctx, "mock checkout session issued",
			"plan", plan.ID,
		)
		core.JSON(w, r, http.StatusOK, types.URLResponse{
			URL: base + "/billing?success=true&mock_checkout=true",
		})
		return
	}

	checkoutURL, sessionID, err := h.stripe.CreateCheckoutSession(ctx, types.CheckoutSessionParams{
		Plan:        plan.ID,
		PlanName:    plan.Name,
		Description: plan.Description,
		AmountCents: plan.AmountCents,
		Currency:    plan.Currency,
		Interval:    plan.Interval,
		PriceID:     h.cfg.Stripe.PriceIDFor(plan.ID),
		Email:       req.Email,
		UserID:      req.UserID,
		SuccessURL:  base + "/billing?success=true&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   base + "/billing?canceled=true",
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create checkout session",
			"plan", plan.ID,
			"error", err,
		)
		core.Error(w, r, upstreamError(err, "Unable to start checkout with Stripe"))
		return
	}

	h.logger.InfoContext(ctx, "checkout session created",
		"plan", plan.ID,
		"session_id", sessionID,
	)
	core.JSON(w, r, http.StatusOK, types.URLResponse{URL: checkoutURL})
}

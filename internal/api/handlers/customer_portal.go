package handlers

import (
	"net/http"
	"strings"

	"litmus/internal/core"
	"litmus/internal/types"
)

// CreatePortalSession handles POST customer-portal. The return URL is the
// caller's return_url, or the frontend base, with /billing appended.
func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req types.PortalRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.ReturnURL = strings.TrimSpace(req.ReturnURL)
	if req.CustomerID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "Missing customer_id", nil).
			WithDetails("Please provide a Stripe customer ID"))
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if !h.stripeReady() {
		core.Error(w, r, errStripeNotConfigured)
		return
	}

	base := h.cfg.FrontendBaseURL()
	if req.ReturnURL != "" {
		base = strings.TrimRight(req.ReturnURL, "/")
	}

	portalURL, err := h.stripe.CreatePortalSession(ctx, req.CustomerID, base+"/billing")
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create portal session",
			"customer_id", req.CustomerID,
			"error", err,
		)
		core.Error(w, r, upstreamError(err, "Unable to create customer portal session"))
		return
	}

	core.JSON(w, r, http.StatusOK, types.URLResponse{URL: portalURL})
}

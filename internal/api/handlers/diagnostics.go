package handlers

import (
	"errors"
	"net/http"
	"time"

	"litmus/internal/core"
	"litmus/internal/types"
)

// DiagnosticsResponse is the body of GET test-stripe-connection.
type DiagnosticsResponse struct {
	Timestamp        time.Time            `json:"timestamp"`
	Environment      map[string]string    `json:"environment"`
	MockMode         bool                 `json:"mock_mode"`
	StripeConnection StripeConnectionInfo `json:"stripe_connection"`
}

// StripeConnectionInfo reports the outcome of a live products call.
type StripeConnectionInfo struct {
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	ProductsCount *int   `json:"products_count,omitempty"`
	Error         string `json:"error,omitempty"`
	Code          string `json:"code,omitempty"`
}

const (
	connectionSuccess = "SUCCESS"
	connectionFailed  = "FAILED"
)

// TestStripeConnection handles GET test-stripe-connection. Secrets are shown
// only as masked previews.
func (h *BillingHandler) TestStripeConnection(w http.ResponseWriter, r *http.Request) {
	stripeCfg := h.cfg.Stripe

	resp := DiagnosticsResponse{
		Timestamp: time.Now().UTC(),
		Environment: map[string]string{
			"STRIPE_SECRET_KEY":      presence(stripeCfg.SecretKey),
			"STRIPE_PUBLISHABLE_KEY": presence(types.SecretString(stripeCfg.PublishableKey)),
			"STRIPE_WEBHOOK_SECRET":  presence(stripeCfg.WebhookSecret),
		},
		MockMode:         stripeCfg.MockEnabled(),
		StripeConnection: h.stripeConnection(r),
	}

	core.JSON(w, r, http.StatusOK, resp)
}

func (h *BillingHandler) stripeConnection(r *http.Request) StripeConnectionInfo {
	if !h.stripeReady() {
		return StripeConnectionInfo{
			Status: connectionFailed,
			Error:  "STRIPE_SECRET_KEY is not set",
			Code:   string(types.ErrCodeConfigStripeKey),
		}
	}

	products, err := h.stripe.ListProducts(r.Context(), 1)
	if err != nil {
		h.logger.WarnContext(r.Context(), "stripe diagnostics call failed", "error", err)

		info := StripeConnectionInfo{Status: connectionFailed, Error: "Stripe request failed"}
		var appErr *types.AppError
		if errors.As(upstreamError(err, "Stripe request failed"), &appErr) {
			info.Error = appErr.Message
			info.Code = string(appErr.Code)
		}
		return info
	}

	count := len(products)
	return StripeConnectionInfo{
		Status:        connectionSuccess,
		Message:       "Successfully connected to Stripe",
		ProductsCount: &count,
	}
}

func presence(s types.SecretString) string {
	if !s.IsSet() {
		return "NOT SET"
	}
	return "SET (" + s.Preview() + ")"
}

package handlers

import (
	"errors"

	"litmus/internal/types"
)

const (
	hintStripeKey     = "Set STRIPE_SECRET_KEY in your environment variables"
	hintStripeAuth    = "Verify STRIPE_SECRET_KEY is correct and not expired. You may need to rotate your key."
	hintStripeInvalid = "Check the request parameters."
	hintStripeNetwork = "Check your internet connection or Stripe service status."
	hintServiceLogs   = "Check the service logs for details."
)

// errStripeNotConfigured is returned by every endpoint that needs a live
// Stripe call when no secret key is available.
var errStripeNotConfigured = types.NewAppError(
	types.ErrCodeConfigStripeKey,
	"Stripe is not configured",
	nil,
).WithDetails("STRIPE_SECRET_KEY environment variable is missing").WithHint(hintStripeKey)

// upstreamError converts a StripeClient failure into the client-facing
// category. generic is the message used when the failure fits no category.
// Internal errors pass through untouched so core.Error masks them.
func upstreamError(err error, generic string) error {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return types.NewAppError(types.ErrCodeUpstreamStripe, generic, err).WithHint(hintServiceLogs)
	}

	switch appErr.Code {
	case types.ErrCodeUpstreamStripeAuth:
		return types.NewAppError(appErr.Code, "Stripe authentication failed", err).
			WithDetails("Invalid API key").
			WithHint(hintStripeAuth)
	case types.ErrCodeUpstreamStripeInvalid:
		return types.NewAppError(appErr.Code, "Invalid Stripe request", err).
			WithDetails(appErr.Details).
			WithHint(hintStripeInvalid)
	case types.ErrCodeUpstreamStripeConnectivity, types.ErrCodeUpstreamUnavailable, types.ErrCodeUpstreamRateLimited:
		return types.NewAppError(types.ErrCodeUpstreamStripeConnectivity, "Cannot connect to Stripe", err).
			WithDetails("Network error").
			WithHint(hintStripeNetwork)
	case types.ErrCodeInternalUnexpected:
		return err
	default:
		return types.NewAppError(types.ErrCodeUpstreamStripe, generic, err).
			WithDetails(appErr.Details).
			WithHint(hintServiceLogs)
	}
}

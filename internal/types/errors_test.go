package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationUnknownPlan,
		Message: "Unknown plan selected",
	}

	expected := "validation_unknown_plan: Unknown plan selected"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}

	withDetails := appErr.WithDetails("gold")
	expected = "validation_unknown_plan: Unknown plan selected (gold)"
	if withDetails.Error() != expected {
		t.Errorf("Error() = %q, want %q", withDetails.Error(), expected)
	}
}

func TestAppErrorErrorsAs(t *testing.T) {
	underlying := errors.New("dial tcp: connection refused")
	appErr := NewAppError(ErrCodeUpstreamStripeConnectivity, "Cannot connect to Stripe", underlying)
	wrapped := fmt.Errorf("checkout failed: %w", appErr)

	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to extract AppError from chain")
	}
	if target.Code != ErrCodeUpstreamStripeConnectivity {
		t.Errorf("Code = %q, want %q", target.Code, ErrCodeUpstreamStripeConnectivity)
	}
	if !errors.Is(wrapped, underlying) {
		t.Error("errors.Is should reach the underlying error through Unwrap")
	}
}

func TestAppErrorWithHintDoesNotMutate(t *testing.T) {
	base := NewAppError(ErrCodeConfigStripeKey, "Stripe is not configured", nil)
	hinted := base.WithHint("Set STRIPE_SECRET_KEY")

	if base.Hint != "" {
		t.Errorf("original Hint mutated to %q", base.Hint)
	}
	if hinted.Hint != "Set STRIPE_SECRET_KEY" {
		t.Errorf("Hint = %q", hinted.Hint)
	}
	if hinted.Code != base.Code || hinted.Message != base.Message {
		t.Error("WithHint must preserve code and message")
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationFreePlan, http.StatusBadRequest},
		{ErrCodeValidationSignature, http.StatusBadRequest},
		{ErrCodeAuthTokenInvalid, http.StatusUnauthorized},
		{ErrCodeNotFoundRoute, http.StatusNotFound},
		{ErrCodeMethodNotAllowed, http.StatusMethodNotAllowed},
		{ErrCodeConfigStripeKey, http.StatusInternalServerError},
		{ErrCodeUpstreamStripeAuth, http.StatusInternalServerError},
		{ErrCodeUpstreamStripeConnectivity, http.StatusInternalServerError},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationUnknownPlan   ErrorCode = "validation_unknown_plan"
	ErrCodeValidationFreePlan      ErrorCode = "validation_free_plan_checkout"
	ErrCodeValidationInvalidEmail  ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidJSON   ErrorCode = "validation_invalid_json"
	ErrCodeValidationSignature     ErrorCode = "validation_webhook_signature"
	ErrCodeValidationPlanDisabled  ErrorCode = "validation_plan_checkout_disabled"
	ErrCodeValidationInvalidReturn ErrorCode = "validation_invalid_return_url"
	ErrCodeValidationInvalidField  ErrorCode = "validation_invalid_field"

	// Auth (401)
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"
	ErrCodeAuthTokenExpired ErrorCode = "auth_token_expired"

	// Not Found (404)
	ErrCodeNotFoundUser         ErrorCode = "not_found_user"
	ErrCodeNotFoundSubscription ErrorCode = "not_found_subscription"
	ErrCodeNotFoundRoute        ErrorCode = "not_found_route"

	// Method (405)
	ErrCodeMethodNotAllowed ErrorCode = "method_not_allowed"

	// Configuration (500)
	ErrCodeConfigStripeKey     ErrorCode = "config_stripe_secret_missing"
	ErrCodeConfigWebhookSecret ErrorCode = "config_webhook_secret_missing"
	ErrCodeConfigUserStore     ErrorCode = "config_user_store_missing"

	// Upstream (500)
	ErrCodeUpstreamStripeAuth         ErrorCode = "upstream_stripe_authentication"
	ErrCodeUpstreamStripeInvalid      ErrorCode = "upstream_stripe_invalid_request"
	ErrCodeUpstreamStripeConnectivity ErrorCode = "upstream_stripe_connectivity"
	ErrCodeUpstreamStripe             ErrorCode = "upstream_stripe_error"
	ErrCodeUpstreamUserStore          ErrorCode = "upstream_user_store_error"
	ErrCodeUpstreamRateLimited        ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamUnavailable        ErrorCode = "upstream_unavailable"

	// Internal (500)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Configuration and upstream failures are reported as 500 so browser clients
// see a single server-side failure class with a remediation hint.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "method_"):
		return http.StatusMethodNotAllowed
	case strings.HasPrefix(s, "config_"),
		strings.HasPrefix(s, "upstream_"),
		strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type used throughout the service.
// Message becomes the "error" field of the response body; Details and Hint are
// optional human-readable elaborations rendered as "details" and "hint".
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Hint    string    `json:"hint,omitempty"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error carrying the given details text.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithHint returns a copy of the error carrying the given remediation hint.
func (e *AppError) WithHint(hint string) *AppError {
	cp := *e
	cp.Hint = hint
	return &cp
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

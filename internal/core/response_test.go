package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"litmus/internal/types"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body is not an error response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestJSON_WritesStatusAndBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	JSON(rec, req, http.StatusCreated, map[string]string{"url": "https://x"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.String() != `{"url":"https://x"}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestJSON_MarshalFailureFallsBackTo500(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	JSON(rec, req, http.StatusOK, map[string]any{"bad": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("code = %s", resp.Code)
	}
}

func TestError_AppErrorRendersAllFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/checkout-session", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req_1"))
	rec := httptest.NewRecorder()

	appErr := types.NewAppError(types.ErrCodeConfigStripeKey, "Stripe is not configured", nil).
		WithDetails("STRIPE_SECRET_KEY is missing").
		WithHint("Set STRIPE_SECRET_KEY in your environment variables")
	Error(rec, req, fmt.Errorf("checkout: %w", appErr))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error != "Stripe is not configured" {
		t.Errorf("error = %q", resp.Error)
	}
	if resp.Details != "STRIPE_SECRET_KEY is missing" {
		t.Errorf("details = %q", resp.Details)
	}
	if resp.Hint != "Set STRIPE_SECRET_KEY in your environment variables" {
		t.Errorf("hint = %q", resp.Hint)
	}
	if resp.Code != string(types.ErrCodeConfigStripeKey) || resp.RequestID != "req_1" {
		t.Errorf("code/request_id = %s/%s", resp.Code, resp.RequestID)
	}
}

func TestError_OmitsEmptyOptionalFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()

	Error(rec, req, types.NewAppError(types.ErrCodeValidationMissingField, "Plan is required", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "details") || strings.Contains(body, "hint") {
		t.Errorf("expected no details/hint keys, got %s", body)
	}
}

func TestError_GenericErrorDoesNotLeak(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	Error(rec, req, errors.New("pq: password authentication failed for user admin"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Errorf("internal error leaked: %s", rec.Body.String())
	}
	if resp := decodeError(t, rec); resp.Error != "Internal server error" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Plan string `json:"plan"`
		Qty  int    `json:"qty"`
	}

	tests := []struct {
		name        string
		body        string
		wantErr     bool
		wantDetails string
	}{
		{name: "valid", body: `{"plan":"premium"}`},
		{name: "unknown fields tolerated", body: `{"plan":"premium","extra":true}`},
		{name: "empty", body: ``, wantErr: true, wantDetails: "Request body must not be empty"},
		{name: "syntax", body: `{"plan":`, wantErr: true},
		{name: "type mismatch", body: `{"qty":"two"}`, wantErr: true, wantDetails: "Invalid value for field qty"},
		{name: "two values", body: `{"plan":"a"}{"plan":"b"}`, wantErr: true, wantDetails: "Request body must contain a single JSON object"},
		{name: "too large", body: `{"plan":"` + strings.Repeat("a", maxRequestBodySize) + `"}`, wantErr: true, wantDetails: "Request body must not exceed 1MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			var dst payload
			err := DecodeJSON(rec, req, &dst)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %v", err)
			}
			if appErr.Code != types.ErrCodeValidationInvalidJSON {
				t.Errorf("code = %s", appErr.Code)
			}
			if tt.wantDetails != "" && appErr.Details != tt.wantDetails {
				t.Errorf("details = %q, want %q", appErr.Details, tt.wantDetails)
			}
		})
	}
}

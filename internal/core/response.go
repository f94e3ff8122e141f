package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"litmus/internal/types"
)

// maxRequestBodySize is the maximum allowed size of a JSON request body (1 MB).
const maxRequestBodySize = 1 << 20

// APIErrorResponse is the body of every error response. Error is the
// human-readable summary; Details and Hint are optional elaborations.
type APIErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Hint      string `json:"hint,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// JSON writes data as a JSON response with the given status code.
// If marshalling fails, it falls back to a 500 error response.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(APIErrorResponse{
			Error:     "Failed to encode response",
			Code:      string(types.ErrCodeInternalUnexpected),
			RequestID: types.GetRequestID(r.Context()),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes an error response. A *types.AppError anywhere in the chain
// determines the status and body; any other error becomes a generic 500 so
// that internal details never reach the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, r, appErr.HTTPStatus(), APIErrorResponse{
			Error:     appErr.Message,
			Details:   appErr.Details,
			Hint:      appErr.Hint,
			Code:      string(appErr.Code),
			RequestID: requestID,
		})
		return
	}

	JSON(w, r, http.StatusInternalServerError, APIErrorResponse{
		Error:     "Internal server error",
		Code:      string(types.ErrCodeInternalUnexpected),
		RequestID: requestID,
	})
}

// DecodeJSON reads a single JSON value from the request body into dst.
// Unknown fields are tolerated; the browser client sends extra keys.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}
	if dec.More() {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"Invalid JSON body", nil).WithDetails("Request body must contain a single JSON object")
	}
	return nil
}

func mapDecodeError(err error) *types.AppError {
	base := types.NewAppError(types.ErrCodeValidationInvalidJSON, "Invalid JSON body", err)

	var maxBytesErr *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &maxBytesErr):
		return base.WithDetails("Request body must not exceed 1MB")
	case errors.As(err, &syntaxErr):
		return base.WithDetails("Malformed JSON in request body")
	case errors.As(err, &typeErr):
		return base.WithDetails("Invalid value for field " + typeErr.Field)
	case errors.Is(err, io.EOF):
		return base.WithDetails("Request body must not be empty")
	default:
		return base
	}
}

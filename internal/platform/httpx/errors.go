// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared by handlers.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrorBody is the JSON error envelope returned by the API.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

// RespondError maps the shared sentinels to an error envelope. Anything else
// is reported as an internal error without leaking its message.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Error(w, http.StatusNotFound, ErrorBody{Error: "Not found", Details: err.Error(), Code: "not_found"})
	case errors.Is(err, ErrValidation):
		Error(w, http.StatusBadRequest, ErrorBody{Error: "Invalid request", Details: err.Error(), Code: "invalid_request"})
	case errors.Is(err, ErrUnauthorized):
		Error(w, http.StatusUnauthorized, ErrorBody{Error: "Unauthorized", Code: "unauthorized"})
	default:
		Error(w, http.StatusInternalServerError, ErrorBody{Error: "Internal error", Code: "internal"})
	}
}

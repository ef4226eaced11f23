// Package api defines the JSON wire surface of the auction daemon: request
// and response DTOs, structural validation, and the mapping from domain
// errors to HTTP statuses. Handlers validate a request here before touching
// the ledger, so malformed input never reaches an application call.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/oysterpack/oysterpack-smart/ledger"
)

// Error kinds carried in ErrorResponse. Each corresponds to one domain
// error class.
const (
	KindUnauthorized      = "unauthorized"
	KindInvalidState      = "invalid_state"
	KindInvalidArgument   = "invalid_argument"
	KindInsufficientFunds = "insufficient_funds"
	KindNotFound          = "not_found"
	KindInternal          = "internal"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// ErrorKind classifies a domain error.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ledger.ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ledger.ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ledger.ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(kind string) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusForbidden
	case KindInvalidState:
		return http.StatusConflict
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindInsufficientFunds:
		return http.StatusPaymentRequired
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes v as a JSON response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes err as an ErrorResponse with the status its kind maps
// to.
func WriteError(w http.ResponseWriter, err error) {
	kind := ErrorKind(err)
	WriteJSON(w, HTTPStatus(kind), ErrorResponse{Kind: kind, Error: err.Error()})
}

// DecodeRequest decodes the request body into req and validates it.
func DecodeRequest(r *http.Request, req Validator) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return fmt.Errorf("decode request body: %v: %w", err, ledger.ErrInvalidArgument)
	}
	return req.Validate()
}

// Validator is implemented by every request DTO.
type Validator interface {
	Validate() error
}

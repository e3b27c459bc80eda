// Package handlers implements the HTTP handlers of the API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"klee-ai/internal/apperr"
	"klee-ai/internal/contextutil"
	"klee-ai/internal/service"
)

// kindInvalidInput is the kind reported for request validation failures.
const kindInvalidInput = "invalid_input"

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	// Human readable message
	Error string `json:"error"`

	// Stable machine readable kind, e.g. "not_found"
	Kind string `json:"kind"`
}

// statusFor maps an error to its HTTP status and reported kind.
func statusFor(err error) (int, string) {
	if errors.Is(err, service.ErrInvalidInput) {
		return http.StatusBadRequest, kindInvalidInput
	}

	code := apperr.Code(err)
	switch apperr.KindOf(err) {
	case apperr.ErrNotFound:
		return http.StatusNotFound, code
	case apperr.ErrConfig:
		return http.StatusBadRequest, code
	case apperr.ErrConcurrencyExhausted:
		return http.StatusConflict, code
	case apperr.ErrModelLoad, apperr.ErrGeneration:
		return http.StatusBadGateway, code
	default:
		return http.StatusInternalServerError, code
	}
}

// writeServiceError logs err and writes it as a JSON error body.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	logger := contextutil.LoggerFromContext(ctx)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed", "error", err, "kind", kind)
	} else {
		logger.WarnContext(ctx, "request rejected", "error", err, "kind", kind)
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, msg, kind)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message, kind string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message, Kind: kind})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes the request body into v and reports a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		contextutil.LoggerFromContext(r.Context()).WarnContext(r.Context(), "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body", kindInvalidInput)
		return false
	}
	return true
}

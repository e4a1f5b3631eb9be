// Package handler contains the HTTP handlers of the grading API.
//
// Handlers parse the request, call into the executor and write JSON. They
// hold no grading logic of their own.
package handler

// RESPONSE HELPERS:
// Execution outcomes are always an executor.Result. Everything else the API
// can fail with (health, auth, rate limits) uses ErrorResponse:
//   {"error": "unavailable", "message": "sandbox engine unreachable"}

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the error format for non-execution failures.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "unavailable")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be set before the body: once Encode writes, the
// header is gone.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all that is left is to log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// WriteError sends an ErrorResponse. Middleware uses it too, so every
// non-execution failure has the same shape.
func WriteError(w http.ResponseWriter, status int, errorType, message string) {
	writeJSON(w, status, ErrorResponse{Error: errorType, Message: message})
}

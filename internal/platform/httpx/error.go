// Package httpx writes storefront JSON responses and the shared error envelope:
//
//	{"error": "<code>", "message": "...", "status": 404, "request_id": "...", "trace_id": "..."}
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/strideline/storefront/internal/platform/requestctx"
)

const (
	codeLimit    = 80
	messageLimit = 512
)

// Error is an API failure with a machine-readable code. Details are merged into the envelope.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

// NewError builds an Error with single-line, length-capped code and message. Status 0 means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Code: singleLine(code, codeLimit), Message: singleLine(message, messageLimit), Status: status}
}

// BadRequest rejects malformed input.
func BadRequest(code, message string) Error {
	return NewError(code, message, http.StatusBadRequest)
}

// Conflict rejects a request that collides with one still in progress.
func Conflict(code, message string) Error {
	return NewError(code, message, http.StatusConflict)
}

// Unavailable reports a dependency (state storage, cache) that could not serve the request.
func Unavailable(code, message string) Error {
	return NewError(code, message, http.StatusServiceUnavailable)
}

// NotFound is used for missing catalog resources, unsupported locales and unknown routes.
func NotFound(message string) Error {
	if strings.TrimSpace(message) == "" {
		message = "not found"
	}
	return NewError("not_found", message, http.StatusNotFound)
}

// Internal is the generic failure shown to shoppers.
func Internal() Error {
	return NewError("internal_server_error", "something went wrong, try again or go home", http.StatusInternalServerError)
}

// WithDetails returns a copy of e carrying details.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(details))
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

// WriteError writes the envelope, filling request and trace ids from ctx when e lacks them.
// Error responses are never cacheable.
func WriteError(ctx context.Context, w http.ResponseWriter, e Error) {
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}
	if e.RequestID == "" {
		e.RequestID = singleLine(middleware.GetReqID(ctx), codeLimit)
	}
	if e.TraceID == "" {
		e.TraceID = singleLine(requestctx.TraceID(ctx), 64)
	}

	body := make(map[string]any, 5+len(e.Details))
	for k, v := range e.Details {
		body[k] = v
	}
	body["error"] = e.Code
	body["message"] = e.Message
	body["status"] = e.Status
	if e.RequestID != "" {
		body["request_id"] = e.RequestID
	}
	if e.TraceID != "" {
		body["trace_id"] = e.TraceID
	}

	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, e.Status, body)
}

// WriteJSON encodes payload with status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func singleLine(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}

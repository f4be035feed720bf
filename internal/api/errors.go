// Package api provides the studiocast HTTP control surface and its
// standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/studiocast/internal/broadcast"
	"github.com/onnwee/studiocast/internal/livekit"
	"github.com/onnwee/studiocast/internal/middleware"
	"github.com/onnwee/studiocast/internal/studio"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeConflict indicates a conflict with the current state.
	ErrCodeConflict = "conflict"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeMethodNotAllowed indicates the route exists but not for this method.
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// ErrCodeCapacityExceeded indicates a role's participant limit was reached.
	ErrCodeCapacityExceeded = "capacity_exceeded"

	// ErrCodeInvalidState indicates the session cannot perform the operation in its current state.
	ErrCodeInvalidState = "invalid_state"

	// ErrCodeNoConnectedHost indicates go-live was attempted without a connected host.
	ErrCodeNoConnectedHost = "no_connected_host"

	// ErrCodeTransport indicates the media relay failed or timed out.
	ErrCodeTransport = "transport_error"

	// ErrCodeInitialization indicates the session could not acquire its media transport.
	ErrCodeInitialization = "initialization_failed"

	// ErrCodePermissionDenied indicates audio input permission was refused.
	ErrCodePermissionDenied = "permission_denied"

	// ErrCodeDeviceNotFound indicates no audio input device is available.
	ErrCodeDeviceNotFound = "device_not_found"

	// ErrCodeSessionNotFound indicates no open studio session exists for the broadcast.
	ErrCodeSessionNotFound = "session_not_found"

	// ErrCodeParticipantNotFound indicates the participant is not in the session.
	ErrCodeParticipantNotFound = "participant_not_found"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response and records code for
// the logging middleware.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// Example:
//
//	WriteError(w, r.Context(), http.StatusNotFound, api.ErrCodeSessionNotFound, "Studio session not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.SetErrorCode(ctx, code)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeNotFound, ErrCodeSessionNotFound, ErrCodeParticipantNotFound:
		return http.StatusNotFound
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeConflict, ErrCodeCapacityExceeded, ErrCodeInvalidState, ErrCodeNoConnectedHost:
		return http.StatusConflict
	case ErrCodeDeviceNotFound:
		return http.StatusUnprocessableEntity
	case ErrCodeTransport, ErrCodeInitialization:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorCode classifies a domain error. The second result is false for
// errors that have no client-facing meaning.
func errorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, studio.ErrCapacityExceeded):
		return ErrCodeCapacityExceeded, true
	case errors.Is(err, studio.ErrNoConnectedHost):
		return ErrCodeNoConnectedHost, true
	case errors.Is(err, studio.ErrInvalidState), errors.Is(err, studio.ErrSessionDisposed):
		return ErrCodeInvalidState, true
	case errors.Is(err, studio.ErrSessionNotFound):
		return ErrCodeSessionNotFound, true
	case errors.Is(err, studio.ErrParticipantNotFound):
		return ErrCodeParticipantNotFound, true
	case errors.Is(err, studio.ErrParticipantExists):
		return ErrCodeConflict, true
	case errors.Is(err, studio.ErrInvalidConfig),
		errors.Is(err, studio.ErrInvalidRole),
		errors.Is(err, studio.ErrInvalidConnectionState),
		errors.Is(err, broadcast.ErrInvalidStatus),
		errors.Is(err, broadcast.ErrMissingID):
		return ErrCodeValidation, true
	case errors.Is(err, studio.ErrPermissionDenied):
		return ErrCodePermissionDenied, true
	case errors.Is(err, studio.ErrDeviceNotFound):
		return ErrCodeDeviceNotFound, true
	case errors.Is(err, studio.ErrInitialization):
		return ErrCodeInitialization, true
	case errors.Is(err, studio.ErrTransport),
		errors.Is(err, livekit.ErrRoomNotFound),
		errors.Is(err, livekit.ErrTransportClosed),
		errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTransport, true
	case errors.Is(err, broadcast.ErrBroadcastNotFound):
		return ErrCodeNotFound, true
	}
	return "", false
}

// writeDomainError maps err onto the error envelope. Unclassified errors are
// logged and reported as internal errors without their text.
func writeDomainError(w http.ResponseWriter, ctx context.Context, err error) {
	code, ok := errorCode(err)
	if !ok {
		slog.ErrorContext(ctx, "unhandled studio error", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}
	WriteError(w, ctx, StatusCodeMapping(code), code, err.Error())
}

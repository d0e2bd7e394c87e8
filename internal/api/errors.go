package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/flashcue-core/internal/flash"
	"github.com/nerrad567/flashcue-core/internal/platform"
	"github.com/nerrad567/flashcue-core/internal/session"
	"github.com/nerrad567/flashcue-core/internal/subscription"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeUpstream       = "upstream_failure"
	ErrCodeQueueFull      = "queue_full"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// domainStatus maps a domain sentinel to its HTTP status and code.
// ok is false for errors with no mapping.
func domainStatus(err error) (status int, code string, ok bool) {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, subscription.ErrConditionNotFound),
		errors.Is(err, subscription.ErrSessionNotFound):
		return http.StatusNotFound, ErrCodeNotFound, true

	case errors.Is(err, session.ErrAlreadyConnected),
		errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrTargetExists):
		return http.StatusConflict, ErrCodeConflict, true

	case errors.Is(err, session.ErrConnectionFailed),
		errors.Is(err, subscription.ErrSubscriptionFailed):
		return http.StatusBadGateway, ErrCodeUpstream, true

	case errors.Is(err, session.ErrInvalidTarget),
		errors.Is(err, subscription.ErrInvalidCondition),
		errors.Is(err, platform.ErrUnknownCategory),
		errors.Is(err, flash.ErrInvalidRequest):
		return http.StatusBadRequest, ErrCodeValidation, true

	case errors.Is(err, flash.ErrQueueFull):
		return http.StatusTooManyRequests, ErrCodeQueueFull, true

	case errors.Is(err, flash.ErrExecutorClosed):
		return http.StatusServiceUnavailable, ErrCodeUnavailable, true
	}
	return 0, "", false
}

// writeDomainError writes the mapped response for err, or a 500 carrying
// fallback when err has no mapping. Unmapped errors are logged.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if status, code, ok := domainStatus(err); ok {
		writeError(w, status, code, err.Error())
		return
	}
	s.logger.Error(fallback,
		"error", err,
		"path", r.URL.Path,
		"request_id", requestIDFrom(r.Context()),
	)
	writeInternalError(w, fallback)
}

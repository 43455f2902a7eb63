package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-twin/internal/gateway"
	"github.com/nerrad567/gray-twin/internal/history"
	"github.com/nerrad567/gray-twin/internal/intake"
	"github.com/nerrad567/gray-twin/internal/notify"
	"github.com/nerrad567/gray-twin/internal/scope"
	"github.com/nerrad567/gray-twin/internal/snapshot"
	"github.com/nerrad567/gray-twin/internal/twin"
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
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeUnavailable    = "service_unavailable"
	ErrCodeTimeout        = "timeout"
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

// writeUnavailable writes a 503 error response.
func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// errorStatus maps a twin, gateway or intake error to an HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, twin.ErrProviderNotFound),
		errors.Is(err, twin.ErrServiceNotFound),
		errors.Is(err, twin.ErrResourceNotFound):
		return http.StatusNotFound, ErrCodeNotFound

	case errors.Is(err, twin.ErrModelConflict),
		errors.Is(err, twin.ErrTypeConflict),
		errors.Is(err, twin.ErrProviderExists):
		return http.StatusConflict, ErrCodeConflict

	case errors.Is(err, twin.ErrTypeMismatch),
		errors.Is(err, twin.ErrInvalidName),
		errors.Is(err, twin.ErrInvalidKind),
		errors.Is(err, twin.ErrImplicitNotAllowed),
		errors.Is(err, intake.ErrMissingField),
		errors.Is(err, intake.ErrInvalidPayload),
		errors.Is(err, intake.ErrEmptyBatch),
		errors.Is(err, snapshot.ErrInvalidLevel),
		errors.Is(err, notify.ErrInvalidPattern),
		errors.Is(err, history.ErrPathRequired):
		return http.StatusBadRequest, ErrCodeValidation

	case errors.Is(err, twin.ErrNotWritable),
		errors.Is(err, twin.ErrNotReadable):
		return http.StatusMethodNotAllowed, ErrCodeMethodNotAllow

	case errors.Is(err, twin.ErrAdminService):
		return http.StatusForbidden, ErrCodeForbidden

	case errors.Is(err, gateway.ErrGatewayStopped),
		errors.Is(err, gateway.ErrQueueFull),
		errors.Is(err, scope.ErrInvalidState):
		return http.StatusServiceUnavailable, ErrCodeUnavailable

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// writeTwinError writes the response for an error returned by the twin core.
func (s *Server) writeTwinError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", requestID(r.Context()),
		)
		writeInternalError(w, "internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}

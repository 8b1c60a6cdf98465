// Package apierrors provides structured API error handling.
package apierrors

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ioms/backend/internal/correlation"
	"github.com/ioms/backend/internal/outage"
)

// APIError represents a structured API error.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Write writes the error response.
func (e *APIError) Write(w http.ResponseWriter, r *http.Request) {
	e.RequestID = correlation.FromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	json.NewEncoder(w).Encode(e)
}

// Common errors

func NewBadRequestError(message string) *APIError {
	return &APIError{
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string) *APIError {
	return &APIError{
		Code:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		StatusCode: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

func NewConflictError(message string) *APIError {
	return &APIError{
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewValidationError(message string, details any) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func NewInternalError(message string) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func NewServiceUnavailableError(service string) *APIError {
	return &APIError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    service + " is temporarily unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}
}

func NewRateLimitError() *APIError {
	return &APIError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Rate limit exceeded, please try again later",
		StatusCode: http.StatusTooManyRequests,
	}
}

// FromError converts an error to an APIError. Domain errors keep their
// meaning; anything else becomes a generic 500.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verr *outage.ValidationError
	if errors.As(err, &verr) {
		return NewValidationError("Validation failed", verr.Fields)
	}

	var cerr *outage.ConflictError
	if errors.As(err, &cerr) {
		return &APIError{
			Code:       "CONFLICT_DETECTED",
			Message:    "Outage window conflicts with existing outages",
			StatusCode: http.StatusConflict,
			Details:    cerr.Result,
		}
	}

	switch {
	case errors.Is(err, outage.ErrValidation):
		return NewValidationError(err.Error(), nil)
	case errors.Is(err, outage.ErrInvalidStateTransition):
		return &APIError{
			Code:       "INVALID_STATE_TRANSITION",
			Message:    err.Error(),
			StatusCode: http.StatusConflict,
		}
	case errors.Is(err, outage.ErrSoleApproverConflict):
		return &APIError{
			Code:       "SOLE_APPROVER_CONFLICT",
			Message:    outage.ErrSoleApproverConflict.Error(),
			StatusCode: http.StatusConflict,
		}
	case errors.Is(err, outage.ErrConcurrentModification):
		return &APIError{
			Code:       "CONCURRENT_MODIFICATION",
			Message:    "The outage was changed by someone else, reload and retry",
			StatusCode: http.StatusConflict,
		}
	case errors.Is(err, outage.ErrNotFound):
		return &APIError{Code: "NOT_FOUND", Message: err.Error(), StatusCode: http.StatusNotFound}
	case errors.Is(err, outage.ErrForbidden):
		return NewForbiddenError("You are not allowed to perform this action")
	}

	return NewInternalError("An unexpected error occurred")
}

// WriteError maps err and writes it. Unexpected errors are logged with the
// request's correlation id.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := FromError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"correlation_id", correlation.FromContext(r.Context()),
			"error", err,
		)
	}
	apiErr.Write(w, r)
}

// ErrorHandler is middleware that handles panics and errors.
func ErrorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic recovered", "path", r.URL.Path, "panic", rec)
				NewInternalError("Internal server error").Write(w, r)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

package rest

import (
	"errors"
	"net/http"

	"github.com/vulcan-ci/vulcan/internal/vulcanerr"
)

type APIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func NewAPIErrorWithDetails(code, message string, httpStatus int, details map[string]interface{}) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		HTTPStatus: httpStatus,
	}
}

var (
	ErrBadRequest       = NewAPIError("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrUnauthorized     = NewAPIError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrForbidden        = NewAPIError("FORBIDDEN", "Access denied", http.StatusForbidden)
	ErrNotFound         = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrConflict         = NewAPIError("CONFLICT", "Resource conflict", http.StatusConflict)
	ErrValidationFailed = NewAPIError("VALIDATION_FAILED", "Validation failed", http.StatusBadRequest)
	ErrInternalServer   = NewAPIError("INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrInvalidJSON      = NewAPIError("INVALID_JSON", "Invalid JSON in request body", http.StatusBadRequest)
	ErrMissingParameter = NewAPIError("MISSING_PARAMETER", "Required parameter is missing", http.StatusBadRequest)
	ErrInvalidParameter = NewAPIError("INVALID_PARAMETER", "Invalid parameter value", http.StatusBadRequest)
	ErrInvalidID        = NewAPIError("INVALID_ID", "Invalid ID format", http.StatusBadRequest)
)

// TranslateError maps the vulcanerr taxonomy (spec §7) onto HTTP responses:
// validation errors surface their compile position, not-found becomes 404,
// conflicts are reported but are meant to be treated as idempotent no-ops by
// the caller, and anything else falls back to 500.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var compileErr *vulcanerr.CompileError
	if errors.As(err, &compileErr) {
		return NewAPIErrorWithDetails(string(compileErr.Kind), compileErr.Message, http.StatusBadRequest, map[string]interface{}{
			"position": compileErr.Position,
		})
	}

	var notFoundErr *vulcanerr.NotFoundError
	if errors.As(err, &notFoundErr) {
		return NewAPIErrorWithDetails("NOT_FOUND", notFoundErr.Error(), http.StatusNotFound, map[string]interface{}{
			"resource": notFoundErr.Resource,
			"id":       notFoundErr.ID,
		})
	}

	var conflictErr *vulcanerr.ConflictError
	if errors.As(err, &conflictErr) {
		return NewAPIError("CONFLICT", conflictErr.Error(), http.StatusConflict)
	}

	var transientErr *vulcanerr.TransientError
	if errors.As(err, &transientErr) {
		return NewAPIError("TRANSIENT", transientErr.Error(), http.StatusServiceUnavailable)
	}

	var fatalErr *vulcanerr.FatalError
	if errors.As(err, &fatalErr) {
		return NewAPIError("INTERNAL_ERROR", fatalErr.Error(), http.StatusInternalServerError)
	}

	return NewAPIError("INTERNAL_ERROR", "An unexpected error occurred", http.StatusInternalServerError)
}

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// APIError represents a standardized API error response
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Details string    `json:"details,omitempty"`
	Status  int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails adds additional details to an error
func (e *APIError) WithDetails(details string) *APIError {
	e.Details = details
	return e
}

// NotFound creates a NOT_FOUND error
func NotFound(resource string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

// Ambiguous creates an AMBIGUOUS error, used when a structural lookup
// matches more than one record
func Ambiguous(resource string) *APIError {
	return &APIError{
		Code:    ErrAmbiguous,
		Message: fmt.Sprintf("%s matches multiple records", resource),
		Status:  http.StatusConflict,
	}
}

// Unauthorized creates an UNAUTHORIZED error
func Unauthorized(message string) *APIError {
	return &APIError{
		Code:    ErrUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// Forbidden creates a FORBIDDEN error
func Forbidden(message string) *APIError {
	return &APIError{
		Code:    ErrForbidden,
		Message: message,
		Status:  http.StatusForbidden,
	}
}

// InvalidState creates an INVALID_STATE error
func InvalidState(message string) *APIError {
	return &APIError{
		Code:    ErrInvalidState,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// StoreUnavailable creates a STORE_UNAVAILABLE error wrapping a backend failure
func StoreUnavailable(err error) *APIError {
	apiErr := &APIError{
		Code:    ErrStoreUnavailable,
		Message: "document store is temporarily unavailable",
		Status:  http.StatusServiceUnavailable,
	}
	if err != nil {
		apiErr.Details = err.Error()
	}
	return apiErr
}

// ValidationError creates a VALIDATION_ERROR
func ValidationError(field, message string) *APIError {
	return &APIError{
		Code:    ErrValidation,
		Message: message,
		Field:   field,
		Status:  http.StatusUnprocessableEntity,
	}
}

// BadRequest creates a BAD_REQUEST error
func BadRequest(message string) *APIError {
	return &APIError{
		Code:    ErrBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// InternalError creates an INTERNAL_ERROR
func InternalError(message string) *APIError {
	return &APIError{
		Code:    ErrInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

// AsAPIError unwraps err to an *APIError, or wraps it as an internal error
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}
	return InternalError(err.Error())
}

// Is reports whether err carries the given error code
func Is(err error, code ErrorCode) bool {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

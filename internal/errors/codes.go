package errors

import "net/http"

// ErrorCode represents the type of error
type ErrorCode string

const (
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrAmbiguous        ErrorCode = "AMBIGUOUS"
	ErrUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrForbidden        ErrorCode = "FORBIDDEN"
	ErrInvalidState     ErrorCode = "INVALID_STATE"
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrValidation       ErrorCode = "VALIDATION_ERROR"
	ErrBadRequest       ErrorCode = "BAD_REQUEST"
	ErrInternalError    ErrorCode = "INTERNAL_ERROR"
)

// StatusCodeMap maps ErrorCode to HTTP status code
var StatusCodeMap = map[ErrorCode]int{
	ErrNotFound:         http.StatusNotFound,
	ErrAmbiguous:        http.StatusConflict,
	ErrUnauthorized:     http.StatusUnauthorized,
	ErrForbidden:        http.StatusForbidden,
	ErrInvalidState:     http.StatusConflict,
	ErrStoreUnavailable: http.StatusServiceUnavailable,
	ErrValidation:       http.StatusUnprocessableEntity,
	ErrBadRequest:       http.StatusBadRequest,
	ErrInternalError:    http.StatusInternalServerError,
}

// StatusCode returns the HTTP status code for this error code
func (e ErrorCode) StatusCode() int {
	if code, ok := StatusCodeMap[e]; ok {
		return code
	}
	return http.StatusInternalServerError
}

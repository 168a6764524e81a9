package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application.
// Every public error kind of the HTTP surface has exactly one sentinel.
var (
	ErrNotFound          = new(ErrCodeNotFound, "resource not found")
	ErrInsufficientQuota = new(ErrCodeInsufficientQuota, "insufficient quota")
	ErrUnauthorized      = new(ErrCodeUnauthorized, "unauthorized")
	ErrValidation        = new(ErrCodeValidation, "validation error")
	ErrConflict          = new(ErrCodeConflict, "conflict")
	ErrNotImplemented    = new(ErrCodeNotImplemented, "not implemented")
	ErrInternal          = new(ErrCodeInternal, "internal error")
	ErrHTTPClient        = new(ErrCodeInternal, "http client error")
	ErrDatabase          = new(ErrCodeInternal, "database error")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrNotFound:          http.StatusNotFound,
		ErrInsufficientQuota: http.StatusBadRequest,
		ErrUnauthorized:      http.StatusForbidden,
		ErrValidation:        http.StatusBadRequest,
		ErrConflict:          http.StatusConflict,
		ErrNotImplemented:    http.StatusNotImplemented,
		ErrHTTPClient:        http.StatusInternalServerError,
		ErrDatabase:          http.StatusInternalServerError,
		ErrInternal:          http.StatusInternalServerError,
	}

	// ordered for deterministic kind resolution
	sentinels = []*InternalError{
		ErrNotFound,
		ErrInsufficientQuota,
		ErrUnauthorized,
		ErrValidation,
		ErrConflict,
		ErrNotImplemented,
		ErrHTTPClient,
		ErrDatabase,
		ErrInternal,
	}
)

const (
	ErrCodeNotFound          = "item_not_found"
	ErrCodeInsufficientQuota = "insufficient_quota"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeValidation        = "validation_error"
	ErrCodeConflict          = "conflict"
	ErrCodeNotImplemented    = "not_implemented"
	ErrCodeInternal          = "internal"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e == t
}

// new creates a new InternalError sentinel
func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

// New creates a new InternalError with the given code and message
func New(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInsufficientQuota checks if an error is an insufficient quota error
func IsInsufficientQuota(err error) bool {
	return errors.Is(err, ErrInsufficientQuota)
}

// IsUnauthorized checks if an error is an unauthorized error
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotImplemented checks if an error is a not implemented error
func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}

// HTTPStatusFromErr resolves the HTTP status for an error based on the
// sentinel it is marked with
func HTTPStatusFromErr(err error) int {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return statusCodeMap[sentinel]
		}
	}
	return http.StatusInternalServerError
}

// KindFromErr resolves the public error kind slug for an error
func KindFromErr(err error) string {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Code
		}
	}
	return ErrCodeInternal
}

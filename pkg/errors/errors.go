package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"
)

// Error codes surfaced to clients
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeMessageNotSent   = "MESSAGE_NOT_SENT"
	CodeMarkReadFailed   = "MARK_READ_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeForbidden        = "FORBIDDEN"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL_ERROR"
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Stack      string `json:"-"`
	Cause      error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// WithCause records the underlying error without exposing it to clients
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// NewError creates a new application error
func NewError(statusCode int, code string, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Stack:      string(debug.Stack()),
	}
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(code string, message string) *AppError {
	return NewError(http.StatusBadRequest, code, message)
}

// NewUnauthorizedError creates a 401 Unauthorized error
func NewUnauthorizedError(code string, message string) *AppError {
	return NewError(http.StatusUnauthorized, code, message)
}

// NewForbiddenError creates a 403 Forbidden error
func NewForbiddenError(code string, message string) *AppError {
	return NewError(http.StatusForbidden, code, message)
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(code string, message string) *AppError {
	return NewError(http.StatusNotFound, code, message)
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(code string, message string) *AppError {
	return NewError(http.StatusConflict, code, message)
}

// NewTooManyRequestsError creates a 429 error
func NewTooManyRequestsError(code string, message string) *AppError {
	return NewError(http.StatusTooManyRequests, code, message)
}

// NewInternalServerError creates a 500 Internal Server Error
func NewInternalServerError(code string, message string) *AppError {
	return NewError(http.StatusInternalServerError, code, message)
}

// NewServiceUnavailableError creates a 503 error
func NewServiceUnavailableError(code string, message string) *AppError {
	return NewError(http.StatusServiceUnavailable, code, message)
}

// NewValidationError rejects malformed input before any processing
func NewValidationError(message string) *AppError {
	return NewBadRequestError(CodeValidationFailed, message)
}

// NewMessageNotSentError reports a failed send without leaking the cause
func NewMessageNotSentError(cause error) *AppError {
	return NewServiceUnavailableError(CodeMessageNotSent, "message not sent, retry").WithCause(cause)
}

// NewMarkReadFailedError reports a failed read acknowledgment
func NewMarkReadFailedError(cause error) *AppError {
	return NewServiceUnavailableError(CodeMarkReadFailed, "could not mark conversation read, retry").WithCause(cause)
}

// Is checks if the target error is of type AppError
func Is(err error, target *AppError) bool {
	appErr, ok := As(err)
	if !ok {
		return false
	}
	return appErr.Code == target.Code
}

// HasCode reports whether err carries the given AppError code
func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

package errors

import (
	stderrors "errors"
	"net/http"
)

// As finds the first AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromError converts err to an AppError. Errors that are not AppErrors
// become internal errors that keep err only as the logged cause.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := As(err); ok {
		return appErr
	}

	return NewInternalServerError(CodeInternal, "internal error").WithCause(err)
}

// GetStatusCode extracts the HTTP status code from an AppError, returns 500 if not an AppError
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}


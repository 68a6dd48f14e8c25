// Package apperr defines the error taxonomy shared by the portal's domain
// services and classified at the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks caller mistakes: empty message content, malformed
	// ids, unknown notification types. Never retried automatically.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks references to sessions, alerts, notifications or
	// deliveries that do not exist.
	ErrNotFound = errors.New("not found")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrNotFound}, args...)...)
}

// HTTPStatus maps a domain error to the status code handlers should return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Package apperr holds the error kinds shared by every service and the HTTP
// status each one maps to.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrUnprocessable        = errors.New("unprocessable")
	ErrUpstream             = errors.New("upstream service unavailable")
)

// Status returns the HTTP status for err by walking its wrap chain.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrConfirmationRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, ErrUnprocessable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Validation wraps msg as a validation failure.
func Validation(msg string) error {
	return &kindError{kind: ErrValidation, msg: msg}
}

// Forbidden wraps msg as a permission failure.
func Forbidden(msg string) error {
	return &kindError{kind: ErrForbidden, msg: msg}
}

// NotFound wraps msg as a missing-resource failure.
func NotFound(msg string) error {
	return &kindError{kind: ErrNotFound, msg: msg}
}

// kindError keeps the human message as Error() while matching its kind.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// New returns an error with message msg that matches kind.
func New(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

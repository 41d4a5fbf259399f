// Package apperror defines the error taxonomy shared by services, stores and
// handlers. Every failure in the sync layer is recoverable and representable
// as one of these values or a wrapped remote error.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrAuthorization = errors.New("not authorized")
	ErrValidation    = errors.New("validation failed")
	ErrMissingScope  = errors.New("missing scope")
	ErrNotFound      = errors.New("not found")
	ErrBusy          = errors.New("operation in progress")
)

type AppError struct {
	Err     error  // sentinel
	Message string // user-facing message
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Unauthorized rejects an action the acting member may not perform.
func Unauthorized(message string) *AppError {
	return &AppError{Err: ErrAuthorization, Message: message}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{Err: ErrValidation, Message: message, Field: field}
}

// MissingScope reports a mutation attempted with no household or user selected.
func MissingScope(what string) *AppError {
	return &AppError{Err: ErrMissingScope, Message: fmt.Sprintf("no %s selected", what)}
}

func NotFound(resource, id string) *AppError {
	return &AppError{Err: ErrNotFound, Message: fmt.Sprintf("%s not found with id %s", resource, id)}
}

func Busy(message string) *AppError {
	return &AppError{Err: ErrBusy, Message: message}
}

// IsLocal reports whether err was raised locally, before any remote call.
func IsLocal(err error) bool {
	return errors.Is(err, ErrAuthorization) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrMissingScope) ||
		errors.Is(err, ErrBusy)
}

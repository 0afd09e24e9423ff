// Package services implements the admission workflow and the message service.
// Services coordinate repositories, enforce authorization on every call and
// translate storage outcomes into the error taxonomy below. Handlers map that
// taxonomy to transport status codes; they never inspect storage errors.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad input. Nothing was mutated.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden marks a caller without rights, or a target not in the
	// expected state. It is deliberately uninformative.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks a referenced resource that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable marks a storage failure. The transaction boundary
	// guarantees nothing was partially written.
	ErrUnavailable = errors.New("service unavailable")
)

// ValidationError describes which input was rejected. It matches ErrValidation
// with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// unavailable wraps a storage error so it matches ErrUnavailable while keeping
// the cause for logs.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

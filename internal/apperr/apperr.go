// Package apperr defines the error kinds shared across the order lifecycle.
// Domain errors wrap one of these sentinels so callers can classify a failure
// with errors.Is without knowing the concrete error.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a referenced entity does not exist. Not retried.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput means a precondition failed. No mutation was performed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransient means storage or network unavailability. Safe to retry.
	ErrTransient = errors.New("transient failure")
	// ErrMalformedMessage means a queue payload can never be processed.
	ErrMalformedMessage = errors.New("malformed message")
)

// Transient marks err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err should be retried by the caller.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

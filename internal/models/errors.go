package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input or a mutation the current state
	// does not allow. Not retryable.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks a write based on a stale read. Retry after re-reading.
	ErrConflict = errors.New("concurrent modification")

	// ErrUnavailable marks a transient store or broker failure. Retry with the
	// same idempotency key.
	ErrUnavailable = errors.New("store unavailable")

	// ErrNotFound marks a missing order, item or table.
	ErrNotFound = errors.New("not found")
)

// ValidationError describes why an input or transition was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) match any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with the kind and id of the missing entity.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

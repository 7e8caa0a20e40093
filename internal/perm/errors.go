package perm

import (
	"errors"
	"fmt"
)

// Common permission errors.
var (
	// ErrInvalidSpec indicates a malformed permission spec. It is
	// returned at guard registration time, never during evaluation.
	ErrInvalidSpec = errors.New("invalid permission spec")

	// ErrNoResolver indicates that a membership cache was constructed
	// without a group resolver.
	ErrNoResolver = errors.New("no group resolver configured")
)

// invalidSpecError wraps ErrInvalidSpec with a reason.
func invalidSpecError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidSpec, fmt.Sprintf(format, args...))
}

// IsInvalidSpec checks if an error is a spec validation error.
func IsInvalidSpec(err error) bool {
	return errors.Is(err, ErrInvalidSpec)
}

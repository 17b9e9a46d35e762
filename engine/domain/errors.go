package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrUnsupported     = errors.New("unsupported document format")
	ErrNotDirectory    = errors.New("not a directory")
	ErrEmptyMessage    = errors.New("message is required")
	ErrMessageTooLong  = errors.New("message too long")
	ErrInvalidLocation = errors.New("invalid location")
)

// ValidationError wraps a sentinel with the offending request field. Value
// is truncated user input, kept for logs only.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Wrapped)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAccountNotFound is returned when a payment account doesn't exist
	ErrAccountNotFound = errors.New("account not found")

	// ErrCategoryNotFound is returned when a category doesn't exist
	ErrCategoryNotFound = errors.New("category not found")

	// ErrUnknownConsumerType is returned when no consumer kind is registered under a name
	ErrUnknownConsumerType = errors.New("unknown consumer type")

	// ErrConsumerClosed is returned by operations on a closed bus consumer
	ErrConsumerClosed = errors.New("consumer closed")
)

// ValidationError reports input that cannot be processed.
type ValidationError struct {
	Operation string
	Problems  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed: %s", e.Operation, strings.Join(e.Problems, "; "))
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

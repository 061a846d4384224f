package domain

import (
	"errors"
	"strings"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrValidation      = errors.New("invalid listing data")
	ErrUnauthorized    = errors.New("not authorized to perform this action")
	ErrUnavailable     = errors.New("remote store unavailable")
)

// ValidationError names every field that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IsRetryable reports whether the caller may retry the failed operation by hand.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

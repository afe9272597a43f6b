package services

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to the HTTP boundary. Handlers classify with errors.Is.
var (
	ErrDuplicateEmail     = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("user account has been deactivated, contact the administrator")
	ErrUnauthenticated    = errors.New("not authorized")
	ErrForbidden          = errors.New("not authorized as admin")
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("invalid input")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

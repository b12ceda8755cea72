package model

import (
	"errors"
	"fmt"
)

// Error kinds reported by the store, index and conversion layers. Returned
// errors wrap exactly one of these; check with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation error")
	ErrPersistence   = errors.New("persistence error")
	ErrConfiguration = errors.New("configuration error")
)

// Validationf returns an ErrValidation with context.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Configurationf returns an ErrConfiguration with context.
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Persistence wraps a durability failure. A nil err yields nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

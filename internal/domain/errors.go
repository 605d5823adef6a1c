package domain

import "github.com/pkg/errors"

var (
	ErrValidation         = errors.New("invalid input")
	ErrUpload             = errors.New("image upload failed")
	ErrOrphanedImage      = errors.New("uploaded image has no product row")
	ErrNotFound           = errors.New("product not found")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrTimeout            = errors.New("backend timeout")
	ErrInvalidFilter      = errors.New("invalid filter")
	ErrInvalidTimestamp   = errors.New("invalid timestamp")
	ErrAuth               = errors.New("incorrect password")
)

// ValidationError names the offending form field so the page can show it inline.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

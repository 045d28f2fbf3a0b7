package auth

import "errors"

var (
	ErrValidation             = errors.New("validation failed")
	ErrConflict               = errors.New("account already exists")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrNotVerified            = errors.New("account not verified")
	ErrAlreadyVerified        = errors.New("account already verified")
	ErrInvalidCode            = errors.New("invalid otp")
	ErrExpired                = errors.New("otp expired")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrRateLimited            = errors.New("rate limited")
	ErrDispatchFailure        = errors.New("email dispatch failed")
	ErrStoreUnavailable       = errors.New("account store unavailable")
	ErrNotFound               = errors.New("account not found")
	ErrConcurrentModification = errors.New("account modified concurrently")
	ErrEmptyPassword          = errors.New("password cannot be empty")
)

// ValidationError is a user-correctable input problem. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

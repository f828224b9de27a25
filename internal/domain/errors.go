package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")

	// ErrDailyLimitReached is returned when the per-owner daily budget
	// for auto-engagement actions has been exhausted. This is a normal
	// user-visible condition, not a system failure.
	ErrDailyLimitReached = errors.New("daily engagement limit reached")
)

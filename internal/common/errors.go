package common

import "errors"

var (
	// Session errors.
	ErrNotAuthenticated = errors.New("not authenticated")

	// Entitlement errors.
	ErrOutOfCredits = errors.New("out of credits")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Validation errors.
	ErrInvalidTarget = errors.New("invalid audit target")

	// Idempotency errors.
	ErrAlreadyActivated = errors.New("subscription already activated")
	ErrActivationLocked = errors.New("subscription activation in progress")
)

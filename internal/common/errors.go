// Package common defines shared constants and sentinel errors used across
// the timesheet server, its HTTP layer and the admin CLI. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Validation errors for malformed payloads (missing arrays, length mismatch).
	ErrValidation = errors.New("validation error")

	// ErrNotEmployee is returned when the signed-in user's email is not among
	// the workspace employees.
	ErrNotEmployee = errors.New("user is not a registered employee")

	// ErrSubmissionInProgress is returned when an identical submission is
	// still being written by another request.
	ErrSubmissionInProgress = errors.New("submission already in progress")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

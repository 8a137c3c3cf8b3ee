// Package common holds the error kinds shared by repositories, services and
// handlers. Callers match them with errors.Is.
package common

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a uniqueness violation (handle or endpoint already taken).
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized marks bad credentials or a missing/invalid/expired token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden marks a role or verification mismatch.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks an unknown entity.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited marks a throttled OTP resend.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidOTP is returned when no unused, unexpired code matches.
	// It is a not-found kind but is reported to clients as a bad request.
	ErrInvalidOTP = fmt.Errorf("invalid or expired otp: %w", ErrNotFound)

	// Token lifecycle errors.
	ErrInvalidToken = fmt.Errorf("invalid token: %w", ErrUnauthorized)
	ErrTokenExpired = fmt.Errorf("token expired: %w", ErrUnauthorized)
)

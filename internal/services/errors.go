package services

import (
	"fmt"

	"pwanotify/internal/common"
)

// Error kinds returned by services; handlers map them to HTTP statuses.
var (
	ErrValidation   = common.ErrValidation
	ErrConflict     = common.ErrConflict
	ErrUnauthorized = common.ErrUnauthorized
	ErrForbidden    = common.ErrForbidden
	ErrNotFound     = common.ErrNotFound
	ErrInvalidOTP   = common.ErrInvalidOTP
	ErrRateLimited  = common.ErrRateLimited

	// ErrInvalidCredentials never says whether the user or the password was wrong.
	ErrInvalidCredentials  = fmt.Errorf("invalid credentials: %w", common.ErrUnauthorized)
	ErrAdminSignupDisabled = fmt.Errorf("admin sign-up is disabled: %w", common.ErrForbidden)
)

// VerificationRequiredError is returned by Login for unverified clients.
// A fresh OTP has already been issued when it is returned.
type VerificationRequiredError struct {
	UserID string
}

func (e *VerificationRequiredError) Error() string {
	return fmt.Sprintf("account %s requires verification", e.UserID)
}

func (e *VerificationRequiredError) Unwrap() error { return common.ErrForbidden }

package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account state errors
	ErrAccountDisabled  = errors.New("account is disabled")
	ErrAccountSuspended = errors.New("account is suspended")

	// Auth flow errors
	ErrRateLimitExceeded = errors.New("too many failed attempts")
	ErrInvalidOTP        = errors.New("invalid one-time code")
	ErrOTPExpired        = errors.New("one-time code expired")

	// MFA errors
	ErrMFAFactorNotFound    = errors.New("mfa factor not found")
	ErrMFAChallengeNotFound = errors.New("mfa challenge not found")
	ErrMFAChallengeExpired  = errors.New("mfa challenge expired")
	ErrMFAInvalidCode       = errors.New("invalid mfa code")
	ErrMFACodeReplayed      = errors.New("mfa code already used")

	// Domain errors
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotParticipant    = errors.New("not a participant of this consultation")
)

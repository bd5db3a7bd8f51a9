package services

import (
	"time"

	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/ratelimit"
	"github.com/BradenHooton/vetconnect/internal/storage"
)

// RateLimitedError is returned while an identifier is locked out.
// It matches models.ErrRateLimitExceeded with errors.Is.
type RateLimitedError struct {
	Message          string
	RemainingSeconds int
	LockedUntil      *time.Time
}

func (e *RateLimitedError) Error() string {
	return e.Message
}

func (e *RateLimitedError) Is(target error) bool {
	return target == models.ErrRateLimitExceeded
}

func rateLimited(message string, status ratelimit.Status) *RateLimitedError {
	return &RateLimitedError{
		Message:          message,
		RemainingSeconds: status.RemainingSeconds,
		LockedUntil:      status.LockedUntil,
	}
}

// CredentialError is a failed sign-in that did not trigger a lockout.
// Warning is set when few attempts remain. It matches models.ErrUnauthorized.
type CredentialError struct {
	Reason  error
	Warning string
}

func (e *CredentialError) Error() string {
	if e.Reason != nil {
		return e.Reason.Error()
	}
	return models.ErrUnauthorized.Error()
}

func (e *CredentialError) Is(target error) bool {
	return target == models.ErrUnauthorized
}

func (e *CredentialError) Unwrap() error {
	return e.Reason
}

// UploadRejectedError is returned when no file of an upload was stored.
// It matches models.ErrBadRequest.
type UploadRejectedError struct {
	Errors []storage.FileError
}

func (e *UploadRejectedError) Error() string {
	if len(e.Errors) > 0 {
		return e.Errors[0].Message
	}
	return "upload failed"
}

func (e *UploadRejectedError) Is(target error) bool {
	return target == models.ErrBadRequest
}

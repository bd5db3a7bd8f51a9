package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in TokenClaims.Type
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	TokenTypeMFA     = "mfa" // short-lived, only accepted by the MFA verify endpoint
)

type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// EmailOTP is a one-time sign-in code delivered by email
type EmailOTP struct {
	ID         string
	Email      string
	CodeHash   string // Bcrypt hash of the code
	Attempts   int
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// IsUsable reports whether the code can still be redeemed at now
func (o *EmailOTP) IsUsable(now time.Time) bool {
	return o.ConsumedAt == nil && now.Before(o.ExpiresAt)
}

package models

import (
	"time"
)

const (
	FactorStatusUnverified = "unverified"
	FactorStatusVerified   = "verified"
)

// MFAFactor is an enrolled TOTP authenticator
type MFAFactor struct {
	ID              string     `json:"id"`
	UserID          string     `json:"-"`
	FriendlyName    string     `json:"friendly_name"`
	SecretEncrypted []byte     `json:"-"` // AES-256-GCM encrypted TOTP secret
	SecretNonce     []byte     `json:"-"` // GCM nonce (12 bytes)
	Status          string     `json:"status"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"` // For replay prevention
	CreatedAt       time.Time  `json:"created_at"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
}

// IsVerified checks if the factor has been confirmed with a first code
func (f *MFAFactor) IsVerified() bool {
	return f.Status == FactorStatusVerified
}

// MFAChallenge is a pending verification against one factor
type MFAChallenge struct {
	ID         string
	FactorID   string
	UserID     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	VerifiedAt *time.Time
}

// IsOpen reports whether the challenge can still be answered at now
func (c *MFAChallenge) IsOpen(now time.Time) bool {
	return c.VerifiedAt == nil && now.Before(c.ExpiresAt)
}

// MFAEnrollment is returned when a new factor is created
type MFAEnrollment struct {
	FactorID string `json:"factor_id"`
	QRCode   string `json:"qr_code"` // PNG data URL
	Secret   string `json:"secret"`  // base32, for manual entry
	URI      string `json:"uri"`
}

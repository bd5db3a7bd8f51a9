package models

import (
	"time"
)

// Roles
const (
	RoleFarmer       = "farmer"
	RolePetOwner     = "pet_owner"
	RoleVeterinarian = "veterinarian"
	RoleAdmin        = "admin"
)

// Account statuses
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusDisabled  = "disabled"
)

type User struct {
	ID                string
	Email             string
	PasswordHash      string // empty for OTP-only accounts
	EmailVerified     bool
	TokenKey          string // Per-user secret for composite token signing
	Role              string
	Status            string
	MFAEnabled        bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PasswordChangedAt *time.Time // Last password change timestamp for token invalidation
}

// IsClient reports whether the role requests consultations rather than serving them
func IsClient(role string) bool {
	return role == RoleFarmer || role == RolePetOwner
}

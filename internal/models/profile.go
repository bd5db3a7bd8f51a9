package models

import (
	"time"
)

// Profile is the public-facing account record created alongside every user
type Profile struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	FullName        string    `json:"full_name"`
	Role            string    `json:"role"`
	Bio             *string   `json:"bio"`
	Location        *string   `json:"location"`
	PhoneNumber     *string   `json:"phone_number"`
	LicenseNumber   *string   `json:"license_number"`
	Specialization  *string   `json:"specialization"`
	ProfileImageURL *string   `json:"profile_image_url"`
	Latitude        *float64  `json:"latitude"`
	Longitude       *float64  `json:"longitude"`
	IsVerified      bool      `json:"is_verified"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ProfileUpdate holds the fields a user may change on their own profile.
// Nil fields are left untouched.
type ProfileUpdate struct {
	FullName       *string
	Bio            *string
	Location       *string
	PhoneNumber    *string
	LicenseNumber  *string
	Specialization *string
	Latitude       *float64
	Longitude      *float64
}

// PublicVet is a veterinarian profile with contact details withheld
type PublicVet struct {
	UserID          string    `json:"user_id"`
	FullName        string    `json:"full_name"`
	Bio             *string   `json:"bio"`
	Location        *string   `json:"location"`
	Specialization  *string   `json:"specialization"`
	ProfileImageURL *string   `json:"profile_image_url"`
	IsVerified      bool      `json:"is_verified"`
	Latitude        *float64  `json:"latitude"`
	Longitude       *float64  `json:"longitude"`
	Online          bool      `json:"online"`
	CreatedAt       time.Time `json:"created_at"`
}

// ToPublicVet strips phone and license numbers from a profile
func (p *Profile) ToPublicVet() PublicVet {
	return PublicVet{
		UserID:          p.UserID,
		FullName:        p.FullName,
		Bio:             p.Bio,
		Location:        p.Location,
		Specialization:  p.Specialization,
		ProfileImageURL: p.ProfileImageURL,
		IsVerified:      p.IsVerified,
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
		CreatedAt:       p.CreatedAt,
	}
}

package models

import (
	"time"
)

// PortfolioItem is a case or credential a veterinarian publishes on their profile
type PortfolioItem struct {
	ID          string    `json:"id"`
	VetID       string    `json:"vet_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Category    *string   `json:"category"`
	ImageURL    *string   `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

package models

import (
	"time"
)

// Consultation statuses
const (
	ConsultationPending    = "pending"
	ConsultationInProgress = "in_progress"
	ConsultationCompleted  = "completed"
	ConsultationCancelled  = "cancelled"
)

// UrgencyLevels lists the accepted urgency_level values
var UrgencyLevels = []string{"low", "medium", "high", "emergency"}

type Consultation struct {
	ID            string     `json:"id"`
	FarmerID      string     `json:"farmer_id"`
	VetID         *string    `json:"vet_id"`
	AnimalID      string     `json:"animal_id"`
	Subject       string     `json:"subject"`
	Description   string     `json:"description"`
	Symptoms      *string    `json:"symptoms"`
	UrgencyLevel  string     `json:"urgency_level"`
	Status        string     `json:"status"`
	ImageURLs     []string   `json:"image_urls"`
	Diagnosis     *string    `json:"diagnosis"`
	TreatmentPlan *string    `json:"treatment_plan"`
	FollowUpNotes *string    `json:"follow_up_notes"`
	ScheduledAt   *time.Time `json:"scheduled_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsParticipant reports whether userID is the requesting owner or the assigned vet
func (c *Consultation) IsParticipant(userID string) bool {
	return c.FarmerID == userID || (c.VetID != nil && *c.VetID == userID)
}

// ConsultationUpdate carries clinical notes and an optional status change
type ConsultationUpdate struct {
	Status        *string
	Diagnosis     *string
	TreatmentPlan *string
	FollowUpNotes *string
	ScheduledAt   *time.Time
}

var consultationTransitions = map[string][]string{
	ConsultationPending:    {ConsultationInProgress, ConsultationCancelled},
	ConsultationInProgress: {ConsultationCompleted, ConsultationCancelled},
}

// CanTransition reports whether a consultation may move from one status to another
func CanTransition(from, to string) bool {
	for _, next := range consultationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DashboardSummary aggregates a user's consultations by status
type DashboardSummary struct {
	Role        string          `json:"role"`
	Counts      map[string]int  `json:"counts"`
	Recent      []*Consultation `json:"recent"`
	PendingPool int             `json:"pending_pool,omitempty"` // unassigned requests, vets only
	AnimalCount int             `json:"animal_count,omitempty"`
}

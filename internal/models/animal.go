package models

import (
	"time"
)

// AnimalTypes lists the accepted animal_type values
var AnimalTypes = []string{"poultry", "cattle", "goat", "sheep", "pig", "dog", "cat", "other"}

type Animal struct {
	ID                 string    `json:"id"`
	OwnerID            string    `json:"owner_id"`
	Name               *string   `json:"name"`
	AnimalType         string    `json:"animal_type"`
	Breed              *string   `json:"breed"`
	AgeYears           *int      `json:"age_years"`
	AgeMonths          *int      `json:"age_months"`
	WeightKg           *float64  `json:"weight_kg"`
	MedicalHistory     *string   `json:"medical_history"`
	VaccinationRecords *string   `json:"vaccination_records"`
	ImageURL           *string   `json:"image_url"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

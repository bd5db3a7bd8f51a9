package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/services"
	"github.com/BradenHooton/vetconnect/internal/storage"
	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AnimalServiceInterface defines the animal operations used by the handler
type AnimalServiceInterface interface {
	List(ctx context.Context, ownerID string) ([]*models.Animal, error)
	Create(ctx context.Context, ownerID string, in services.AnimalInput) (*models.Animal, error)
	Update(ctx context.Context, ownerID, id string, in services.AnimalInput) (*models.Animal, error)
	Delete(ctx context.Context, ownerID, id string) error
	UploadImage(ctx context.Context, ownerID, id string, file storage.File) (*models.Animal, error)
}

// AnimalHandler serves the caller's animals. Every operation is scoped to
// the authenticated owner.
type AnimalHandler struct {
	service        AnimalServiceInterface
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewAnimalHandler(service AnimalServiceInterface, maxUploadBytes int64, logger *slog.Logger) *AnimalHandler {
	return &AnimalHandler{service: service, maxUploadBytes: maxUploadBytes, logger: logger}
}

// AnimalRequest is the body for creating or replacing an animal
type AnimalRequest struct {
	Name               *string  `json:"name" validate:"omitempty,max=255"`
	AnimalType         string   `json:"animal_type" validate:"required"`
	Breed              *string  `json:"breed" validate:"omitempty,max=255"`
	AgeYears           *int     `json:"age_years"`
	AgeMonths          *int     `json:"age_months"`
	WeightKg           *float64 `json:"weight_kg"`
	MedicalHistory     *string  `json:"medical_history"`
	VaccinationRecords *string  `json:"vaccination_records"`
}

func (req AnimalRequest) input() services.AnimalInput {
	return services.AnimalInput{
		Name:               req.Name,
		AnimalType:         req.AnimalType,
		Breed:              req.Breed,
		AgeYears:           req.AgeYears,
		AgeMonths:          req.AgeMonths,
		WeightKg:           req.WeightKg,
		MedicalHistory:     req.MedicalHistory,
		VaccinationRecords: req.VaccinationRecords,
	}
}

// List handles GET /animals
func (h *AnimalHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	animals, err := h.service.List(r.Context(), caller.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, animals)
}

// Create handles POST /animals
func (h *AnimalHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req AnimalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	animal, err := h.service.Create(r.Context(), caller.UserID, req.input())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, animal)
}

// Update handles PUT /animals/{id}
func (h *AnimalHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req AnimalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	animal, err := h.service.Update(r.Context(), caller.UserID, chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, animal)
}

// Delete handles DELETE /animals/{id}
func (h *AnimalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), caller.UserID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadImage handles POST /animals/{id}/image (multipart field "image")
func (h *AnimalHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	file, ok := readSingleImage(w, r, "image", h.maxUploadBytes)
	if !ok {
		return
	}

	animal, err := h.service.UploadImage(r.Context(), caller.UserID, chi.URLParam(r, "id"), file)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, animal)
}

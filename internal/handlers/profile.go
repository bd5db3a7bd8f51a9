package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/storage"
	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
)

// ProfileServiceInterface defines the profile operations used by the handler
type ProfileServiceInterface interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
	Update(ctx context.Context, userID string, upd *models.ProfileUpdate) (*models.Profile, error)
	UploadImage(ctx context.Context, userID string, file storage.File) (*models.Profile, error)
}

// ProfileHandler serves the caller's own profile
type ProfileHandler struct {
	service        ProfileServiceInterface
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewProfileHandler(service ProfileServiceInterface, maxUploadBytes int64, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{service: service, maxUploadBytes: maxUploadBytes, logger: logger}
}

// UpdateProfileRequest holds the editable profile fields. Omitted fields are
// left unchanged.
type UpdateProfileRequest struct {
	FullName       *string  `json:"full_name" validate:"omitempty,min=1,max=255"`
	Bio            *string  `json:"bio" validate:"omitempty,max=2000"`
	Location       *string  `json:"location" validate:"omitempty,max=255"`
	PhoneNumber    *string  `json:"phone_number" validate:"omitempty,max=32"`
	LicenseNumber  *string  `json:"license_number" validate:"omitempty,max=64"`
	Specialization *string  `json:"specialization" validate:"omitempty,max=255"`
	Latitude       *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude      *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

// Get handles GET /profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	profile, err := h.service.Get(r.Context(), caller.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, profile)
}

// Update handles PUT /profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.service.Update(r.Context(), caller.UserID, &models.ProfileUpdate{
		FullName:       req.FullName,
		Bio:            req.Bio,
		Location:       req.Location,
		PhoneNumber:    req.PhoneNumber,
		LicenseNumber:  req.LicenseNumber,
		Specialization: req.Specialization,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, profile)
}

// UploadImage handles POST /profile/image (multipart field "image")
func (h *ProfileHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	file, ok := readSingleImage(w, r, "image", h.maxUploadBytes)
	if !ok {
		return
	}

	profile, err := h.service.UploadImage(r.Context(), caller.UserID, file)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, profile)
}

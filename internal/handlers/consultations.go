package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/vetconnect/internal/apperrors"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/services"
	"github.com/BradenHooton/vetconnect/internal/storage"
	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
	"github.com/go-chi/chi/v5"
)

// ConsultationServiceInterface defines the consultation operations used by the handler
type ConsultationServiceInterface interface {
	Create(ctx context.Context, caller services.Caller, in services.ConsultationInput, files []storage.File) (*services.ConsultationResult, error)
	List(ctx context.Context, caller services.Caller) ([]*models.Consultation, error)
	ListPending(ctx context.Context, caller services.Caller) ([]*models.Consultation, error)
	Get(ctx context.Context, caller services.Caller, id string) (*models.Consultation, error)
	Accept(ctx context.Context, caller services.Caller, id string) (*models.Consultation, error)
	Update(ctx context.Context, caller services.Caller, id string, upd models.ConsultationUpdate) (*models.Consultation, error)
	Dashboard(ctx context.Context, caller services.Caller) (*models.DashboardSummary, error)
}

// ConsultationHandler handles consultation requests and their lifecycle
type ConsultationHandler struct {
	service        ConsultationServiceInterface
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewConsultationHandler(service ConsultationServiceInterface, maxUploadBytes int64, logger *slog.Logger) *ConsultationHandler {
	return &ConsultationHandler{service: service, maxUploadBytes: maxUploadBytes, logger: logger}
}

// CreateConsultationRequest is the JSON form of a new request. Multipart
// submissions carry the same fields plus "images" file parts.
type CreateConsultationRequest struct {
	AnimalID     string  `json:"animal_id" validate:"required"`
	Subject      string  `json:"subject" validate:"required,max=255"`
	Description  string  `json:"description" validate:"required,max=5000"`
	Symptoms     *string `json:"symptoms" validate:"omitempty,max=5000"`
	UrgencyLevel string  `json:"urgency_level" validate:"omitempty,oneof=low medium high emergency"`
}

// UpdateConsultationRequest carries clinical notes and an optional status change
type UpdateConsultationRequest struct {
	Status        *string    `json:"status" validate:"omitempty,oneof=pending in_progress completed cancelled"`
	Diagnosis     *string    `json:"diagnosis" validate:"omitempty,max=5000"`
	TreatmentPlan *string    `json:"treatment_plan" validate:"omitempty,max=5000"`
	FollowUpNotes *string    `json:"follow_up_notes" validate:"omitempty,max=5000"`
	ScheduledAt   *time.Time `json:"scheduled_at"`
}

// Create handles POST /consultations as JSON or multipart/form-data
func (h *ConsultationHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req CreateConsultationRequest
	var files []storage.File
	if isMultipart(r) {
		var err error
		if files, err = readImages(w, r, "images", h.maxUploadBytes, services.MaxConsultationImages); err != nil {
			writeUploadError(w, err, h.maxUploadBytes, "Invalid multipart form")
			return
		}
		req = CreateConsultationRequest{
			AnimalID:     strings.TrimSpace(r.FormValue("animal_id")),
			Subject:      r.FormValue("subject"),
			Description:  r.FormValue("description"),
			Symptoms:     formString(r, "symptoms"),
			UrgencyLevel: strings.TrimSpace(r.FormValue("urgency_level")),
		}
		if err := ValidateRequest(req); err != nil {
			pkghttp.WriteBadRequest(w, apperrors.ValidationMessage(err))
			return
		}
	} else if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Create(r.Context(), caller, services.ConsultationInput{
		AnimalID:     req.AnimalID,
		Subject:      req.Subject,
		Description:  req.Description,
		Symptoms:     req.Symptoms,
		UrgencyLevel: req.UrgencyLevel,
	}, files)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, result)
}

// List handles GET /consultations
func (h *ConsultationHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	list, err := h.service.List(r.Context(), caller)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, list)
}

// ListPending handles GET /consultations/pending (veterinarians only)
func (h *ConsultationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListPending(r.Context(), caller)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, list)
}

// Get handles GET /consultations/{id}
func (h *ConsultationHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, c)
}

// Accept handles POST /consultations/{id}/accept
func (h *ConsultationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	c, err := h.service.Accept(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, c)
}

// Update handles PATCH /consultations/{id}
func (h *ConsultationHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req UpdateConsultationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.Update(r.Context(), caller, chi.URLParam(r, "id"), models.ConsultationUpdate{
		Status:        req.Status,
		Diagnosis:     req.Diagnosis,
		TreatmentPlan: req.TreatmentPlan,
		FollowUpNotes: req.FollowUpNotes,
		ScheduledAt:   req.ScheduledAt,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, c)
}

// Dashboard handles GET /dashboard
func (h *ConsultationHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	summary, err := h.service.Dashboard(r.Context(), caller)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, summary)
}

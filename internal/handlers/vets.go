package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/realtime"
	"github.com/BradenHooton/vetconnect/internal/services"
	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
	"github.com/go-chi/chi/v5"
)

// VetServiceInterface defines the discovery and presence operations used by the handler
type VetServiceInterface interface {
	Search(ctx context.Context, q string) ([]models.PublicVet, error)
	Online() []realtime.Presence
	Get(ctx context.Context, userID string) (*services.VetDetail, error)
	GoOnline(ctx context.Context, userID string, lat, lng *float64) (*realtime.Presence, error)
	GoOffline(ctx context.Context, userID string) error
}

// VetHandler serves vet discovery and HTTP presence updates
type VetHandler struct {
	service VetServiceInterface
	logger  *slog.Logger
}

func NewVetHandler(service VetServiceInterface, logger *slog.Logger) *VetHandler {
	return &VetHandler{service: service, logger: logger}
}

// PresenceRequest optionally carries the vet's live position
type PresenceRequest struct {
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

// Search handles GET /vets?q=
func (h *VetHandler) Search(w http.ResponseWriter, r *http.Request) {
	vets, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, vets)
}

// Online handles GET /vets/online
func (h *VetHandler) Online(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.service.Online())
}

// Get handles GET /vets/{user_id}
func (h *VetHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, detail)
}

// GoOnline handles POST /vets/presence
func (h *VetHandler) GoOnline(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req PresenceRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}

	presence, err := h.service.GoOnline(r.Context(), caller.UserID, req.Latitude, req.Longitude)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, presence)
}

// GoOffline handles DELETE /vets/presence
func (h *VetHandler) GoOffline(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.GoOffline(r.Context(), caller.UserID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

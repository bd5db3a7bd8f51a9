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

// PortfolioServiceInterface defines the portfolio operations used by the handler
type PortfolioServiceInterface interface {
	List(ctx context.Context, vetID string) ([]*models.PortfolioItem, error)
	Create(ctx context.Context, vetID string, in services.PortfolioInput) (*models.PortfolioItem, error)
	Update(ctx context.Context, vetID, id string, in services.PortfolioInput) (*models.PortfolioItem, error)
	Delete(ctx context.Context, vetID, id string) error
	UploadImage(ctx context.Context, vetID, id string, file storage.File) (*models.PortfolioItem, error)
}

// PortfolioHandler manages the calling vet's portfolio. Routes are mounted
// behind a veterinarian role check.
type PortfolioHandler struct {
	service        PortfolioServiceInterface
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewPortfolioHandler(service PortfolioServiceInterface, maxUploadBytes int64, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{service: service, maxUploadBytes: maxUploadBytes, logger: logger}
}

type PortfolioRequest struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
}

func (req PortfolioRequest) input() services.PortfolioInput {
	return services.PortfolioInput{Title: req.Title, Description: req.Description, Category: req.Category}
}

// List handles GET /portfolio
func (h *PortfolioHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	items, err := h.service.List(r.Context(), caller.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, items)
}

// Create handles POST /portfolio
func (h *PortfolioHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req PortfolioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.service.Create(r.Context(), caller.UserID, req.input())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, item)
}

// Update handles PUT /portfolio/{id}
func (h *PortfolioHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req PortfolioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.service.Update(r.Context(), caller.UserID, chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, item)
}

// Delete handles DELETE /portfolio/{id}
func (h *PortfolioHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// UploadImage handles POST /portfolio/{id}/image (multipart field "image")
func (h *PortfolioHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	file, ok := readSingleImage(w, r, "image", h.maxUploadBytes)
	if !ok {
		return
	}

	item, err := h.service.UploadImage(r.Context(), caller.UserID, chi.URLParam(r, "id"), file)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, item)
}

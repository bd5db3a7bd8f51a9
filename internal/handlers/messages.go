package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/vetconnect/internal/models"
	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
	"github.com/go-chi/chi/v5"
)

// MessageServiceInterface defines the messaging operations used by the handler
type MessageServiceInterface interface {
	List(ctx context.Context, userID, consultationID string) ([]*models.Message, error)
	Send(ctx context.Context, userID, consultationID, text string) (*models.Message, error)
	Inbox(ctx context.Context, userID string) ([]*models.Conversation, error)
}

// MessageHandler serves consultation threads and the inbox
type MessageHandler struct {
	service MessageServiceInterface
	logger  *slog.Logger
}

func NewMessageHandler(service MessageServiceInterface, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{service: service, logger: logger}
}

// SendMessageRequest is the body of a new chat message. Length is checked
// by the service after trimming.
type SendMessageRequest struct {
	Message string `json:"message" validate:"required"`
}

// List handles GET /consultations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	messages, err := h.service.List(r.Context(), caller.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, messages)
}

// Send handles POST /consultations/{id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.service.Send(r.Context(), caller.UserID, chi.URLParam(r, "id"), req.Message)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, msg)
}

// Inbox handles GET /messages
func (h *MessageHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	inbox, err := h.service.Inbox(r.Context(), caller.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, inbox)
}

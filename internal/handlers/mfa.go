package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/vetconnect/internal/auth"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/services"
	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
	"github.com/go-chi/chi/v5"
)

// MFAServiceInterface defines the TOTP operations used by the handler
type MFAServiceInterface interface {
	Enroll(ctx context.Context, userID, friendlyName string) (*models.MFAEnrollment, error)
	Challenge(ctx context.Context, userID, factorID string) (*models.MFAChallenge, error)
	Verify(ctx context.Context, userID, factorID, challengeID, code string) error
	ListFactors(ctx context.Context, userID string) ([]models.MFAFactor, error)
	DeleteFactor(ctx context.Context, userID, factorID string) error
}

// MFAHandler handles MFA-related HTTP requests
type MFAHandler struct {
	mfaService  MFAServiceInterface
	authService AuthServiceInterface
	logger      *slog.Logger
}

// NewMFAHandler creates a new MFA handler
func NewMFAHandler(mfaService MFAServiceInterface, authService AuthServiceInterface, logger *slog.Logger) *MFAHandler {
	return &MFAHandler{
		mfaService:  mfaService,
		authService: authService,
		logger:      logger,
	}
}

// EnrollRequest starts TOTP enrollment
type EnrollRequest struct {
	FriendlyName string `json:"friendly_name" validate:"max=255"`
}

// ChallengeRequest opens a verification window on a factor
type ChallengeRequest struct {
	FactorID string `json:"factor_id" validate:"required"`
}

// ChallengeResponse identifies the challenge to answer
type ChallengeResponse struct {
	ChallengeID string    `json:"challenge_id"`
	FactorID    string    `json:"factor_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// VerifyMFARequest answers a challenge with a TOTP code
type VerifyMFARequest struct {
	FactorID    string `json:"factor_id" validate:"required"`
	ChallengeID string `json:"challenge_id" validate:"required"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
}

// VerifyMFAResponse confirms a verification. Session tokens are included
// when the request was made with the MFA token issued at login.
type VerifyMFAResponse struct {
	Verified bool                   `json:"verified"`
	Session  *services.AuthResponse `json:"session,omitempty"`
}

// Enroll handles POST /auth/mfa/enroll
func (h *MFAHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req EnrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	enrollment, err := h.mfaService.Enroll(r.Context(), caller.UserID, req.FriendlyName)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, enrollment)
}

// Challenge handles POST /auth/mfa/challenge
func (h *MFAHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req ChallengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	challenge, err := h.mfaService.Challenge(r.Context(), caller.UserID, req.FactorID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ChallengeResponse{
		ChallengeID: challenge.ID,
		FactorID:    challenge.FactorID,
		ExpiresAt:   challenge.ExpiresAt,
	})
}

// Verify handles POST /auth/mfa/verify. With an access token it confirms
// enrollment; with the login MFA token it also completes sign-in.
func (h *MFAHandler) Verify(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req VerifyMFARequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.mfaService.Verify(r.Context(), claims.UserID, req.FactorID, req.ChallengeID, req.Code); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := VerifyMFAResponse{Verified: true}
	if claims.Type == models.TokenTypeMFA {
		session, err := h.authService.CompleteMFA(r.Context(), claims.UserID)
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
		resp.Session = session
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ListFactors handles GET /auth/mfa/factors
func (h *MFAHandler) ListFactors(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	factors, err := h.mfaService.ListFactors(r.Context(), caller.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, factors)
}

// DeleteFactor handles DELETE /auth/mfa/factors/{id}
func (h *MFAHandler) DeleteFactor(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	if err := h.mfaService.DeleteFactor(r.Context(), caller.UserID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/vetconnect/internal/apperrors"
	"github.com/BradenHooton/vetconnect/internal/auth"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/realtime"
	"github.com/BradenHooton/vetconnect/internal/services"
	pkgauth "github.com/BradenHooton/vetconnect/pkg/auth"
	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
)

// writeServiceError maps an error returned by the services layer onto a
// JSON error response. Lockouts are checked first because they also match
// the credential errors.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var limited *services.RateLimitedError
	var weak *pkgauth.PasswordValidationError
	var rejected *services.UploadRejectedError

	switch {
	case errors.As(err, &limited):
		pkghttp.WriteRateLimited(w, limited.Message, limited.RemainingSeconds, limited.LockedUntil)
	case errors.As(err, &weak):
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "bad_request",
			"Password does not meet requirements", strings.Join(weak.Errors, "; "))
	case errors.As(err, &rejected):
		writeUploadRejected(w, rejected)
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, apperrors.UserMessage(apperrors.Auth("email_exists", http.StatusConflict)))
	case errors.Is(err, models.ErrInvalidTransition):
		pkghttp.WriteConflict(w, clientMessage(err, models.ErrInvalidTransition))
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, clientMessage(err, models.ErrBadRequest))
	case errors.Is(err, models.ErrOTPExpired):
		pkghttp.WriteUnauthorized(w, apperrors.UserMessage(apperrors.Auth("otp_expired", http.StatusUnauthorized)))
	case errors.Is(err, models.ErrInvalidOTP):
		writeCredentialError(w, err, apperrors.UserMessage(apperrors.Auth("invalid_otp", http.StatusUnauthorized)))
	case errors.Is(err, models.ErrMFAChallengeExpired),
		errors.Is(err, models.ErrMFAChallengeNotFound),
		errors.Is(err, models.ErrMFAInvalidCode),
		errors.Is(err, models.ErrMFACodeReplayed):
		writeCredentialError(w, err, "Invalid or expired verification code")
	case errors.Is(err, models.ErrMFAFactorNotFound):
		pkghttp.WriteNotFound(w, "MFA factor not found")
	case errors.Is(err, models.ErrUnauthorized),
		errors.Is(err, models.ErrAccountDisabled),
		errors.Is(err, models.ErrAccountSuspended):
		// Account state is not disclosed
		writeCredentialError(w, err, "Authentication failed")
	case errors.Is(err, models.ErrNotParticipant),
		errors.Is(err, models.ErrForbidden),
		errors.Is(err, realtime.ErrNotAllowed):
		pkghttp.WriteForbidden(w, clientMessage(err, models.ErrForbidden))
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	default:
		logger.Error("request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, apperrors.UserMessage(err))
	}
}

// CredentialErrorResponse is the 401 body of a failed sign-in. Warning is
// set when the next failures will lock the identifier.
type CredentialErrorResponse struct {
	pkghttp.ErrorResponse
	Warning string `json:"warning,omitempty"`
}

func writeCredentialError(w http.ResponseWriter, err error, message string) {
	var credential *services.CredentialError
	if errors.As(err, &credential) && credential.Warning != "" {
		pkghttp.WriteJSON(w, http.StatusUnauthorized, CredentialErrorResponse{
			ErrorResponse: pkghttp.ErrorResponse{Error: "unauthorized", Message: message},
			Warning:       credential.Warning,
		})
		return
	}
	pkghttp.WriteUnauthorized(w, message)
}

// UploadErrorResponse is the 400 body when no file of an upload was accepted
type UploadErrorResponse struct {
	pkghttp.ErrorResponse
	Files []FileErrorResponse `json:"files"`
}

type FileErrorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func writeUploadRejected(w http.ResponseWriter, rejected *services.UploadRejectedError) {
	files := make([]FileErrorResponse, 0, len(rejected.Errors))
	for _, fe := range rejected.Errors {
		files = append(files, FileErrorResponse{Name: fe.Name, Message: fe.Message})
	}
	pkghttp.WriteJSON(w, http.StatusBadRequest, UploadErrorResponse{
		ErrorResponse: pkghttp.ErrorResponse{Error: "bad_request", Message: rejected.Error()},
		Files:         files,
	})
}

// clientMessage strips the trailing sentinel text from a wrapped error so
// "title is required: bad request" is shown as "title is required"
func clientMessage(err, sentinel error) string {
	msg := err.Error()
	for _, suffix := range []string{sentinel.Error(), models.ErrNotParticipant.Error(), realtime.ErrNotAllowed.Error()} {
		if trimmed, ok := strings.CutSuffix(msg, ": "+suffix); ok {
			return trimmed
		}
	}
	return msg
}

// decodeJSON reads the request body into v and validates it. It writes the
// 400 response itself and reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(v); err != nil {
		pkghttp.WriteBadRequest(w, apperrors.ValidationMessage(err))
		return false
	}
	return true
}

// callerFrom returns the authenticated caller, or writes a 401
func callerFrom(w http.ResponseWriter, r *http.Request) (services.Caller, bool) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return services.Caller{}, false
	}
	return services.Caller{UserID: claims.UserID, Role: claims.Role}, true
}

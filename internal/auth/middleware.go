package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/BradenHooton/vetconnect/internal/models"
	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
)

// TokenRevocationChecker defines the interface for checking if tokens are revoked
type TokenRevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// RevocationConfig holds configuration for token revocation behavior
type RevocationConfig struct {
	FailClosed bool // If true, deny access if revocation check fails; if false, allow access (fail open)
}

// UserRepository interface for fetching user data
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware validates JWT tokens and injects user claims into context
func AuthMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return AuthMiddlewareWithRevocation(tm, nil, RevocationConfig{FailClosed: false})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddlewareWithRevocation validates access tokens and checks revocation status.
// Refresh and MFA tokens are rejected.
func AuthMiddlewareWithRevocation(tm *TokenManager, revocationChecker TokenRevocationChecker, revocationConfig RevocationConfig) func(next http.Handler) http.Handler {
	return tokenMiddleware(tm, revocationChecker, revocationConfig, models.TokenTypeAccess)
}

// MFAStepMiddleware accepts either an access token or the short-lived MFA
// token issued after the first factor. It guards the MFA verify endpoint,
// which serves both enrollment and sign-in.
func MFAStepMiddleware(tm *TokenManager, revocationChecker TokenRevocationChecker, revocationConfig RevocationConfig) func(next http.Handler) http.Handler {
	return tokenMiddleware(tm, revocationChecker, revocationConfig, models.TokenTypeAccess, models.TokenTypeMFA)
}

func tokenMiddleware(tm *TokenManager, revocationChecker TokenRevocationChecker, revocationConfig RevocationConfig, tokenTypes ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			tokenString, ok := BearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			if !slices.Contains(tokenTypes, claims.Type) {
				pkghttp.WriteUnauthorized(w, claims.Type+" tokens cannot be used for this endpoint")
				return
			}

			if revocationChecker != nil && claims.ID != "" {
				revoked, err := revocationChecker.IsTokenRevoked(r.Context(), claims.ID)
				if err != nil && revocationConfig.FailClosed {
					pkghttp.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "unable to verify token status")
					return
				}
				if revoked {
					pkghttp.WriteUnauthorized(w, "token has been revoked")
					return
				}
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SocketAuthenticator resolves the user of a websocket upgrade request.
// Browsers cannot set headers on a websocket handshake, so the access
// token may also arrive as the access_token query parameter.
func SocketAuthenticator(tm *TokenManager, revocationChecker TokenRevocationChecker) func(r *http.Request) (string, error) {
	return func(r *http.Request) (string, error) {
		tokenString, ok := BearerToken(r)
		if !ok {
			tokenString = r.URL.Query().Get("access_token")
		}
		if tokenString == "" {
			return "", models.ErrUnauthorized
		}

		claims, err := tm.ValidateTokenType(tokenString, models.TokenTypeAccess)
		if err != nil {
			return "", models.ErrUnauthorized
		}

		if revocationChecker != nil && claims.ID != "" {
			revoked, err := revocationChecker.IsTokenRevoked(r.Context(), claims.ID)
			if err != nil {
				return "", err
			}
			if revoked {
				return "", models.ErrUnauthorized
			}
		}
		return claims.UserID, nil
	}
}

// RequireRole creates a middleware that enforces role-based access control.
// The role is read from the database so a changed role takes effect before
// the access token expires.
func RequireRole(userRepo UserRepository, roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			user, err := userRepo.GetByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "user not found")
					return
				}
				pkghttp.WriteInternalError(w, "internal server error")
				return
			}

			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			pkghttp.WriteForbidden(w, "forbidden: insufficient permissions")
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BradenHooton/vetconnect/internal/auth"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/ratelimit"
	"github.com/BradenHooton/vetconnect/internal/repositories"
	pkgauth "github.com/BradenHooton/vetconnect/pkg/auth"
	pkglogger "github.com/BradenHooton/vetconnect/pkg/logger"
	"github.com/go-playground/validator/v10"
)

// UserRepository defines the user persistence operations used by the services
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	CreateWithProfile(ctx context.Context, user *models.User, fullName string) (*models.User, *models.Profile, error)
	Update(ctx context.Context, id string, user *models.User) (*models.User, error)
	SetMFAEnabled(ctx context.Context, id string, enabled bool) error
}

// TokenRevocationRepository defines the interface for token revocation operations
type TokenRevocationRepository interface {
	RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error
	RevokeAllUserTokens(ctx context.Context, userID, reason string, until time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// EmailOTPRepository stores hashed one-time sign-in codes
type EmailOTPRepository interface {
	Create(ctx context.Context, otp *models.EmailOTP) error
	GetLatest(ctx context.Context, email string) (*models.EmailOTP, error)
	IncrementAttempts(ctx context.Context, id string) error
	Consume(ctx context.Context, id string) error
}

// AuthObserver receives authentication outcomes for metrics
type AuthObserver interface {
	AuthAttempt(flow string, success bool)
	Lockout(flow string)
}

type noopObserver struct{}

func (noopObserver) AuthAttempt(string, bool) {}
func (noopObserver) Lockout(string)           {}

// maxOTPAttempts bounds guesses against a single emailed code
const maxOTPAttempts = 5

// AuthConfig holds the AuthService tunables
type AuthConfig struct {
	OTPExpiry          time.Duration
	MFAChallengeExpiry time.Duration
	Env                string
}

// AuthService handles authentication business logic
type AuthService struct {
	repo        UserRepository
	profiles    ProfileRepository
	factors     repositories.MFAFactorRepository
	otps        EmailOTPRepository
	revokeRepo  TokenRevocationRepository
	mailer      OTPSender
	tm          *auth.TokenManager
	limiter     *ratelimit.Limiter
	timing      *auth.TimingDelay
	observer    AuthObserver
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	config      AuthConfig
	now         func() time.Time
}

// AuthDeps groups the collaborators of AuthService
type AuthDeps struct {
	Users       UserRepository
	Profiles    ProfileRepository
	Factors     repositories.MFAFactorRepository
	OTPs        EmailOTPRepository
	Revocations TokenRevocationRepository
	Mailer      OTPSender
	Tokens      *auth.TokenManager
	Limiter     *ratelimit.Limiter
	Timing      *auth.TimingDelay
	Observer    AuthObserver
	Logger      *slog.Logger
	AuditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(deps AuthDeps, config AuthConfig) *AuthService {
	observer := deps.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &AuthService{
		repo:        deps.Users,
		profiles:    deps.Profiles,
		factors:     deps.Factors,
		otps:        deps.OTPs,
		revokeRepo:  deps.Revocations,
		mailer:      deps.Mailer,
		tm:          deps.Tokens,
		limiter:     deps.Limiter,
		timing:      deps.Timing,
		observer:    observer,
		logger:      deps.Logger,
		auditLogger: deps.AuditLogger,
		config:      config,
		now:         time.Now,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Role          string `json:"role"`
	MFAEnabled    bool   `json:"mfa_enabled"`
	CreatedAt     string `json:"created_at"`
}

// AuthResponse is returned by every sign-in flow. When MFARequired is set
// only MFAToken, FactorID and ChallengeID are populated.
type AuthResponse struct {
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	ExpiresIn    int             `json:"expires_in,omitempty"`
	User         *UserResponse   `json:"user,omitempty"`
	Profile      *models.Profile `json:"profile,omitempty"`
	MFARequired  bool            `json:"mfa_required,omitempty"`
	MFAToken     string          `json:"mfa_token,omitempty"`
	FactorID     string          `json:"factor_id,omitempty"`
	ChallengeID  string          `json:"challenge_id,omitempty"`
}

// RegisterInput is the validated registration payload
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Role     string
}

const minFullNameLength = 2

// selfAssignableRoles are the roles a new account may pick at registration
var selfAssignableRoles = map[string]bool{
	models.RoleFarmer:       true,
	models.RolePetOwner:     true,
	models.RoleVeterinarian: true,
}

var registrationValidator = validator.New()

// NormalizeIdentifier lowercases and trims an email for lookups and rate limiting
func NormalizeIdentifier(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkLimit returns a RateLimitedError when identifier is locked out
func (s *AuthService) checkLimit(ctx context.Context, flow, identifier string) error {
	check := s.limiter.CheckLimit(ctx, identifier)
	if !check.Limited {
		return nil
	}
	s.logger.Info("auth attempt rejected by rate limiter",
		slog.String("flow", flow),
		slog.String("identifier", pkglogger.SanitizedEmail(identifier)),
		slog.Int("remaining_seconds", check.RemainingSeconds))
	return rateLimited(check.Message, s.limiter.Status(ctx, identifier))
}

// recordFailure registers a failed attempt and converts the result into the
// error returned to the caller
func (s *AuthService) recordFailure(ctx context.Context, flow, identifier string, reason error) error {
	s.observer.AuthAttempt(flow, false)
	result := s.limiter.RecordFailedAttempt(ctx, identifier)
	if result.Locked {
		s.observer.Lockout(flow)
		s.logger.Warn("identifier locked out",
			slog.String("flow", flow),
			slog.String("identifier", pkglogger.SanitizedEmail(identifier)),
			slog.Int("lockout_seconds", result.RemainingSeconds))
		return rateLimited(result.Message, s.limiter.Status(ctx, identifier))
	}
	return &CredentialError{Reason: reason, Warning: result.Message}
}

func (s *AuthService) recordSuccess(ctx context.Context, flow, identifier string) {
	s.observer.AuthAttempt(flow, true)
	s.limiter.RecordSuccess(ctx, identifier)
}

// Register creates a user and profile. The limiter is consulted before
// anything else; a rejected registration counts as a failed attempt.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResponse, error) {
	email := NormalizeIdentifier(in.Email)
	if err := s.checkLimit(ctx, "register", email); err != nil {
		return nil, err
	}

	fullName := strings.TrimSpace(in.FullName)
	if err := registrationValidator.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("a valid email address is required: %w", models.ErrBadRequest)
	}
	if utf8.RuneCountInString(fullName) < minFullNameLength {
		return nil, fmt.Errorf("full name must be at least %d characters: %w", minFullNameLength, models.ErrBadRequest)
	}

	role := in.Role
	if role == "" {
		role = models.RoleFarmer
	}
	if !selfAssignableRoles[role] {
		return nil, fmt.Errorf("role %q cannot be self-assigned: %w", role, models.ErrBadRequest)
	}

	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return nil, s.recordFailure(ctx, "register", email, err)
	}

	hashedPassword, err := pkgauth.HashPassword(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, profile, err := s.repo.CreateWithProfile(ctx, &models.User{
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         role,
		Status:       models.StatusActive,
	}, fullName)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("registration failed: user already exists")
			return nil, s.recordFailure(ctx, "register", email, models.ErrConflict)
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.recordSuccess(ctx, "register", email)
	s.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("role", user.Role))
	s.auditLogger.LogAccountAction("user_registered", user.ID, "", map[string]string{"role": user.Role})

	resp, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}
	resp.Profile = profile
	return resp, nil
}

// Login authenticates with email and password. Accounts with a verified
// TOTP factor receive an MFA challenge instead of session tokens.
func (s *AuthService) Login(ctx context.Context, email, password, ipAddress string) (*AuthResponse, error) {
	email = NormalizeIdentifier(email)
	if email == "" {
		return nil, models.ErrUnauthorized
	}

	if err := s.checkLimit(ctx, "login", email); err != nil {
		return nil, err
	}

	start := s.now()
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to get user by email", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.timing.WaitFrom(ctx, start, false)
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			IPAddress:     ipAddress,
			FailureReason: "invalid_credentials",
		})
		return nil, s.recordFailure(ctx, "login", email, models.ErrUnauthorized)
	}

	if user.PasswordHash == "" || pkgauth.ComparePassword(user.PasswordHash, password) != nil {
		s.timing.WaitFrom(ctx, start, false)
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     ipAddress,
			FailureReason: "invalid_credentials",
		})
		return nil, s.recordFailure(ctx, "login", email, models.ErrUnauthorized)
	}

	if err := validateAccountState(user); err != nil {
		s.logger.Info("login blocked due to account state",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status))
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     ipAddress,
			FailureReason: "account_blocked",
		})
		return nil, err
	}

	s.recordSuccess(ctx, "login", email)
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: ipAddress,
		Success:   true,
	})

	return s.completeSignIn(ctx, user)
}

// RequestOTP emails a one-time sign-in code. Unknown or blocked accounts
// get no email but the caller cannot tell the difference.
func (s *AuthService) RequestOTP(ctx context.Context, email string) error {
	email = NormalizeIdentifier(email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("otp requested for unknown email")
			return nil
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if validateAccountState(user) != nil {
		return nil
	}

	code, err := pkgauth.GenerateOTPCode()
	if err != nil {
		return models.ErrInternalServer
	}
	codeHash, err := pkgauth.HashOTPCode(code)
	if err != nil {
		return models.ErrInternalServer
	}

	otp := &models.EmailOTP{
		Email:     email,
		CodeHash:  codeHash,
		ExpiresAt: s.now().Add(s.config.OTPExpiry),
	}
	if err := s.otps.Create(ctx, otp); err != nil {
		s.logger.Error("failed to store otp", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.mailer.SendOTP(ctx, email, code, otp.ExpiresAt); err != nil {
		s.logger.Error("failed to send otp email",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			pkglogger.ErrorAttr(err, s.config.Env))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("otp_requested", user.ID, "", nil)
	return nil
}

// VerifyOTP redeems an emailed code. Every wrong or expired code counts
// against the identifier's rate limit.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*AuthResponse, error) {
	email = NormalizeIdentifier(email)
	if err := s.checkLimit(ctx, "otp", email); err != nil {
		return nil, err
	}

	otp, err := s.otps.GetLatest(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.recordFailure(ctx, "otp", email, models.ErrInvalidOTP)
		}
		s.logger.Error("failed to load otp", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !otp.IsUsable(s.now()) || otp.Attempts >= maxOTPAttempts {
		_ = s.otps.Consume(ctx, otp.ID)
		return nil, s.recordFailure(ctx, "otp", email, models.ErrOTPExpired)
	}

	if pkgauth.ComparePassword(otp.CodeHash, strings.TrimSpace(code)) != nil {
		if err := s.otps.IncrementAttempts(ctx, otp.ID); err != nil {
			s.logger.Warn("failed to count otp attempt", slog.Any("error", err))
		}
		return nil, s.recordFailure(ctx, "otp", email, models.ErrInvalidOTP)
	}

	if err := s.otps.Consume(ctx, otp.ID); err != nil {
		// Lost a race with a concurrent redemption of the same code
		return nil, s.recordFailure(ctx, "otp", email, models.ErrInvalidOTP)
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Error("otp redeemed for missing user", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}
	if err := validateAccountState(user); err != nil {
		return nil, err
	}

	if !user.EmailVerified {
		user.EmailVerified = true
		if updated, err := s.repo.Update(ctx, user.ID, user); err == nil {
			user = updated
		} else {
			s.logger.Warn("failed to mark email verified", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}

	s.recordSuccess(ctx, "otp", email)
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{EventType: "otp_login_success", UserID: user.ID, Success: true})

	return s.completeSignIn(ctx, user)
}

// CompleteMFA issues session tokens once the second factor has been verified
func (s *AuthService) CompleteMFA(ctx context.Context, userID string) (*AuthResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, models.ErrInternalServer
	}
	if err := validateAccountState(user); err != nil {
		return nil, err
	}

	resp, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}
	resp.Profile = s.loadProfile(ctx, user.ID)
	return resp, nil
}

// RefreshToken rotates a refresh token into a new token pair
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*AuthResponse, error) {
	if refreshTokenString = strings.TrimSpace(refreshTokenString); refreshTokenString == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := s.tm.ValidateTokenType(refreshTokenString, models.TokenTypeRefresh)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	revoked, err := s.revokeRepo.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		s.logger.Error("failed to check refresh token revocation", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if revoked {
		s.logger.Warn("revoked refresh token presented", slog.String("user_id", claims.UserID))
		return nil, models.ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for token refresh", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := validateAccountState(user); err != nil {
		return nil, models.ErrUnauthorized
	}

	if user.PasswordChangedAt != nil && claims.IssuedAt != nil &&
		claims.IssuedAt.Time.Before(user.PasswordChangedAt.Truncate(time.Second)) {
		s.logger.Info("token refresh blocked: issued before password change", slog.String("user_id", user.ID))
		return nil, models.ErrUnauthorized
	}

	// Single use: the presented refresh token is retired
	if err := s.revokeRepo.RevokeToken(ctx, claims.ID, user.ID, claims.Type, claims.ExpiresAt.Time, "rotated"); err != nil {
		s.logger.Error("failed to revoke rotated refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("token refreshed", slog.String("user_id", user.ID))
	return s.issueTokens(user)
}

// Logout revokes the current access token and, when given, the refresh token
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	claims, err := s.tm.ValidateToken(accessToken)
	if err != nil {
		return models.ErrUnauthorized
	}

	if err := s.revokeRepo.RevokeToken(ctx, claims.ID, claims.UserID, claims.Type, claims.ExpiresAt.Time, "logout"); err != nil {
		s.logger.Error("failed to revoke token", slog.String("jti", claims.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if refreshToken != "" {
		if rc, err := s.tm.ValidateTokenType(refreshToken, models.TokenTypeRefresh); err == nil && rc.UserID == claims.UserID {
			if err := s.revokeRepo.RevokeToken(ctx, rc.ID, rc.UserID, rc.Type, rc.ExpiresAt.Time, "logout"); err != nil {
				s.logger.Warn("failed to revoke refresh token", slog.Any("error", err))
			}
		}
	}

	s.logger.Info("user logged out", slog.String("user_id", claims.UserID))
	return nil
}

// LogoutAll invalidates every token of the user by rotating the TokenKey
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		return models.ErrInternalServer
	}

	newTokenKey, err := pkgauth.GenerateTokenKey()
	if err != nil {
		s.logger.Error("failed to generate new token key", slog.Any("error", err))
		return models.ErrInternalServer
	}
	user.TokenKey = newTokenKey

	if _, err := s.repo.Update(ctx, userID, user); err != nil {
		s.logger.Error("failed to update token key", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	until := s.now().Add(s.tm.AccessTokenExpiry())
	if err := s.revokeRepo.RevokeAllUserTokens(ctx, userID, "logout_all", until); err != nil {
		s.logger.Warn("failed to record logout-all", slog.String("user_id", userID), slog.Any("error", err))
	}

	s.logger.Info("user logged out from all devices", slog.String("user_id", userID))
	s.auditLogger.LogAccountAction("logout_all", userID, "", nil)
	return nil
}

// RateLimitStatus reports the limiter state for an email, used by clients
// to render a lockout countdown
func (s *AuthService) RateLimitStatus(ctx context.Context, email string) ratelimit.Status {
	return s.limiter.Status(ctx, NormalizeIdentifier(email))
}

// completeSignIn issues tokens, or opens an MFA challenge when the account
// has a verified factor
func (s *AuthService) completeSignIn(ctx context.Context, user *models.User) (*AuthResponse, error) {
	if user.MFAEnabled {
		factor, err := s.firstVerifiedFactor(ctx, user.ID)
		if err != nil {
			s.logger.Error("failed to load mfa factors", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if factor != nil {
			challenge := &models.MFAChallenge{
				FactorID:  factor.ID,
				UserID:    user.ID,
				ExpiresAt: s.now().Add(s.config.MFAChallengeExpiry),
			}
			if err := s.factors.CreateChallenge(ctx, challenge); err != nil {
				s.logger.Error("failed to create mfa challenge", slog.Any("error", err))
				return nil, models.ErrInternalServer
			}

			mfaToken, err := s.tm.GenerateMFAToken(user)
			if err != nil {
				return nil, models.ErrInternalServer
			}

			return &AuthResponse{
				MFARequired: true,
				MFAToken:    mfaToken,
				FactorID:    factor.ID,
				ChallengeID: challenge.ID,
			}, nil
		}
	}

	resp, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}
	resp.Profile = s.loadProfile(ctx, user.ID)
	return resp, nil
}

func (s *AuthService) firstVerifiedFactor(ctx context.Context, userID string) (*models.MFAFactor, error) {
	factors, err := s.factors.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range factors {
		if factors[i].IsVerified() {
			return &factors[i], nil
		}
	}
	return nil, nil
}

func (s *AuthService) issueTokens(user *models.User) (*AuthResponse, error) {
	accessToken, err := s.tm.GenerateAccessToken(user)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(user)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.tm.AccessTokenExpiry().Seconds()),
		User:         userModelToResponse(user),
	}, nil
}

func (s *AuthService) loadProfile(ctx context.Context, userID string) *models.Profile {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load profile", slog.String("user_id", userID), slog.Any("error", err))
		return nil
	}
	return profile
}

// validateAccountState checks if user account is in valid state for authentication
func validateAccountState(user *models.User) error {
	switch user.Status {
	case models.StatusDisabled:
		return models.ErrAccountDisabled
	case models.StatusSuspended:
		return models.ErrAccountSuspended
	case models.StatusActive:
		return nil
	default:
		return fmt.Errorf("unknown account status %q: %w", user.Status, models.ErrForbidden)
	}
}

func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:            user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Role:          user.Role,
		MFAEnabled:    user.MFAEnabled,
		CreatedAt:     user.CreatedAt.Format(time.RFC3339),
	}
}

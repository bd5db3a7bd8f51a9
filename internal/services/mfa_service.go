package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/vetconnect/internal/auth"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/ratelimit"
	"github.com/BradenHooton/vetconnect/internal/repositories"
	pkglogger "github.com/BradenHooton/vetconnect/pkg/logger"
)

// TOTPProvider is implemented by auth.TOTPManager
type TOTPProvider interface {
	Enroll(accountEmail string) (*auth.TOTPEnrollment, error)
	DecryptSecret(encryptedBytes, nonce []byte) ([]byte, error)
	ValidateTOTP(secretBytes []byte, code string, lastUsedAt *time.Time) (bool, error)
}

// MFAConfig holds MFA configuration
type MFAConfig struct {
	ChallengeExpiry time.Duration
}

// MFAService handles TOTP enrollment, challenges and verification
type MFAService struct {
	factors     repositories.MFAFactorRepository
	userRepo    UserRepository
	totp        TOTPProvider
	limiter     *ratelimit.Limiter
	observer    AuthObserver
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	config      MFAConfig
	now         func() time.Time
}

// NewMFAService creates a new MFA service
func NewMFAService(
	factors repositories.MFAFactorRepository,
	userRepo UserRepository,
	totp TOTPProvider,
	limiter *ratelimit.Limiter,
	observer AuthObserver,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	config MFAConfig,
) *MFAService {
	if observer == nil {
		observer = noopObserver{}
	}
	return &MFAService{
		factors:     factors,
		userRepo:    userRepo,
		totp:        totp,
		limiter:     limiter,
		observer:    observer,
		logger:      logger,
		auditLogger: auditLogger,
		config:      config,
		now:         time.Now,
	}
}

// mfaLimitKey keeps TOTP guesses separate from password attempts
func mfaLimitKey(userID string) string {
	return "mfa:" + userID
}

// Enroll creates an unverified factor and returns the QR code to scan
func (s *MFAService) Enroll(ctx context.Context, userID, friendlyName string) (*models.MFAEnrollment, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, models.ErrInternalServer
	}

	friendlyName = strings.TrimSpace(friendlyName)
	if friendlyName == "" {
		friendlyName = "Authenticator"
	}

	enrollment, err := s.totp.Enroll(user.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	factor := &models.MFAFactor{
		UserID:          userID,
		FriendlyName:    friendlyName,
		SecretEncrypted: enrollment.SecretEncrypted,
		SecretNonce:     enrollment.SecretNonce,
		Status:          models.FactorStatusUnverified,
	}
	if err := s.factors.Create(ctx, factor); err != nil {
		s.logger.Error("failed to create MFA factor", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("MFA enrollment started",
		slog.String("user_id", userID),
		slog.String("factor_id", factor.ID))

	return &models.MFAEnrollment{
		FactorID: factor.ID,
		QRCode:   enrollment.QRCode,
		Secret:   enrollment.Secret,
		URI:      enrollment.URI,
	}, nil
}

// Challenge opens a verification window against one of the user's factors
func (s *MFAService) Challenge(ctx context.Context, userID, factorID string) (*models.MFAChallenge, error) {
	if _, err := s.factors.GetByID(ctx, userID, factorID); err != nil {
		return nil, err
	}

	challenge := &models.MFAChallenge{
		FactorID:  factorID,
		UserID:    userID,
		ExpiresAt: s.now().Add(s.config.ChallengeExpiry),
	}
	if err := s.factors.CreateChallenge(ctx, challenge); err != nil {
		s.logger.Error("failed to create MFA challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return challenge, nil
}

// Verify answers a challenge with a TOTP code. The first successful
// verification of a factor marks it verified and turns MFA on for the user.
func (s *MFAService) Verify(ctx context.Context, userID, factorID, challengeID, code string) error {
	key := mfaLimitKey(userID)
	if check := s.limiter.CheckLimit(ctx, key); check.Limited {
		return rateLimited(check.Message, s.limiter.Status(ctx, key))
	}

	challenge, err := s.factors.GetChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if challenge.UserID != userID || challenge.FactorID != factorID {
		return models.ErrMFAChallengeNotFound
	}
	if !challenge.IsOpen(s.now()) {
		return models.ErrMFAChallengeExpired
	}

	factor, err := s.factors.GetByID(ctx, userID, factorID)
	if err != nil {
		return err
	}

	secret, err := s.totp.DecryptSecret(factor.SecretEncrypted, factor.SecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.String("factor_id", factorID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	valid, err := s.totp.ValidateTOTP(secret, strings.TrimSpace(code), factor.LastUsedAt)
	if err != nil || !valid {
		reason := models.ErrMFAInvalidCode
		if errors.Is(err, models.ErrMFACodeReplayed) {
			reason = models.ErrMFACodeReplayed
		}
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "mfa_verify_failed",
			UserID:        userID,
			FailureReason: reason.Error(),
		})
		return s.recordFailure(ctx, key, reason)
	}

	if err := s.factors.MarkChallengeVerified(ctx, challengeID); err != nil {
		// Another request answered this challenge first
		return err
	}
	if err := s.factors.UpdateLastUsedAt(ctx, factorID, s.now()); err != nil {
		s.logger.Warn("failed to record factor use", slog.String("factor_id", factorID), slog.Any("error", err))
	}

	if !factor.IsVerified() {
		if err := s.factors.MarkVerified(ctx, factorID); err != nil {
			s.logger.Error("failed to mark factor verified", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if err := s.userRepo.SetMFAEnabled(ctx, userID, true); err != nil {
			s.logger.Error("failed to enable MFA", slog.String("user_id", userID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		s.auditLogger.LogAccountAction("mfa_enabled", userID, "", map[string]string{"factor_id": factorID})
	}

	s.observer.AuthAttempt("mfa", true)
	s.limiter.RecordSuccess(ctx, key)
	return nil
}

func (s *MFAService) recordFailure(ctx context.Context, key string, reason error) error {
	s.observer.AuthAttempt("mfa", false)
	result := s.limiter.RecordFailedAttempt(ctx, key)
	if result.Locked {
		s.observer.Lockout("mfa")
		return rateLimited(result.Message, s.limiter.Status(ctx, key))
	}
	return &CredentialError{Reason: reason, Warning: result.Message}
}

// ListFactors returns every factor of the user, verified or not
func (s *MFAService) ListFactors(ctx context.Context, userID string) ([]models.MFAFactor, error) {
	factors, err := s.factors.ListByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list MFA factors", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if factors == nil {
		factors = []models.MFAFactor{}
	}
	return factors, nil
}

// DeleteFactor removes a factor. MFA is switched off once no verified factor remains.
func (s *MFAService) DeleteFactor(ctx context.Context, userID, factorID string) error {
	if err := s.factors.Delete(ctx, userID, factorID); err != nil {
		return err
	}

	remaining, err := s.factors.CountVerified(ctx, userID)
	if err != nil {
		s.logger.Error("failed to count verified factors", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if remaining == 0 {
		if err := s.userRepo.SetMFAEnabled(ctx, userID, false); err != nil {
			s.logger.Error("failed to disable MFA", slog.String("user_id", userID), slog.Any("error", err))
			return models.ErrInternalServer
		}
	}

	s.auditLogger.LogAccountAction("mfa_factor_deleted", userID, "", map[string]string{"factor_id": factorID})
	return nil
}

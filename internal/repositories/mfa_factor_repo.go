package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MFAFactorRepository defines TOTP factor and challenge persistence operations
type MFAFactorRepository interface {
	Create(ctx context.Context, factor *models.MFAFactor) error
	GetByID(ctx context.Context, userID, factorID string) (*models.MFAFactor, error)
	ListByUserID(ctx context.Context, userID string) ([]models.MFAFactor, error)
	MarkVerified(ctx context.Context, factorID string) error
	UpdateLastUsedAt(ctx context.Context, factorID string, usedAt time.Time) error
	Delete(ctx context.Context, userID, factorID string) error
	CountVerified(ctx context.Context, userID string) (int, error)

	CreateChallenge(ctx context.Context, challenge *models.MFAChallenge) error
	GetChallenge(ctx context.Context, challengeID string) (*models.MFAChallenge, error)
	MarkChallengeVerified(ctx context.Context, challengeID string) error
	DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error)
}

// mfaFactorRepoImpl implements MFAFactorRepository
type mfaFactorRepoImpl struct {
	db *pgxpool.Pool
}

// NewMFAFactorRepository creates a new MFA factor repository
func NewMFAFactorRepository(db *pgxpool.Pool) MFAFactorRepository {
	return &mfaFactorRepoImpl{db: db}
}

const factorColumns = `id, user_id, friendly_name, secret_encrypted, secret_nonce, status, last_used_at, created_at, verified_at`

func scanFactor(scanner rowScanner) (*models.MFAFactor, error) {
	f := &models.MFAFactor{}
	err := scanner.Scan(
		&f.ID,
		&f.UserID,
		&f.FriendlyName,
		&f.SecretEncrypted,
		&f.SecretNonce,
		&f.Status,
		&f.LastUsedAt,
		&f.CreatedAt,
		&f.VerifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrMFAFactorNotFound
		}
		return nil, fmt.Errorf("failed to scan MFA factor: %w", err)
	}
	return f, nil
}

// Create stores a new unverified factor
func (r *mfaFactorRepoImpl) Create(ctx context.Context, factor *models.MFAFactor) error {
	query := `
		INSERT INTO mfa_factors (user_id, friendly_name, secret_encrypted, secret_nonce, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	if factor.Status == "" {
		factor.Status = models.FactorStatusUnverified
	}

	err := r.db.QueryRow(ctx, query,
		factor.UserID,
		factor.FriendlyName,
		factor.SecretEncrypted,
		factor.SecretNonce,
		factor.Status,
	).Scan(&factor.ID, &factor.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create MFA factor: %w", err)
	}

	return nil
}

// GetByID retrieves one of the user's factors
func (r *mfaFactorRepoImpl) GetByID(ctx context.Context, userID, factorID string) (*models.MFAFactor, error) {
	query := `SELECT ` + factorColumns + ` FROM mfa_factors WHERE id = $1 AND user_id = $2`
	return scanFactor(r.db.QueryRow(ctx, query, factorID, userID))
}

// ListByUserID retrieves all factors for a user, newest first
func (r *mfaFactorRepoImpl) ListByUserID(ctx context.Context, userID string) ([]models.MFAFactor, error) {
	query := `SELECT ` + factorColumns + ` FROM mfa_factors WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query MFA factors: %w", err)
	}
	defer rows.Close()

	factors := make([]models.MFAFactor, 0)
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, err
		}
		factors = append(factors, *f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating MFA factors: %w", err)
	}

	return factors, nil
}

// MarkVerified marks a factor as verified
func (r *mfaFactorRepoImpl) MarkVerified(ctx context.Context, factorID string) error {
	query := `
		UPDATE mfa_factors
		SET status = 'verified', verified_at = NOW()
		WHERE id = $1
	`

	commandTag, err := r.db.Exec(ctx, query, factorID)
	if err != nil {
		return fmt.Errorf("failed to mark factor as verified: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return models.ErrMFAFactorNotFound
	}

	return nil
}

// UpdateLastUsedAt records the time step of the last accepted code
func (r *mfaFactorRepoImpl) UpdateLastUsedAt(ctx context.Context, factorID string, usedAt time.Time) error {
	commandTag, err := r.db.Exec(ctx, `UPDATE mfa_factors SET last_used_at = $1 WHERE id = $2`, usedAt, factorID)
	if err != nil {
		return fmt.Errorf("failed to update last_used_at: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return models.ErrMFAFactorNotFound
	}

	return nil
}

// Delete removes one of the user's factors
func (r *mfaFactorRepoImpl) Delete(ctx context.Context, userID, factorID string) error {
	commandTag, err := r.db.Exec(ctx, `DELETE FROM mfa_factors WHERE id = $1 AND user_id = $2`, factorID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete MFA factor: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return models.ErrMFAFactorNotFound
	}

	return nil
}

func (r *mfaFactorRepoImpl) CountVerified(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM mfa_factors WHERE user_id = $1 AND status = 'verified'`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count verified factors: %w", err)
	}
	return n, nil
}

// CreateChallenge opens a challenge against a factor
func (r *mfaFactorRepoImpl) CreateChallenge(ctx context.Context, challenge *models.MFAChallenge) error {
	query := `
		INSERT INTO mfa_challenges (factor_id, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query, challenge.FactorID, challenge.UserID, challenge.ExpiresAt).
		Scan(&challenge.ID, &challenge.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create MFA challenge: %w", err)
	}

	return nil
}

func (r *mfaFactorRepoImpl) GetChallenge(ctx context.Context, challengeID string) (*models.MFAChallenge, error) {
	query := `
		SELECT id, factor_id, user_id, created_at, expires_at, verified_at
		FROM mfa_challenges
		WHERE id = $1
	`

	c := &models.MFAChallenge{}
	err := r.db.QueryRow(ctx, query, challengeID).Scan(
		&c.ID, &c.FactorID, &c.UserID, &c.CreatedAt, &c.ExpiresAt, &c.VerifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrMFAChallengeNotFound
		}
		return nil, fmt.Errorf("failed to get MFA challenge: %w", err)
	}

	return c, nil
}

// MarkChallengeVerified closes a challenge. A challenge can only be answered once.
func (r *mfaFactorRepoImpl) MarkChallengeVerified(ctx context.Context, challengeID string) error {
	query := `
		UPDATE mfa_challenges
		SET verified_at = NOW()
		WHERE id = $1 AND verified_at IS NULL
	`

	commandTag, err := r.db.Exec(ctx, query, challengeID)
	if err != nil {
		return fmt.Errorf("failed to mark challenge as verified: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return models.ErrMFAChallengeNotFound
	}

	return nil
}

// DeleteExpiredChallenges removes challenges that expired before the given time
func (r *mfaFactorRepoImpl) DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error) {
	commandTag, err := r.db.Exec(ctx, `DELETE FROM mfa_challenges WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired challenges: %w", err)
	}
	return commandTag.RowsAffected(), nil
}

package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/vetconnect/internal/database"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EmailOTPRepository struct {
	pool *pgxpool.Pool
}

func NewEmailOTPRepository(db *database.DB) *EmailOTPRepository {
	return &EmailOTPRepository{pool: db.Pool}
}

// Create stores a new code and retires any earlier unconsumed codes for the address
func (r *EmailOTPRepository) Create(ctx context.Context, otp *models.EmailOTP) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE email_otps SET consumed_at = NOW() WHERE lower(email) = lower($1) AND consumed_at IS NULL`,
		otp.Email,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	query := `
		INSERT INTO email_otps (email, code_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, attempts, created_at
	`
	err = r.pool.QueryRow(ctx, query, otp.Email, otp.CodeHash, otp.ExpiresAt).
		Scan(&otp.ID, &otp.Attempts, &otp.CreatedAt)
	return database.MapPostgresError(err)
}

// GetLatest returns the newest unconsumed code for the address
func (r *EmailOTPRepository) GetLatest(ctx context.Context, email string) (*models.EmailOTP, error) {
	query := `
		SELECT id, email, code_hash, attempts, created_at, expires_at, consumed_at
		FROM email_otps
		WHERE lower(email) = lower($1) AND consumed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`

	var otp models.EmailOTP
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&otp.ID, &otp.Email, &otp.CodeHash, &otp.Attempts, &otp.CreatedAt, &otp.ExpiresAt, &otp.ConsumedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &otp, nil
}

func (r *EmailOTPRepository) IncrementAttempts(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE email_otps SET attempts = attempts + 1 WHERE id = $1`, id)
	return database.MapPostgresError(err)
}

// Consume marks the code used. It fails with ErrNotFound if already consumed.
func (r *EmailOTPRepository) Consume(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `UPDATE email_otps SET consumed_at = NOW() WHERE id = $1 AND consumed_at IS NULL`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteExpired removes codes that expired before the given time
func (r *EmailOTPRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM email_otps WHERE expires_at < $1`, before)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

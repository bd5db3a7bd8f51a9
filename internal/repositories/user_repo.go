package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/vetconnect/internal/database"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/pkg/auth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db, pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, email, password_hash, email_verified, token_key, role::text, status, mfa_enabled, password_changed_at, created_at, updated_at`

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var passwordHash *string

	err := scanner.Scan(
		&user.ID, &user.Email, &passwordHash,
		&user.EmailVerified, &user.TokenKey, &user.Role, &user.Status,
		&user.MFAEnabled, &user.PasswordChangedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

// CreateWithProfile inserts the user and its profile in one transaction.
// The profile inherits the user's ID and role.
func (r *UserRepository) CreateWithProfile(ctx context.Context, user *models.User, fullName string) (*models.User, *models.Profile, error) {
	user.ID = uuid.New().String()

	tokenKey, err := auth.GenerateTokenKey()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate token key: %w", err)
	}
	user.TokenKey = tokenKey

	if user.Role == "" {
		user.Role = models.RoleFarmer
	}
	if user.Status == "" {
		user.Status = models.StatusActive
	}

	var passwordHash *string
	if user.PasswordHash != "" {
		passwordHash = &user.PasswordHash
		now := time.Now()
		user.PasswordChangedAt = &now
	}

	var created *models.User
	var profile *models.Profile

	err = r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		userQuery := `
			INSERT INTO users (id, email, password_hash, email_verified, token_key, role, status, password_changed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING ` + userColumns

		var err error
		created, err = scanUserRow(tx.QueryRow(ctx, userQuery,
			user.ID, user.Email, passwordHash, user.EmailVerified,
			user.TokenKey, user.Role, user.Status, user.PasswordChangedAt,
		))
		if err != nil {
			return err
		}

		profileQuery := `
			INSERT INTO profiles (user_id, full_name, role)
			VALUES ($1, $2, $3)
			RETURNING ` + profileColumns

		profile, err = scanProfileRow(tx.QueryRow(ctx, profileQuery, created.ID, fullName, created.Role))
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return created, profile, nil
}

// Update writes the mutable account fields. Rotating TokenKey invalidates every
// token signed for the user.
func (r *UserRepository) Update(ctx context.Context, id string, user *models.User) (*models.User, error) {
	query := `
		UPDATE users SET status = $1, token_key = $2, email_verified = $3, mfa_enabled = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.Status, user.TokenKey, user.EmailVerified, user.MFAEnabled, id,
	))
}

// SetMFAEnabled toggles the flag that forces a second factor at login
func (r *UserRepository) SetMFAEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := r.pool.Exec(ctx, `UPDATE users SET mfa_enabled = $1, updated_at = NOW() WHERE id = $2`, enabled, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

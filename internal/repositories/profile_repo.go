package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/vetconnect/internal/database"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(db *database.DB) *ProfileRepository {
	return &ProfileRepository{pool: db.Pool}
}

const profileColumns = `id, user_id, full_name, role::text, bio, location, phone_number, license_number,
	specialization, profile_image_url, latitude, longitude, is_verified, created_at, updated_at`

func scanProfileRow(scanner rowScanner) (*models.Profile, error) {
	var p models.Profile
	err := scanner.Scan(
		&p.ID, &p.UserID, &p.FullName, &p.Role, &p.Bio, &p.Location, &p.PhoneNumber, &p.LicenseNumber,
		&p.Specialization, &p.ProfileImageURL, &p.Latitude, &p.Longitude, &p.IsVerified, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &p, nil
}

func scanProfileRows(rows pgx.Rows) ([]*models.Profile, error) {
	defer rows.Close()

	profiles := make([]*models.Profile, 0)
	for rows.Next() {
		p, err := scanProfileRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return profiles, nil
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	return scanProfileRow(r.pool.QueryRow(ctx, query, userID))
}

// GetByUserIDs loads several profiles at once, used to resolve display names
func (r *ProfileRepository) GetByUserIDs(ctx context.Context, userIDs []string) ([]*models.Profile, error) {
	if len(userIDs) == 0 {
		return []*models.Profile{}, nil
	}

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = ANY($1::uuid[])`
	rows, err := r.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return scanProfileRows(rows)
}

// Update applies the non-nil fields of upd
func (r *ProfileRepository) Update(ctx context.Context, userID string, upd *models.ProfileUpdate) (*models.Profile, error) {
	query := `
		UPDATE profiles SET
			full_name      = COALESCE($1, full_name),
			bio            = COALESCE($2, bio),
			location       = COALESCE($3, location),
			phone_number   = COALESCE($4, phone_number),
			license_number = COALESCE($5, license_number),
			specialization = COALESCE($6, specialization),
			latitude       = COALESCE($7, latitude),
			longitude      = COALESCE($8, longitude),
			updated_at     = NOW()
		WHERE user_id = $9
		RETURNING ` + profileColumns

	return scanProfileRow(r.pool.QueryRow(ctx, query,
		upd.FullName, upd.Bio, upd.Location, upd.PhoneNumber, upd.LicenseNumber,
		upd.Specialization, upd.Latitude, upd.Longitude, userID,
	))
}

func (r *ProfileRepository) SetImageURL(ctx context.Context, userID, url string) (*models.Profile, error) {
	query := `UPDATE profiles SET profile_image_url = $1, updated_at = NOW() WHERE user_id = $2 RETURNING ` + profileColumns
	return scanProfileRow(r.pool.QueryRow(ctx, query, url, userID))
}

// ListVets returns every veterinarian profile ordered by name
func (r *ProfileRepository) ListVets(ctx context.Context) ([]*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE role = 'veterinarian' ORDER BY full_name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return scanProfileRows(rows)
}

package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/vetconnect/internal/database"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type ConsultationRepository struct {
	pool *pgxpool.Pool
}

func NewConsultationRepository(db *database.DB) *ConsultationRepository {
	return &ConsultationRepository{pool: db.Pool}
}

const consultationColumns = `id, farmer_id, vet_id, animal_id, subject, description, symptoms, urgency_level,
	status::text, image_urls, diagnosis, treatment_plan, follow_up_notes, scheduled_at, completed_at,
	created_at, updated_at`

func scanConsultationRow(scanner rowScanner) (*models.Consultation, error) {
	var c models.Consultation
	var imageURLs pq.StringArray

	err := scanner.Scan(
		&c.ID, &c.FarmerID, &c.VetID, &c.AnimalID, &c.Subject, &c.Description, &c.Symptoms, &c.UrgencyLevel,
		&c.Status, &imageURLs, &c.Diagnosis, &c.TreatmentPlan, &c.FollowUpNotes, &c.ScheduledAt, &c.CompletedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	c.ImageURLs = []string(imageURLs)
	if c.ImageURLs == nil {
		c.ImageURLs = []string{}
	}
	return &c, nil
}

func scanConsultationRows(rows pgx.Rows) ([]*models.Consultation, error) {
	defer rows.Close()

	out := make([]*models.Consultation, 0)
	for rows.Next() {
		c, err := scanConsultationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consultation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (r *ConsultationRepository) Create(ctx context.Context, c *models.Consultation) (*models.Consultation, error) {
	query := `
		INSERT INTO consultations (farmer_id, vet_id, animal_id, subject, description, symptoms, urgency_level, image_urls)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + consultationColumns

	return scanConsultationRow(r.pool.QueryRow(ctx, query,
		c.FarmerID, c.VetID, c.AnimalID, c.Subject, c.Description, c.Symptoms, c.UrgencyLevel,
		pq.Array(c.ImageURLs),
	))
}

func (r *ConsultationRepository) GetByID(ctx context.Context, id string) (*models.Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE id = $1`
	return scanConsultationRow(r.pool.QueryRow(ctx, query, id))
}

// ListForUser returns consultations the user requested or was assigned, newest first
func (r *ConsultationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*models.Consultation, error) {
	query := `
		SELECT ` + consultationColumns + `
		FROM consultations
		WHERE farmer_id = $1 OR vet_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return scanConsultationRows(rows)
}

// ListPending returns unassigned pending requests, newest first
func (r *ConsultationRepository) ListPending(ctx context.Context, limit int) ([]*models.Consultation, error) {
	query := `
		SELECT ` + consultationColumns + `
		FROM consultations
		WHERE status = 'pending' AND vet_id IS NULL
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return scanConsultationRows(rows)
}

// Accept assigns vetID and moves the consultation to in_progress. Only an
// unassigned pending consultation can be accepted; a lost race returns
// ErrInvalidTransition.
func (r *ConsultationRepository) Accept(ctx context.Context, id, vetID string) (*models.Consultation, error) {
	query := `
		UPDATE consultations SET vet_id = $2, status = 'in_progress', updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND vet_id IS NULL
		RETURNING ` + consultationColumns

	c, err := scanConsultationRow(r.pool.QueryRow(ctx, query, id, vetID))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidTransition
	}
	return c, err
}

// Update writes clinical notes and status. fromStatus guards against a
// concurrent status change since the row was read.
func (r *ConsultationRepository) Update(ctx context.Context, c *models.Consultation, fromStatus string) (*models.Consultation, error) {
	query := `
		UPDATE consultations SET
			status = $2, diagnosis = $3, treatment_plan = $4, follow_up_notes = $5,
			scheduled_at = $6, completed_at = $7, updated_at = NOW()
		WHERE id = $1 AND status = $8
		RETURNING ` + consultationColumns

	updated, err := scanConsultationRow(r.pool.QueryRow(ctx, query,
		c.ID, c.Status, c.Diagnosis, c.TreatmentPlan, c.FollowUpNotes,
		c.ScheduledAt, c.CompletedAt, fromStatus,
	))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidTransition
	}
	return updated, err
}

// Touch bumps updated_at so the inbox orders by latest activity
func (r *ConsultationRepository) Touch(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE consultations SET updated_at = NOW() WHERE id = $1`, id)
	return database.MapPostgresError(err)
}

// CountByStatus counts the user's consultations grouped by status
func (r *ConsultationRepository) CountByStatus(ctx context.Context, userID string) (map[string]int, error) {
	query := `
		SELECT status::text, COUNT(*)
		FROM consultations
		WHERE farmer_id = $1 OR vet_id = $1
		GROUP BY status`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	counts := map[string]int{
		models.ConsultationPending:    0,
		models.ConsultationInProgress: 0,
		models.ConsultationCompleted:  0,
		models.ConsultationCancelled:  0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *ConsultationRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM consultations WHERE status = 'pending' AND vet_id IS NULL`).Scan(&n)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}

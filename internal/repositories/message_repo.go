package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/vetconnect/internal/database"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(db *database.DB) *MessageRepository {
	return &MessageRepository{pool: db.Pool}
}

// Sender name comes from the profile join; a deleted profile yields ""
const messageSelect = `
	SELECT m.id, m.consultation_id, m.sender_id, COALESCE(p.full_name, ''), m.message, m.attachment_url, m.created_at
	FROM consultation_messages m
	LEFT JOIN profiles p ON p.user_id = m.sender_id`

func scanMessageRow(scanner rowScanner) (*models.Message, error) {
	var m models.Message
	err := scanner.Scan(&m.ID, &m.ConsultationID, &m.SenderID, &m.SenderName, &m.Message, &m.AttachmentURL, &m.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &m, nil
}

// ListByConsultation returns the thread oldest first
func (r *MessageRepository) ListByConsultation(ctx context.Context, consultationID string) ([]*models.Message, error) {
	query := messageSelect + ` WHERE m.consultation_id = $1 ORDER BY m.created_at ASC, m.id ASC`

	rows, err := r.pool.Query(ctx, query, consultationID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	msgs := make([]*models.Message, 0)
	for rows.Next() {
		m, err := scanMessageRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return msgs, nil
}

func (r *MessageRepository) Create(ctx context.Context, m *models.Message) (*models.Message, error) {
	query := `
		WITH inserted AS (
			INSERT INTO consultation_messages (consultation_id, sender_id, message, attachment_url)
			VALUES ($1, $2, $3, $4)
			RETURNING id, consultation_id, sender_id, message, attachment_url, created_at
		)
		SELECT i.id, i.consultation_id, i.sender_id, COALESCE(p.full_name, ''), i.message, i.attachment_url, i.created_at
		FROM inserted i
		LEFT JOIN profiles p ON p.user_id = i.sender_id`

	return scanMessageRow(r.pool.QueryRow(ctx, query, m.ConsultationID, m.SenderID, m.Message, m.AttachmentURL))
}

// LatestByConsultations returns the newest message of each listed
// consultation, keyed by consultation id. Threads without messages are absent.
func (r *MessageRepository) LatestByConsultations(ctx context.Context, consultationIDs []string) (map[string]*models.Message, error) {
	latest := make(map[string]*models.Message, len(consultationIDs))
	if len(consultationIDs) == 0 {
		return latest, nil
	}

	query := `
		SELECT DISTINCT ON (m.consultation_id)
			m.id, m.consultation_id, m.sender_id, COALESCE(p.full_name, ''), m.message, m.attachment_url, m.created_at
		FROM consultation_messages m
		LEFT JOIN profiles p ON p.user_id = m.sender_id
		WHERE m.consultation_id = ANY($1::uuid[])
		ORDER BY m.consultation_id, m.created_at DESC`

	rows, err := r.pool.Query(ctx, query, consultationIDs)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMessageRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		latest[m.ConsultationID] = m
	}
	return latest, rows.Err()
}

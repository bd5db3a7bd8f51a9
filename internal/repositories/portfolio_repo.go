package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/vetconnect/internal/database"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PortfolioRepository struct {
	pool *pgxpool.Pool
}

func NewPortfolioRepository(db *database.DB) *PortfolioRepository {
	return &PortfolioRepository{pool: db.Pool}
}

const portfolioColumns = `id, vet_id, title, description, category, image_url, created_at, updated_at`

func scanPortfolioRow(scanner rowScanner) (*models.PortfolioItem, error) {
	var p models.PortfolioItem
	err := scanner.Scan(&p.ID, &p.VetID, &p.Title, &p.Description, &p.Category, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &p, nil
}

func (r *PortfolioRepository) ListByVet(ctx context.Context, vetID string) ([]*models.PortfolioItem, error) {
	query := `SELECT ` + portfolioColumns + ` FROM vet_portfolios WHERE vet_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, vetID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	items := make([]*models.PortfolioItem, 0)
	for rows.Next() {
		p, err := scanPortfolioRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio item: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return items, nil
}

func (r *PortfolioRepository) GetByID(ctx context.Context, vetID, id string) (*models.PortfolioItem, error) {
	query := `SELECT ` + portfolioColumns + ` FROM vet_portfolios WHERE id = $1 AND vet_id = $2`
	return scanPortfolioRow(r.pool.QueryRow(ctx, query, id, vetID))
}

func (r *PortfolioRepository) Create(ctx context.Context, p *models.PortfolioItem) (*models.PortfolioItem, error) {
	query := `
		INSERT INTO vet_portfolios (vet_id, title, description, category, image_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + portfolioColumns

	return scanPortfolioRow(r.pool.QueryRow(ctx, query, p.VetID, p.Title, p.Description, p.Category, p.ImageURL))
}

func (r *PortfolioRepository) Update(ctx context.Context, p *models.PortfolioItem) (*models.PortfolioItem, error) {
	query := `
		UPDATE vet_portfolios SET title = $1, description = $2, category = $3, image_url = $4, updated_at = NOW()
		WHERE id = $5 AND vet_id = $6
		RETURNING ` + portfolioColumns

	return scanPortfolioRow(r.pool.QueryRow(ctx, query, p.Title, p.Description, p.Category, p.ImageURL, p.ID, p.VetID))
}

func (r *PortfolioRepository) Delete(ctx context.Context, vetID, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM vet_portfolios WHERE id = $1 AND vet_id = $2`, id, vetID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

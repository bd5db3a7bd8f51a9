package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/vetconnect/internal/database"
	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnimalRepository scopes every query to the owning user
type AnimalRepository struct {
	pool *pgxpool.Pool
}

func NewAnimalRepository(db *database.DB) *AnimalRepository {
	return &AnimalRepository{pool: db.Pool}
}

const animalColumns = `id, owner_id, name, animal_type::text, breed, age_years, age_months, weight_kg::float8,
	medical_history, vaccination_records, image_url, created_at, updated_at`

func scanAnimalRow(scanner rowScanner) (*models.Animal, error) {
	var a models.Animal
	err := scanner.Scan(
		&a.ID, &a.OwnerID, &a.Name, &a.AnimalType, &a.Breed, &a.AgeYears, &a.AgeMonths, &a.WeightKg,
		&a.MedicalHistory, &a.VaccinationRecords, &a.ImageURL, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

func (r *AnimalRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Animal, error) {
	query := `SELECT ` + animalColumns + ` FROM animals WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	animals := make([]*models.Animal, 0)
	for rows.Next() {
		a, err := scanAnimalRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan animal: %w", err)
		}
		animals = append(animals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return animals, nil
}

func (r *AnimalRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Animal, error) {
	query := `SELECT ` + animalColumns + ` FROM animals WHERE id = $1 AND owner_id = $2`
	return scanAnimalRow(r.pool.QueryRow(ctx, query, id, ownerID))
}

func (r *AnimalRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM animals WHERE owner_id = $1`, ownerID).Scan(&n); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}

func (r *AnimalRepository) Create(ctx context.Context, a *models.Animal) (*models.Animal, error) {
	query := `
		INSERT INTO animals (owner_id, name, animal_type, breed, age_years, age_months, weight_kg,
			medical_history, vaccination_records, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + animalColumns

	return scanAnimalRow(r.pool.QueryRow(ctx, query,
		a.OwnerID, a.Name, a.AnimalType, a.Breed, a.AgeYears, a.AgeMonths, a.WeightKg,
		a.MedicalHistory, a.VaccinationRecords, a.ImageURL,
	))
}

// Update overwrites every editable column of the owner's animal
func (r *AnimalRepository) Update(ctx context.Context, a *models.Animal) (*models.Animal, error) {
	query := `
		UPDATE animals SET name = $1, animal_type = $2, breed = $3, age_years = $4, age_months = $5,
			weight_kg = $6, medical_history = $7, vaccination_records = $8, image_url = $9, updated_at = NOW()
		WHERE id = $10 AND owner_id = $11
		RETURNING ` + animalColumns

	return scanAnimalRow(r.pool.QueryRow(ctx, query,
		a.Name, a.AnimalType, a.Breed, a.AgeYears, a.AgeMonths,
		a.WeightKg, a.MedicalHistory, a.VaccinationRecords, a.ImageURL,
		a.ID, a.OwnerID,
	))
}

func (r *AnimalRepository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM animals WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

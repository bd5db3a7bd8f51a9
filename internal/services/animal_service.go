package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/storage"
)

// AnimalRepository defines owner-scoped animal persistence
type AnimalRepository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Animal, error)
	GetByID(ctx context.Context, ownerID, id string) (*models.Animal, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	Create(ctx context.Context, a *models.Animal) (*models.Animal, error)
	Update(ctx context.Context, a *models.Animal) (*models.Animal, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// AnimalInput is the editable part of an animal record
type AnimalInput struct {
	Name               *string
	AnimalType         string
	Breed              *string
	AgeYears           *int
	AgeMonths          *int
	WeightKg           *float64
	MedicalHistory     *string
	VaccinationRecords *string
}

func (in AnimalInput) validate() error {
	if !slices.Contains(models.AnimalTypes, in.AnimalType) {
		return fmt.Errorf("animal type must be one of %s: %w", strings.Join(models.AnimalTypes, ", "), models.ErrBadRequest)
	}
	if in.AgeYears != nil && *in.AgeYears < 0 {
		return fmt.Errorf("age in years cannot be negative: %w", models.ErrBadRequest)
	}
	if in.AgeMonths != nil && (*in.AgeMonths < 0 || *in.AgeMonths > 11) {
		return fmt.Errorf("age in months must be between 0 and 11: %w", models.ErrBadRequest)
	}
	if in.WeightKg != nil && *in.WeightKg < 0 {
		return fmt.Errorf("weight cannot be negative: %w", models.ErrBadRequest)
	}
	return nil
}

func (in AnimalInput) apply(a *models.Animal) {
	a.Name = in.Name
	a.AnimalType = in.AnimalType
	a.Breed = in.Breed
	a.AgeYears = in.AgeYears
	a.AgeMonths = in.AgeMonths
	a.WeightKg = in.WeightKg
	a.MedicalHistory = in.MedicalHistory
	a.VaccinationRecords = in.VaccinationRecords
}

// AnimalService manages the caller's animals. Every query is scoped to
// the owner, so another user's animal reads as not found.
type AnimalService struct {
	repo   AnimalRepository
	images ImageStore
	logger *slog.Logger
}

func NewAnimalService(repo AnimalRepository, images ImageStore, logger *slog.Logger) *AnimalService {
	return &AnimalService{repo: repo, images: images, logger: logger}
}

func (s *AnimalService) List(ctx context.Context, ownerID string) ([]*models.Animal, error) {
	animals, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		s.logger.Error("failed to list animals", slog.String("owner_id", ownerID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	out := make([]*models.Animal, 0, len(animals))
	for _, a := range animals {
		out = append(out, s.present(ctx, a))
	}
	return out, nil
}

func (s *AnimalService) Create(ctx context.Context, ownerID string, in AnimalInput) (*models.Animal, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	a := &models.Animal{OwnerID: ownerID}
	in.apply(a)

	created, err := s.repo.Create(ctx, a)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			return nil, err
		}
		s.logger.Error("failed to create animal", slog.String("owner_id", ownerID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("animal created", slog.String("owner_id", ownerID), slog.String("animal_id", created.ID))
	return s.present(ctx, created), nil
}

func (s *AnimalService) Update(ctx context.Context, ownerID, id string, in AnimalInput) (*models.Animal, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	a, err := s.repo.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	in.apply(a)

	updated, err := s.repo.Update(ctx, a)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
			return nil, err
		}
		s.logger.Error("failed to update animal", slog.String("animal_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return s.present(ctx, updated), nil
}

func (s *AnimalService) Delete(ctx context.Context, ownerID, id string) error {
	a, err := s.repo.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	if a.ImageURL != nil {
		if err := s.images.Remove(ctx, storage.PurposeAnimal, *a.ImageURL); err != nil {
			s.logger.Warn("failed to remove animal image", slog.String("animal_id", id), slog.Any("error", err))
		}
	}
	s.logger.Info("animal deleted", slog.String("owner_id", ownerID), slog.String("animal_id", id))
	return nil
}

// UploadImage replaces the animal's photo
func (s *AnimalService) UploadImage(ctx context.Context, ownerID, id string, file storage.File) (*models.Animal, error) {
	a, err := s.repo.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	path, err := uploadOne(ctx, s.images, storage.PurposeAnimal, ownerID, file)
	if err != nil {
		return nil, err
	}
	previous := a.ImageURL
	a.ImageURL = &path

	updated, err := s.repo.Update(ctx, a)
	if err != nil {
		s.logger.Error("failed to save animal image", slog.String("animal_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if previous != nil {
		if err := s.images.Remove(ctx, storage.PurposeAnimal, *previous); err != nil {
			s.logger.Warn("failed to remove previous animal image", slog.Any("error", err))
		}
	}
	return s.present(ctx, updated), nil
}

func (s *AnimalService) present(ctx context.Context, a *models.Animal) *models.Animal {
	out := *a
	out.ImageURL = signPath(ctx, s.images, s.logger, storage.PurposeAnimal, a.ImageURL)
	return &out
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/storage"
)

// PortfolioRepository defines vet-scoped portfolio persistence
type PortfolioRepository interface {
	ListByVet(ctx context.Context, vetID string) ([]*models.PortfolioItem, error)
	GetByID(ctx context.Context, vetID, id string) (*models.PortfolioItem, error)
	Create(ctx context.Context, p *models.PortfolioItem) (*models.PortfolioItem, error)
	Update(ctx context.Context, p *models.PortfolioItem) (*models.PortfolioItem, error)
	Delete(ctx context.Context, vetID, id string) error
}

type PortfolioInput struct {
	Title       string
	Description *string
	Category    *string
}

// PortfolioService manages the cases a vet shows on their public profile
type PortfolioService struct {
	repo   PortfolioRepository
	images ImageStore
	logger *slog.Logger
}

func NewPortfolioService(repo PortfolioRepository, images ImageStore, logger *slog.Logger) *PortfolioService {
	return &PortfolioService{repo: repo, images: images, logger: logger}
}

func (s *PortfolioService) List(ctx context.Context, vetID string) ([]*models.PortfolioItem, error) {
	items, err := s.repo.ListByVet(ctx, vetID)
	if err != nil {
		s.logger.Error("failed to list portfolio", slog.String("vet_id", vetID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	out := make([]*models.PortfolioItem, 0, len(items))
	for _, item := range items {
		out = append(out, s.present(ctx, item))
	}
	return out, nil
}

func (s *PortfolioService) Create(ctx context.Context, vetID string, in PortfolioInput) (*models.PortfolioItem, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("title is required: %w", models.ErrBadRequest)
	}

	item, err := s.repo.Create(ctx, &models.PortfolioItem{
		VetID:       vetID,
		Title:       title,
		Description: in.Description,
		Category:    in.Category,
	})
	if err != nil {
		s.logger.Error("failed to create portfolio item", slog.String("vet_id", vetID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return s.present(ctx, item), nil
}

func (s *PortfolioService) Update(ctx context.Context, vetID, id string, in PortfolioInput) (*models.PortfolioItem, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("title is required: %w", models.ErrBadRequest)
	}

	item, err := s.repo.GetByID(ctx, vetID, id)
	if err != nil {
		return nil, err
	}
	item.Title = title
	item.Description = in.Description
	item.Category = in.Category

	updated, err := s.repo.Update(ctx, item)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update portfolio item", slog.String("item_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return s.present(ctx, updated), nil
}

func (s *PortfolioService) Delete(ctx context.Context, vetID, id string) error {
	item, err := s.repo.GetByID(ctx, vetID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, vetID, id); err != nil {
		return err
	}
	if item.ImageURL != nil {
		if err := s.images.Remove(ctx, storage.PurposePortfolio, *item.ImageURL); err != nil {
			s.logger.Warn("failed to remove portfolio image", slog.String("item_id", id), slog.Any("error", err))
		}
	}
	return nil
}

// UploadImage attaches one image to a portfolio item
func (s *PortfolioService) UploadImage(ctx context.Context, vetID, id string, file storage.File) (*models.PortfolioItem, error) {
	item, err := s.repo.GetByID(ctx, vetID, id)
	if err != nil {
		return nil, err
	}

	path, err := uploadOne(ctx, s.images, storage.PurposePortfolio, vetID, file)
	if err != nil {
		return nil, err
	}
	previous := item.ImageURL
	item.ImageURL = &path

	updated, err := s.repo.Update(ctx, item)
	if err != nil {
		s.logger.Error("failed to save portfolio image", slog.String("item_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if previous != nil {
		if err := s.images.Remove(ctx, storage.PurposePortfolio, *previous); err != nil {
			s.logger.Warn("failed to remove previous portfolio image", slog.Any("error", err))
		}
	}
	return s.present(ctx, updated), nil
}

func (s *PortfolioService) present(ctx context.Context, p *models.PortfolioItem) *models.PortfolioItem {
	out := *p
	out.ImageURL = signPath(ctx, s.images, s.logger, storage.PurposePortfolio, p.ImageURL)
	return &out
}

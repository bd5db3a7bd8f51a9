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

// ProfileRepository defines profile persistence operations
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
	GetByUserIDs(ctx context.Context, userIDs []string) ([]*models.Profile, error)
	Update(ctx context.Context, userID string, upd *models.ProfileUpdate) (*models.Profile, error)
	SetImageURL(ctx context.Context, userID, url string) (*models.Profile, error)
	ListVets(ctx context.Context) ([]*models.Profile, error)
}

// ProfileService reads and edits the caller's own profile
type ProfileService struct {
	repo   ProfileRepository
	images ImageStore
	logger *slog.Logger
}

func NewProfileService(repo ProfileRepository, images ImageStore, logger *slog.Logger) *ProfileService {
	return &ProfileService{repo: repo, images: images, logger: logger}
}

// Get returns the caller's profile with a signed image URL
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	profile, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to load profile", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return s.present(ctx, profile), nil
}

// Update applies the non-nil fields of upd. Full name cannot be blanked.
func (s *ProfileService) Update(ctx context.Context, userID string, upd *models.ProfileUpdate) (*models.Profile, error) {
	if upd.FullName != nil {
		name := strings.TrimSpace(*upd.FullName)
		if name == "" {
			return nil, fmt.Errorf("full name cannot be empty: %w", models.ErrBadRequest)
		}
		upd.FullName = &name
	}
	if (upd.Latitude == nil) != (upd.Longitude == nil) {
		return nil, fmt.Errorf("latitude and longitude must be set together: %w", models.ErrBadRequest)
	}

	profile, err := s.repo.Update(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
			return nil, err
		}
		s.logger.Error("failed to update profile", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("profile updated", slog.String("user_id", userID))
	return s.present(ctx, profile), nil
}

// UploadImage stores a new avatar and points the profile at it
func (s *ProfileService) UploadImage(ctx context.Context, userID string, file storage.File) (*models.Profile, error) {
	current, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	path, err := uploadOne(ctx, s.images, storage.PurposeProfile, userID, file)
	if err != nil {
		return nil, err
	}

	profile, err := s.repo.SetImageURL(ctx, userID, path)
	if err != nil {
		s.logger.Error("failed to save profile image", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if current.ProfileImageURL != nil && *current.ProfileImageURL != path {
		if err := s.images.Remove(ctx, storage.PurposeProfile, *current.ProfileImageURL); err != nil {
			s.logger.Warn("failed to remove previous profile image", slog.Any("error", err))
		}
	}

	return s.present(ctx, profile), nil
}

func (s *ProfileService) present(ctx context.Context, p *models.Profile) *models.Profile {
	out := *p
	out.ProfileImageURL = signPath(ctx, s.images, s.logger, storage.PurposeProfile, p.ProfileImageURL)
	return &out
}

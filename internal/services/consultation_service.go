package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/realtime"
	"github.com/BradenHooton/vetconnect/internal/storage"
)

const (
	// MaxConsultationImages caps the photos attached to one request
	MaxConsultationImages = 5

	consultationListLimit = 100
	dashboardRecentLimit  = 5
)

// ConsultationRepository defines consultation persistence operations
type ConsultationRepository interface {
	Create(ctx context.Context, c *models.Consultation) (*models.Consultation, error)
	GetByID(ctx context.Context, id string) (*models.Consultation, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]*models.Consultation, error)
	ListPending(ctx context.Context, limit int) ([]*models.Consultation, error)
	Accept(ctx context.Context, id, vetID string) (*models.Consultation, error)
	Update(ctx context.Context, c *models.Consultation, fromStatus string) (*models.Consultation, error)
	Touch(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, userID string) (map[string]int, error)
	CountPending(ctx context.Context) (int, error)
}

// ConsultationInput is a new consultation request
type ConsultationInput struct {
	AnimalID     string
	Subject      string
	Description  string
	Symptoms     *string
	UrgencyLevel string
}

// ConsultationResult is a created consultation plus per-image upload errors
type ConsultationResult struct {
	Consultation *models.Consultation `json:"consultation"`
	UploadErrors []storage.FileError  `json:"upload_errors,omitempty"`
}

// ConsultationService enforces the consultation lifecycle. Access is
// limited to the requesting client and the assigned vet; vets may also
// read unassigned pending requests so they can decide to accept them.
type ConsultationService struct {
	repo      ConsultationRepository
	animals   AnimalRepository
	images    ImageStore
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewConsultationService(repo ConsultationRepository, animals AnimalRepository, images ImageStore, publisher EventPublisher, logger *slog.Logger) *ConsultationService {
	return &ConsultationService{
		repo:      repo,
		animals:   animals,
		images:    images,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Create files a request for one of the caller's animals. Images that fail
// validation are skipped and reported; the request is still created.
func (s *ConsultationService) Create(ctx context.Context, caller Caller, in ConsultationInput, files []storage.File) (*ConsultationResult, error) {
	if !models.IsClient(caller.Role) {
		return nil, fmt.Errorf("only farmers and pet owners can request consultations: %w", models.ErrForbidden)
	}

	subject := strings.TrimSpace(in.Subject)
	description := strings.TrimSpace(in.Description)
	if subject == "" || description == "" {
		return nil, fmt.Errorf("subject and description are required: %w", models.ErrBadRequest)
	}
	urgency := in.UrgencyLevel
	if urgency == "" {
		urgency = "medium"
	}
	if !slices.Contains(models.UrgencyLevels, urgency) {
		return nil, fmt.Errorf("urgency level must be one of %s: %w", strings.Join(models.UrgencyLevels, ", "), models.ErrBadRequest)
	}

	if _, err := s.animals.GetByID(ctx, caller.UserID, in.AnimalID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("animal not found: %w", models.ErrBadRequest)
		}
		return nil, models.ErrInternalServer
	}

	result := &ConsultationResult{}
	imagePaths := []string{}
	if len(files) > 0 {
		uploaded, err := s.images.Upload(ctx, storage.PurposeConsultation, caller.UserID, files, MaxConsultationImages)
		if err != nil {
			if errors.Is(err, storage.ErrTooManyFiles) {
				return nil, fmt.Errorf("%s: %w", err.Error(), models.ErrBadRequest)
			}
			return nil, models.ErrInternalServer
		}
		imagePaths = uploaded.Paths()
		result.UploadErrors = uploaded.Errors
	}

	created, err := s.repo.Create(ctx, &models.Consultation{
		FarmerID:     caller.UserID,
		AnimalID:     in.AnimalID,
		Subject:      subject,
		Description:  description,
		Symptoms:     in.Symptoms,
		UrgencyLevel: urgency,
		ImageURLs:    imagePaths,
	})
	if err != nil {
		s.logger.Error("failed to create consultation", slog.String("user_id", caller.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("consultation requested",
		slog.String("consultation_id", created.ID),
		slog.String("urgency", created.UrgencyLevel))

	result.Consultation = s.present(ctx, created)
	return result, nil
}

// List returns the caller's consultations, newest first
func (s *ConsultationService) List(ctx context.Context, caller Caller) ([]*models.Consultation, error) {
	list, err := s.repo.ListForUser(ctx, caller.UserID, consultationListLimit)
	if err != nil {
		s.logger.Error("failed to list consultations", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return s.presentAll(ctx, list), nil
}

// ListPending returns unassigned requests for vets to pick up
func (s *ConsultationService) ListPending(ctx context.Context, caller Caller) ([]*models.Consultation, error) {
	if caller.Role != models.RoleVeterinarian {
		return nil, models.ErrForbidden
	}
	list, err := s.repo.ListPending(ctx, consultationListLimit)
	if err != nil {
		s.logger.Error("failed to list pending consultations", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return s.presentAll(ctx, list), nil
}

// Get returns one consultation the caller may see
func (s *ConsultationService) Get(ctx context.Context, caller Caller, id string) (*models.Consultation, error) {
	c, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.present(ctx, c), nil
}

func (s *ConsultationService) load(ctx context.Context, caller Caller, id string) (*models.Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsParticipant(caller.UserID) {
		return c, nil
	}
	if caller.Role == models.RoleVeterinarian && c.Status == models.ConsultationPending && c.VetID == nil {
		return c, nil
	}
	return nil, models.ErrNotParticipant
}

// Accept assigns the calling vet to a pending, unassigned consultation
func (s *ConsultationService) Accept(ctx context.Context, caller Caller, id string) (*models.Consultation, error) {
	if caller.Role != models.RoleVeterinarian {
		return nil, models.ErrForbidden
	}

	c, err := s.repo.Accept(ctx, id, caller.UserID)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			if _, getErr := s.repo.GetByID(ctx, id); errors.Is(getErr, models.ErrNotFound) {
				return nil, models.ErrNotFound
			}
		}
		return nil, err
	}

	s.logger.Info("consultation accepted", slog.String("consultation_id", id), slog.String("vet_id", caller.UserID))
	out := s.present(ctx, c)
	s.publishUpdate(ctx, out)
	return out, nil
}

// Update records clinical notes and status changes. The assigned vet may
// edit notes and move the status along its transitions; the requesting
// client may only cancel a pending request.
func (s *ConsultationService) Update(ctx context.Context, caller Caller, id string, upd models.ConsultationUpdate) (*models.Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	isVet := c.VetID != nil && *c.VetID == caller.UserID
	isOwner := c.FarmerID == caller.UserID
	if !isVet && !isOwner {
		return nil, models.ErrNotParticipant
	}

	if isOwner && !isVet {
		notesChanged := upd.Diagnosis != nil || upd.TreatmentPlan != nil || upd.FollowUpNotes != nil || upd.ScheduledAt != nil
		if notesChanged || upd.Status == nil || *upd.Status != models.ConsultationCancelled || c.Status != models.ConsultationPending {
			return nil, fmt.Errorf("only a pending request can be cancelled by its owner: %w", models.ErrForbidden)
		}
	}

	fromStatus := c.Status
	if upd.Status != nil && *upd.Status != c.Status {
		if !models.CanTransition(c.Status, *upd.Status) {
			return nil, fmt.Errorf("cannot move from %s to %s: %w", c.Status, *upd.Status, models.ErrInvalidTransition)
		}
		c.Status = *upd.Status
		if c.Status == models.ConsultationCompleted {
			now := s.now()
			c.CompletedAt = &now
		}
	}
	if upd.Diagnosis != nil {
		c.Diagnosis = upd.Diagnosis
	}
	if upd.TreatmentPlan != nil {
		c.TreatmentPlan = upd.TreatmentPlan
	}
	if upd.FollowUpNotes != nil {
		c.FollowUpNotes = upd.FollowUpNotes
	}
	if upd.ScheduledAt != nil {
		c.ScheduledAt = upd.ScheduledAt
	}

	updated, err := s.repo.Update(ctx, c, fromStatus)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return nil, err
		}
		s.logger.Error("failed to update consultation", slog.String("consultation_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if updated.Status != fromStatus {
		s.logger.Info("consultation status changed",
			slog.String("consultation_id", id),
			slog.String("from", fromStatus),
			slog.String("to", updated.Status))
	}
	out := s.present(ctx, updated)
	s.publishUpdate(ctx, out)
	return out, nil
}

// Dashboard summarises the caller's consultations
func (s *ConsultationService) Dashboard(ctx context.Context, caller Caller) (*models.DashboardSummary, error) {
	counts, err := s.repo.CountByStatus(ctx, caller.UserID)
	if err != nil {
		s.logger.Error("failed to count consultations", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	recent, err := s.repo.ListForUser(ctx, caller.UserID, dashboardRecentLimit)
	if err != nil {
		s.logger.Error("failed to list recent consultations", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	summary := &models.DashboardSummary{
		Role:   caller.Role,
		Counts: counts,
		Recent: s.presentAll(ctx, recent),
	}

	if caller.Role == models.RoleVeterinarian {
		if summary.PendingPool, err = s.repo.CountPending(ctx); err != nil {
			s.logger.Warn("failed to count pending pool", slog.Any("error", err))
		}
	} else {
		if summary.AnimalCount, err = s.animals.CountByOwner(ctx, caller.UserID); err != nil {
			s.logger.Warn("failed to count animals", slog.Any("error", err))
		}
	}

	return summary, nil
}

func (s *ConsultationService) publishUpdate(ctx context.Context, c *models.Consultation) {
	e, err := realtime.NewEvent(realtime.ConsultationTopic(c.ID), realtime.EventUpdate, c)
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish consultation update", slog.String("consultation_id", c.ID), slog.Any("error", err))
	}
}

func (s *ConsultationService) presentAll(ctx context.Context, list []*models.Consultation) []*models.Consultation {
	out := make([]*models.Consultation, 0, len(list))
	for _, c := range list {
		out = append(out, s.present(ctx, c))
	}
	return out
}

// present replaces stored image paths with signed URLs
func (s *ConsultationService) present(ctx context.Context, c *models.Consultation) *models.Consultation {
	out := *c
	out.ImageURLs = make([]string, 0, len(c.ImageURLs))
	for _, path := range c.ImageURLs {
		p := path
		if signed := signPath(ctx, s.images, s.logger, storage.PurposeConsultation, &p); signed != nil {
			out.ImageURLs = append(out.ImageURLs, *signed)
		}
	}
	return &out
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/realtime"
)

const maxMessageLength = 5000

// MessageRepository defines consultation message persistence
type MessageRepository interface {
	ListByConsultation(ctx context.Context, consultationID string) ([]*models.Message, error)
	Create(ctx context.Context, m *models.Message) (*models.Message, error)
	LatestByConsultations(ctx context.Context, consultationIDs []string) (map[string]*models.Message, error)
}

// MessageService stores consultation messages and publishes them to
// the consultation's realtime topic
type MessageService struct {
	messages      MessageRepository
	consultations ConsultationRepository
	profiles      ProfileRepository
	publisher     EventPublisher
	logger        *slog.Logger
}

func NewMessageService(messages MessageRepository, consultations ConsultationRepository, profiles ProfileRepository, publisher EventPublisher, logger *slog.Logger) *MessageService {
	return &MessageService{
		messages:      messages,
		consultations: consultations,
		profiles:      profiles,
		publisher:     publisher,
		logger:        logger,
	}
}

func (s *MessageService) participant(ctx context.Context, userID, consultationID string) (*models.Consultation, error) {
	c, err := s.consultations.GetByID(ctx, consultationID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to load consultation", slog.String("consultation_id", consultationID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !c.IsParticipant(userID) {
		return nil, models.ErrNotParticipant
	}
	return c, nil
}

// List returns the conversation oldest first with sender names
func (s *MessageService) List(ctx context.Context, userID, consultationID string) ([]*models.Message, error) {
	if _, err := s.participant(ctx, userID, consultationID); err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByConsultation(ctx, consultationID)
	if err != nil {
		s.logger.Error("failed to list messages", slog.String("consultation_id", consultationID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	return messages, nil
}

// Send stores a trimmed, non-empty message and publishes it as an INSERT
// event. A publish failure does not fail the send.
func (s *MessageService) Send(ctx context.Context, userID, consultationID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message cannot be empty: %w", models.ErrBadRequest)
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, fmt.Errorf("message cannot exceed %d characters: %w", maxMessageLength, models.ErrBadRequest)
	}

	if _, err := s.participant(ctx, userID, consultationID); err != nil {
		return nil, err
	}

	msg, err := s.messages.Create(ctx, &models.Message{
		ConsultationID: consultationID,
		SenderID:       userID,
		Message:        text,
	})
	if err != nil {
		s.logger.Error("failed to store message", slog.String("consultation_id", consultationID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.consultations.Touch(ctx, consultationID); err != nil {
		s.logger.Warn("failed to bump consultation activity", slog.String("consultation_id", consultationID), slog.Any("error", err))
	}

	event, err := realtime.NewEvent(realtime.ConsultationTopic(consultationID), realtime.EventInsert, msg)
	if err == nil {
		err = s.publisher.Publish(ctx, event)
	}
	if err != nil {
		s.logger.Warn("failed to publish message", slog.String("consultation_id", consultationID), slog.Any("error", err))
	}

	return msg, nil
}

// Inbox lists the caller's consultations by latest activity, each with
// its last message and the other party's name
func (s *MessageService) Inbox(ctx context.Context, userID string) ([]*models.Conversation, error) {
	consultations, err := s.consultations.ListForUser(ctx, userID, consultationListLimit)
	if err != nil {
		s.logger.Error("failed to list consultations for inbox", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if len(consultations) == 0 {
		return []*models.Conversation{}, nil
	}

	ids := make([]string, 0, len(consultations))
	otherIDs := make([]string, 0, len(consultations))
	for _, c := range consultations {
		ids = append(ids, c.ID)
		if other := otherParty(c, userID); other != nil {
			otherIDs = append(otherIDs, *other)
		}
	}

	latest, err := s.messages.LatestByConsultations(ctx, ids)
	if err != nil {
		s.logger.Error("failed to load latest messages", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	names := make(map[string]string, len(otherIDs))
	if len(otherIDs) > 0 {
		profiles, err := s.profiles.GetByUserIDs(ctx, otherIDs)
		if err != nil {
			s.logger.Warn("failed to load inbox names", slog.Any("error", err))
		}
		for _, p := range profiles {
			names[p.UserID] = p.FullName
		}
	}

	inbox := make([]*models.Conversation, 0, len(consultations))
	for _, c := range consultations {
		conv := &models.Conversation{
			ConsultationID: c.ID,
			Subject:        c.Subject,
			Status:         c.Status,
			OtherPartyID:   otherParty(c, userID),
			LastMessage:    latest[c.ID],
			UpdatedAt:      c.UpdatedAt,
		}
		if conv.OtherPartyID != nil {
			conv.OtherPartyName = names[*conv.OtherPartyID]
		}
		if conv.LastMessage != nil && conv.LastMessage.CreatedAt.After(conv.UpdatedAt) {
			conv.UpdatedAt = conv.LastMessage.CreatedAt
		}
		inbox = append(inbox, conv)
	}

	sort.SliceStable(inbox, func(i, j int) bool {
		return inbox[i].UpdatedAt.After(inbox[j].UpdatedAt)
	})
	return inbox, nil
}

// otherParty is the assigned vet for the client and the client for the vet
func otherParty(c *models.Consultation, userID string) *string {
	if c.FarmerID == userID {
		return c.VetID
	}
	id := c.FarmerID
	return &id
}

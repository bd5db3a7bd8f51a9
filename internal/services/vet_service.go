package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BradenHooton/vetconnect/internal/models"
	"github.com/BradenHooton/vetconnect/internal/realtime"
	"github.com/BradenHooton/vetconnect/internal/storage"
)

// PresenceTracker is implemented by realtime.Hub
type PresenceTracker interface {
	Track(ctx context.Context, p realtime.Presence) error
	Untrack(ctx context.Context, p realtime.Presence) error
	Presence() *realtime.PresenceState
}

// HTTPPresenceTTL is how long presence set over HTTP lasts without a refresh.
// Clients without a socket re-post before it runs out.
const HTTPPresenceTTL = 5 * time.Minute

// VetDetail is a public vet profile with their portfolio
type VetDetail struct {
	models.PublicVet
	Portfolio []*models.PortfolioItem `json:"portfolio"`
}

// VetService powers vet discovery and presence
type VetService struct {
	profiles  ProfileRepository
	portfolio *PortfolioService
	presence  PresenceTracker
	images    ImageStore
	logger    *slog.Logger
	now       func() time.Time
	ttl       time.Duration
}

func NewVetService(profiles ProfileRepository, portfolio *PortfolioService, presence PresenceTracker, images ImageStore, logger *slog.Logger) *VetService {
	return &VetService{
		profiles:  profiles,
		portfolio: portfolio,
		presence:  presence,
		images:    images,
		logger:    logger,
		now:       time.Now,
		ttl:       HTTPPresenceTTL,
	}
}

// Search returns vets whose name, location or specialization contains q
// (case-insensitive), online vets first, then by name
func (s *VetService) Search(ctx context.Context, q string) ([]models.PublicVet, error) {
	profiles, err := s.profiles.ListVets(ctx)
	if err != nil {
		s.logger.Error("failed to list vets", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	state := s.presence.Presence()
	vets := make([]models.PublicVet, 0, len(profiles))
	for _, p := range profiles {
		if !matchesVetQuery(p, q) {
			continue
		}
		vets = append(vets, s.toPublic(ctx, p, state))
	}

	SortVets(vets)
	return vets, nil
}

// SortVets orders online vets first, then by name
func SortVets(vets []models.PublicVet) {
	sort.SliceStable(vets, func(i, j int) bool {
		if vets[i].Online != vets[j].Online {
			return vets[i].Online
		}
		return strings.ToLower(vets[i].FullName) < strings.ToLower(vets[j].FullName)
	})
}

func matchesVetQuery(p *models.Profile, q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(p.FullName), q) {
		return true
	}
	if p.Location != nil && strings.Contains(strings.ToLower(*p.Location), q) {
		return true
	}
	return p.Specialization != nil && strings.Contains(strings.ToLower(*p.Specialization), q)
}

// toPublic strips contact details and merges live presence. Coordinates
// from presence win over the stored ones when both are present.
func (s *VetService) toPublic(ctx context.Context, p *models.Profile, state *realtime.PresenceState) models.PublicVet {
	vet := p.ToPublicVet()
	vet.ProfileImageURL = signPath(ctx, s.images, s.logger, storage.PurposeProfile, p.ProfileImageURL)
	if live, ok := state.Get(p.UserID); ok {
		vet.Online = true
		if live.HasLocation() {
			vet.Latitude, vet.Longitude = live.Latitude, live.Longitude
		}
	}
	return vet
}

// Online returns the current presence snapshot
func (s *VetService) Online() []realtime.Presence {
	return s.presence.Presence().Snapshot()
}

// Get returns one vet's public profile and portfolio
func (s *VetService) Get(ctx context.Context, userID string) (*VetDetail, error) {
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to load vet profile", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if p.Role != models.RoleVeterinarian {
		return nil, models.ErrNotFound
	}

	items, err := s.portfolio.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &VetDetail{
		PublicVet: s.toPublic(ctx, p, s.presence.Presence()),
		Portfolio: items,
	}, nil
}

// PresenceFor builds the presence payload a vet broadcasts. It implements
// realtime.Authorizer together with CanSubscribe.
func (s *VetService) PresenceFor(ctx context.Context, userID string) (*realtime.Presence, error) {
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.Role != models.RoleVeterinarian {
		return nil, realtime.ErrNotAllowed
	}
	return &realtime.Presence{
		ID:        p.ID,
		UserID:    p.UserID,
		FullName:  p.FullName,
		OnlineAt:  s.now().UTC().Format(time.RFC3339),
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
	}, nil
}

// GoOnline announces the vet over HTTP, for clients without a socket.
// Coordinates, when both given, override the stored ones. The entry
// expires after HTTPPresenceTTL unless GoOnline is called again.
func (s *VetService) GoOnline(ctx context.Context, userID string, lat, lng *float64) (*realtime.Presence, error) {
	p, err := s.PresenceFor(ctx, userID)
	if err != nil {
		if errors.Is(err, realtime.ErrNotAllowed) {
			return nil, models.ErrForbidden
		}
		return nil, err
	}
	if lat != nil && lng != nil {
		p.Latitude, p.Longitude = lat, lng
	}
	expiresAt := s.now().Add(s.ttl).UTC()
	p.Ref = httpPresenceRef(userID)
	p.ExpiresAt = &expiresAt
	if err := s.presence.Track(ctx, *p); err != nil {
		s.logger.Error("failed to publish presence", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return p, nil
}

// GoOffline removes the presence set by GoOnline. Open sockets of the
// same vet keep their own entries.
func (s *VetService) GoOffline(ctx context.Context, userID string) error {
	if err := s.presence.Untrack(ctx, realtime.Presence{UserID: userID, Ref: httpPresenceRef(userID)}); err != nil {
		s.logger.Error("failed to publish presence leave", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

func httpPresenceRef(userID string) string {
	return "http:" + userID
}

// RealtimeAuthorizer decides topic access for websocket connections
type RealtimeAuthorizer struct {
	*VetService
	consultations ConsultationRepository
}

func NewRealtimeAuthorizer(vets *VetService, consultations ConsultationRepository) *RealtimeAuthorizer {
	return &RealtimeAuthorizer{VetService: vets, consultations: consultations}
}

// CanSubscribe allows everyone on the presence topic and only participants
// on a consultation topic
func (a *RealtimeAuthorizer) CanSubscribe(ctx context.Context, userID, topic string) (bool, error) {
	if topic == realtime.TopicVetPresence {
		return true, nil
	}
	id, ok := realtime.ConsultationIDFromTopic(topic)
	if !ok {
		return false, nil
	}
	c, err := a.consultations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
			return false, nil
		}
		return false, err
	}
	return c.IsParticipant(userID), nil
}

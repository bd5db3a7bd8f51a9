package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Bridge relays events between hub instances. Every published event,
// including the publisher's own, comes back through deliver.
type Bridge interface {
	Publish(ctx context.Context, e Event) error
	Run(ctx context.Context, deliver func(Event)) error
}

// HubMetrics receives fan-out counters
type HubMetrics interface {
	EventPublished(event string)
	EventDropped(topic string)
}

type noopHubMetrics struct{}

func (noopHubMetrics) EventPublished(string) {}
func (noopHubMetrics) EventDropped(string)   {}

// Subscriber is one connection's mailbox
type Subscriber struct {
	ID     string
	UserID string
	send   chan Event
	topics map[string]struct{}
}

// Events is closed when the subscriber is removed from the hub
func (s *Subscriber) Events() <-chan Event {
	return s.send
}

// Hub tracks topic subscriptions and the presence state
type Hub struct {
	id       string
	mu       sync.RWMutex
	topics   map[string]map[*Subscriber]struct{}
	presence *PresenceState
	bridge   Bridge
	metrics  HubMetrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewHub creates a hub. bridge may be nil for a single instance.
func NewHub(bridge Bridge, metrics HubMetrics, logger *slog.Logger) *Hub {
	if metrics == nil {
		metrics = noopHubMetrics{}
	}
	return &Hub{
		id:       uuid.NewString(),
		topics:   make(map[string]map[*Subscriber]struct{}),
		presence: NewPresenceState(),
		bridge:   bridge,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

func (h *Hub) Presence() *PresenceState {
	return h.presence
}

// Run consumes the bridge until ctx is done. Without a bridge it returns at once.
func (h *Hub) Run(ctx context.Context) error {
	if h.bridge == nil {
		return nil
	}
	return h.bridge.Run(ctx, h.Deliver)
}

// NewSubscriber registers a mailbox with room for buffer undelivered events
func (h *Hub) NewSubscriber(userID string, buffer int) *Subscriber {
	return &Subscriber{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan Event, buffer),
		topics: make(map[string]struct{}),
	}
}

// Subscribe adds sub to topic. Presence subscribers immediately receive a
// sync event with the current state.
func (h *Hub) Subscribe(sub *Subscriber, topic string) {
	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	sub.topics[topic] = struct{}{}

	if topic == TopicVetPresence {
		if e, err := NewEvent(TopicVetPresence, EventSync, h.presence.Snapshot()); err == nil {
			h.offer(sub, e)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Unsubscribe(sub *Subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(sub, topic)
}

func (h *Hub) unsubscribeLocked(sub *Subscriber, topic string) {
	delete(sub.topics, topic)
	if subs, ok := h.topics[topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Remove drops every subscription of sub and closes its mailbox
func (h *Hub) Remove(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.topics == nil {
		return
	}
	for topic := range sub.topics {
		h.unsubscribeLocked(sub, topic)
	}
	sub.topics = nil
	close(sub.send)
}

// Subscribers returns the number of subscribers of topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Publish sends e to every subscriber of its topic on every hub instance
func (h *Hub) Publish(ctx context.Context, e Event) error {
	e.Origin = h.id
	h.metrics.EventPublished(e.Event)

	if h.bridge != nil {
		err := h.bridge.Publish(ctx, e)
		if err == nil {
			return nil
		}
		h.logger.Warn("realtime bridge publish failed, delivering locally",
			slog.String("topic", e.Topic),
			slog.Any("error", err))
	}

	h.Deliver(e)
	return nil
}

// Deliver applies presence events and fans e out to local subscribers.
// Subscribers with a full mailbox miss the event.
func (h *Hub) Deliver(e Event) {
	h.presence.Apply(e)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.topics[e.Topic] {
		h.offer(sub, e)
	}
}

func (h *Hub) offer(sub *Subscriber, e Event) {
	select {
	case sub.send <- e:
	default:
		h.metrics.EventDropped(e.Topic)
		h.logger.Warn("realtime subscriber too slow, event dropped",
			slog.String("subscriber_id", sub.ID),
			slog.String("topic", e.Topic))
	}
}

// Track announces p as online
func (h *Hub) Track(ctx context.Context, p Presence) error {
	e, err := NewEvent(TopicVetPresence, EventJoin, presenceDiff{Joins: []Presence{p}, Leaves: []Presence{}})
	if err != nil {
		return err
	}
	return h.Publish(ctx, e)
}

// Untrack announces that the entry with p's ref went offline. Without a
// ref every entry of p.UserID is removed.
func (h *Hub) Untrack(ctx context.Context, p Presence) error {
	e, err := NewEvent(TopicVetPresence, EventLeave, presenceDiff{Joins: []Presence{}, Leaves: []Presence{p}})
	if err != nil {
		return err
	}
	return h.Publish(ctx, e)
}

// Sweep drops presence entries whose expiry has passed and tells local
// subscribers they left. Every replica sweeps its own copy of the state,
// so nothing goes over the bridge.
func (h *Hub) Sweep() int {
	expired := h.presence.Expire(h.now())
	if len(expired) == 0 {
		return 0
	}

	e, err := NewEvent(TopicVetPresence, EventLeave, presenceDiff{Joins: []Presence{}, Leaves: expired})
	if err != nil {
		return len(expired)
	}
	e.Origin = h.id
	h.Deliver(e)
	return len(expired)
}

package realtime

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Presence is what an online vet broadcasts on the presence channel
type Presence struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	FullName  string   `json:"full_name"`
	OnlineAt  string   `json:"online_at"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Ref identifies the connection or client that tracked this entry.
	// A vet stays online while any of their refs is present.
	Ref string `json:"presence_ref,omitempty"`

	// ExpiresAt is set for entries without a live socket behind them
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether every required field is set. Incomplete payloads
// are ignored rather than rejected.
func (p Presence) Valid() bool {
	return p.ID != "" && p.UserID != "" && p.FullName != "" && p.OnlineAt != ""
}

// HasLocation reports whether both coordinates are present
func (p Presence) HasLocation() bool {
	return p.Latitude != nil && p.Longitude != nil
}

type presenceDiff struct {
	Joins  []Presence `json:"joins"`
	Leaves []Presence `json:"leaves"`
}

type presenceEntry struct {
	Presence
	seq uint64
}

// PresenceState is the set of online vets. Each vet may hold several
// entries, one per ref.
type PresenceState struct {
	mu     sync.RWMutex
	online map[string]map[string]presenceEntry // user id -> ref -> entry
	seq    uint64
}

func NewPresenceState() *PresenceState {
	return &PresenceState{online: make(map[string]map[string]presenceEntry)}
}

// Apply folds a join, leave or sync event into the state. It reports
// whether the event was a presence event.
func (s *PresenceState) Apply(e Event) bool {
	if e.Topic != TopicVetPresence {
		return false
	}

	switch e.Event {
	case EventJoin:
		var diff presenceDiff
		if json.Unmarshal(e.Payload, &diff) != nil {
			return true
		}
		s.Join(diff.Joins...)
	case EventLeave:
		var diff presenceDiff
		if json.Unmarshal(e.Payload, &diff) != nil {
			return true
		}
		s.Leave(diff.Leaves...)
	case EventSync:
		var all []Presence
		if json.Unmarshal(e.Payload, &all) != nil {
			return true
		}
		s.Replace(all)
	default:
		return false
	}
	return true
}

// Join adds or refreshes valid presences; invalid ones are skipped
func (s *PresenceState) Join(presences ...Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range presences {
		s.joinLocked(p)
	}
}

func (s *PresenceState) joinLocked(p Presence) {
	if !p.Valid() {
		return
	}
	refs, ok := s.online[p.UserID]
	if !ok {
		refs = make(map[string]presenceEntry)
		s.online[p.UserID] = refs
	}
	s.seq++
	refs[p.Ref] = presenceEntry{Presence: p, seq: s.seq}
}

// Leave removes the entry with the given ref. A presence without a ref
// removes every entry of the user. Only user_id is required.
func (s *PresenceState) Leave(presences ...Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range presences {
		refs, ok := s.online[p.UserID]
		if !ok {
			continue
		}
		if p.Ref == "" {
			delete(s.online, p.UserID)
			continue
		}
		delete(refs, p.Ref)
		if len(refs) == 0 {
			delete(s.online, p.UserID)
		}
	}
}

// Replace discards the current state in favour of the valid entries of all
func (s *PresenceState) Replace(all []Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = make(map[string]map[string]presenceEntry, len(all))
	for _, p := range all {
		s.joinLocked(p)
	}
}

// Expire removes entries whose ExpiresAt is not after now and returns them
func (s *PresenceState) Expire(now time.Time) []Presence {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Presence
	for userID, refs := range s.online {
		for ref, e := range refs {
			if e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
				expired = append(expired, e.Presence)
				delete(refs, ref)
			}
		}
		if len(refs) == 0 {
			delete(s.online, userID)
		}
	}
	return expired
}

// Get returns the most recently tracked entry of userID
func (s *PresenceState) Get(userID string) (Presence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latest(s.online[userID])
}

func (s *PresenceState) IsOnline(userID string) bool {
	_, ok := s.Get(userID)
	return ok
}

// Connections returns how many refs keep userID online
func (s *PresenceState) Connections(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.online[userID])
}

// Snapshot returns one entry per online vet, ordered by name
func (s *PresenceState) Snapshot() []Presence {
	s.mu.RLock()
	out := make([]Presence, 0, len(s.online))
	for _, refs := range s.online {
		if p, ok := latest(refs); ok {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Len returns the number of online vets
func (s *PresenceState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.online)
}

func latest(refs map[string]presenceEntry) (Presence, bool) {
	var (
		best  presenceEntry
		found bool
	)
	for _, e := range refs {
		if !found || e.seq > best.seq {
			best, found = e, true
		}
	}
	return best.Presence, found
}

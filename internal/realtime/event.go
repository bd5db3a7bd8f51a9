// Package realtime fans out row-change and presence events to websocket
// subscribers, optionally across replicas through Redis.
package realtime

import (
	"encoding/json"
	"strings"
)

// TopicVetPresence carries join, leave and sync events for online vets
const TopicVetPresence = "vet-presence"

const consultationTopicPrefix = "consultation:"

// Event names
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventJoin   = "join"
	EventLeave  = "leave"
	EventSync   = "sync"
)

// ConsultationTopic is the topic new messages of a consultation are published on
func ConsultationTopic(consultationID string) string {
	return consultationTopicPrefix + consultationID
}

// ConsultationIDFromTopic returns the consultation id of a consultation topic
func ConsultationIDFromTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, consultationTopicPrefix)
	return id, ok && id != ""
}

// Event is one message delivered to the subscribers of Topic
type Event struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Origin  string          `json:"origin,omitempty"` // hub instance that published it
}

// NewEvent marshals payload into an Event
func NewEvent(topic, event string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Topic: topic, Event: event, Payload: raw}, nil
}

package models

import (
	"time"
)

type Message struct {
	ID             string    `json:"id"`
	ConsultationID string    `json:"consultation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	Message        string    `json:"message"`
	AttachmentURL  *string   `json:"attachment_url"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation is one inbox row: a consultation with its latest message
type Conversation struct {
	ConsultationID string    `json:"consultation_id"`
	Subject        string    `json:"subject"`
	Status         string    `json:"status"`
	OtherPartyID   *string   `json:"other_party_id"`
	OtherPartyName string    `json:"other_party_name"`
	LastMessage    *Message  `json:"last_message"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Package queue defines the domain events exchanged over RabbitMQ and the
// background consumer that handles them.
package queue

import "time"

// Queue names. Each event type has its own durable queue.
const (
	MessageCreatedQueue  = "consultation.message_created"
	VetAvailabilityQueue = "vet.availability_changed"
	VetVerifiedQueue     = "vet.verified"
)

// MessageCreatedEvent is published after a consultation message is stored.
// RecipientEmail is the other participant, empty when unknown.
type MessageCreatedEvent struct {
	ConsultationID string    `json:"consultation_id"`
	MessageID      string    `json:"message_id"`
	SenderID       string    `json:"sender_id"`
	RecipientEmail string    `json:"recipient_email,omitempty"`
	MessageType    string    `json:"message_type"`
	Preview        string    `json:"preview"`
	CreatedAt      time.Time `json:"created_at"`
}

// VetAvailabilityChangedEvent is published when a vet goes online or offline.
type VetAvailabilityChangedEvent struct {
	VetID    string    `json:"vet_id"`
	IsOnline bool      `json:"is_online"`
	At       time.Time `json:"at"`
}

// VetVerifiedEvent is published when an admin verifies a vet.
type VetVerifiedEvent struct {
	VetID      string    `json:"vet_id"`
	Email      string    `json:"email"`
	VerifiedBy string    `json:"verified_by"`
	At         time.Time `json:"at"`
}

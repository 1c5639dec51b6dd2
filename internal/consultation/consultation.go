// Package consultation keeps a live, append-only message feed for one
// consultation room.
package consultation

import (
	"context"
	"io"
	"time"
)

// MessageType distinguishes plain text from attachments and prescriptions.
type MessageType string

const (
	TypeText         MessageType = "text"
	TypeFile         MessageType = "file"
	TypePrescription MessageType = "prescription"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeFile, TypePrescription:
		return true
	}
	return false
}

// Message is immutable once created.
type Message struct {
	ID             string      `json:"id" db:"id"`
	ConsultationID string      `json:"consultation_id" db:"consultation_id"`
	SenderID       string      `json:"sender_id" db:"sender_id"`
	Content        string      `json:"content" db:"content"`
	Type           MessageType `json:"message_type" db:"message_type"`
	FileURL        string      `json:"file_url,omitempty" db:"file_url"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

// NewMessage is the payload for an insert.
type NewMessage struct {
	ConsultationID string      `json:"consultation_id"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	Type           MessageType `json:"message_type"`
	FileURL        string      `json:"file_url,omitempty"`
}

// Store reads and writes the messages table.
type Store interface {
	// ListMessages returns every message of the room ordered by creation time.
	ListMessages(ctx context.Context, consultationID string) ([]Message, error)
	InsertMessage(ctx context.Context, m NewMessage) (Message, error)
}

// Feed opens realtime subscriptions to message inserts.
type Feed interface {
	Subscribe(ctx context.Context, consultationID string) (Subscription, error)
}

// Subscription delivers insert events for one room until closed. Events is
// closed when the subscription ends.
type Subscription interface {
	Events() <-chan Message
	Close() error
}

// FileStore holds attachments.
type FileStore interface {
	Upload(ctx context.Context, path string, r io.Reader, contentType string) error
	PublicURL(path string) string
}

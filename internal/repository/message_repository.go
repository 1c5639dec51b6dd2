package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/pet-care-marketplace/internal/consultation"
)

// MessageRepo stores consultation messages. Rows are never updated.
type MessageRepo struct{ DB *sqlx.DB }

func NewMessageRepo(db *sqlx.DB) *MessageRepo { return &MessageRepo{DB: db} }

// List returns every message of the room in creation order. Ties on
// created_at fall back to insertion order.
func (r *MessageRepo) List(ctx context.Context, consultationID string) ([]consultation.Message, error) {
	out := []consultation.Message{}
	err := r.DB.SelectContext(ctx, &out,
		`SELECT id, consultation_id, sender_id, content, message_type, file_url, created_at
		 FROM consultation_messages WHERE consultation_id=? ORDER BY created_at ASC, seq ASC`, consultationID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Insert stores m and returns the row as it will be broadcast.
func (r *MessageRepo) Insert(ctx context.Context, m consultation.NewMessage) (consultation.Message, error) {
	if m.Type == "" {
		m.Type = consultation.TypeText
	}
	msg := consultation.Message{
		ID:             uuid.NewString(),
		ConsultationID: m.ConsultationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Type:           m.Type,
		FileURL:        m.FileURL,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := r.DB.NamedExecContext(ctx,
		`INSERT INTO consultation_messages (id, consultation_id, sender_id, content, message_type, file_url, created_at)
		 VALUES (:id, :consultation_id, :sender_id, :content, :message_type, :file_url, :created_at)`, msg)
	if err != nil {
		return consultation.Message{}, err
	}
	return msg, nil
}

package model

import "time"

// Consultation statuses.
const (
	ConsultationOpen   = "open"
	ConsultationClosed = "closed"
)

// Consultation is a chat room between one user and one vet.
type Consultation struct {
	ID        string    `db:"id" json:"id"`
	UserID    uint64    `db:"user_id" json:"user_id"`
	VetID     string    `db:"vet_id" json:"vet_id"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

package model

import "time"

// Vet is a veterinarian credential row. A signed-in account whose email
// matches a row here is treated as a vet.
type Vet struct {
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	FullName      string    `db:"full_name" json:"full_name"`
	Specialty     string    `db:"specialty" json:"specialty"`
	LicenseNumber string    `db:"license_number" json:"license_number,omitempty"`
	Verified      bool      `db:"verified" json:"verified"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// VetListing is a vet joined with its availability for directory pages.
type VetListing struct {
	Vet
	IsOnline   bool       `db:"is_online" json:"is_online"`
	LastSeenAt *time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
}

// VetAvailability mirrors `vet_availability`, keyed by vet id.
type VetAvailability struct {
	VetID      string    `db:"vet_id" json:"vet_id"`
	IsOnline   bool      `db:"is_online" json:"is_online"`
	LastSeenAt time.Time `db:"last_seen_at" json:"last_seen_at"`
}

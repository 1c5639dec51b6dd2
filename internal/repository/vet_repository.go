package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/pet-care-marketplace/internal/model"
)

// VetRepo reads and writes vet credentials and their availability.
type VetRepo struct{ DB *sqlx.DB }

func NewVetRepo(db *sqlx.DB) *VetRepo { return &VetRepo{DB: db} }

var ErrVetExists = errors.New("vet already registered")

const vetColumns = "v.id, v.email, v.full_name, v.specialty, v.license_number, v.verified, v.created_at"

// GetByEmail returns the vet registered under email. A missing row yields a
// *NotFoundError carrying PGRST116.
func (r *VetRepo) GetByEmail(ctx context.Context, email string) (model.Vet, error) {
	var v model.Vet
	err := r.DB.GetContext(ctx, &v,
		"SELECT "+vetColumns+" FROM vets v WHERE v.email=? LIMIT 1", normalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return v, notFound("vet")
	}
	return v, err
}

func (r *VetRepo) GetByID(ctx context.Context, id string) (model.Vet, error) {
	var v model.Vet
	err := r.DB.GetContext(ctx, &v,
		"SELECT "+vetColumns+" FROM vets v WHERE v.id=? LIMIT 1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return v, notFound("vet")
	}
	return v, err
}

// List returns vets joined with their availability, online vets first.
// A nil verified returns every vet.
func (r *VetRepo) List(ctx context.Context, verified *bool) ([]model.VetListing, error) {
	q := "SELECT " + vetColumns + ", COALESCE(a.is_online, 0) AS is_online, a.last_seen_at" +
		" FROM vets v LEFT JOIN vet_availability a ON a.vet_id = v.id"
	var args []any
	if verified != nil {
		q += " WHERE v.verified=?"
		args = append(args, *verified)
	}
	q += " ORDER BY is_online DESC, v.full_name ASC"

	out := []model.VetListing{}
	if err := r.DB.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// Create registers a new, unverified vet.
func (r *VetRepo) Create(ctx context.Context, v model.Vet) (model.Vet, error) {
	v.ID = uuid.NewString()
	v.Email = normalizeEmail(v.Email)
	v.Verified = false
	v.CreatedAt = time.Now().UTC().Truncate(time.Second)
	_, err := r.DB.NamedExecContext(ctx,
		`INSERT INTO vets (id, email, full_name, specialty, license_number, verified, created_at)
		 VALUES (:id, :email, :full_name, :specialty, :license_number, :verified, :created_at)`, v)
	if err != nil {
		if isDuplicate(err) {
			return model.Vet{}, ErrVetExists
		}
		return model.Vet{}, err
	}
	return v, nil
}

// Verify marks the vet as verified.
func (r *VetRepo) Verify(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE vets SET verified=? WHERE id=?", true, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// SetAvailability records whether the vet is online and bumps last_seen_at.
func (r *VetRepo) SetAvailability(ctx context.Context, vetID string, online bool) error {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"UPDATE vet_availability SET is_online=?, last_seen_at=? WHERE vet_id=?", online, now, vetID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO vet_availability (vet_id, is_online, last_seen_at) VALUES (?,?,?)", vetID, online, now)
	if isDuplicate(err) {
		// the row exists and already held these values
		return nil
	}
	return err
}

// Availability returns the availability row of vetID.
func (r *VetRepo) Availability(ctx context.Context, vetID string) (model.VetAvailability, error) {
	var a model.VetAvailability
	err := r.DB.GetContext(ctx, &a,
		"SELECT vet_id, is_online, last_seen_at FROM vet_availability WHERE vet_id=?", vetID)
	if errors.Is(err, sql.ErrNoRows) {
		return a, notFound("vet_availability")
	}
	return a, err
}

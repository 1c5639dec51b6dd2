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

type ConsultationRepo struct{ DB *sqlx.DB }

func NewConsultationRepo(db *sqlx.DB) *ConsultationRepo { return &ConsultationRepo{DB: db} }

const consultationColumns = "id, user_id, vet_id, status, created_at"

// Create opens a consultation room between userID and vetID.
func (r *ConsultationRepo) Create(ctx context.Context, userID uint64, vetID string) (model.Consultation, error) {
	c := model.Consultation{
		ID:        uuid.NewString(),
		UserID:    userID,
		VetID:     vetID,
		Status:    model.ConsultationOpen,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err := r.DB.NamedExecContext(ctx,
		"INSERT INTO consultations (id, user_id, vet_id, status, created_at) VALUES (:id, :user_id, :vet_id, :status, :created_at)", c)
	if err != nil {
		return model.Consultation{}, err
	}
	return c, nil
}

func (r *ConsultationRepo) GetByID(ctx context.Context, id string) (model.Consultation, error) {
	var c model.Consultation
	err := r.DB.GetContext(ctx, &c,
		"SELECT "+consultationColumns+" FROM consultations WHERE id=? LIMIT 1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return c, notFound("consultation")
	}
	return c, err
}

// ListForUser returns the user's consultations, newest first.
func (r *ConsultationRepo) ListForUser(ctx context.Context, userID uint64) ([]model.Consultation, error) {
	out := []model.Consultation{}
	err := r.DB.SelectContext(ctx, &out,
		"SELECT "+consultationColumns+" FROM consultations WHERE user_id=? ORDER BY created_at DESC, id ASC", userID)
	return out, err
}

// ListForVet returns the vet's consultations, newest first.
func (r *ConsultationRepo) ListForVet(ctx context.Context, vetID string) ([]model.Consultation, error) {
	out := []model.Consultation{}
	err := r.DB.SelectContext(ctx, &out,
		"SELECT "+consultationColumns+" FROM consultations WHERE vet_id=? ORDER BY created_at DESC, id ASC", vetID)
	return out, err
}

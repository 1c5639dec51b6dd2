package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/iliyamo/pet-care-marketplace/internal/model"
	"github.com/iliyamo/pet-care-marketplace/internal/repository"
	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

// Admins is the admin membership store.
type Admins interface {
	IsAdmin(ctx context.Context, userID uint64) (bool, error)
}

// Vets is the vet credential store.
type Vets interface {
	GetByEmail(ctx context.Context, email string) (model.Vet, error)
	SetAvailability(ctx context.Context, vetID string, online bool) error
}

// RoleDirectory answers session.Directory questions from the database.
type RoleDirectory struct {
	Admins Admins
	Vets   Vets
}

var _ session.Directory = (*RoleDirectory)(nil)

func NewRoleDirectory(a *repository.AdminRepo, v *repository.VetRepo) *RoleDirectory {
	return &RoleDirectory{Admins: a, Vets: v}
}

func (d *RoleDirectory) IsAdmin(ctx context.Context, userID string) (bool, error) {
	id, err := strconv.ParseUint(userID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("user id %q: %w", userID, err)
	}
	return d.Admins.IsAdmin(ctx, id)
}

// VetByEmail returns the repository's *NotFoundError unchanged so callers
// can read its PGRST116 code.
func (d *RoleDirectory) VetByEmail(ctx context.Context, email string) (session.VetCredential, error) {
	v, err := d.Vets.GetByEmail(ctx, email)
	if err != nil {
		return session.VetCredential{}, err
	}
	return session.VetCredential{ID: v.ID, Email: v.Email, Name: v.FullName, Verified: v.Verified}, nil
}

func (d *RoleDirectory) SetVetAvailability(ctx context.Context, vetID string, online bool) error {
	return d.Vets.SetAvailability(ctx, vetID, online)
}

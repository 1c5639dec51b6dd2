package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/iliyamo/pet-care-marketplace/internal/consultation"
	"github.com/iliyamo/pet-care-marketplace/internal/model"
	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

var (
	_ session.AuthProvider   = (*Client)(nil)
	_ session.Directory      = (*Client)(nil)
	_ consultation.Store     = (*Client)(nil)
	_ consultation.Feed      = (*Client)(nil)
	_ consultation.FileStore = (*Client)(nil)
)

// IsAdmin calls the is_admin procedure.
func (c *Client) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var ok bool
	err := c.do(ctx, http.MethodPost, "/v1/rpc/is_admin", map[string]string{"user_id": userID}, &ok)
	return ok, err
}

// VetByEmail looks up a vet credential. A missing credential is an
// *APIError with code PGRST116.
func (c *Client) VetByEmail(ctx context.Context, email string) (session.VetCredential, error) {
	var v model.Vet
	if err := c.do(ctx, http.MethodGet, "/v1/vets/lookup?email="+url.QueryEscape(email), nil, &v); err != nil {
		return session.VetCredential{}, err
	}
	return session.VetCredential{ID: v.ID, Email: v.Email, Name: v.FullName, Verified: v.Verified}, nil
}

func (c *Client) SetVetAvailability(ctx context.Context, vetID string, online bool) error {
	return c.do(ctx, http.MethodPut, "/v1/vets/"+url.PathEscape(vetID)+"/availability", map[string]bool{"is_online": online}, nil)
}

// Me is the caller as the server resolves it.
type Me struct {
	UserID string       `json:"user_id"`
	Email  string       `json:"email"`
	Role   session.Role `json:"role"`
	VetID  string       `json:"vet_id,omitempty"`
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var me Me
	err := c.do(ctx, http.MethodGet, "/v1/me", nil, &me)
	return me, err
}

// ListVets returns the public directory of verified vets.
func (c *Client) ListVets(ctx context.Context) ([]model.VetListing, error) {
	var out []model.VetListing
	err := c.do(ctx, http.MethodGet, "/v1/vets", nil, &out)
	return out, err
}

// OnboardVet registers the signed-in account as an unverified vet.
func (c *Client) OnboardVet(ctx context.Context, fullName, specialty, license string) (model.Vet, error) {
	var v model.Vet
	err := c.do(ctx, http.MethodPost, "/v1/vets", map[string]string{
		"full_name": fullName, "specialty": specialty, "license_number": license,
	}, &v)
	return v, err
}

// PendingVets lists vets by verification state. Admin only.
func (c *Client) PendingVets(ctx context.Context, verified bool) ([]model.VetListing, error) {
	var out []model.VetListing
	err := c.do(ctx, http.MethodGet, "/v1/admin/vets?verified="+strconv.FormatBool(verified), nil, &out)
	return out, err
}

func (c *Client) VerifyVet(ctx context.Context, vetID string) (model.Vet, error) {
	var v model.Vet
	err := c.do(ctx, http.MethodPost, "/v1/admin/vets/"+url.PathEscape(vetID)+"/verify", nil, &v)
	return v, err
}

func (c *Client) OpenConsultation(ctx context.Context, vetID string) (model.Consultation, error) {
	var room model.Consultation
	err := c.do(ctx, http.MethodPost, "/v1/consultations", map[string]string{"vet_id": vetID}, &room)
	return room, err
}

func (c *Client) Consultations(ctx context.Context) ([]model.Consultation, error) {
	var out []model.Consultation
	err := c.do(ctx, http.MethodGet, "/v1/consultations", nil, &out)
	return out, err
}

func (c *Client) ListMessages(ctx context.Context, consultationID string) ([]consultation.Message, error) {
	var out []consultation.Message
	err := c.do(ctx, http.MethodGet, "/v1/consultations/"+url.PathEscape(consultationID)+"/messages", nil, &out)
	return out, err
}

func (c *Client) InsertMessage(ctx context.Context, m consultation.NewMessage) (consultation.Message, error) {
	var out consultation.Message
	err := c.do(ctx, http.MethodPost, "/v1/consultations/"+url.PathEscape(m.ConsultationID)+"/messages", m, &out)
	return out, err
}

package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/pet-care-marketplace/internal/middleware"
	"github.com/iliyamo/pet-care-marketplace/internal/model"
	"github.com/iliyamo/pet-care-marketplace/internal/queue"
	"github.com/iliyamo/pet-care-marketplace/internal/repository"
	"github.com/iliyamo/pet-care-marketplace/internal/service"
	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

// VetHandler serves the vet directory, onboarding, availability and the
// admin verification queue.
type VetHandler struct {
	Vets   *repository.VetRepo
	Events *service.Publisher
	// Redis and CachePrefix locate the public listing cache, which is purged
	// whenever a listed field changes. Redis may be nil.
	Redis       *redis.Client
	CachePrefix string
}

func NewVetHandler(v *repository.VetRepo, events *service.Publisher, rdb *redis.Client, cachePrefix string) *VetHandler {
	if v == nil {
		panic("nil repository passed to NewVetHandler")
	}
	return &VetHandler{Vets: v, Events: events, Redis: rdb, CachePrefix: cachePrefix}
}

func (h *VetHandler) purge(c echo.Context) {
	middleware.PurgeCache(c.Request().Context(), h.Redis, h.CachePrefix)
}

// List handles GET /v1/vets: verified vets with availability, online first.
func (h *VetHandler) List(c echo.Context) error {
	verified := true
	vets, err := h.Vets.List(c.Request().Context(), &verified)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	for i := range vets {
		vets[i].LicenseNumber = ""
	}
	return c.JSON(http.StatusOK, vets)
}

// Lookup handles GET /v1/vets/lookup?email=. Callers may look up their own
// email; admins may look up any.
func (h *VetHandler) Lookup(c echo.Context) error {
	email := strings.ToLower(strings.TrimSpace(c.QueryParam("email")))
	if email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	if email != strings.ToLower(middleware.Email(c)) && middleware.Role(c) != session.RoleAdmin {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	v, err := h.Vets.GetByEmail(c.Request().Context(), email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundJSON(c, "vet not found")
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, v)
}

type onboardReq struct {
	FullName      string `json:"full_name"`
	Specialty     string `json:"specialty"`
	LicenseNumber string `json:"license_number"`
}

// Onboard handles POST /v1/vets. The credential is registered under the
// caller's own email and starts unverified.
func (h *VetHandler) Onboard(c echo.Context) error {
	var req onboardReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.LicenseNumber = strings.TrimSpace(req.LicenseNumber)
	if req.FullName == "" || req.LicenseNumber == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "full_name and license_number required"})
	}
	if middleware.Role(c) == session.RoleAdmin {
		return c.JSON(http.StatusConflict, echo.Map{"error": "admins cannot register as vets"})
	}
	v, err := h.Vets.Create(c.Request().Context(), model.Vet{
		Email:         middleware.Email(c),
		FullName:      req.FullName,
		Specialty:     strings.TrimSpace(req.Specialty),
		LicenseNumber: req.LicenseNumber,
	})
	if err != nil {
		if errors.Is(err, repository.ErrVetExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "vet already registered"})
		}
		log.Printf("vet: onboard %s: %v", middleware.Email(c), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create vet failed"})
	}
	return c.JSON(http.StatusCreated, v)
}

// SetAvailability handles PUT /v1/vets/:id/availability {"is_online": bool}.
// Only the vet itself may change it; last_seen_at is set by the server.
func (h *VetHandler) SetAvailability(c echo.Context) error {
	id := c.Param("id")
	if middleware.Role(c) != session.RoleVet || middleware.VetID(c) != id {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	var req struct {
		IsOnline *bool `json:"is_online"`
	}
	if err := c.Bind(&req); err != nil || req.IsOnline == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "is_online required"})
	}
	ctx := c.Request().Context()
	if err := h.Vets.SetAvailability(ctx, id, *req.IsOnline); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	h.purge(c)
	h.Events.PublishAsync(ctx, queue.VetAvailabilityQueue, queue.VetAvailabilityChangedEvent{
		VetID: id, IsOnline: *req.IsOnline, At: time.Now().UTC(),
	})
	a, err := h.Vets.Availability(ctx, id)
	if err != nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, a)
}

// AdminList handles GET /v1/admin/vets?verified=true|false.
func (h *VetHandler) AdminList(c echo.Context) error {
	var filter *bool
	if raw := c.QueryParam("verified"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "verified must be true or false"})
		}
		filter = &b
	}
	vets, err := h.Vets.List(c.Request().Context(), filter)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, vets)
}

// Verify handles POST /v1/admin/vets/:id/verify.
func (h *VetHandler) Verify(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := h.Vets.Verify(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundJSON(c, "vet not found")
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	h.purge(c)
	v, err := h.Vets.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	h.Events.PublishAsync(ctx, queue.VetVerifiedQueue, queue.VetVerifiedEvent{
		VetID: v.ID, Email: v.Email, VerifiedBy: middleware.UserID(c), At: time.Now().UTC(),
	})
	return c.JSON(http.StatusOK, v)
}

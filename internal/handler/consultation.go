package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pet-care-marketplace/internal/consultation"
	"github.com/iliyamo/pet-care-marketplace/internal/middleware"
	"github.com/iliyamo/pet-care-marketplace/internal/model"
	"github.com/iliyamo/pet-care-marketplace/internal/queue"
	"github.com/iliyamo/pet-care-marketplace/internal/realtime"
	"github.com/iliyamo/pet-care-marketplace/internal/repository"
	"github.com/iliyamo/pet-care-marketplace/internal/service"
	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

// ConsultationHandler serves consultation rooms, their messages and the live
// insert stream.
type ConsultationHandler struct {
	Rooms    *repository.ConsultationRepo
	Messages *repository.MessageRepo
	Vets     *repository.VetRepo
	Users    *repository.UserRepo
	Bus      realtime.Bus
	Events   *service.Publisher
	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
}

func NewConsultationHandler(rooms *repository.ConsultationRepo, msgs *repository.MessageRepo, vets *repository.VetRepo, users *repository.UserRepo, bus realtime.Bus, events *service.Publisher) *ConsultationHandler {
	if rooms == nil || msgs == nil || vets == nil || users == nil || bus == nil {
		panic("nil dependency passed to NewConsultationHandler")
	}
	return &ConsultationHandler{Rooms: rooms, Messages: msgs, Vets: vets, Users: users, Bus: bus, Events: events, Heartbeat: 25 * time.Second}
}

// Create handles POST /v1/consultations {"vet_id": "..."}.
func (h *ConsultationHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req struct {
		VetID string `json:"vet_id"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.VetID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "vet_id required"})
	}
	ctx := c.Request().Context()
	vet, err := h.Vets.GetByID(ctx, req.VetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundJSON(c, "vet not found")
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if !vet.Verified {
		return c.JSON(http.StatusConflict, echo.Map{"error": "vet is not verified"})
	}
	room, err := h.Rooms.Create(ctx, uid, vet.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create consultation failed"})
	}
	return c.JSON(http.StatusCreated, room)
}

// List handles GET /v1/consultations: a vet sees its patients' rooms,
// everyone else the rooms they opened.
func (h *ConsultationHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		rooms []model.Consultation
		err   error
	)
	if middleware.Role(c) == session.RoleVet {
		rooms, err = h.Rooms.ListForVet(ctx, middleware.VetID(c))
	} else {
		uid, uerr := getUserID(c)
		if uerr != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		rooms, err = h.Rooms.ListForUser(ctx, uid)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, rooms)
}

// ListMessages handles GET /v1/consultations/:id/messages in creation order.
func (h *ConsultationHandler) ListMessages(c echo.Context) error {
	room, err := participantRoom(c, h.Rooms, c.Param("id"))
	if err != nil {
		return roomError(c, err)
	}
	msgs, err := h.Messages.List(c.Request().Context(), room.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, msgs)
}

type postMessageReq struct {
	Content string                   `json:"content"`
	Type    consultation.MessageType `json:"message_type"`
	FileURL string                   `json:"file_url"`
}

// PostMessage handles POST /v1/consultations/:id/messages. The sender is
// always the caller. The stored row is broadcast to the room's stream.
func (h *ConsultationHandler) PostMessage(c echo.Context) error {
	room, err := participantRoom(c, h.Rooms, c.Param("id"))
	if err != nil {
		return roomError(c, err)
	}
	if room.Status != model.ConsultationOpen {
		return c.JSON(http.StatusConflict, echo.Map{"error": "consultation is closed"})
	}
	var req postMessageReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Type == "" {
		req.Type = consultation.TypeText
	}
	if !req.Type.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown message_type"})
	}
	if strings.TrimSpace(req.Content) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "content required"})
	}
	if req.Type == consultation.TypeFile && req.FileURL == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file_url required for file messages"})
	}

	ctx := c.Request().Context()
	m, err := h.Messages.Insert(ctx, consultation.NewMessage{
		ConsultationID: room.ID,
		SenderID:       middleware.UserID(c),
		Content:        req.Content,
		Type:           req.Type,
		FileURL:        req.FileURL,
	})
	if err != nil {
		log.Printf("consultation: insert into %s: %v", room.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "send failed"})
	}
	if err := h.Bus.Publish(ctx, m); err != nil {
		log.Printf("consultation: broadcast %s: %v", m.ID, err)
	}
	h.Events.PublishAsync(ctx, queue.MessageCreatedQueue, queue.MessageCreatedEvent{
		ConsultationID: room.ID,
		MessageID:      m.ID,
		SenderID:       m.SenderID,
		RecipientEmail: h.recipientEmail(ctx, room, m.SenderID),
		MessageType:    string(m.Type),
		Preview:        preview(m.Content),
		CreatedAt:      m.CreatedAt,
	})
	return c.JSON(http.StatusCreated, m)
}

// recipientEmail is the other participant's address, or "" when it cannot
// be loaded.
func (h *ConsultationHandler) recipientEmail(ctx context.Context, room model.Consultation, senderID string) string {
	if senderID == formatID(room.UserID) {
		v, err := h.Vets.GetByID(ctx, room.VetID)
		if err != nil {
			return ""
		}
		return v.Email
	}
	u, err := h.Users.GetByID(ctx, room.UserID)
	if err != nil {
		return ""
	}
	return u.Email
}

func preview(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > 140 {
		return string(r[:140]) + "…"
	}
	return string(r)
}

// Stream handles GET /v1/consultations/:id/stream as server-sent events.
// Each stored message is written as an "INSERT" event whose data is the
// message row. The stream ends when the client disconnects.
func (h *ConsultationHandler) Stream(c echo.Context) error {
	room, err := participantRoom(c, h.Rooms, c.Param("id"))
	if err != nil {
		return roomError(c, err)
	}
	ctx := c.Request().Context()
	sub, err := h.Bus.Subscribe(ctx, room.ID)
	if err != nil {
		log.Printf("consultation: subscribe %s: %v", room.ID, err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "realtime unavailable"})
	}
	defer sub.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(res, ": subscribed\n\n"); err != nil {
		return nil
	}
	res.Flush()

	beat := h.Heartbeat
	if beat <= 0 {
		beat = 25 * time.Second
	}
	ticker := time.NewTicker(beat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case m, ok := <-sub.Events():
			if !ok {
				return nil
			}
			data, err := json.Marshal(m)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "id: %s\nevent: %s\ndata: %s\n\n", m.ID, realtime.EventInsert, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

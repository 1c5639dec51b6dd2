package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pet-care-marketplace/internal/middleware"
	"github.com/iliyamo/pet-care-marketplace/internal/model"
	"github.com/iliyamo/pet-care-marketplace/internal/repository"
	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

// getUserID parses the authenticated user id set by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(middleware.UserID(c), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid user_id in context")
	}
	return id, nil
}

// notFoundJSON answers 404 with the PGRST116 code so clients can tell a
// missing row from a failed query.
func notFoundJSON(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, echo.Map{"error": msg, "code": repository.NotFoundCode})
}

// RoomReader loads consultation rooms.
type RoomReader interface {
	GetByID(ctx context.Context, id string) (model.Consultation, error)
}

// participantRoom loads the room and checks the caller takes part in it,
// either as its user or as its vet.
func participantRoom(c echo.Context, rooms RoomReader, id string) (model.Consultation, error) {
	room, err := rooms.GetByID(c.Request().Context(), id)
	if err != nil {
		return room, err
	}
	uid, _ := getUserID(c)
	if room.UserID == uid {
		return room, nil
	}
	if middleware.Role(c) == session.RoleVet && middleware.VetID(c) == room.VetID {
		return room, nil
	}
	return room, repository.ErrForbidden
}

// roomError maps participantRoom failures to responses.
func roomError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFoundJSON(c, "consultation not found")
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
}

func parseID(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

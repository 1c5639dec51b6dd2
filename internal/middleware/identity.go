package middleware

// identity.go holds the context keys the auth middleware fills and the
// accessors handlers use to read them back.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

const (
	keyUserID = "user_id"
	keyEmail  = "email"
	keyRole   = "role"
	keyVetID  = "vet_id"
)

// UserID returns the authenticated user id, or "" for guests.
func UserID(c echo.Context) string {
	s, _ := c.Get(keyUserID).(string)
	return s
}

func Email(c echo.Context) string {
	s, _ := c.Get(keyEmail).(string)
	return s
}

// Role returns the role resolved by ResolveRole, or anonymous when the
// request did not pass through it.
func Role(c echo.Context) session.Role {
	if r, ok := c.Get(keyRole).(session.Role); ok {
		return r
	}
	return session.RoleAnonymous
}

// VetID is set only when the caller resolved to a vet.
func VetID(c echo.Context) string {
	s, _ := c.Get(keyVetID).(string)
	return s
}

// subject is the rate-limit identity of the caller.
func subject(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}

package middleware

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

// ResolveRole derives the caller's role with the same precedence clients use:
// admin membership first, then a vet credential matching the email, else
// user. It must run after JWTAuth. A lookup that fails outright answers 503
// rather than guessing a role.
func ResolveRole(dir session.Directory) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := session.Session{UserID: UserID(c), Email: Email(c)}
			res := session.ResolveRole(c.Request().Context(), dir, s)
			role, ok := res.Role()
			if !ok {
				log.Printf("middleware: role for user %s unresolved: %s", s.UserID, res.Reason)
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "role lookup failed"})
			}
			if res.FailOpen {
				log.Printf("middleware: role for user %s failed open: %s", s.UserID, res.Reason)
			}
			c.Set(keyRole, role)
			if res.VetID != "" {
				c.Set(keyVetID, res.VetID)
			}
			return next(c)
		}
	}
}

// RequireRole rejects callers whose resolved role is not listed with 403.
func RequireRole(roles ...session.Role) echo.MiddlewareFunc {
	allowed := make(map[session.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Role(c)] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

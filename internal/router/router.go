// Package router registers the HTTP routes of the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pet-care-marketplace/internal/handler"
	"github.com/iliyamo/pet-care-marketplace/internal/middleware"
	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

// Guard carries what protected groups need: the JWT secret and the role
// directory used to resolve the caller on every request.
type Guard struct {
	Secret string
	Dir    session.Directory
}

// group returns /v1<prefix> behind JWT auth and role resolution.
func (g Guard) group(e *echo.Echo, prefix string, mw ...echo.MiddlewareFunc) *echo.Group {
	chain := append([]echo.MiddlewareFunc{middleware.JWTAuth(g.Secret), middleware.ResolveRole(g.Dir)}, mw...)
	return e.Group("/v1"+prefix, chain...)
}

// RegisterRoutes registers routes that need no authentication.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterAuth registers token issuance under /v1/auth and the protected
// identity endpoints.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, rpc *handler.RPCHandler, g Guard, limit echo.MiddlewareFunc) {
	pub := e.Group("/v1/auth", limit)
	pub.POST("/register", a.Register)
	pub.POST("/login", a.Login)
	pub.POST("/refresh", a.Refresh)
	// logout accepts a refresh token or a bearer token, so it is not behind JWTAuth
	pub.POST("/logout", a.Logout)

	me := g.group(e, "")
	me.GET("/me", a.Me)
	me.POST("/rpc/is_admin", rpc.IsAdmin)
}

// RegisterVets registers the public directory, vet self-service and the
// admin verification queue. cache wraps only the public listing.
func RegisterVets(e *echo.Echo, v *handler.VetHandler, g Guard, cache echo.MiddlewareFunc) {
	e.GET("/v1/vets", v.List, cache)

	vets := g.group(e, "/vets")
	vets.GET("/lookup", v.Lookup)
	vets.POST("", v.Onboard, middleware.RequireRole(session.RoleUser))
	vets.PUT("/:id/availability", v.SetAvailability, middleware.RequireRole(session.RoleVet))

	admin := g.group(e, "/admin", middleware.RequireRole(session.RoleAdmin))
	admin.GET("/vets", v.AdminList)
	admin.POST("/vets/:id/verify", v.Verify)
}

// RegisterConsultations registers rooms, messages, the live stream and
// attachment storage. limit throttles writes.
func RegisterConsultations(e *echo.Echo, h *handler.ConsultationHandler, s *handler.StorageHandler, g Guard, limit echo.MiddlewareFunc) {
	rooms := g.group(e, "/consultations")
	rooms.POST("", h.Create, middleware.RequireRole(session.RoleUser), limit)
	rooms.GET("", h.List)
	rooms.GET("/:id/messages", h.ListMessages)
	rooms.POST("/:id/messages", h.PostMessage, limit)
	rooms.GET("/:id/stream", h.Stream)

	files := g.group(e, "/storage")
	files.PUT("/:bucket/*", s.Upload, limit)
	e.GET("/storage/:bucket/*", s.Download)
}

// Package access classifies navigable paths and decides whether the current
// caller may view them.
package access

import (
	"strings"

	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

// Notices shown alongside authorization redirects.
const (
	AdminRequired = "Access denied: Admin privileges required"
	VetRequired   = "Access denied: Veterinarian privileges required"
)

var publicPaths = map[string]bool{
	"/":               true,
	"/auth":           true,
	"/vet-auth":       true,
	"/admin-auth":     true,
	"/vet-onboarding": true,
}

// Route is the static classification of a path.
type Route struct {
	Public bool
	// Requires is the role a protected route demands; empty means any
	// authenticated caller.
	Requires session.Role
}

// Classify depends only on the path string.
func Classify(path string) Route {
	if publicPaths[path] {
		return Route{Public: true}
	}
	switch {
	case strings.HasPrefix(path, "/admin"):
		return Route{Requires: session.RoleAdmin}
	case strings.HasPrefix(path, "/vet-dashboard"):
		return Route{Requires: session.RoleVet}
	}
	return Route{}
}

// Decision is the outcome of Authorize. When Pending is set no decision was
// made yet.
type Decision struct {
	Pending  bool
	Redirect string
	Notice   string
}

// Allowed reports whether the caller may stay on the path.
func (d Decision) Allowed() bool { return !d.Pending && d.Redirect == "" }

// Authorize decides whether path may be shown for the given session and
// role. It is a pure function and is re-run whenever any input changes.
func Authorize(path string, s *session.Session, role session.Role, loading bool) Decision {
	if loading {
		return Decision{Pending: true}
	}
	route := Classify(path)
	if route.Public {
		return Decision{}
	}
	if s == nil {
		return Decision{Redirect: signInPath(path)}
	}
	switch route.Requires {
	case session.RoleAdmin:
		if role != session.RoleAdmin {
			return Decision{Redirect: "/", Notice: AdminRequired}
		}
	case session.RoleVet:
		if role != session.RoleVet {
			return Decision{Redirect: "/", Notice: VetRequired}
		}
	}
	return Decision{}
}

// signInPath picks the sign-in page by path prefix alone.
func signInPath(path string) string {
	switch {
	case strings.HasPrefix(path, "/admin"):
		return "/admin-auth"
	case strings.HasPrefix(path, "/vet"):
		return "/vet-auth"
	}
	return "/auth"
}

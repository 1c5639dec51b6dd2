package session

import (
	"context"
	"fmt"
)

// Kind tags the outcome of a role resolution.
type Kind int

const (
	// Unresolved means a lookup failed and nothing can be concluded; the
	// caller keeps whatever role it had.
	Unresolved Kind = iota
	ResolvedUser
	ResolvedVet
	ResolvedAdmin
)

func (k Kind) String() string {
	switch k {
	case ResolvedUser:
		return "user"
	case ResolvedVet:
		return "vet"
	case ResolvedAdmin:
		return "admin"
	}
	return "unresolved"
}

// Resolution is the result of ResolveRole.
type Resolution struct {
	Kind Kind
	// VetID is set when Kind is ResolvedVet.
	VetID string
	// Reason explains an Unresolved or fail-open result.
	Reason error
	// FailOpen marks a result produced by an unexpected failure. The caller
	// is granted the lowest authenticated role and must be told about it.
	FailOpen bool
}

// Role maps the resolution to a Role. ok is false for Unresolved.
func (r Resolution) Role() (role Role, ok bool) {
	switch r.Kind {
	case ResolvedAdmin:
		return RoleAdmin, true
	case ResolvedVet:
		return RoleVet, true
	case ResolvedUser:
		return RoleUser, true
	}
	return "", false
}

// ResolveRole derives the role of s with precedence admin > vet > user.
//
// The admin check is keyed by user id and runs first; a failed check aborts
// because it is not proof of non-admin. The vet lookup is keyed by email and
// treats NotFoundCode as a plain negative. Any panic raised by the directory
// fails open to ResolvedUser.
func ResolveRole(ctx context.Context, dir Directory, s Session) (res Resolution) {
	defer func() {
		if p := recover(); p != nil {
			res = Resolution{
				Kind:     ResolvedUser,
				FailOpen: true,
				Reason:   fmt.Errorf("role resolution for user %s: %v", s.UserID, p),
			}
		}
	}()

	admin, err := dir.IsAdmin(ctx, s.UserID)
	if err != nil {
		return Resolution{Kind: Unresolved, Reason: fmt.Errorf("admin check: %w", err)}
	}
	if admin {
		return Resolution{Kind: ResolvedAdmin}
	}

	vet, err := dir.VetByEmail(ctx, s.Email)
	switch {
	case err == nil:
		return Resolution{Kind: ResolvedVet, VetID: vet.ID}
	case IsNotFound(err):
		return Resolution{Kind: ResolvedUser}
	default:
		return Resolution{Kind: Unresolved, Reason: fmt.Errorf("vet lookup: %w", err)}
	}
}

// Package session keeps the caller's authenticated session and derived role
// consistent with the auth provider, and exposes them as an observable state
// container for the rest of the client.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Role is the derived authorization level of the current caller.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleUser      Role = "user"
	RoleVet       Role = "vet"
	RoleAdmin     Role = "admin"
)

// EntryPath returns the sign-in page a caller with this role is sent to.
func (r Role) EntryPath() string {
	switch r {
	case RoleVet:
		return "/vet-auth"
	case RoleAdmin:
		return "/admin-auth"
	}
	return "/auth"
}

// Session is the credential bundle issued by the auth provider. A Session is
// replaced wholesale on sign-in, sign-out and refresh; it is never mutated.
type Session struct {
	UserID       string    `json:"user_id" yaml:"user_id"`
	Email        string    `json:"email" yaml:"email"`
	AccessToken  string    `json:"access_token" yaml:"access_token"`
	RefreshToken string    `json:"refresh_token" yaml:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" yaml:"expires_at"`
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// AuthEvent names the push notifications emitted by an AuthProvider.
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthListener receives auth state pushes. s is nil after sign-out.
type AuthListener func(event AuthEvent, s *Session)

// AuthProvider is the auth collaborator.
type AuthProvider interface {
	GetSession(ctx context.Context) (*Session, error)
	OnAuthStateChange(l AuthListener) (unsubscribe func())
	SignOut(ctx context.Context) error
	RefreshSession(ctx context.Context) (*Session, error)
}

// VetCredential is the directory row that marks an email as a veterinarian.
type VetCredential struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
}

// Directory answers the two role lookups and records vet availability.
type Directory interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
	// VetByEmail returns an error carrying NotFoundCode when no credential
	// exists for email.
	VetByEmail(ctx context.Context, email string) (VetCredential, error)
	SetVetAvailability(ctx context.Context, vetID string, online bool) error
}

// NotFoundCode is the error code a Directory uses for "no row".
const NotFoundCode = "PGRST116"

// IsNotFound reports whether err is the directory's expected "no row" outcome.
func IsNotFound(err error) bool {
	var coded interface{ ErrorCode() string }
	return errors.As(err, &coded) && coded.ErrorCode() == NotFoundCode
}

// Navigator moves the client to another path.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// LocalStore is the client's small persisted key/value state.
type LocalStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// VetIDKey holds the active vet's identifier in the LocalStore.
const VetIDKey = "vet_id"

// MemoryStore is a LocalStore that lives only as long as the process.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{m: map[string]string{}} }

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

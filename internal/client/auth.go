package client

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResponse struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func (r authResponse) session() *session.Session {
	return &session.Session{
		UserID:       r.User.ID,
		Email:        r.User.Email,
		AccessToken:  r.Access.Token,
		RefreshToken: r.Refresh.Token,
		ExpiresAt:    r.Access.Expires,
	}
}

// SignUp registers an account and signs in with it.
func (c *Client) SignUp(ctx context.Context, email, password string) (*session.Session, error) {
	return c.authenticate(ctx, "/v1/auth/register", email, password)
}

// SignIn exchanges credentials for a session and emits SIGNED_IN.
func (c *Client) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	return c.authenticate(ctx, "/v1/auth/login", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*session.Session, error) {
	var res authResponse
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, path, in, &res); err != nil {
		return nil, err
	}
	s := res.session()
	c.setSession(s, session.EventSignedIn)
	return s, nil
}

// GetSession returns the stored session, loading it from the SessionStore on
// first use. An expired session is refreshed; if the refresh token is
// rejected the session is dropped and nil is returned.
func (c *Client) GetSession(ctx context.Context) (*session.Session, error) {
	c.mu.Lock()
	if !c.loaded && c.store != nil {
		s, err := c.store.LoadSession()
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.sess = s
	}
	c.loaded = true
	c.mu.Unlock()

	s := c.current()
	if s == nil {
		return nil, nil
	}
	if time.Until(s.ExpiresAt) > refreshLeeway {
		return s, nil
	}
	fresh, err := c.RefreshSession(ctx)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		c.setSession(nil, "")
		return nil, nil
	}
	return fresh, err
}

// RefreshSession rotates the refresh token and emits TOKEN_REFRESHED.
func (c *Client) RefreshSession(ctx context.Context) (*session.Session, error) {
	s := c.current()
	if s == nil || s.RefreshToken == "" {
		return nil, errors.New("client: no session to refresh")
	}
	req, err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": s.RefreshToken})
	if err != nil {
		return nil, err
	}
	var res authResponse
	if err := c.send(req, &res); err != nil {
		return nil, err
	}
	fresh := res.session()
	c.setSession(fresh, session.EventTokenRefreshed)
	return fresh, nil
}

// SignOut revokes the refresh token on the server. The local session is
// dropped and SIGNED_OUT emitted even when the server call fails.
func (c *Client) SignOut(ctx context.Context) error {
	s := c.current()
	var err error
	if s != nil && s.RefreshToken != "" {
		var req *http.Request
		req, err = c.jsonRequest(ctx, http.MethodPost, "/v1/auth/logout", map[string]string{"refresh_token": s.RefreshToken})
		if err == nil {
			err = c.send(req, nil)
		}
	}
	c.setSession(nil, session.EventSignedOut)
	return err
}

// OnAuthStateChange registers l for auth pushes. Pushes are delivered
// synchronously on the goroutine that changed the session.
func (c *Client) OnAuthStateChange(l session.AuthListener) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = l
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// setSession stores s, persists it and notifies listeners when event is set.
func (c *Client) setSession(s *session.Session, event session.AuthEvent) {
	c.mu.Lock()
	c.sess = s
	c.loaded = true
	ls := make([]session.AuthListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveSession(s); err != nil {
			log.Printf("client: persist session: %v", err)
		}
	}
	if event == "" {
		return
	}
	for _, l := range ls {
		var cp *session.Session
		if s != nil {
			v := *s
			cp = &v
		}
		l(event, cp)
	}
}

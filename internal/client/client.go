// Package client is the HTTP SDK for the marketplace API. A Client is the
// session.AuthProvider and session.Directory of the terminal app and backs
// the consultation channel's store, feed and file storage.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

// APIError is a non-2xx response. Code carries the API's machine-readable
// error code when present, such as PGRST116 for a missing row.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return e.Message
}

// ErrorCode lets session.IsNotFound recognise missing rows.
func (e *APIError) ErrorCode() string { return e.Code }

// SessionStore persists the session between runs.
type SessionStore interface {
	LoadSession() (*session.Session, error)
	SaveSession(s *session.Session) error
}

type Client struct {
	base  string
	http  *http.Client
	store SessionStore

	mu        sync.Mutex
	sess      *session.Session
	loaded    bool
	listeners map[int]session.AuthListener
	nextID    int
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Streams need a client without
// an overall timeout.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithSessionStore persists sessions across runs.
func WithSessionStore(s SessionStore) Option { return func(c *Client) { c.store = s } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:      strings.TrimRight(baseURL, "/"),
		http:      &http.Client{},
		listeners: map[int]session.AuthListener{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL is the API root the client talks to.
func (c *Client) BaseURL() string { return c.base }

func (c *Client) current() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	s := *c.sess
	return &s
}

// request builds a request with the current bearer token attached.
func (c *Client) request(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if s := c.current(); s != nil && s.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	}
	return req, nil
}

// do sends in as JSON and decodes the response into out. Authenticated calls
// refresh an access token that is about to expire first.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.ensureFresh(ctx); err != nil {
		return err
	}
	var body io.Reader
	if in != nil {
		bs, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(bs)
	}
	req, err := c.request(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return decodeError(res)
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func decodeError(res *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&body)
	return &APIError{Status: res.StatusCode, Message: body.Error, Code: body.Code}
}

// refreshLeeway is how close to expiry an access token is rotated.
const refreshLeeway = 30 * time.Second

func (c *Client) ensureFresh(ctx context.Context) error {
	s := c.current()
	if s == nil || s.RefreshToken == "" || s.ExpiresAt.IsZero() {
		return nil
	}
	if time.Until(s.ExpiresAt) > refreshLeeway {
		return nil
	}
	_, err := c.RefreshSession(ctx)
	return err
}

// jsonRequest builds a JSON request without the freshness check, for the
// token endpoints themselves.
func (c *Client) jsonRequest(ctx context.Context, method, path string, in any) (*http.Request, error) {
	bs, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := c.request(ctx, method, path, bytes.NewReader(bs))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

package access

import (
	"sync"

	"github.com/iliyamo/pet-care-marketplace/internal/notice"
	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

// StateSource is the part of session.Resolver the guard watches.
type StateSource interface {
	State() session.State
	Subscribe(fn func(session.State)) (cancel func())
}

// Guard re-runs Authorize for the current path whenever the session state
// changes and performs the resulting redirect.
type Guard struct {
	src   StateSource
	nav   session.Navigator
	notes notice.Notifier

	mu     sync.Mutex
	path   string
	cancel func()
}

// NewGuard starts watching src. Call Stop to detach.
func NewGuard(src StateSource, nav session.Navigator, notes notice.Notifier) *Guard {
	if notes == nil {
		notes = notice.Discard
	}
	g := &Guard{src: src, nav: nav, notes: notes}
	g.cancel = src.Subscribe(func(st session.State) { g.evaluate(st) })
	return g
}

// Visit moves to path and evaluates it against the current state. It returns
// the path the caller ends up on.
func (g *Guard) Visit(path string) string {
	g.mu.Lock()
	g.path = path
	g.mu.Unlock()
	return g.evaluate(g.src.State())
}

// Path returns the path the guard currently considers active.
func (g *Guard) Path() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.path
}

func (g *Guard) evaluate(st session.State) string {
	g.mu.Lock()
	path := g.path
	if path == "" {
		g.mu.Unlock()
		return ""
	}
	d := Authorize(path, st.Session, st.Role, st.Loading)
	if d.Redirect != "" {
		g.path = d.Redirect
	}
	current := g.path
	g.mu.Unlock()

	if d.Redirect == "" {
		return current
	}
	if d.Notice != "" {
		g.notes.Notify(notice.Notice{Level: notice.Error, Text: d.Notice})
	}
	if g.nav != nil {
		g.nav.Navigate(d.Redirect)
	}
	return current
}

// Stop detaches the guard from its state source.
func (g *Guard) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
}

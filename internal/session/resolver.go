package session

import (
	"context"
	"log"
	"sync"

	"github.com/iliyamo/pet-care-marketplace/internal/notice"
)

// State is a snapshot of the resolver. Session is a private copy.
type State struct {
	Session *Session
	Role    Role
	// Loading is true until the initial session fetch has completed.
	Loading bool
	// Resolving is true while a role resolution is in flight.
	Resolving bool
}

// Resolver owns the process-wide Session and Role. Only its own callbacks
// write them; everything else reads snapshots through State or Subscribe.
type Resolver struct {
	auth  AuthProvider
	dir   Directory
	notes notice.Notifier
	nav   Navigator
	local LocalStore

	base context.Context
	stop context.CancelFunc

	mu       sync.Mutex
	state    State
	gen      uint64
	cancel   context.CancelFunc
	unlisten func()
	closed   bool
	started  bool
	subID    int
	subs     []subscriber
}

type subscriber struct {
	id int
	fn func(State)
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithNotifier(n notice.Notifier) Option { return func(r *Resolver) { r.notes = n } }

func WithNavigator(n Navigator) Option { return func(r *Resolver) { r.nav = n } }

func WithLocalStore(s LocalStore) Option { return func(r *Resolver) { r.local = s } }

// NewResolver returns a resolver in the loading state. Call Initialize once
// at startup.
func NewResolver(auth AuthProvider, dir Directory, opts ...Option) *Resolver {
	base, stop := context.WithCancel(context.Background())
	r := &Resolver{
		auth:  auth,
		dir:   dir,
		notes: notice.Discard,
		nav:   NavigatorFunc(func(string) {}),
		local: NewMemoryStore(),
		base:  base,
		stop:  stop,
		state: State{Role: RoleAnonymous, Loading: true},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// State returns the current snapshot.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Resolver) snapshot() State {
	s := r.state
	s.Session = r.state.Session.clone()
	return s
}

// Subscribe registers fn to receive every state change. The returned
// function removes the subscription.
func (r *Resolver) Subscribe(fn func(State)) (cancel func()) {
	r.mu.Lock()
	r.subID++
	id := r.subID
	r.subs = append(r.subs, subscriber{id: id, fn: fn})
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

func (r *Resolver) publish(s State) {
	r.mu.Lock()
	subs := make([]subscriber, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()
	for _, sub := range subs {
		sub.fn(s)
	}
}

// Initialize fetches the current session once and starts listening for
// auth pushes. Loading is cleared exactly once whether or not the fetch
// succeeds. Later calls are no-ops.
func (r *Resolver) Initialize(ctx context.Context) {
	r.mu.Lock()
	if r.started || r.closed {
		r.mu.Unlock()
		return
	}
	r.started = true
	startGen := r.gen
	r.mu.Unlock()

	unlisten := r.auth.OnAuthStateChange(func(_ AuthEvent, s *Session) {
		r.OnAuthStateChanged(r.base, s)
	})
	r.mu.Lock()
	r.unlisten = unlisten
	r.mu.Unlock()

	s, err := r.auth.GetSession(ctx)
	if err != nil {
		log.Printf("session: initial session fetch failed: %v", err)
		r.notes.Notify(notice.Notice{Level: notice.Error, Text: "Failed to load your session"})
	} else {
		// A push that arrived during the fetch carries a fresher session.
		r.change(ctx, s, &startGen)
	}

	r.mu.Lock()
	r.state.Loading = false
	snap := r.snapshot()
	r.mu.Unlock()
	r.publish(snap)
}

// OnAuthStateChanged replaces the session and recomputes the role. A nil
// session clears the role to anonymous.
func (r *Resolver) OnAuthStateChanged(ctx context.Context, s *Session) {
	r.change(ctx, s, nil)
}

func (r *Resolver) change(ctx context.Context, s *Session, expectGen *uint64) {
	r.mu.Lock()
	if r.closed || (expectGen != nil && *expectGen != r.gen) {
		r.mu.Unlock()
		return
	}
	gen := r.advance()
	r.state.Session = s.clone()
	if s == nil {
		r.state.Role = RoleAnonymous
		r.state.Resolving = false
		snap := r.snapshot()
		r.mu.Unlock()
		r.publish(snap)
		return
	}
	rctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.state.Resolving = true
	snap := r.snapshot()
	r.mu.Unlock()
	r.publish(snap)

	res := ResolveRole(rctx, r.dir, *s)
	cancel()

	r.mu.Lock()
	if r.closed || gen != r.gen {
		// The session changed while resolving; this result is stale.
		r.mu.Unlock()
		return
	}
	r.state.Resolving = false
	if role, ok := res.Role(); ok {
		r.state.Role = role
	}
	snap = r.snapshot()
	r.mu.Unlock()

	switch {
	case res.FailOpen:
		log.Printf("session: role resolution failed, defaulting to user: %v", res.Reason)
		r.notes.Notify(notice.Notice{Level: notice.Error, Text: "Could not verify your account role"})
	case res.Kind == Unresolved:
		log.Printf("session: role resolution aborted: %v", res.Reason)
	case res.Kind == ResolvedVet && res.VetID != "":
		if err := r.local.Set(VetIDKey, res.VetID); err != nil {
			log.Printf("session: persist vet id: %v", err)
		}
	}
	r.publish(snap)
}

// advance starts a new generation and cancels any in-flight resolution.
// Callers hold r.mu.
func (r *Resolver) advance() uint64 {
	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return r.gen
}

// RefreshSession asks the provider to rotate the session. The new session
// arrives through the provider's push.
func (r *Resolver) RefreshSession(ctx context.Context) error {
	if _, err := r.auth.RefreshSession(ctx); err != nil {
		log.Printf("session: refresh failed: %v", err)
		return err
	}
	return nil
}

// SignOut ends the session. Local state is cleared and the client is sent to
// the entry page of the role held before sign-out, even when the provider
// call fails.
func (r *Resolver) SignOut(ctx context.Context) error {
	prev := r.State()

	if prev.Role == RoleVet && prev.Session != nil {
		r.markVetOffline(ctx, prev.Session.Email)
	}

	err := r.auth.SignOut(ctx)

	r.mu.Lock()
	r.advance()
	r.state.Session = nil
	r.state.Role = RoleAnonymous
	r.state.Resolving = false
	snap := r.snapshot()
	r.mu.Unlock()

	if derr := r.local.Delete(VetIDKey); derr != nil {
		log.Printf("session: clear vet id: %v", derr)
	}
	r.publish(snap)
	r.nav.Navigate(prev.Role.EntryPath())

	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "Failed to sign out"
		}
		r.notes.Notify(notice.Notice{Level: notice.Error, Text: msg})
		return err
	}
	r.notes.Notify(notice.Notice{Level: notice.Success, Text: "Signed out successfully"})
	return nil
}

func (r *Resolver) markVetOffline(ctx context.Context, email string) {
	vet, err := r.dir.VetByEmail(ctx, email)
	if err != nil {
		log.Printf("session: vet lookup before sign-out: %v", err)
		return
	}
	if err := r.dir.SetVetAvailability(ctx, vet.ID, false); err != nil {
		log.Printf("session: mark vet %s offline: %v", vet.ID, err)
	}
}

// Close stops listening for auth pushes and cancels in-flight resolution.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.advance()
	unlisten := r.unlisten
	r.mu.Unlock()
	r.stop()
	if unlisten != nil {
		unlisten()
	}
}

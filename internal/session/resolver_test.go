package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/pet-care-marketplace/internal/notice"
)

type codedErr struct{ code string }

func (e codedErr) Error() string     { return "lookup failed: " + e.code }
func (e codedErr) ErrorCode() string { return e.code }

type fakeAuth struct {
	mu         sync.Mutex
	session    *Session
	getErr     error
	signOutErr error
	signOuts   int
	listeners  []AuthListener
}

func (f *fakeAuth) GetSession(context.Context) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.getErr
}

func (f *fakeAuth) OnAuthStateChange(l AuthListener) func() {
	f.mu.Lock()
	f.listeners = append(f.listeners, l)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeAuth) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	return f.signOutErr
}

func (f *fakeAuth) RefreshSession(context.Context) (*Session, error) {
	return f.session, nil
}

type fakeDir struct {
	mu        sync.Mutex
	admins    map[string]bool
	adminErr  error
	vets      map[string]VetCredential
	vetErr    error
	panicOn   string
	block     chan struct{}
	entered   chan struct{}
	vetCalls  int
	offline   []string
	statusErr error
}

func (d *fakeDir) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.block != nil {
		<-d.block
	}
	if d.panicOn == "admin" {
		panic("directory exploded")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.admins[userID], d.adminErr
}

func (d *fakeDir) VetByEmail(ctx context.Context, email string) (VetCredential, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vetCalls++
	if d.vetErr != nil {
		return VetCredential{}, d.vetErr
	}
	v, ok := d.vets[email]
	if !ok {
		return VetCredential{}, codedErr{NotFoundCode}
	}
	return v, nil
}

func (d *fakeDir) SetVetAvailability(ctx context.Context, vetID string, online bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !online {
		d.offline = append(d.offline, vetID)
	}
	return d.statusErr
}

var alice = &Session{UserID: "7", Email: "alice@example.com", AccessToken: "a", RefreshToken: "r"}

func TestResolveRoleAdminTakesPrecedence(t *testing.T) {
	dir := &fakeDir{
		admins: map[string]bool{"7": true},
		vets:   map[string]VetCredential{"alice@example.com": {ID: "v1"}},
	}
	res := ResolveRole(context.Background(), dir, *alice)
	if res.Kind != ResolvedAdmin {
		t.Fatalf("expected admin, got %s", res.Kind)
	}
	if dir.vetCalls != 0 {
		t.Fatalf("vet lookup should be skipped for admins, got %d calls", dir.vetCalls)
	}
}

func TestResolveRoleNotFoundIsPlainUser(t *testing.T) {
	notes := &notice.Recorder{}
	r := NewResolver(&fakeAuth{}, &fakeDir{}, WithNotifier(notes))
	r.OnAuthStateChanged(context.Background(), alice)

	st := r.State()
	if st.Role != RoleUser {
		t.Fatalf("expected user, got %s", st.Role)
	}
	if n := notes.Notices(); len(n) != 0 {
		t.Fatalf("expected no notices for a missing vet row, got %v", n)
	}
}

func TestResolveRoleVet(t *testing.T) {
	local := NewMemoryStore()
	dir := &fakeDir{vets: map[string]VetCredential{"alice@example.com": {ID: "v1"}}}
	r := NewResolver(&fakeAuth{}, dir, WithLocalStore(local))
	r.OnAuthStateChanged(context.Background(), alice)

	if st := r.State(); st.Role != RoleVet {
		t.Fatalf("expected vet, got %s", st.Role)
	}
	if id, _ := local.Get(VetIDKey); id != "v1" {
		t.Fatalf("expected cached vet id v1, got %q", id)
	}
}

func TestAbortedResolutionKeepsPriorRole(t *testing.T) {
	notes := &notice.Recorder{}
	dir := &fakeDir{vets: map[string]VetCredential{"alice@example.com": {ID: "v1"}}}
	r := NewResolver(&fakeAuth{}, dir, WithNotifier(notes))
	r.OnAuthStateChanged(context.Background(), alice)

	dir.adminErr = errors.New("rpc unavailable")
	refreshed := *alice
	refreshed.AccessToken = "a2"
	r.OnAuthStateChanged(context.Background(), &refreshed)

	st := r.State()
	if st.Role != RoleVet {
		t.Fatalf("expected prior role vet to survive a failed admin check, got %s", st.Role)
	}
	if st.Session.AccessToken != "a2" {
		t.Fatalf("session was not replaced")
	}
	if st.Resolving {
		t.Fatalf("resolving flag left set")
	}
	if n := notes.Notices(); len(n) != 0 {
		t.Fatalf("aborted resolution should only log, got %v", n)
	}
}

func TestUnexpectedVetLookupErrorIsUnresolved(t *testing.T) {
	dir := &fakeDir{vetErr: codedErr{"500"}}
	res := ResolveRole(context.Background(), dir, *alice)
	if res.Kind != Unresolved || res.Reason == nil {
		t.Fatalf("expected unresolved with reason, got %+v", res)
	}
}

func TestPanicFailsOpenToUser(t *testing.T) {
	notes := &notice.Recorder{}
	r := NewResolver(&fakeAuth{}, &fakeDir{panicOn: "admin"}, WithNotifier(notes))
	r.OnAuthStateChanged(context.Background(), alice)

	if st := r.State(); st.Role != RoleUser {
		t.Fatalf("expected fail-open to user, got %s", st.Role)
	}
	n := notes.Notices()
	if len(n) != 1 || n[0].Level != notice.Error {
		t.Fatalf("expected one error notice, got %v", n)
	}
}

func TestNilSessionClearsRole(t *testing.T) {
	r := NewResolver(&fakeAuth{}, &fakeDir{admins: map[string]bool{"7": true}})
	r.OnAuthStateChanged(context.Background(), alice)
	if st := r.State(); st.Role != RoleAdmin {
		t.Fatalf("expected admin, got %s", st.Role)
	}
	r.OnAuthStateChanged(context.Background(), nil)
	st := r.State()
	if st.Session != nil || st.Role != RoleAnonymous {
		t.Fatalf("expected anonymous with no session, got %+v", st)
	}
}

func TestInitializeFailureStillFinishesLoading(t *testing.T) {
	notes := &notice.Recorder{}
	auth := &fakeAuth{getErr: errors.New("network down")}
	r := NewResolver(auth, &fakeDir{}, WithNotifier(notes))

	var mu sync.Mutex
	loadingDone := 0
	wasLoading := true
	r.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		if wasLoading && !s.Loading {
			loadingDone++
		}
		wasLoading = s.Loading
	})

	if !r.State().Loading {
		t.Fatalf("resolver must start in loading state")
	}
	r.Initialize(context.Background())
	r.Initialize(context.Background())

	st := r.State()
	if st.Loading || st.Session != nil {
		t.Fatalf("expected loading=false and no session, got %+v", st)
	}
	mu.Lock()
	defer mu.Unlock()
	if loadingDone != 1 {
		t.Fatalf("loading should clear exactly once, cleared %d times", loadingDone)
	}
	if n := notes.Notices(); len(n) != 1 || n[0].Level != notice.Error {
		t.Fatalf("expected one error toast, got %v", n)
	}
}

func TestInitializeResolvesFetchedSession(t *testing.T) {
	auth := &fakeAuth{session: alice}
	r := NewResolver(auth, &fakeDir{admins: map[string]bool{"7": true}})
	r.Initialize(context.Background())

	st := r.State()
	if st.Loading || st.Role != RoleAdmin || st.Session == nil {
		t.Fatalf("unexpected state after initialize: %+v", st)
	}
	if len(auth.listeners) != 1 {
		t.Fatalf("expected one auth listener, got %d", len(auth.listeners))
	}

	auth.listeners[0](EventSignedOut, nil)
	if st := r.State(); st.Role != RoleAnonymous {
		t.Fatalf("push sign-out should clear role, got %s", st.Role)
	}
}

func TestSignOutClearsStateForEveryRole(t *testing.T) {
	cases := []struct {
		name  string
		dir   *fakeDir
		sess  *Session
		role  Role
		entry string
	}{
		{"anonymous", &fakeDir{}, nil, RoleAnonymous, "/auth"},
		{"user", &fakeDir{}, alice, RoleUser, "/auth"},
		{"vet", &fakeDir{vets: map[string]VetCredential{"alice@example.com": {ID: "v1"}}}, alice, RoleVet, "/vet-auth"},
		{"admin", &fakeDir{admins: map[string]bool{"7": true}}, alice, RoleAdmin, "/admin-auth"},
	}
	for _, tc := range cases {
		for _, failing := range []bool{false, true} {
			auth := &fakeAuth{}
			if failing {
				auth.signOutErr = errors.New("session already expired")
			}
			local := NewMemoryStore()
			notes := &notice.Recorder{}
			var went []string
			r := NewResolver(auth, tc.dir,
				WithLocalStore(local),
				WithNotifier(notes),
				WithNavigator(NavigatorFunc(func(p string) { went = append(went, p) })),
			)
			r.OnAuthStateChanged(context.Background(), tc.sess)
			if got := r.State().Role; got != tc.role {
				t.Fatalf("%s: setup role %s, want %s", tc.name, got, tc.role)
			}
			_ = local.Set(VetIDKey, "v1")

			err := r.SignOut(context.Background())
			if failing != (err != nil) {
				t.Fatalf("%s: unexpected sign-out error %v", tc.name, err)
			}
			st := r.State()
			if st.Session != nil || st.Role != RoleAnonymous {
				t.Fatalf("%s: state not cleared: %+v", tc.name, st)
			}
			if _, ok := local.Get(VetIDKey); ok {
				t.Fatalf("%s: cached vet id survived sign-out", tc.name)
			}
			if len(went) != 1 || went[0] != tc.entry {
				t.Fatalf("%s: navigated to %v, want %s", tc.name, went, tc.entry)
			}
			n := notes.Notices()
			last := n[len(n)-1]
			if failing && (last.Level != notice.Error || last.Text != "session already expired") {
				t.Fatalf("%s: expected failure toast with underlying message, got %+v", tc.name, last)
			}
			if !failing && last.Level != notice.Success {
				t.Fatalf("%s: expected success toast, got %+v", tc.name, last)
			}
		}
	}
}

func TestSignOutMarksVetOfflineBestEffort(t *testing.T) {
	dir := &fakeDir{vets: map[string]VetCredential{"alice@example.com": {ID: "v1"}}}
	auth := &fakeAuth{}
	r := NewResolver(auth, dir)
	r.OnAuthStateChanged(context.Background(), alice)

	dir.statusErr = errors.New("availability table locked")
	if err := r.SignOut(context.Background()); err != nil {
		t.Fatalf("offline-marking failure must not fail sign-out: %v", err)
	}
	if len(dir.offline) != 1 || dir.offline[0] != "v1" {
		t.Fatalf("expected vet v1 marked offline, got %v", dir.offline)
	}
	if auth.signOuts != 1 {
		t.Fatalf("expected provider sign-out to run once, got %d", auth.signOuts)
	}
}

func TestSignOutDuringResolutionDiscardsStaleRole(t *testing.T) {
	dir := &fakeDir{
		admins:  map[string]bool{"7": true},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	r := NewResolver(&fakeAuth{}, dir)

	done := make(chan struct{})
	go func() {
		r.OnAuthStateChanged(context.Background(), alice)
		close(done)
	}()

	select {
	case <-dir.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("resolution never started")
	}
	if err := r.SignOut(context.Background()); err != nil {
		t.Fatalf("sign-out: %v", err)
	}
	close(dir.block)
	<-done

	st := r.State()
	if st.Session != nil || st.Role != RoleAnonymous {
		t.Fatalf("stale resolution leaked into state: %+v", st)
	}
}

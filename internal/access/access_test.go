package access

import (
	"context"
	"testing"

	"github.com/iliyamo/pet-care-marketplace/internal/notice"
	"github.com/iliyamo/pet-care-marketplace/internal/session"
)

var (
	someone  = &session.Session{UserID: "1", Email: "someone@example.com"}
	allRoles = []session.Role{session.RoleAnonymous, session.RoleUser, session.RoleVet, session.RoleAdmin}
)

func TestPublicPathsNeverRedirect(t *testing.T) {
	for path := range publicPaths {
		for _, s := range []*session.Session{nil, someone} {
			for _, role := range allRoles {
				if d := Authorize(path, s, role, false); !d.Allowed() {
					t.Fatalf("%s with role %s redirected to %q", path, role, d.Redirect)
				}
			}
		}
	}
}

func TestAnonymousRedirectsByPrefix(t *testing.T) {
	cases := map[string]string{
		"/vet-dashboard":          "/vet-auth",
		"/vet-dashboard/patients": "/vet-auth",
		"/vets/42":                "/vet-auth",
		"/admin":                  "/admin-auth",
		"/admin/users":            "/admin-auth",
		"/consultation/abc":       "/auth",
		"/events":                 "/auth",
		"/dashboard":              "/auth",
	}
	for path, want := range cases {
		for _, role := range allRoles {
			d := Authorize(path, nil, role, false)
			if d.Redirect != want {
				t.Fatalf("%s (role %s): expected redirect %s, got %q", path, role, want, d.Redirect)
			}
			if d.Notice != "" {
				t.Fatalf("%s: sign-in redirect should not carry an access-denied notice", path)
			}
		}
	}
}

func TestLoadingDefersDecision(t *testing.T) {
	d := Authorize("/admin", nil, session.RoleAnonymous, true)
	if !d.Pending || d.Redirect != "" {
		t.Fatalf("expected pending decision while loading, got %+v", d)
	}
}

func TestRoleGates(t *testing.T) {
	cases := []struct {
		path   string
		role   session.Role
		redir  string
		notice string
	}{
		{"/admin", session.RoleUser, "/", AdminRequired},
		{"/admin/vets", session.RoleVet, "/", AdminRequired},
		{"/admin", session.RoleAdmin, "", ""},
		{"/vet-dashboard", session.RoleUser, "/", VetRequired},
		{"/vet-dashboard", session.RoleAdmin, "/", VetRequired},
		{"/vet-dashboard", session.RoleVet, "", ""},
		{"/consultation/abc", session.RoleUser, "", ""},
	}
	for _, tc := range cases {
		d := Authorize(tc.path, someone, tc.role, false)
		if d.Redirect != tc.redir || d.Notice != tc.notice {
			t.Fatalf("%s as %s: got %+v", tc.path, tc.role, d)
		}
	}
}

type stubDir struct{ admin bool }

func (d stubDir) IsAdmin(context.Context, string) (bool, error) { return d.admin, nil }
func (d stubDir) VetByEmail(context.Context, string) (session.VetCredential, error) {
	return session.VetCredential{}, notFound{}
}
func (d stubDir) SetVetAvailability(context.Context, string, bool) error { return nil }

type notFound struct{}

func (notFound) Error() string     { return "no rows" }
func (notFound) ErrorCode() string { return session.NotFoundCode }

type stubAuth struct{}

func (stubAuth) GetSession(context.Context) (*session.Session, error)     { return nil, nil }
func (stubAuth) OnAuthStateChange(session.AuthListener) func()            { return func() {} }
func (stubAuth) SignOut(context.Context) error                            { return nil }
func (stubAuth) RefreshSession(context.Context) (*session.Session, error) { return nil, nil }

func TestGuardReevaluatesOnStateChange(t *testing.T) {
	r := session.NewResolver(stubAuth{}, stubDir{})
	notes := &notice.Recorder{}
	var went []string
	g := NewGuard(r, session.NavigatorFunc(func(p string) { went = append(went, p) }), notes)
	defer g.Stop()

	if got := g.Visit("/admin"); got != "/admin" {
		t.Fatalf("no redirect expected while loading, got %s", got)
	}

	r.Initialize(context.Background())
	if g.Path() != "/admin-auth" {
		t.Fatalf("anonymous visitor should land on /admin-auth, got %s", g.Path())
	}

	r.OnAuthStateChanged(context.Background(), someone)
	if got := g.Visit("/admin"); got != "/" {
		t.Fatalf("authenticated user should be sent home, got %s", got)
	}
	n := notes.Notices()
	if len(n) == 0 || n[len(n)-1].Text != AdminRequired {
		t.Fatalf("expected admin-required notice, got %v", n)
	}
	if len(went) != 2 || went[0] != "/admin-auth" || went[1] != "/" {
		t.Fatalf("unexpected navigation trail %v", went)
	}
}

package router

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/pet-care-marketplace/internal/config"
	"github.com/iliyamo/pet-care-marketplace/internal/consultation"
	"github.com/iliyamo/pet-care-marketplace/internal/database/dbtest"
	"github.com/iliyamo/pet-care-marketplace/internal/handler"
	"github.com/iliyamo/pet-care-marketplace/internal/model"
	"github.com/iliyamo/pet-care-marketplace/internal/realtime"
	"github.com/iliyamo/pet-care-marketplace/internal/repository"
	"github.com/iliyamo/pet-care-marketplace/internal/storage"
)

type api struct {
	t      *testing.T
	srv    *httptest.Server
	admins *repository.AdminRepo
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db := dbtest.Open(t)
	srv := httptest.NewUnstartedServer(nil)
	e := New(Deps{
		Cfg: config.Config{
			Env: "test", JWTSecret: "secret", AccessTTLMin: 15, RefreshTTLDays: 1, BcryptCost: 4,
		},
		DB:   db,
		Bus:  realtime.NewLocalHub(),
		Disk: storage.NewDisk(t.TempDir(), "http://files.test", 1<<20),
	})
	srv.Config.Handler = WithCORS([]string{"*"}, e)
	srv.Start()
	t.Cleanup(srv.Close)
	return &api{t: t, srv: srv, admins: repository.NewAdminRepo(db)}
}

func (a *api) call(method, path, token string, body any) (int, []byte) {
	a.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		bs, _ := json.Marshal(b)
		rd = bytes.NewReader(bs)
	}
	req, _ := http.NewRequest(method, a.srv.URL+path, rd)
	if _, ok := body.(string); !ok && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		a.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	out, _ := io.ReadAll(res.Body)
	return res.StatusCode, out
}

func (a *api) register(email string) handler.AuthResponse {
	a.t.Helper()
	code, body := a.call(http.MethodPost, "/v1/auth/register", "", map[string]string{"email": email, "password": "secret123"})
	if code != http.StatusCreated {
		a.t.Fatalf("register %s: %d %s", email, code, body)
	}
	var r handler.AuthResponse
	_ = json.Unmarshal(body, &r)
	return r
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return v
}

func TestRolesResolvePerRequest(t *testing.T) {
	a := newAPI(t)
	owner := a.register("owner@example.com")
	vet := a.register("vet@clinic.com")
	admin := a.register("admin@example.com")
	adminID, _ := strconv.ParseUint(admin.User.ID, 10, 64)
	if err := a.admins.Grant(context.Background(), adminID); err != nil {
		t.Fatalf("grant: %v", err)
	}

	code, body := a.call(http.MethodPost, "/v1/vets", vet.Access.Token, map[string]string{"full_name": "Dr. Ana", "license_number": "L-1"})
	if code != http.StatusCreated {
		t.Fatalf("onboard: %d %s", code, body)
	}
	v := decode[model.Vet](t, body)

	for token, want := range map[string]string{owner.Access.Token: "user", vet.Access.Token: "vet", admin.Access.Token: "admin"} {
		code, body := a.call(http.MethodGet, "/v1/me", token, nil)
		me := decode[map[string]any](t, body)
		if code != http.StatusOK || me["role"] != want {
			t.Fatalf("me: expected %s, got %d %s", want, code, body)
		}
	}

	code, body = a.call(http.MethodGet, "/v1/vets/lookup?email=owner@example.com", owner.Access.Token, nil)
	if code != http.StatusNotFound || decode[map[string]any](t, body)["code"] != repository.NotFoundCode {
		t.Fatalf("lookup miss: %d %s", code, body)
	}
	if code, _ := a.call(http.MethodGet, "/v1/vets/lookup?email=vet@clinic.com", owner.Access.Token, nil); code != http.StatusForbidden {
		t.Fatalf("lookup of another email: %d", code)
	}

	if code, _ := a.call(http.MethodPost, "/v1/rpc/is_admin", admin.Access.Token, map[string]string{"user_id": admin.User.ID}); code != http.StatusOK {
		t.Fatalf("is_admin: %d", code)
	}
	if code, body := a.call(http.MethodPost, "/v1/rpc/is_admin", owner.Access.Token, map[string]string{"user_id": owner.User.ID}); code != http.StatusOK || string(bytes.TrimSpace(body)) != "false" {
		t.Fatalf("is_admin for owner: %d %s", code, body)
	}
	if code, _ := a.call(http.MethodPost, "/v1/rpc/is_admin", owner.Access.Token, map[string]string{"user_id": admin.User.ID}); code != http.StatusForbidden {
		t.Fatalf("is_admin about someone else: %d", code)
	}

	if code, _ := a.call(http.MethodGet, "/v1/admin/vets?verified=false", owner.Access.Token, nil); code != http.StatusForbidden {
		t.Fatalf("owner reached admin queue: %d", code)
	}
	code, body = a.call(http.MethodGet, "/v1/admin/vets?verified=false", admin.Access.Token, nil)
	if pending := decode[[]model.VetListing](t, body); code != http.StatusOK || len(pending) != 1 {
		t.Fatalf("pending vets: %d %s", code, body)
	}
	if code, _ := a.call(http.MethodPost, "/v1/admin/vets/"+v.ID+"/verify", admin.Access.Token, nil); code != http.StatusOK {
		t.Fatalf("verify: %d", code)
	}
	code, body = a.call(http.MethodGet, "/v1/vets", "", nil)
	listed := decode[[]model.VetListing](t, body)
	if code != http.StatusOK || len(listed) != 1 || listed[0].LicenseNumber != "" {
		t.Fatalf("public listing: %d %s", code, body)
	}

	path := "/v1/vets/" + v.ID + "/availability"
	if code, _ := a.call(http.MethodPut, path, owner.Access.Token, map[string]bool{"is_online": true}); code != http.StatusForbidden {
		t.Fatalf("owner changed availability: %d", code)
	}
	code, body = a.call(http.MethodPut, path, vet.Access.Token, map[string]bool{"is_online": true})
	if av := decode[model.VetAvailability](t, body); code != http.StatusOK || !av.IsOnline {
		t.Fatalf("availability: %d %s", code, body)
	}
}

func TestConsultationChatFlow(t *testing.T) {
	a := newAPI(t)
	owner := a.register("owner@example.com")
	vet := a.register("vet@clinic.com")
	stranger := a.register("stranger@example.com")
	admin := a.register("admin@example.com")
	adminID, _ := strconv.ParseUint(admin.User.ID, 10, 64)
	_ = a.admins.Grant(context.Background(), adminID)

	_, body := a.call(http.MethodPost, "/v1/vets", vet.Access.Token, map[string]string{"full_name": "Dr. Bo", "license_number": "L-2"})
	v := decode[model.Vet](t, body)

	if code, _ := a.call(http.MethodPost, "/v1/consultations", owner.Access.Token, map[string]string{"vet_id": v.ID}); code != http.StatusConflict {
		t.Fatalf("room with unverified vet: %d", code)
	}
	a.call(http.MethodPost, "/v1/admin/vets/"+v.ID+"/verify", admin.Access.Token, nil)

	code, body := a.call(http.MethodPost, "/v1/consultations", owner.Access.Token, map[string]string{"vet_id": v.ID})
	if code != http.StatusCreated {
		t.Fatalf("create room: %d %s", code, body)
	}
	room := decode[model.Consultation](t, body)

	_, body = a.call(http.MethodGet, "/v1/consultations", vet.Access.Token, nil)
	if rooms := decode[[]model.Consultation](t, body); len(rooms) != 1 || rooms[0].ID != room.ID {
		t.Fatalf("vet rooms: %s", body)
	}

	// the vet watches the live stream
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, a.srv.URL+"/v1/consultations/"+room.ID+"/stream", nil)
	req.Header.Set("Authorization", "Bearer "+vet.Access.Token)
	res, err := http.DefaultClient.Do(req)
	if err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("stream: %v %v", err, res)
	}
	defer res.Body.Close()
	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(res.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()
	expectLine := func(prefix string) string {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case l, ok := <-lines:
				if !ok {
					t.Fatalf("stream ended before %q", prefix)
				}
				if strings.HasPrefix(l, prefix) {
					return strings.TrimPrefix(l, prefix)
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}
	expectLine(": subscribed")

	if code, _ := a.call(http.MethodPost, "/v1/consultations/"+room.ID+"/messages", owner.Access.Token, map[string]string{"content": "   "}); code != http.StatusBadRequest {
		t.Fatalf("blank message accepted: %d", code)
	}
	code, body = a.call(http.MethodPost, "/v1/consultations/"+room.ID+"/messages", owner.Access.Token,
		map[string]string{"content": "Rex is limping", "sender_id": vet.User.ID})
	if code != http.StatusCreated {
		t.Fatalf("post: %d %s", code, body)
	}
	sent := decode[consultation.Message](t, body)
	if sent.SenderID != owner.User.ID || sent.Type != consultation.TypeText {
		t.Fatalf("sender must be the caller: %+v", sent)
	}

	if ev := expectLine("event: "); ev != realtime.EventInsert {
		t.Fatalf("unexpected event %q", ev)
	}
	got := decode[consultation.Message](t, []byte(expectLine("data: ")))
	if got.ID != sent.ID || got.Content != "Rex is limping" {
		t.Fatalf("streamed %+v", got)
	}

	_, body = a.call(http.MethodGet, "/v1/consultations/"+room.ID+"/messages", vet.Access.Token, nil)
	if msgs := decode[[]consultation.Message](t, body); len(msgs) != 1 || msgs[0].ID != sent.ID {
		t.Fatalf("history: %s", body)
	}
	if code, _ := a.call(http.MethodGet, "/v1/consultations/"+room.ID+"/messages", stranger.Access.Token, nil); code != http.StatusForbidden {
		t.Fatalf("stranger read the room: %d", code)
	}
	if code, body := a.call(http.MethodGet, "/v1/consultations/nope/messages", owner.Access.Token, nil); code != http.StatusNotFound {
		t.Fatalf("missing room: %d %s", code, body)
	}

	objPath := "/consultation-files/" + room.ID + "/report.txt"
	code, body = a.call(http.MethodPut, "/v1/storage"+objPath, owner.Access.Token, "x-ray looks fine")
	if code != http.StatusCreated || !strings.Contains(string(body), "http://files.test/storage"+objPath) {
		t.Fatalf("upload: %d %s", code, body)
	}
	if code, _ := a.call(http.MethodPut, "/v1/storage"+objPath, stranger.Access.Token, "spoof"); code != http.StatusForbidden {
		t.Fatalf("stranger uploaded: %d", code)
	}
	code, body = a.call(http.MethodGet, "/storage"+objPath, "", nil)
	if code != http.StatusOK || string(body) != "x-ray looks fine" {
		t.Fatalf("download: %d %s", code, body)
	}
}

func TestRefreshIsSingleUseAndLogoutRevokes(t *testing.T) {
	a := newAPI(t)
	owner := a.register("owner@example.com")

	code, body := a.call(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": owner.Refresh.Token})
	if code != http.StatusOK {
		t.Fatalf("refresh: %d %s", code, body)
	}
	next := decode[handler.AuthResponse](t, body)
	if code, _ := a.call(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": owner.Refresh.Token}); code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: %d", code)
	}
	if code, _ := a.call(http.MethodPost, "/v1/auth/logout", "", map[string]string{"refresh_token": next.Refresh.Token}); code != http.StatusNoContent {
		t.Fatalf("logout: %d", code)
	}
	if code, _ := a.call(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": next.Refresh.Token}); code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: %d", code)
	}
	if code, _ := a.call(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "OWNER@example.com", "password": "wrong"}); code != http.StatusUnauthorized {
		t.Fatalf("bad password: %d", code)
	}
}

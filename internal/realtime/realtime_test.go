package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/iliyamo/pet-care-marketplace/internal/consultation"
)

func recv(t *testing.T, sub consultation.Subscription) (consultation.Message, bool) {
	t.Helper()
	select {
	case m, ok := <-sub.Events():
		return m, ok
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for an event")
	}
	return consultation.Message{}, false
}

func TestLocalHubDeliversOnlyToRoom(t *testing.T) {
	h := NewLocalHub()
	ctx := context.Background()
	a, _ := h.Subscribe(ctx, "a")
	b, _ := h.Subscribe(ctx, "b")
	defer a.Close()
	defer b.Close()

	_ = h.Publish(ctx, consultation.Message{ID: "m1", ConsultationID: "a"})
	if m, ok := recv(t, a); !ok || m.ID != "m1" {
		t.Fatalf("room a got %+v %v", m, ok)
	}
	select {
	case m := <-b.Events():
		t.Fatalf("room b received %+v", m)
	default:
	}
}

func TestLocalHubCloseReleases(t *testing.T) {
	h := NewLocalHub()
	sub, _ := h.Subscribe(context.Background(), "a")
	if h.Subscribers("a") != 1 {
		t.Fatalf("expected one subscriber")
	}
	_ = sub.Close()
	_ = sub.Close()
	if h.Subscribers("a") != 0 {
		t.Fatalf("subscription not released")
	}
	if _, ok := recv(t, sub); ok {
		t.Fatalf("events should be closed")
	}
	if err := h.Publish(context.Background(), consultation.Message{ID: "m", ConsultationID: "a"}); err != nil {
		t.Fatalf("publish to empty room: %v", err)
	}
}

func TestLocalHubContextCancelCloses(t *testing.T) {
	h := NewLocalHub()
	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := h.Subscribe(ctx, "a")
	cancel()
	if _, ok := recv(t, sub); ok {
		t.Fatalf("cancelled subscription should close its events")
	}
	if h.Subscribers("a") != 0 {
		t.Fatalf("cancelled subscription still registered")
	}
}

func TestChannelName(t *testing.T) {
	if got := ChannelName("abc"); got != "consultation:abc:inserts" {
		t.Fatalf("unexpected channel %s", got)
	}
	ev := NewInsert(consultation.Message{ID: "x"})
	if ev.Type != EventInsert || ev.New.ID != "x" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

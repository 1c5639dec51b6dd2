package realtime

import (
	"context"
	"log"
	"sync"

	"github.com/iliyamo/pet-care-marketplace/internal/consultation"
)

// LocalHub is an in-process Bus used when Redis is unavailable. It only
// reaches subscribers of the same process.
type LocalHub struct {
	mu    sync.Mutex
	rooms map[string]map[*localSub]struct{}
}

func NewLocalHub() *LocalHub {
	return &LocalHub{rooms: map[string]map[*localSub]struct{}{}}
}

// Publish never blocks. A subscriber whose buffer is full misses the event.
func (h *LocalHub) Publish(_ context.Context, m consultation.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.rooms[m.ConsultationID] {
		select {
		case s.events <- m:
		default:
			log.Printf("realtime: subscriber of %s is lagging, dropped %s", m.ConsultationID, m.ID)
		}
	}
	return nil
}

func (h *LocalHub) Subscribe(ctx context.Context, consultationID string) (consultation.Subscription, error) {
	s := &localSub{hub: h, room: consultationID, events: make(chan consultation.Message, 64)}
	h.mu.Lock()
	if h.rooms[consultationID] == nil {
		h.rooms[consultationID] = map[*localSub]struct{}{}
	}
	h.rooms[consultationID][s] = struct{}{}
	h.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	h.mu.Lock()
	s.stop = stop
	h.mu.Unlock()
	return s, nil
}

// Subscribers returns the number of open subscriptions on a room.
func (h *LocalHub) Subscribers(consultationID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[consultationID])
}

type localSub struct {
	hub    *LocalHub
	room   string
	events chan consultation.Message
	stop   func() bool
	once   sync.Once
}

func (s *localSub) Events() <-chan consultation.Message { return s.events }

func (s *localSub) Close() error {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		delete(h.rooms[s.room], s)
		if len(h.rooms[s.room]) == 0 {
			delete(h.rooms, s.room)
		}
		close(s.events)
		stop := s.stop
		h.mu.Unlock()
		if stop != nil {
			stop()
		}
	})
	return nil
}

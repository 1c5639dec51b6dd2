package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/pet-care-marketplace/internal/consultation"
)

// RedisBus carries insert events over Redis Pub/Sub.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus { return &RedisBus{rdb: rdb} }

func (b *RedisBus) Publish(ctx context.Context, m consultation.Message) error {
	body, err := json.Marshal(NewInsert(m))
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, ChannelName(m.ConsultationID), body).Err()
}

// Subscribe waits for Redis to confirm the subscription before returning, so
// inserts published afterwards are not missed.
func (b *RedisBus) Subscribe(ctx context.Context, consultationID string) (consultation.Subscription, error) {
	ps := b.rdb.Subscribe(ctx, ChannelName(consultationID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", consultationID, err)
	}
	s := &redisSub{ps: ps, events: make(chan consultation.Message, 64), done: make(chan struct{})}
	go s.run(ctx)
	return s, nil
}

type redisSub struct {
	ps     *redis.PubSub
	events chan consultation.Message
	done   chan struct{}
	once   sync.Once
}

func (s *redisSub) run(ctx context.Context) {
	defer close(s.events)
	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Type != EventInsert {
				log.Printf("realtime: bad payload on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case s.events <- ev.New:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSub) Events() <-chan consultation.Message { return s.events }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

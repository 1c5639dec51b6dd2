package consultation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iliyamo/pet-care-marketplace/internal/notice"
)

// ErrNotOpen is returned by send operations on a channel with no room.
var ErrNotOpen = errors.New("consultation: channel is not open")

// Config wires a Channel to its collaborators.
type Config struct {
	Store    Store
	Feed     Feed
	Files    FileStore
	Notifier notice.Notifier
	// SenderID tags outgoing messages.
	SenderID string
}

// Channel is the live feed of one consultation room. It owns at most one
// subscription at a time.
type Channel struct {
	cfg Config

	// life serializes Open and Close.
	life sync.Mutex

	mu       sync.Mutex
	roomID   string
	messages []Message
	seen     map[string]bool
	sub      Subscription
	cancel   context.CancelFunc
	done     chan struct{}
	draft    string
	watchID  int
	watchers map[int]func([]Message)

	// dirty marks a feed change not yet delivered to watchers; delivering is
	// set while a delivery goroutine runs.
	dirty      bool
	delivering bool
}

// NewChannel returns a closed channel.
func NewChannel(cfg Config) *Channel {
	if cfg.Notifier == nil {
		cfg.Notifier = notice.Discard
	}
	return &Channel{cfg: cfg, watchers: map[int]func([]Message){}}
}

// Use opens a channel for id, runs fn and closes the channel on every exit
// path.
func Use(ctx context.Context, cfg Config, id string, fn func(*Channel) error) (err error) {
	ch := NewChannel(cfg)
	if err := ch.Open(ctx, id); err != nil {
		return err
	}
	defer func() {
		if cerr := ch.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(ch)
}

// Open loads the room history once and subscribes to new inserts. Opening a
// different room releases the current subscription first. A failed history
// fetch leaves the feed empty and is not retried.
func (c *Channel) Open(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("consultation: empty room id")
	}
	c.life.Lock()
	defer c.life.Unlock()

	c.mu.Lock()
	already := c.sub != nil && c.roomID == id
	c.mu.Unlock()
	if already {
		return nil
	}
	if err := c.closeLocked(); err != nil {
		log.Printf("consultation: release previous subscription: %v", err)
	}

	history, err := c.cfg.Store.ListMessages(ctx, id)
	if err != nil {
		log.Printf("consultation: load history for %s: %v", id, err)
		c.cfg.Notifier.Notify(notice.Notice{Level: notice.Error, Text: "Failed to load messages"})
		history = nil
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := c.cfg.Feed.Subscribe(subCtx, id)
	if err != nil {
		cancel()
		c.cfg.Notifier.Notify(notice.Notice{Level: notice.Error, Text: "Failed to connect to the live chat"})
		return fmt.Errorf("subscribe to %s: %w", id, err)
	}

	seen := make(map[string]bool, len(history))
	msgs := make([]Message, 0, len(history))
	for _, m := range history {
		seen[m.ID] = true
		msgs = append(msgs, m)
	}
	done := make(chan struct{})

	c.mu.Lock()
	c.roomID = id
	c.messages = msgs
	c.seen = seen
	c.sub = sub
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.pump(sub, done)
	c.changed()
	return nil
}

func (c *Channel) pump(sub Subscription, done chan struct{}) {
	defer close(done)
	for m := range sub.Events() {
		c.onInsert(sub, m)
	}
}

// onInsert appends in delivery order. Events from a released subscription
// and repeated message ids are dropped.
func (c *Channel) onInsert(from Subscription, m Message) {
	c.mu.Lock()
	if c.sub != from || c.seen[m.ID] {
		c.mu.Unlock()
		return
	}
	c.seen[m.ID] = true
	c.messages = append(c.messages, m)
	c.mu.Unlock()
	c.changed()
}

// Close releases the subscription and empties the feed. It is safe to call
// more than once.
func (c *Channel) Close() error {
	c.life.Lock()
	defer c.life.Unlock()
	return c.closeLocked()
}

func (c *Channel) closeLocked() error {
	c.mu.Lock()
	sub, cancel, done := c.sub, c.cancel, c.done
	c.sub, c.cancel, c.done = nil, nil, nil
	c.roomID = ""
	cleared := len(c.messages) > 0
	c.messages, c.seen = nil, nil
	c.mu.Unlock()
	if cleared {
		c.changed()
	}
	if sub == nil {
		return nil
	}
	cancel()
	err := sub.Close()
	<-done
	return err
}

// Room returns the open room id, or "" when closed.
func (c *Channel) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Messages returns a copy of the feed.
func (c *Channel) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Channel) snapshot() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Watch calls fn with the full feed after changes. Calls happen on a
// separate goroutine, one at a time and in order; bursts of changes may be
// coalesced into one call with the latest feed. fn may call Open or Close.
func (c *Channel) Watch(fn func([]Message)) (cancel func()) {
	c.mu.Lock()
	c.watchID++
	id := c.watchID
	c.watchers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// changed schedules delivery of the current feed to watchers. Delivery runs
// outside both locks so that closeLocked never waits on a watcher.
func (c *Channel) changed() {
	c.mu.Lock()
	c.dirty = true
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	c.mu.Unlock()
	go c.deliver()
}

func (c *Channel) deliver() {
	for {
		c.mu.Lock()
		if !c.dirty {
			c.delivering = false
			c.mu.Unlock()
			return
		}
		c.dirty = false
		msgs := c.snapshot()
		fns := make([]func([]Message), 0, len(c.watchers))
		for _, fn := range c.watchers {
			fns = append(fns, fn)
		}
		c.mu.Unlock()
		for _, fn := range fns {
			fn(msgs)
		}
	}
}

// Draft is the unsent input. A failed send leaves its content here.
func (c *Channel) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Channel) SetDraft(s string) {
	c.mu.Lock()
	c.draft = s
	c.mu.Unlock()
}

// SendMessage inserts a text message. Blank content is ignored without a
// network call. The message is not appended locally; it arrives back
// through the subscription.
func (c *Channel) SendMessage(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	room := c.Room()
	if room == "" {
		return ErrNotOpen
	}
	_, err := c.cfg.Store.InsertMessage(ctx, NewMessage{
		ConsultationID: room,
		SenderID:       c.cfg.SenderID,
		Content:        content,
		Type:           TypeText,
	})
	if err != nil {
		log.Printf("consultation: send to %s: %v", room, err)
		c.SetDraft(content)
		c.cfg.Notifier.Notify(notice.Notice{Level: notice.Error, Text: "Failed to send message"})
		return err
	}
	c.SetDraft("")
	return nil
}

// SendFile uploads r under the room and posts a file message pointing at it.
// If the insert fails the uploaded object stays behind unreferenced.
func (c *Channel) SendFile(ctx context.Context, name string, r io.Reader, contentType string) error {
	room := c.Room()
	if room == "" {
		return ErrNotOpen
	}
	if c.cfg.Files == nil {
		return errors.New("consultation: no file store configured")
	}
	objectPath := room + "/" + uuid.NewString() + path.Ext(name)
	if err := c.cfg.Files.Upload(ctx, objectPath, r, contentType); err != nil {
		log.Printf("consultation: upload %s: %v", objectPath, err)
		c.cfg.Notifier.Notify(notice.Notice{Level: notice.Error, Text: "Failed to upload file"})
		return err
	}
	_, err := c.cfg.Store.InsertMessage(ctx, NewMessage{
		ConsultationID: room,
		SenderID:       c.cfg.SenderID,
		Content:        name,
		Type:           TypeFile,
		FileURL:        c.cfg.Files.PublicURL(objectPath),
	})
	if err != nil {
		log.Printf("consultation: file message for %s (object %s left orphaned): %v", room, objectPath, err)
		c.cfg.Notifier.Notify(notice.Notice{Level: notice.Error, Text: "Failed to send file"})
		return err
	}
	return nil
}

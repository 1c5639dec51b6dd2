package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/pet-care-marketplace/internal/notify"
)

// Consumer drains the event queues. Every event is appended to
// <LogDir>/activity.log; message events also mail the recipient when a
// Sender is configured.
type Consumer struct {
	URL    string
	LogDir string
	Mail   notify.Sender
	AppURL string

	mu sync.Mutex
}

// Queues lists every queue the consumer declares and drains.
var Queues = []string{MessageCreatedQueue, VetAvailabilityQueue, VetVerifiedQueue}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Printf("event-consumer: dial failed: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("event-consumer: consume loop ended: %v; reconnecting", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

type delivery struct {
	queue string
	amqp.Delivery
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("event-consumer: set QoS failed: %v", err)
	}

	merged := make(chan delivery)
	var wg sync.WaitGroup
	for _, q := range Queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		wg.Add(1)
		go func(q string, msgs <-chan amqp.Delivery) {
			defer wg.Done()
			for d := range msgs {
				merged <- delivery{queue: q, Delivery: d}
			}
		}(q, msgs)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	for {
		select {
		case <-ctx.Done():
			_ = ch.Close()
			for range merged {
			}
			return ctx.Err()
		case d, ok := <-merged:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.queue, d.Body); err != nil {
				log.Printf("event-consumer: handle %s failed: %v", d.queue, err)
				_ = d.Nack(false, false) // no requeue, avoids tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle processes one event body from queue.
func (c *Consumer) Handle(queue string, body []byte) error {
	var line string
	switch queue {
	case MessageCreatedQueue:
		var ev MessageCreatedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		line = fmt.Sprintf("Message created | consultation_id=%s | message_id=%s | sender_id=%s | type=%s",
			ev.ConsultationID, ev.MessageID, ev.SenderID, ev.MessageType)
		if c.Mail != nil && ev.RecipientEmail != "" {
			subject, html := notify.NewMessageMail(c.AppURL, ev.ConsultationID, ev.Preview)
			if err := c.Mail.Send(ev.RecipientEmail, subject, html); err != nil {
				// mail is best effort; the event is still recorded
				log.Printf("event-consumer: mail %s: %v", ev.RecipientEmail, err)
			}
		}
	case VetAvailabilityQueue:
		var ev VetAvailabilityChangedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		line = fmt.Sprintf("Vet availability | vet_id=%s | online=%t", ev.VetID, ev.IsOnline)
	case VetVerifiedQueue:
		var ev VetVerifiedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		line = fmt.Sprintf("Vet verified | vet_id=%s | email=%q | by=%s", ev.VetID, ev.Email, ev.VerifiedBy)
	default:
		return fmt.Errorf("unknown queue %q", queue)
	}
	return c.appendLog(line)
}

func (c *Consumer) appendLog(line string) error {
	dir := c.LogDir
	if dir == "" {
		dir = "logs"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "activity.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "[%s] %s\n", time.Now().UTC().Format(time.RFC3339), line)
	return err
}

package client

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/iliyamo/pet-care-marketplace/internal/consultation"
	"github.com/iliyamo/pet-care-marketplace/internal/realtime"
)

// Subscribe opens the room's event stream. It returns once the server has
// accepted the subscription, so inserts made afterwards are delivered.
func (c *Client) Subscribe(ctx context.Context, consultationID string) (consultation.Subscription, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	req, err := c.request(ctx, http.MethodGet, "/v1/consultations/"+url.PathEscape(consultationID)+"/stream", nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	res, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		err := decodeError(res)
		res.Body.Close()
		cancel()
		return nil, err
	}
	s := &stream{cancel: cancel, res: res, events: make(chan consultation.Message, 16)}
	go s.read(ctx)
	return s, nil
}

type stream struct {
	cancel context.CancelFunc
	res    *http.Response
	events chan consultation.Message
	once   sync.Once
}

func (s *stream) Events() <-chan consultation.Message { return s.events }

func (s *stream) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.res.Body.Close()
	})
	return nil
}

// read parses server-sent events until the body ends. Comment lines are
// heartbeats; only INSERT events carry messages.
func (s *stream) read(ctx context.Context) {
	defer close(s.events)
	sc := bufio.NewScanner(s.res.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var event string
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if event == realtime.EventInsert && data.Len() > 0 {
				var m consultation.Message
				if err := json.Unmarshal([]byte(data.String()), &m); err != nil {
					log.Printf("client: bad stream payload: %v", err)
				} else {
					select {
					case s.events <- m:
					case <-ctx.Done():
						return
					}
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

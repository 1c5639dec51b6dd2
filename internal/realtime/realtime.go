// Package realtime fans inserted consultation messages out to every live
// subscriber of the room, across server instances when Redis is available.
package realtime

import (
	"context"

	"github.com/iliyamo/pet-care-marketplace/internal/consultation"
)

// EventInsert is the only change type rooms emit; messages are immutable.
const EventInsert = "INSERT"

// Event is the payload carried on the bus and written to stream clients.
type Event struct {
	Type  string               `json:"type"`
	Table string               `json:"table"`
	New   consultation.Message `json:"new"`
}

// NewInsert wraps m as an insert event on the messages table.
func NewInsert(m consultation.Message) Event {
	return Event{Type: EventInsert, Table: "consultation_messages", New: m}
}

// Bus publishes inserts and opens per-room subscriptions. Every Bus is also a
// consultation.Feed.
type Bus interface {
	Publish(ctx context.Context, m consultation.Message) error
	Subscribe(ctx context.Context, consultationID string) (consultation.Subscription, error)
}

// ChannelName is the Pub/Sub channel of a room.
func ChannelName(consultationID string) string {
	return "consultation:" + consultationID + ":inserts"
}

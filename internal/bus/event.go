package bus

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds published by the server. Subscribers filter by prefix ("message.", "server.").
const (
	KindMessageAppended = "message.appended"
	KindChatCreated     = "chat.created"
	KindRoomJoined      = "room.joined"
	KindRoomLeft        = "room.left"
	KindStatusChanged   = "server.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(kind string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

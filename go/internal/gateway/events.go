package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/roomclock/go/internal/roomtimer"
)

// RoomEvent is the envelope of every message sent to a client
type RoomEvent struct {
	ID        string              `json:"id"`                // Event UUID
	RoomID    roomtimer.RoomID    `json:"room_id,omitempty"` // Empty for session-level replies such as room:list
	Event     roomtimer.EventName `json:"event"`             // Event name
	Timestamp time.Time           `json:"timestamp"`         // Event creation time
	Data      json.RawMessage     `json:"data"`              // Event-specific payload

	// Transient events only refresh a running countdown and are superseded by
	// the next tick. Only these may be dropped under backpressure.
	transient bool
}

// Request names a client can send
const (
	RequestList  = "room:list"
	RequestRead  = "room:read"
	RequestStart = "room:start"
	RequestPause = "room:pause"
	RequestStop  = "room:stop"
	RequestReset = "room:reset"
)

// ClientMessage is a request received from a client
type ClientMessage struct {
	Event  string           `json:"event"`
	RoomID roomtimer.RoomID `json:"room_id,omitempty"`
}

// NewRoomEvent wraps a payload into an envelope
func NewRoomEvent(roomID roomtimer.RoomID, event roomtimer.EventName, payload any) (*RoomEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return &RoomEvent{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
		transient: isTransient(event, payload),
	}, nil
}

func isTransient(event roomtimer.EventName, payload any) bool {
	switch event {
	case roomtimer.EventUpdate:
		return true
	case roomtimer.EventState:
		p, ok := payload.(roomtimer.StatePayload)
		return ok && p.IsRunning
	}
	return false
}

// ParseClientMessage decodes a client request
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("unmarshal client message: %w", err)
	}
	if msg.Event == "" {
		return ClientMessage{}, fmt.Errorf("client message has no event")
	}
	return msg, nil
}

package roomtimer

import (
	"time"
)

// RoomID identifies one of the rooms configured at startup
type RoomID string

// EventName is the wire name of an event emitted to a room or a session
type EventName string

const (
	EventState    EventName = "room:state"
	EventUpdate   EventName = "room:update"
	EventPaused   EventName = "room:paused"
	EventStopped  EventName = "room:stopped"
	EventFinished EventName = "room:finished"
	EventList     EventName = "room:list"
	EventError    EventName = "error"
)

const (
	// DefaultDuration is the countdown length a timer starts with and returns to on reset
	DefaultDuration = 5 * time.Minute
	// DefaultTickInterval is the cadence of broadcasts while a timer is running
	DefaultTickInterval = time.Second
)

// Emitter delivers timer events to every session joined to a room.
// Implementations are called while the timer holds its lock, so they must
// return quickly.
type Emitter interface {
	EmitToRoom(roomID RoomID, event EventName, payload any)
}

// Snapshot is the effective state of a timer at a point in time
type Snapshot struct {
	RoomID    RoomID
	Remaining time.Duration
	Running   bool
}

// StatePayload is the payload of a room:state event
type StatePayload struct {
	RoomID    RoomID `json:"roomId"`
	Time      int64  `json:"time"`
	IsRunning bool   `json:"isRunning"`
}

// TimePayload is the payload of room:update, room:paused and room:stopped events
type TimePayload struct {
	RoomID RoomID `json:"roomId"`
	Time   int64  `json:"time"`
}

// FinishedPayload is the payload of a room:finished event
type FinishedPayload struct {
	RoomID RoomID `json:"roomId"`
}

// ErrorPayload is the payload of an error reply
type ErrorPayload struct {
	Message string `json:"message"`
}

// StatePayload converts the snapshot to its wire form
func (s Snapshot) StatePayload() StatePayload {
	return StatePayload{
		RoomID:    s.RoomID,
		Time:      Milliseconds(s.Remaining),
		IsRunning: s.Running,
	}
}

// Milliseconds converts a duration to non-negative whole milliseconds
func Milliseconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

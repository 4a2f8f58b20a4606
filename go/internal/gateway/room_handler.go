package gateway

import (
	"errors"
	"fmt"

	"github.com/mcdev12/roomclock/go/internal/roomtimer"
	"github.com/rs/zerolog/log"
)

// RoomLookup is what the gateway needs from the room registry
type RoomLookup interface {
	Lookup(id roomtimer.RoomID) (*roomtimer.Timer, error)
	Rooms() []roomtimer.RoomID
}

// SessionEmitter sends replies to a single session and manages its room membership
type SessionEmitter interface {
	EmitToSession(sessionID string, event roomtimer.EventName, payload any)
	JoinRoom(sessionID string, roomID roomtimer.RoomID) error
}

// RoomHandler maps client requests to timer operations
type RoomHandler struct {
	rooms    RoomLookup
	sessions SessionEmitter
}

// NewRoomHandler creates a new room request handler
func NewRoomHandler(rooms RoomLookup, sessions SessionEmitter) *RoomHandler {
	return &RoomHandler{
		rooms:    rooms,
		sessions: sessions,
	}
}

// HandleMessage executes a client request. Successful transitions are broadcast
// by the timer itself; queries and failures are answered to the session only.
func (h *RoomHandler) HandleMessage(sessionID string, msg ClientMessage) {
	if msg.Event == RequestList {
		h.sessions.EmitToSession(sessionID, roomtimer.EventList, h.rooms.Rooms())
		return
	}

	if err := h.handleRoomRequest(sessionID, msg); err != nil {
		log.Info().
			Err(err).
			Str("session_id", sessionID).
			Str("event", msg.Event).
			Str("room_id", string(msg.RoomID)).
			Msg("room request rejected")
		h.sessions.EmitToSession(sessionID, roomtimer.EventError, roomtimer.ErrorPayload{
			Message: errorMessage(msg, err),
		})
	}
}

func (h *RoomHandler) handleRoomRequest(sessionID string, msg ClientMessage) error {
	switch msg.Event {
	case RequestRead, RequestStart, RequestPause, RequestStop, RequestReset:
	default:
		return fmt.Errorf("%w: %q", errUnknownRequest, msg.Event)
	}

	timer, err := h.rooms.Lookup(msg.RoomID)
	if err != nil {
		return err
	}

	switch msg.Event {
	case RequestRead:
		if err := h.sessions.JoinRoom(sessionID, msg.RoomID); err != nil {
			return err
		}
		h.sessions.EmitToSession(sessionID, roomtimer.EventState, timer.Read().StatePayload())
	case RequestStart:
		_, err = timer.Start()
	case RequestPause:
		_, err = timer.Pause()
	case RequestStop:
		_, err = timer.Stop()
	case RequestReset:
		timer.Reset()
	}
	return err
}

var errUnknownRequest = errors.New("unknown request")

// errorMessage renders the human readable message of an error reply
func errorMessage(msg ClientMessage, err error) string {
	switch {
	case errors.Is(err, roomtimer.ErrUnknownRoom):
		return fmt.Sprintf("Invalid room: %s", msg.RoomID)
	case errors.Is(err, roomtimer.ErrAlreadyRunning):
		return fmt.Sprintf("Timer already running in room %s", msg.RoomID)
	case errors.Is(err, roomtimer.ErrNotRunning):
		return fmt.Sprintf("Timer not running in room %s", msg.RoomID)
	case errors.Is(err, errUnknownRequest):
		return fmt.Sprintf("Unknown request: %s", msg.Event)
	default:
		return "Request failed"
	}
}

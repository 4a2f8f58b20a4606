package gateway

import (
	"github.com/mcdev12/roomclock/go/internal/roomtimer"
	"github.com/rs/zerolog/log"
)

// EventSink receives room events that are already wrapped in an envelope
type EventSink interface {
	PublishEvent(event *RoomEvent)
}

// Fanout wraps every room event once and delivers the same envelope to each
// of its sinks in order
type Fanout []EventSink

// EmitToRoom implements roomtimer.Emitter
func (f Fanout) EmitToRoom(roomID roomtimer.RoomID, event roomtimer.EventName, payload any) {
	roomEvent, err := NewRoomEvent(roomID, event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", string(event)).Msg("failed to build room event")
		return
	}
	for _, sink := range f {
		sink.PublishEvent(roomEvent)
	}
}

package gateway

import (
	"encoding/json"
	"testing"

	"github.com/mcdev12/roomclock/go/internal/roomtimer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientMessage(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"event":"room:start","room_id":"room1"}`))
	require.NoError(t, err)
	assert.Equal(t, ClientMessage{Event: RequestStart, RoomID: "room1"}, msg)

	msg, err = ParseClientMessage([]byte(`{"event":"room:list"}`))
	require.NoError(t, err)
	assert.Equal(t, ClientMessage{Event: RequestList}, msg)

	_, err = ParseClientMessage([]byte(`{"room_id":"room1"}`))
	require.Error(t, err)

	_, err = ParseClientMessage([]byte(`room:start`))
	require.Error(t, err)
}

func TestNewRoomEvent(t *testing.T) {
	ev, err := NewRoomEvent("room1", roomtimer.EventPaused, roomtimer.TimePayload{RoomID: "room1", Time: 1234})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "room:paused", decoded["event"])
	assert.Equal(t, "room1", decoded["room_id"])
	assert.Equal(t, map[string]any{"roomId": "room1", "time": float64(1234)}, decoded["data"])

	_, err = NewRoomEvent("room1", roomtimer.EventState, make(chan int))
	require.Error(t, err)
}

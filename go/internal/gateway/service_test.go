package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roomclock/go/internal/roomtimer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	server *httptest.Server
	clock  *clockwork.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClock()

	svc, err := NewService(ctx, DefaultConfig(), roomtimer.WithClock(clock))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Start(ctx)
	}()

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		cancel()
		<-done
	})

	return &testServer{server: server, clock: clock}
}

func (s *testServer) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, roomID roomtimer.RoomID) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{Event: event, RoomID: roomID}))
}

func receive(t *testing.T, conn *websocket.Conn) RoomEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev RoomEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func receiveState(t *testing.T, conn *websocket.Conn) roomtimer.StatePayload {
	t.Helper()
	ev := receive(t, conn)
	require.Equal(t, roomtimer.EventState, ev.Event)
	var state roomtimer.StatePayload
	require.NoError(t, json.Unmarshal(ev.Data, &state))
	return state
}

func TestServiceListRooms(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t, "")

	send(t, conn, RequestList, "")

	ev := receive(t, conn)
	assert.Equal(t, roomtimer.EventList, ev.Event)
	assert.NotEmpty(t, ev.ID)
	assert.JSONEq(t, `["room1","room2","room3"]`, string(ev.Data))
}

func TestServiceBroadcastsToJoinedSessions(t *testing.T) {
	s := newTestServer(t)
	alice := s.dial(t, "")
	bob := s.dial(t, "?room=room1")
	carol := s.dial(t, "")

	// Alice joins room1 by reading it
	send(t, alice, RequestRead, "room1")
	assert.Equal(t, roomtimer.StatePayload{RoomID: "room1", Time: 300000}, receiveState(t, alice))

	// Make sure bob's session is registered before anything is broadcast
	send(t, bob, RequestList, "")
	require.Equal(t, roomtimer.EventList, receive(t, bob).Event)

	// Carol only watches room2
	send(t, carol, RequestRead, "room2")
	receiveState(t, carol)

	send(t, carol, RequestStart, "room1")

	for _, conn := range []*websocket.Conn{alice, bob} {
		state := receiveState(t, conn)
		assert.Equal(t, roomtimer.StatePayload{RoomID: "room1", Time: 300000, IsRunning: true}, state)
	}

	s.clock.Advance(time.Second)
	for _, conn := range []*websocket.Conn{alice, bob} {
		assert.Equal(t, roomtimer.StatePayload{RoomID: "room1", Time: 299000, IsRunning: true}, receiveState(t, conn))
		ev := receive(t, conn)
		assert.Equal(t, roomtimer.EventUpdate, ev.Event)
		assert.Equal(t, roomtimer.RoomID("room1"), ev.RoomID)
		assert.JSONEq(t, `{"roomId":"room1","time":299000}`, string(ev.Data))
	}

	send(t, alice, RequestPause, "room1")
	for _, conn := range []*websocket.Conn{alice, bob} {
		assert.Equal(t, roomtimer.StatePayload{RoomID: "room1", Time: 299000}, receiveState(t, conn))
		ev := receive(t, conn)
		assert.Equal(t, roomtimer.EventPaused, ev.Event)
		assert.JSONEq(t, `{"roomId":"room1","time":299000}`, string(ev.Data))
	}

	// Carol never sees room1 traffic
	require.NoError(t, carol.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := carol.ReadMessage()
	require.Error(t, err)
}

func TestServiceFinishedEvent(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t, "?room=room3")

	send(t, conn, RequestStart, "room3")
	receiveState(t, conn)

	s.clock.Advance(roomtimer.DefaultDuration)

	assert.Equal(t, roomtimer.StatePayload{RoomID: "room3", Time: 0, IsRunning: false}, receiveState(t, conn))
	ev := receive(t, conn)
	assert.Equal(t, roomtimer.EventFinished, ev.Event)
	assert.JSONEq(t, `{"roomId":"room3"}`, string(ev.Data))
}

func TestServiceErrorReply(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t, "")

	send(t, conn, RequestPause, "room2")
	ev := receive(t, conn)
	assert.Equal(t, roomtimer.EventError, ev.Event)
	assert.JSONEq(t, `{"message":"Timer not running in room room2"}`, string(ev.Data))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	ev = receive(t, conn)
	assert.Equal(t, roomtimer.EventError, ev.Event)
	assert.JSONEq(t, `{"message":"Invalid message"}`, string(ev.Data))
}

func TestServiceRejectsUnknownRoomOnConnect(t *testing.T) {
	s := newTestServer(t)

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws?room=room9"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServiceConnectionStats(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t, "?room=room1")
	send(t, conn, RequestList, "")
	receive(t, conn)

	resp, err := http.Get(s.server.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats struct {
		TotalConnections int            `json:"total_connections"`
		ActiveRooms      int            `json:"active_rooms"`
		RoomConnections  map[string]int `json:"room_connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.ActiveRooms)
	assert.Equal(t, map[string]int{"room1": 1}, stats.RoomConnections)
}

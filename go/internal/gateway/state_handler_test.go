package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roomclock/go/internal/roomtimer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStateMux(t *testing.T) (*http.ServeMux, *roomtimer.Registry, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	reg, err := roomtimer.NewRegistry([]roomtimer.RoomID{"room1", "room2"}, nil, roomtimer.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	mux := http.NewServeMux()
	NewStateHandler(reg).RegisterStateRoutes(mux)
	return mux, reg, clock
}

func TestStateHandlerListRooms(t *testing.T) {
	mux, _, _ := newStateMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `["room1","room2"]`, rec.Body.String())
}

func TestStateHandlerGetRoomState(t *testing.T) {
	mux, reg, clock := newStateMux(t)

	timer, err := reg.Lookup("room2")
	require.NoError(t, err)
	_, err = timer.Start()
	require.NoError(t, err)
	clock.Advance(1500 * time.Millisecond)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/room2/state", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"roomId":"room2","time":298500,"isRunning":true}`, rec.Body.String())
}

func TestStateHandlerUnknownRoom(t *testing.T) {
	mux, _, _ := newStateMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/lobby/state", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Invalid room: lobby"}`, rec.Body.String())
}

func TestStateHandlerRejectsWrites(t *testing.T) {
	mux, _, _ := newStateMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/rooms/room1/state", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

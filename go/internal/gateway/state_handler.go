package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/roomclock/go/internal/roomtimer"
	"github.com/rs/zerolog/log"
)

// StateHandler serves read-only room state over plain HTTP
type StateHandler struct {
	rooms RoomLookup
}

// NewStateHandler creates a new state handler
func NewStateHandler(rooms RoomLookup) *StateHandler {
	return &StateHandler{
		rooms: rooms,
	}
}

// HandleListRooms handles GET /api/rooms
func (h *StateHandler) HandleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rooms.Rooms())
}

// HandleGetRoomState handles GET /api/rooms/{id}/state
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	roomID := roomtimer.RoomID(r.PathValue("id"))

	timer, err := h.rooms.Lookup(roomID)
	if err != nil {
		if errors.Is(err, roomtimer.ErrUnknownRoom) {
			writeJSON(w, http.StatusNotFound, roomtimer.ErrorPayload{Message: "Invalid room: " + string(roomID)})
			return
		}
		log.Error().Err(err).Str("room_id", string(roomID)).Msg("failed to look up room")
		http.Error(w, "Failed to get room state", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, timer.Read().StatePayload())
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms", h.HandleListRooms)
	mux.HandleFunc("GET /api/rooms/{id}/state", h.HandleGetRoomState)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/roomclock/go/internal/roomtimer"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	rooms             RoomLookup
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, rooms RoomLookup) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		rooms:             rooms,
	}
}

// HandleConnection upgrades the request. Rooms named by ?room= query
// parameters are joined right away.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	var rooms []roomtimer.RoomID
	for _, id := range r.URL.Query()["room"] {
		roomID := roomtimer.RoomID(id)
		if _, err := h.rooms.Lookup(roomID); err != nil {
			http.Error(w, "unknown room: "+id, http.StatusBadRequest)
			return
		}
		rooms = append(rooms, roomID)
	}

	if _, err := h.connectionManager.UpgradeConnection(w, r, rooms); err != nil {
		// The upgrader has already replied with an HTTP error
		log.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.HandleConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/roomclock/go/internal/roomtimer"
	"github.com/rs/zerolog/log"
)

// MessageHandler handles a request received on a session
type MessageHandler func(sessionID string, msg ClientMessage)

// ConnectionManager manages WebSocket sessions and their room membership
type ConnectionManager struct {
	// Sessions by ID and room membership
	connections     map[string]*Connection
	roomConnections map[roomtimer.RoomID]map[*Connection]bool
	mu              sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	// Event broadcasting, consumed by a single goroutine so events keep
	// their emission order
	broadcastCh chan BroadcastMessage
	// Closed when Start returns
	done chan struct{}

	onMessage MessageHandler
}

// Connection represents a WebSocket session
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Rooms this session has joined, guarded by Manager.mu
	rooms map[roomtimer.RoomID]bool

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	BroadcastBuffer int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is an event queued for delivery
type BroadcastMessage struct {
	RoomID    roomtimer.RoomID
	SessionID string // Optional: if set, only send to this session
	Event     *RoomEvent
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		connections:     make(map[string]*Connection),
		roomConnections: make(map[roomtimer.RoomID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBuffer),
		done:        make(chan struct{}),
	}
}

// SetMessageHandler sets the handler for client requests. Must be called before
// the first connection is accepted.
func (cm *ConnectionManager) SetMessageHandler(handler MessageHandler) {
	cm.onMessage = handler
}

// Start processes broadcast messages until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	defer close(cm.done)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and joins the given rooms
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, rooms []roomtimer.RoomID) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		rooms:       make(map[roomtimer.RoomID]bool),
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection, rooms)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("session_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("client connected")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection, rooms []roomtimer.RoomID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn.ID] = conn
	for _, roomID := range rooms {
		cm.joinLocked(conn, roomID)
	}
}

// JoinRoom subscribes a session to the broadcasts of a room
func (cm *ConnectionManager) JoinRoom(sessionID string, roomID roomtimer.RoomID) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok := cm.connections[sessionID]
	if !ok {
		return fmt.Errorf("session %s not connected", sessionID)
	}
	if cm.joinLocked(conn, roomID) {
		log.Info().
			Str("session_id", sessionID).
			Str("room_id", string(roomID)).
			Msg("client joined room")
	}
	return nil
}

func (cm *ConnectionManager) joinLocked(conn *Connection, roomID roomtimer.RoomID) bool {
	if conn.rooms[roomID] {
		return false
	}
	if cm.roomConnections[roomID] == nil {
		cm.roomConnections[roomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[roomID][conn] = true
	conn.rooms[roomID] = true
	return true
}

// unregisterConnection removes a connection from the manager
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn.ID]; !exists {
		return
	}
	delete(cm.connections, conn.ID)
	for roomID := range conn.rooms {
		connections := cm.roomConnections[roomID]
		delete(connections, conn)
		if len(connections) == 0 {
			delete(cm.roomConnections, roomID)
		}
	}
	close(conn.Send)

	log.Info().
		Str("session_id", conn.ID).
		Int("rooms", len(conn.rooms)).
		Msg("client disconnected")
}

// PublishEvent queues an event for every session joined to its room
func (cm *ConnectionManager) PublishEvent(event *RoomEvent) {
	cm.queue(BroadcastMessage{RoomID: event.RoomID, Event: event})
}

// EmitToSession queues an event for a single session
func (cm *ConnectionManager) EmitToSession(sessionID string, event roomtimer.EventName, payload any) {
	var roomID roomtimer.RoomID
	if p, ok := payload.(roomtimer.StatePayload); ok {
		roomID = p.RoomID
	}
	cm.enqueue(BroadcastMessage{RoomID: roomID, SessionID: sessionID}, event, payload)
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage, event roomtimer.EventName, payload any) {
	roomEvent, err := NewRoomEvent(message.RoomID, event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", string(event)).Msg("failed to build event")
		return
	}
	message.Event = roomEvent
	cm.queue(message)
}

// queue hands a message to the broadcast goroutine. When the channel is full,
// transient events are dropped and any other event waits until there is room
// or the manager stops.
func (cm *ConnectionManager) queue(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
		return
	default:
	}

	logger := log.Warn().
		Str("room_id", string(message.RoomID)).
		Str("session_id", message.SessionID).
		Str("event", string(message.Event.Event))

	if message.Event.transient {
		logger.Msg("broadcast channel full, dropping message")
		return
	}

	select {
	case cm.broadcastCh <- message:
		logger.Msg("broadcast channel was full, message delivered late")
	case <-cm.done:
		logger.Msg("connection manager stopped, dropping message")
	}
}

// handleBroadcast delivers a queued message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	delivered := 0

	// Sends are non-blocking, so they happen under the read lock; that keeps
	// unregisterConnection from closing a Send channel mid-broadcast.
	cm.mu.RLock()
	var targets []*Connection
	if message.SessionID != "" {
		if conn, ok := cm.connections[message.SessionID]; ok {
			targets = append(targets, conn)
		}
	} else {
		for conn := range cm.roomConnections[message.RoomID] {
			targets = append(targets, conn)
		}
	}
	for _, conn := range targets {
		select {
		case conn.Send <- eventData:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("session_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event", string(message.Event.Event)).
		Str("room_id", string(message.RoomID)).
		Str("session_id", message.SessionID).
		Int("connections", delivered).
		Msg("event delivered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	roomCounts := make(map[string]int, len(cm.roomConnections))
	for roomID, connections := range cm.roomConnections {
		roomCounts[string(roomID)] = len(connections)
	}

	return map[string]interface{}{
		"total_connections": len(cm.connections),
		"active_rooms":      len(cm.roomConnections),
		"room_connections":  roomCounts,
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("session_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("session_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("session_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes a request and passes it to the message handler
func (c *Connection) handleClientMessage(message []byte) {
	msg, err := ParseClientMessage(message)
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", c.ID).
			Msg("invalid client message")
		c.Manager.EmitToSession(c.ID, roomtimer.EventError, roomtimer.ErrorPayload{Message: "Invalid message"})
		return
	}

	log.Debug().
		Str("session_id", c.ID).
		Str("event", msg.Event).
		Str("room_id", string(msg.RoomID)).
		Msg("received client message")

	if c.Manager.onMessage != nil {
		c.Manager.onMessage(c.ID, msg)
	}
}

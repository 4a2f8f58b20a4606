package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mcdev12/roomclock/go/internal/roomtimer"
	"github.com/rs/zerolog/log"
)

// Service is the room clock gateway: it owns the room registry, the WebSocket
// sessions and the optional JetStream mirror.
type Service struct {
	registry          *roomtimer.Registry
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	roomHandler       *RoomHandler
	publisher         *JetStreamPublisher
}

// Config holds configuration for the gateway service
type Config struct {
	Rooms            []roomtimer.RoomID
	ConnectionConfig ConnectionConfig
	JetStreamEnabled bool
	JetStreamConfig  JetStreamConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		Rooms:            []roomtimer.RoomID{"room1", "room2", "room3"},
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConfig(),
	}
}

// NewService creates the registry and wires it to the gateway
func NewService(ctx context.Context, config Config, opts ...roomtimer.Option) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	emitter := Fanout{connectionManager}

	var publisher *JetStreamPublisher
	if config.JetStreamEnabled {
		var err error
		publisher, err = NewJetStreamPublisher(ctx, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}
		emitter = append(emitter, publisher)
	}

	registry, err := roomtimer.NewRegistry(config.Rooms, emitter, opts...)
	if err != nil {
		if publisher != nil {
			publisher.Close()
		}
		return nil, fmt.Errorf("failed to create room registry: %w", err)
	}

	roomHandler := NewRoomHandler(registry, connectionManager)
	connectionManager.SetMessageHandler(roomHandler.HandleMessage)

	return &Service{
		registry:          registry,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, registry),
		stateHandler:      NewStateHandler(registry),
		roomHandler:       roomHandler,
		publisher:         publisher,
	}, nil
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Int("rooms", len(s.registry.Rooms())).Msg("starting room clock gateway")

	go s.connectionManager.Start(ctx)
	if s.publisher != nil {
		go s.publisher.Run(ctx)
	}

	<-ctx.Done()

	log.Info().Msg("room clock gateway shutting down")
	return s.Stop()
}

// Stop releases every running timer and closes the JetStream connection
func (s *Service) Stop() error {
	s.registry.Close()

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close JetStream publisher")
		}
	}

	log.Info().Msg("room clock gateway stopped")
	return nil
}

// Registry returns the room registry
func (s *Service) Registry() *roomtimer.Registry {
	return s.registry
}

// RegisterRoutes registers the WebSocket and HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "roomclock_gateway"
	stats["rooms"] = s.registry.Rooms()
	if s.publisher != nil {
		stats["nats_connected"] = s.publisher.Connected()
	}
	return stats
}

package gateway

import (
	"context"
	"net/http"

	"github.com/mcdev12/screentime/go/internal/events"
	"github.com/rs/zerolog/log"
)

// Service hosts page usage timers over WebSocket
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new gateway service
func NewService(config Config, publisher events.Publisher, identify IdentifyFunc) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, publisher)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, identify),
	}
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting timer gateway service")

	s.connectionManager.Start(ctx)

	log.Info().Msg("timer gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("timer gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "timer_gateway"
	stats["status"] = "running"
	return stats
}

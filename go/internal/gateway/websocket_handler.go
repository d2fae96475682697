package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// IdentifyFunc resolves the signed-in user for a request, or nil
type IdentifyFunc func(r *http.Request) *uuid.UUID

// WebSocketHandler handles WebSocket upgrade requests for page timers
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	identify          IdentifyFunc
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, identify IdentifyFunc) *WebSocketHandler {
	if identify == nil {
		identify = func(*http.Request) *uuid.UUID { return nil }
	}
	return &WebSocketHandler{
		connectionManager: cm,
		identify:          identify,
	}
}

// HandleTimerConnection starts a usage timer for the connecting page
func (h *WebSocketHandler) HandleTimerConnection(w http.ResponseWriter, r *http.Request) {
	userID := h.identify(r)

	// The upgrader has already replied to the client on failure
	if err := h.connectionManager.UpgradeConnection(w, r, userID); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userIDString(userID)).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/timer", h.HandleTimerConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

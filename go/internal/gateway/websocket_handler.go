package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleConnection upgrades a client. The connection starts on the global
// channel only; rooms are joined with subscribe messages, or directly with
// the room query parameter.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	// For development, allow anonymous connections
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		playerID = "anonymous"
	}

	var roomIDs []string
	if room := r.URL.Query().Get("room"); room != "" {
		id, err := h.connectionManager.directory.Resolve(room)
		if err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		roomIDs = append(roomIDs, id)
	}

	if _, err := h.connectionManager.upgrade(w, r, playerID, roomIDs...); err != nil {
		log.Error().
			Err(err).
			Str("player_id", playerID).
			Msg("failed to upgrade WebSocket connection")
		// the upgrader has already replied
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.Stats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers WebSocket routes on a router
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.HandleConnection)
	r.Get("/ws/stats", h.HandleConnectionStats)
}

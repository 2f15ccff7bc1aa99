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
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/memoria/go/internal/events"
	"github.com/mcdev12/memoria/go/internal/models"
)

// RoomDirectory is what the hub needs from the room registry
type RoomDirectory interface {
	List() []models.Room
	Resolve(idOrCode string) (string, error)
	Flip(ctx context.Context, idOrCode string, teamID, cardID int) error
	Relay(ctx context.Context, idOrCode string, data json.RawMessage) error
}

// ConnectionManager fans events out to WebSocket clients. Every connection
// receives global events; room events go to connections subscribed to the room.
type ConnectionManager struct {
	connections     map[*Connection]bool
	roomConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	directory RoomDirectory

	// Event broadcasting
	broadcastCh chan *events.Event
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID       string
	PlayerID string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	// rooms is guarded by Manager.mu
	rooms map[string]bool

	// Connection metadata
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

	// LifecycleTimeout bounds how long Publish waits for room lifecycle
	// events when the broadcast channel is full.
	LifecycleTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   4096,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		SendBufferSize:   256,
		LifecycleTimeout: 250 * time.Millisecond,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, directory RoomDirectory) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	if config.LifecycleTimeout <= 0 {
		config.LifecycleTimeout = 250 * time.Millisecond
	}
	return &ConnectionManager{
		connections:     make(map[*Connection]bool),
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		directory:   directory,
		broadcastCh: make(chan *events.Event, 1000), // Buffer for high throughput
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case ev := <-cm.broadcastCh:
			cm.handleBroadcast(ev)
		}
	}
}

// Publish queues an event for delivery. Lifecycle events wait up to
// LifecycleTimeout for room in the channel; everything else is dropped
// at once when the channel is full.
func (cm *ConnectionManager) Publish(ev *events.Event) {
	select {
	case cm.broadcastCh <- ev:
		return
	default:
	}

	if !isLifecycle(ev.Type) {
		log.Warn().
			Str("event_type", string(ev.Type)).
			Str("room_id", ev.RoomID).
			Msg("broadcast channel full, dropping message")
		return
	}

	timer := time.NewTimer(cm.config.LifecycleTimeout)
	defer timer.Stop()
	select {
	case cm.broadcastCh <- ev:
	case <-timer.C:
		log.Error().
			Str("event_id", ev.ID).
			Str("event_type", string(ev.Type)).
			Str("room_id", ev.RoomID).
			Msg("broadcast channel full, dropping lifecycle event")
	}
}

// isLifecycle reports events that no later room event supersedes.
func isLifecycle(t events.EventType) bool {
	switch t {
	case events.EventTypeRoomStarted, events.EventTypeRoundAdvanced,
		events.EventTypeGameCompleted, events.EventTypeRoomClosed:
		return true
	}
	return false
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, playerID string) error {
	_, err := cm.upgrade(w, r, playerID)
	return err
}

// upgrade registers the connection already subscribed to roomIDs, so no
// room event can slip in between the two.
func (cm *ConnectionManager) upgrade(w http.ResponseWriter, r *http.Request, playerID string, roomIDs ...string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		rooms:       make(map[string]bool),
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection, roomIDs...)

	// late joiners get the listing without waiting for the next change
	if data, err := cm.listing(); err == nil {
		cm.sendTo(connection, data)
	} else {
		log.Error().Err(err).Msg("failed to build room listing")
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_id", playerID).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) listing() ([]byte, error) {
	ev, err := events.NewGlobal(events.EventTypeRoomsUpdate, events.RoomsUpdatePayload{Rooms: cm.directory.List()}, time.Now())
	if err != nil {
		return nil, err
	}
	return json.Marshal(ev)
}

// registerConnection adds a connection to the manager along with its
// initial room subscriptions
func (cm *ConnectionManager) registerConnection(conn *Connection, roomIDs ...string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true
	for _, roomID := range roomIDs {
		cm.subscribeLocked(conn, roomID)
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection and all of its subscriptions
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.connections[conn] {
		return
	}
	delete(cm.connections, conn)
	for roomID := range conn.rooms {
		cm.removeSubscriptionLocked(conn, roomID)
	}
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", conn.PlayerID).
		Msg("connection unregistered")
}

// Subscribe adds a connection to a room channel
func (cm *ConnectionManager) Subscribe(conn *Connection, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.connections[conn] {
		return
	}
	cm.subscribeLocked(conn, roomID)

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", roomID).
		Int("room_connections", len(cm.roomConnections[roomID])).
		Msg("connection subscribed")
}

func (cm *ConnectionManager) subscribeLocked(conn *Connection, roomID string) {
	if cm.roomConnections[roomID] == nil {
		cm.roomConnections[roomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[roomID][conn] = true
	conn.rooms[roomID] = true
}

// Unsubscribe removes a connection from a room channel
func (cm *ConnectionManager) Unsubscribe(conn *Connection, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.removeSubscriptionLocked(conn, roomID)
}

func (cm *ConnectionManager) removeSubscriptionLocked(conn *Connection, roomID string) {
	delete(conn.rooms, roomID)
	if connections, ok := cm.roomConnections[roomID]; ok {
		delete(connections, conn)
		// Clean up empty room connection pools
		if len(connections) == 0 {
			delete(cm.roomConnections, roomID)
		}
	}
}

// sendTo queues data for one connection. Sends happen under the read lock
// so they never race with close(Send) in unregisterConnection.
func (cm *ConnectionManager) sendTo(conn *Connection, data []byte) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if !cm.connections[conn] {
		return false
	}
	select {
	case conn.Send <- data:
		return true
	default:
		return false
	}
}

// handleBroadcast delivers one event to its audience
func (cm *ConnectionManager) handleBroadcast(ev *events.Event) {
	eventData, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	delivered := 0

	cm.mu.RLock()
	targets := cm.connections
	if ev.Scope == events.ScopeRoom {
		targets = cm.roomConnections[ev.RoomID]
	}
	for conn := range targets {
		select {
		case conn.Send <- eventData:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	// Connection is slow/dead, close it
	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("player_id", conn.PlayerID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	if ev.Type == events.EventTypeRoomClosed {
		cm.dropRoom(ev.RoomID)
	}

	log.Debug().
		Str("event_type", string(ev.Type)).
		Str("room_id", ev.RoomID).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// dropRoom removes every subscription of a closed room
func (cm *ConnectionManager) dropRoom(roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for conn := range cm.roomConnections[roomID] {
		delete(conn.rooms, roomID)
	}
	delete(cm.roomConnections, roomID)
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	all := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		all = append(all, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// ConnectionStats summarizes active connections
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// Stats returns statistics about active connections
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections: len(cm.connections),
		ActiveRooms:      len(cm.roomConnections),
		RoomConnections:  make(map[string]int, len(cm.roomConnections)),
	}
	for roomID, connections := range cm.roomConnections {
		stats.RoomConnections[roomID] = len(connections)
	}
	return stats
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
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
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
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/screentime/go/internal/events"
	"github.com/mcdev12/screentime/go/internal/usagetimer"
	"github.com/rs/zerolog/log"
)

var (
	errConnectionClosed = errors.New("connection closed")
	errSendBufferFull   = errors.New("send buffer full")
)

// ConnectionManager hosts one usage timer per WebSocket connection
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	config    ConnectionConfig
	publisher events.Publisher

	// Parent of every connection context; cancelled on shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// Connection is a page with a running usage timer
type Connection struct {
	ID        string
	UserID    *uuid.UUID
	UserAgent string
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager
	Timer     *usagetimer.Timer

	ConnectedAt time.Time

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
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
	PublishTimeout  time.Duration
	CheckOrigin     func(r *http.Request) bool

	// Clock drives the hosted timers
	Clock clockwork.Clock
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024, // 1KB max message size
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  16,
		PublishTimeout:  5 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		Clock: clockwork.NewRealClock(),
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, publisher events.Publisher) *ConnectionManager {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	defaults := DefaultConnectionConfig()
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = defaults.SendBufferSize
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	// Non-positive durations would panic time.NewTicker in writePump
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = defaults.PublishTimeout
	}
	if publisher == nil {
		publisher = events.NewLogPublisher()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:    config,
		publisher: publisher,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start blocks until ctx is done, then closes every connection
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	<-ctx.Done()

	log.Info().Msg("connection manager shutting down")
	cm.cancel()
	for _, conn := range cm.snapshot() {
		conn.close()
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts its timer.
// The upgrade is the page-ready moment: every connection starts at 00:00.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID *uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(cm.ctx)
	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		UserAgent:   r.UserAgent(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: cm.config.Clock.Now(),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	timer, err := usagetimer.New(
		NewFrameDisplay(connection.enqueue),
		usagetimer.WithClock(cm.config.Clock),
		usagetimer.WithLockHook(connection.onLocked),
	)
	if err != nil {
		cancel()
		conn.Close()
		return fmt.Errorf("failed to create usage timer: %w", err)
	}
	connection.Timer = timer

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()
	go connection.runTimer(ctx)

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userIDString(userID)).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; exists {
		delete(cm.connections, conn)

		log.Info().
			Str("connection_id", conn.ID).
			Str("user_id", userIDString(conn.UserID)).
			Msg("connection unregistered")
	}
}

func (cm *ConnectionManager) snapshot() []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	return conns
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	conns := cm.snapshot()

	locked := 0
	for _, conn := range conns {
		if conn.Timer.Snapshot().Locked {
			locked++
		}
	}

	return map[string]interface{}{
		"total_connections":  len(conns),
		"locked_connections": locked,
	}
}

// enqueue hands a frame to the write pump without blocking the timer.
// A consumer that cannot keep up is disconnected.
func (c *Connection) enqueue(message []byte) error {
	select {
	case <-c.done:
		return errConnectionClosed
	default:
	}

	select {
	case c.Send <- message:
		return nil
	case <-c.done:
		return errConnectionClosed
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Msg("connection send buffer full, closing connection")
		c.close()
		return errSendBufferFull
	}
}

// close tears the connection down exactly once
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	})
}

func (c *Connection) runTimer(ctx context.Context) {
	defer c.close()

	if err := c.Timer.Run(ctx); err != nil && !errors.Is(err, errConnectionClosed) {
		log.Error().
			Err(err).
			Str("connection_id", c.ID).
			Msg("usage timer failed")
	}
}

func (c *Connection) onLocked(ctx context.Context, frame usagetimer.Frame) {
	// The lock must be reported even if the page is closing right now
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.Manager.config.PublishTimeout)
	defer cancel()

	event := events.UsageLocked{
		ID:             uuid.New(),
		ConnectionID:   c.ID,
		UserID:         c.UserID,
		UserAgent:      c.UserAgent,
		ElapsedSeconds: frame.ElapsedSeconds,
		LockedAt:       c.Manager.config.Clock.Now(),
	}
	if err := c.Manager.publisher.PublishLocked(pubCtx, event); err != nil {
		log.Error().
			Err(err).
			Str("connection_id", c.ID).
			Msg("failed to publish usage locked event")
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
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
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump drains client messages so pongs and close frames are processed
func (c *Connection) readPump() {
	defer c.close()

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
			return
		}

		// The page has nothing to say to the timer
		log.Debug().
			Str("connection_id", c.ID).
			Int("size", len(message)).
			Msg("ignoring client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

func userIDString(id *uuid.UUID) string {
	if id == nil {
		return "anonymous"
	}
	return id.String()
}

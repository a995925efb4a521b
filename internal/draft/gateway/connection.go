// Package gateway exposes drafts over HTTP and WebSocket. It bridges hub
// subscriptions onto gorilla/websocket connections and feeds the hub from a
// JetStream consumer when events arrive over the broker instead of
// in-process.
package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/botsports/empire/internal/draft/hub"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionConfig holds WebSocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// Connection is one WebSocket client bound to a hub subscription. The
// subscription's stream drives the write side; the read side only services
// pongs and close frames.
type Connection struct {
	id     string
	sub    *hub.Subscriber
	conn   *websocket.Conn
	hub    *hub.Hub
	config ConnectionConfig
}

// ConnectionManager upgrades HTTP requests and wires each socket to the hub.
type ConnectionManager struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// NewConnectionManager creates a manager bridging sockets onto a hub.
func NewConnectionManager(h *hub.Hub, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// UpgradeConnection upgrades the request, subscribes to the draft, and
// starts the connection pumps. The first frame the client receives is the
// draft snapshot.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, draftID uuid.UUID) error {
	sub, err := cm.hub.Subscribe(r.Context(), draftID)
	if err != nil {
		return err
	}

	wsConn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cm.hub.Unsubscribe(sub)
		return err
	}

	c := &Connection{
		id:     uuid.New().String(),
		sub:    sub,
		conn:   wsConn,
		hub:    cm.hub,
		config: cm.config,
	}

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.id).
		Str("draft_id", draftID.String()).
		Msg("WebSocket connection established")
	return nil
}

// writePump drains the hub subscription onto the socket and keeps the
// connection alive with pings. When the subscription closes (unsubscribe or
// slow-consumer drop) the socket is closed too.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.Unsubscribe(c.sub)
	}()

	for {
		select {
		case msg, ok := <-c.sub.Events():
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to marshal message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump services pongs and detects client disconnects. Clients do not
// send commands over the socket; anything received is logged and ignored.
func (c *Connection) readPump() {
	defer func() {
		c.hub.Unsubscribe(c.sub)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		log.Debug().
			Str("connection_id", c.id).
			RawJSON("message", message).
			Msg("received client message")
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
}

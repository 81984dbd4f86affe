package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/emitter-go/internal/emitter"
	"github.com/nerrad567/emitter-go/internal/infrastructure/config"
	"github.com/nerrad567/emitter-go/internal/infrastructure/logging"
	"github.com/nerrad567/emitter-go/internal/subtrie"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeMessage     = "message"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// WSMessage is a frame sent to or from a WebSocket client.
//
// Clients send subscribe and unsubscribe frames listing channel patterns;
// the hub sends one message frame per inbound Emitter message.
type WSMessage struct {
	Type      string   `json:"type"`
	ID        string   `json:"id,omitempty"`
	Channels  []string `json:"channels,omitempty"`
	Channel   string   `json:"channel,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Payload   any      `json:"payload,omitempty"`
}

// Hub tracks WebSocket clients and relays Emitter messages to them.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected WebSocket client.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// patterns holds the channel patterns the client asked for.
	patterns *subtrie.Trie[string]
	mu       sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// The API listens on loopback only.
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub.
// Only the goroutine that removes the client from the map closes its send
// channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// Broadcast relays msg to every client with a pattern matching its channel.
// It has the signature of an emitter.MessageHandler, so it can be passed
// straight to Subscribe or OnMessage.
func (h *Hub) Broadcast(msg emitter.Message) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeMessage,
		Channel:   msg.Channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   framePayload(msg.Payload),
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	// Snapshot client list under hub lock, then release before sending.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client.matches(msg.Channel) {
			client.trySend(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", msg.Channel, "recipients", sent)
	}
}

// framePayload embeds JSON payloads as-is and sends anything else as text.
// Payloads that are not valid UTF-8 are sent as base64 by json.Marshal.
func framePayload(payload []byte) any {
	switch {
	case json.Valid(payload):
		return json.RawMessage(payload)
	case utf8.Valid(payload):
		return string(payload)
	default:
		return payload
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, "websocket hub not running")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn)
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func newWSClient(hub *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		patterns: subtrie.New[string](),
	}
}

// readPump reads frames from the connection until it fails.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client frame counts as liveness.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes queued frames and keepalive pings to the connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes one frame from the client.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(msg)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case WSTypePing:
		c.sendResponse(WSMessage{Type: WSTypePong, ID: msg.ID})
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleSubscribe adds channel patterns for the client.
func (c *WSClient) handleSubscribe(msg WSMessage) {
	if len(msg.Channels) == 0 {
		c.sendError(msg.ID, "subscribe requires at least one channel")
		return
	}

	c.mu.Lock()
	for _, ch := range msg.Channels {
		c.patterns.Insert(ch, ch)
	}
	c.mu.Unlock()

	c.hub.logger.Debug("websocket client subscribed", "channels", msg.Channels)
	c.sendResponse(WSMessage{Type: WSTypeResponse, ID: msg.ID, Channels: c.subscriptions()})
}

// handleUnsubscribe removes channel patterns for the client.
func (c *WSClient) handleUnsubscribe(msg WSMessage) {
	c.mu.Lock()
	for _, ch := range msg.Channels {
		c.patterns.Delete(ch)
	}
	c.mu.Unlock()

	c.sendResponse(WSMessage{Type: WSTypeResponse, ID: msg.ID, Channels: c.subscriptions()})
}

// matches reports whether any of the client's patterns matches channel.
func (c *WSClient) matches(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.patterns.Lookup(channel)) > 0
}

func (c *WSClient) subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.patterns.Patterns()
}

// trySend queues data for the client. Frames for a slow client with a full
// buffer are dropped, and a send racing with disconnect is absorbed.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

// sendResponse stamps and queues a reply frame.
func (c *WSClient) sendResponse(msg WSMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError queues an error frame.
func (c *WSClient) sendError(id, message string) {
	c.sendResponse(WSMessage{Type: WSTypeError, ID: id, Payload: map[string]string{"message": message}})
}

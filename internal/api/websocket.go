package api

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DyakonovAlex/smart-home/internal/infrastructure/config"
	"github.com/DyakonovAlex/smart-home/internal/infrastructure/logging"
)

// Event channels a client can subscribe to.
const (
	ChannelThermReading = "therm.reading"
	ChannelOutletState  = "outlet.state"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is how many frames may queue for a slow client
	// before events are dropped.
	wsSendBufferSize = 64

	defaultPingInterval = 30 * time.Second
)

var knownChannels = []string{ChannelThermReading, ChannelOutletState}

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload names the channels of a subscribe or unsubscribe.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

func envelope(msgType, id string, payload any) WSMessage {
	return WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
}

// keepalive derives the ping period and the pong grace from cfg.
// The read side expires after ping+pong without traffic.
func keepalive(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping = time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong = time.Duration(cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = ping
	}
	return ping, pong
}

// Hub tracks WebSocket clients and fans events out to subscribers.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected WebSocket client.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The ops API listens on a trusted interface.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub.
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

	h.mu.Lock()
	gone := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range gone {
		close(c.send)
		if c.conn != nil {
			c.conn.Close() //nolint:errcheck // shutdown
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. The send channel is closed by whichever of
// Unregister or Run removes the client first.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Broadcast queues an event for every client subscribed to channel.
// It never blocks; a client with a full buffer misses the event.
func (h *Hub) Broadcast(channel string, payload any) {
	msg := envelope(WSTypeEvent, "", payload)
	msg.EventType = channel
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	for _, c := range h.subscribers(channel) {
		c.enqueue(data)
	}
}

// subscribers returns the clients that want channel. Sends happen after
// the hub lock is released.
func (h *Hub) subscribers(channel string) []*WSClient {
	h.mu.RLock()
	all := slices.Collect(maps.Keys(h.clients))
	h.mu.RUnlock()

	return slices.DeleteFunc(all, func(c *WSClient) bool { return !c.wants(channel) })
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the connection. Channels may be pre-subscribed
// with ?channels=therm.reading,outlet.state.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	initial := splitChannels(r.URL.Query().Get("channels"))
	if ch, ok := firstUnknown(initial); ok {
		writeBadRequest(w, "unknown channel: "+ch)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}, len(initial)),
	}
	for _, ch := range initial {
		client.subscriptions[ch] = struct{}{}
	}
	s.hub.Register(client)

	ping, pong := keepalive(s.wsCfg)
	go client.writeLoop(ping, pong)
	go client.readLoop(s.wsCfg.MaxMessageSize, ping+pong)
}

func splitChannels(v string) []string {
	var out []string
	for ch := range strings.SplitSeq(v, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

func firstUnknown(channels []string) (string, bool) {
	for _, ch := range channels {
		if !slices.Contains(knownChannels, ch) {
			return ch, true
		}
	}
	return "", false
}

// readLoop handles client frames until the connection fails or goes quiet
// for longer than idle. Any frame or pong extends the deadline.
func (c *WSClient) readLoop(maxSize int, idle time.Duration) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close() //nolint:errcheck // read side done
	}()

	if maxSize > 0 {
		c.conn.SetReadLimit(int64(maxSize))
	}
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	}
	extend("") //nolint:errcheck // a failed deadline surfaces on ReadMessage
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		extend("") //nolint:errcheck // as above
		c.dispatch(data)
	}
}

// writeLoop is the only writer on the connection. It drains send and
// pings every ping period; each write must finish within pong.
func (c *WSClient) writeLoop(ping, pong time.Duration) {
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // write side done
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(pong)) //nolint:errcheck // a failed deadline surfaces on the write
		return c.conn.WriteMessage(kind, data)
	}

	for {
		var err error
		select {
		case data, open := <-c.send:
			if !open {
				write(websocket.CloseMessage, nil) //nolint:errcheck // peer may be gone
				return
			}
			err = write(websocket.TextMessage, data)
		case <-ticker.C:
			err = write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

// dispatch answers one client frame.
func (c *WSClient) dispatch(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.fail("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.resubscribe(msg)
	case WSTypePing:
		c.reply(envelope(WSTypePong, msg.ID, nil))
	default:
		c.fail(msg.ID, "unknown message type: "+msg.Type)
	}
}

// resubscribe applies a subscribe or unsubscribe. Nothing changes if any
// named channel is unknown.
func (c *WSClient) resubscribe(msg WSMessage) {
	// Payload arrives as a generic map; round-trip it into the typed form.
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		c.fail(msg.ID, "invalid payload")
		return
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		c.fail(msg.ID, "invalid subscription payload")
		return
	}
	if ch, ok := firstUnknown(sub.Channels); ok {
		c.fail(msg.ID, "unknown channel: "+ch)
		return
	}

	adding := msg.Type == WSTypeSubscribe
	c.mu.Lock()
	for _, ch := range sub.Channels {
		if adding {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if adding {
		key = "subscribed"
	}
	c.reply(envelope(WSTypeResponse, msg.ID, map[string]any{key: sub.Channels}))
}

func (c *WSClient) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) reply(msg WSMessage) {
	if data, err := json.Marshal(msg); err == nil {
		c.enqueue(data)
	}
}

func (c *WSClient) fail(id, message string) {
	c.reply(envelope(WSTypeError, id, map[string]string{"message": message}))
}

// enqueue hands data to writeLoop without blocking. The message is dropped
// when the buffer is full or the client has already been removed.
func (c *WSClient) enqueue(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a channel closed by Unregister
	}()

	select {
	case c.send <- data:
	default:
	}
}

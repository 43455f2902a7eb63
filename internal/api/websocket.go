package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-twin/internal/infrastructure/config"
	"github.com/nerrad567/gray-twin/internal/infrastructure/logging"
	"github.com/nerrad567/gray-twin/internal/notify"
	"github.com/nerrad567/gray-twin/internal/session"
	"github.com/nerrad567/gray-twin/internal/snapshot"
)

// Message types of the websocket protocol.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeGet         = "get"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	// wsSendBufferSize bounds queued outbound messages per client. Events
	// for a client whose queue is full are dropped.
	wsSendBufferSize = 256

	// wsSessionUser names sessions opened for websocket connections.
	wsSessionUser = "websocket"
)

// WSMessage is one frame of the websocket protocol, in either direction.
//
// Clients send subscribe, unsubscribe, get and ping with an ID that is
// echoed on the reply. The server sends event frames for notifications
// and response, pong or error frames for requests.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload asks for events matching notification patterns such
// as "DATA/sensor1/#".
type WSSubscribePayload struct {
	Topics []string `json:"topics"`
}

// WSUnsubscribePayload names a subscription returned by subscribe.
type WSUnsubscribePayload struct {
	Subscription string `json:"subscription"`
}

// WSGetPayload reads one resource. Level is a snapshot level name and
// defaults to the full value.
type WSGetPayload struct {
	Provider string `json:"provider"`
	Service  string `json:"service"`
	Resource string `json:"resource"`
	Level    string `json:"level,omitempty"`
}

// wsRequest is the inbound view of WSMessage; the payload is decoded once
// the type is known.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// wsTimings are the keepalive settings derived from the websocket config.
type wsTimings struct {
	readLimit int64
	ping      time.Duration
	pongWait  time.Duration
}

func timingsFrom(cfg config.WebSocketConfig) wsTimings {
	return wsTimings{
		readLimit: int64(cfg.MaxMessageSize),
		ping:      time.Duration(cfg.PingInterval) * time.Second,
		pongWait:  time.Duration(cfg.PongTimeout) * time.Second,
	}
}

// readDeadline is how long a connection may stay silent.
func (t wsTimings) readDeadline() time.Time {
	return time.Now().Add(t.ping + t.pongWait)
}

// Hub tracks connected websocket clients so shutdown can close them.
type Hub struct {
	timings wsTimings
	logger  *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one websocket connection.
//
// Each client owns a session opened when it connected; its subscriptions
// are session subscriptions and end with the connection.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	session *session.Session
	ctx     context.Context // session execution context

	mu     sync.Mutex
	send   chan []byte
	closed bool
	subs   map[string]*notify.Subscription
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		timings: timingsFrom(cfg),
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	clear(h.clients)
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client and closes its session. Calling it twice,
// or after Run has closed the client, is harmless.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if c.shutdown() {
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// newWSClient creates a client bound to a fresh session. conn may be nil
// in tests that never pump.
func (s *Server) newWSClient(conn *websocket.Conn) *WSClient {
	sess, ctx := s.sessions.Open(s.ctx, wsSessionUser)
	return &WSClient{
		hub:     s.hub,
		conn:    conn,
		session: sess,
		ctx:     ctx,
		send:    make(chan []byte, wsSendBufferSize),
		subs:    make(map[string]*notify.Subscription),
	}
}

// handleWebSocket upgrades the request. A topics query parameter holding
// comma-separated patterns subscribes the client immediately.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	initial := splitTopics(r.URL.Query().Get("topics"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := s.newWSClient(conn)
	s.hub.Register(c)
	if len(initial) > 0 {
		c.subscribe("", initial)
	}

	go c.writePump()
	go c.readPump()
}

func splitTopics(raw string) []string {
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// readPump handles inbound frames until the connection fails. Any frame,
// not only a pong, extends the read deadline.
func (c *WSClient) readPump() {
	t := c.hub.timings
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(t.readLimit)
	c.conn.SetReadDeadline(t.readDeadline()) //nolint:errcheck // read error follows
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "session", c.session.ID(), "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(t.readDeadline()) //nolint:errcheck // read error follows
		c.handleFrame(frame)
	}
}

// writePump drains the send queue and pings on the keepalive interval. It
// exits when the queue is closed or a write fails.
func (c *WSClient) writePump() {
	t := c.hub.timings
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(t.pongWait)) //nolint:errcheck // write error follows
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsHandlers maps request types to their handlers.
var wsHandlers = map[string]func(c *WSClient, id string, payload json.RawMessage){
	WSTypeSubscribe: func(c *WSClient, id string, payload json.RawMessage) {
		var p WSSubscribePayload
		if json.Unmarshal(payload, &p) != nil || len(p.Topics) == 0 {
			c.replyError(id, "invalid subscribe payload")
			return
		}
		c.subscribe(id, p.Topics)
	},
	WSTypeUnsubscribe: func(c *WSClient, id string, payload json.RawMessage) {
		var p WSUnsubscribePayload
		if json.Unmarshal(payload, &p) != nil || p.Subscription == "" {
			c.replyError(id, "invalid unsubscribe payload")
			return
		}
		c.unsubscribe(id, p.Subscription)
	},
	WSTypeGet: func(c *WSClient, id string, payload json.RawMessage) {
		var p WSGetPayload
		if json.Unmarshal(payload, &p) != nil {
			c.replyError(id, "invalid get payload")
			return
		}
		c.get(id, p)
	},
	WSTypePing: func(c *WSClient, id string, _ json.RawMessage) {
		c.reply(id, WSTypePong, nil)
	},
}

func (c *WSClient) handleFrame(frame []byte) {
	var req wsRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}
	handler, ok := wsHandlers[req.Type]
	if !ok {
		c.replyError(req.ID, "unknown message type: "+req.Type)
		return
	}
	handler(c, req.ID, req.Payload)
}

// subscribe opens a session subscription forwarding matching events.
func (c *WSClient) subscribe(id string, topics []string) {
	sub, err := c.session.Subscribe(c.ctx, topics, notify.ListenerFunc(c.deliver))
	if err != nil {
		c.replyError(id, err.Error())
		return
	}

	subID := uuid.NewString()
	c.mu.Lock()
	c.subs[subID] = sub
	c.mu.Unlock()

	c.reply(id, WSTypeResponse, map[string]any{"subscription": subID, "topics": topics})
}

func (c *WSClient) unsubscribe(id, subID string) {
	c.mu.Lock()
	sub, ok := c.subs[subID]
	delete(c.subs, subID)
	c.mu.Unlock()

	if !ok {
		c.replyError(id, "unknown subscription")
		return
	}
	sub.Close()
	c.reply(id, WSTypeResponse, map[string]any{"unsubscribed": subID})
}

// get reads one resource value through the client's session.
func (c *WSClient) get(id string, p WSGetPayload) {
	level, err := snapshot.ParseGetLevel(p.Level)
	if err != nil {
		c.replyError(id, err.Error())
		return
	}
	rs, err := c.session.ResourceValue(c.ctx, p.Provider, p.Service, p.Resource, level)
	if err != nil {
		c.replyError(id, err.Error())
		return
	}
	c.reply(id, WSTypeResponse, resourceView(rs))
}

// deliver forwards a notification. It runs on the router's dispatcher and
// never blocks on a slow client.
func (c *WSClient) deliver(_ context.Context, ev notify.Event) error {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		Topic:     ev.Topic,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   ev,
	})
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", ev.Topic, err)
	}
	if !c.enqueue(data) {
		c.hub.logger.Debug("websocket event dropped", "session", c.session.ID(), "topic", ev.Topic)
	}
	return nil
}

// enqueue queues data for writePump. It reports false when the client is
// closed or its queue is full.
func (c *WSClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send queue and the session exactly once, reporting
// whether this call did it.
func (c *WSClient) shutdown() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	close(c.send)
	clear(c.subs)
	c.mu.Unlock()

	// Closing the session closes its subscriptions; done outside mu so an
	// in-flight deliver cannot deadlock against it.
	c.session.Close()
	return true
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *WSClient) replyError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}

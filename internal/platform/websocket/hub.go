// Package websocket pushes live change events to portal clients. Each client
// subscribes to scope topics ("session:<uuid>" for a conversation,
// "user:<uuid>" for its own notifications and alerts); the hub holds one
// dispatcher subscription per (client, topic) pair and forwards events as
// JSON frames. When a subscription reports a gap the client receives a
// resync advisory and is expected to refetch from the REST API.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/telehealth/telehealth/internal/platform/dispatch"
)

// Frame is one message pushed to a client. Type "event" carries a change;
// type "resync" tells the client its view of the topic may have gaps.
type Frame struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Op        string          `json:"op,omitempty"`
	EntityID  string          `json:"entity_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscribe/unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one connected portal user.
type Client struct {
	ID   string
	Send chan []byte

	hub  *Hub
	mu   sync.Mutex
	subs map[string]*dispatch.Subscription
	done chan struct{}
}

// Hub tracks connected clients and bridges them to the dispatcher.
type Hub struct {
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
	sendBuffer int

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub(dispatcher *dispatch.Dispatcher, sendBuffer int, logger zerolog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		dispatcher: dispatcher,
		logger:     logger,
		sendBuffer: sendBuffer,
		clients:    make(map[*Client]struct{}),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

// Unregister cancels the client's subscriptions and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	h.mu.Unlock()

	client.mu.Lock()
	for _, sub := range client.subs {
		sub.Cancel()
	}
	client.subs = nil
	client.mu.Unlock()

	close(client.done)
}

// NewClient builds an unregistered client with the hub's send buffer.
func (h *Hub) NewClient() *Client {
	return &Client{
		ID:   uuid.New().String(),
		Send: make(chan []byte, h.sendBuffer),
		hub:  h,
		subs: make(map[string]*dispatch.Subscription),
		done: make(chan struct{}),
	}
}

// Subscribe attaches the client to a scope topic. The client immediately
// receives a resync advisory so it seeds its view from the store; events it
// missed before subscribing are never replayed.
func (h *Hub) Subscribe(client *Client, topics []string) {
	for _, topic := range topics {
		client.mu.Lock()
		if _, ok := client.subs[topic]; ok {
			client.mu.Unlock()
			continue
		}
		sub := h.dispatcher.Subscribe(topic)
		client.subs[topic] = sub
		client.mu.Unlock()

		client.push(h.resyncFrame(topic))
		go h.forward(client, topic, sub)
	}
}

// Unsubscribe detaches the client from scope topics.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	client.mu.Lock()
	defer client.mu.Unlock()
	for _, topic := range topics {
		if sub, ok := client.subs[topic]; ok {
			sub.Cancel()
			delete(client.subs, topic)
		}
	}
}

// ProcessMessage handles an inbound subscribe/unsubscribe request.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// forward pumps one subscription into the client until either side goes
// away. A gap on the subscription becomes a resync advisory frame.
func (h *Hub) forward(client *Client, topic string, sub *dispatch.Subscription) {
	for {
		select {
		case <-client.done:
			sub.Cancel()
			return
		case <-sub.Gap():
			client.push(h.resyncFrame(topic))
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			frame, err := h.eventFrame(topic, ev)
			if err != nil {
				h.logger.Warn().Err(err).Str("topic", topic).
					Msg("failed to encode event frame")
				continue
			}
			if !client.push(frame) {
				// Send buffer full: the client lost this event, tell it
				// to resync once there is room.
				client.push(h.resyncFrame(topic))
			}
		}
	}
}

func (h *Hub) eventFrame(topic string, ev dispatch.Event) ([]byte, error) {
	frame := Frame{
		Type:      "event",
		Topic:     topic,
		Op:        string(ev.Op),
		Timestamp: time.Now().UTC(),
	}
	if ev.ID != uuid.Nil {
		frame.EntityID = ev.ID.String()
	}
	if ev.Entity != nil {
		data, err := json.Marshal(ev.Entity)
		if err != nil {
			return nil, err
		}
		frame.Data = data
	}
	return json.Marshal(frame)
}

func (h *Hub) resyncFrame(topic string) []byte {
	data, _ := json.Marshal(Frame{
		Type:      "resync",
		Topic:     topic,
		Timestamp: time.Now().UTC(),
	})
	return data
}

// push is a non-blocking send; it reports false when the buffer was full or
// the client is gone.
func (c *Client) push(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Topics returns the client's current subscriptions, for tests and
// diagnostics.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for t := range c.subs {
		out = append(out, t)
	}
	return out
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ---------------------------------------------------------------------------
// Handler — Echo HTTP handler for WebSocket connections
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS middleware guards the upgrade request.
	},
}

// Handler upgrades HTTP connections and runs the read/write pumps.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
}

func (h *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := h.hub.NewClient()
	h.hub.Register(client)

	go h.writePump(client, ws)
	go h.readPump(client, ws)

	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed messages.
		}
		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for {
		select {
		case <-client.done:
			return
		case message := <-client.Send:
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		}
	}
}

// Package changefeed streams order change events to WebSocket clients.
// It implements a hub-and-spoke pattern where clients subscribe to order
// topics and receive every event published for those orders, in order.
package changefeed

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Event represents a single order change pushed to subscribed clients.
type Event struct {
	Type      string          `json:"type"`
	OrderID   string          `json:"orderId"`
	Resource  string          `json:"resource"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage represents an inbound message from a WebSocket client.
type ClientMessage struct {
	Action   string   `json:"action"`
	OrderIDs []string `json:"orderIds"`
}

// Publisher defines the interface for publishing order change events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards all events. Useful for tests and tooling that runs
// without connected clients.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a single WebSocket connection.
type Client struct {
	ID       string
	OrderIDs []string
	Send     chan []byte
	hub      *Hub
	conn     Conn
}

// Hub is the central connection manager that tracks clients and their order
// subscriptions. All operations are thread-safe via sync.RWMutex.
//
// Events for a given order are delivered to each subscriber in publish
// order. A client whose send buffer fills up is disconnected rather than
// having events silently dropped, so a reconnecting client knows to
// re-fetch current state.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // order id -> set of clients
	all     map[*Client]struct{}
}

// NewHub creates a new Hub ready to manage WebSocket clients.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

// Register adds a client to the hub and subscribes it to its initial orders.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}

	for _, id := range client.OrderIDs {
		if h.clients[id] == nil {
			h.clients[id] = make(map[*Client]struct{})
		}
		h.clients[id][client] = struct{}{}
	}
}

// Unregister removes a client from the hub, all order subscriptions, and
// closes the client's Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(client)
}

func (h *Hub) unregisterLocked(client *Client) {
	if _, ok := h.all[client]; !ok {
		return
	}

	for _, id := range client.OrderIDs {
		if subscribers, ok := h.clients[id]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, id)
			}
		}
	}

	delete(h.all, client)
	close(client.Send)
	if client.conn != nil {
		client.conn.Close()
	}
}

// Subscribe dynamically adds order subscriptions to a registered client.
func (h *Hub) Subscribe(client *Client, orderIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range orderIDs {
		if h.clients[id] == nil {
			h.clients[id] = make(map[*Client]struct{})
		}
		h.clients[id][client] = struct{}{}
	}
	client.OrderIDs = append(client.OrderIDs, orderIDs...)
}

// Unsubscribe dynamically removes order subscriptions from a registered client.
func (h *Hub) Unsubscribe(client *Client, orderIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(orderIDs))
	for _, id := range orderIDs {
		removeSet[id] = struct{}{}
	}

	for _, id := range orderIDs {
		if subscribers, ok := h.clients[id]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, id)
			}
		}
	}

	remaining := make([]string, 0, len(client.OrderIDs))
	for _, id := range client.OrderIDs {
		if _, rm := removeSet[id]; !rm {
			remaining = append(remaining, id)
		}
	}
	client.OrderIDs = remaining
}

// ProcessMessage handles an inbound ClientMessage, dispatching to Subscribe
// or Unsubscribe as appropriate.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.OrderIDs)
	case "unsubscribe":
		h.Unsubscribe(client, msg.OrderIDs)
	}
}

// Broadcast sends an event to all clients subscribed to the event's order.
// Clients that cannot keep up are disconnected.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("changefeed: failed to marshal event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subscribers, ok := h.clients[event.OrderID]
	if !ok {
		return
	}

	var slow []*Client
	for client := range subscribers {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	for _, client := range slow {
		log.Printf("changefeed: disconnecting slow client %s", client.ID)
		h.unregisterLocked(client)
	}
}

// Publish implements the Publisher interface by broadcasting the event to
// subscribers of the event's order.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event)
	return nil
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// OrderSubscriberCount returns the number of clients subscribed to an order.
func (h *Hub) OrderSubscriberCount(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[orderID])
}

// ---------------------------------------------------------------------------
// Handler — Echo HTTP handler for WebSocket connections
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler handles HTTP-to-WebSocket upgrades and message routing.
type Handler struct {
	hub *Hub
}

// NewHandler creates a new handler bound to the given Hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes registers the WebSocket endpoint on the provided Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
}

// HandleConnect upgrades an HTTP connection to WebSocket, registers the
// client with the hub, and starts read/write pumps. An initial subscription
// may be supplied via the order_id query parameter.
func (h *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	var initial []string
	if id := c.QueryParam("order_id"); id != "" {
		initial = append(initial, id)
	}

	client := &Client{
		ID:       uuid.New().String(),
		OrderIDs: initial,
		Send:     make(chan []byte, 256),
		hub:      h.hub,
		conn:     &gorillaConnAdapter{ws},
	}

	h.hub.Register(client)

	go h.writePump(client, ws)
	go h.readPump(client, ws)

	return nil
}

// readPump reads messages from the WebSocket connection and processes them.
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

// writePump writes messages from the Send channel to the WebSocket connection.
func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy the Conn interface.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}

package changefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Hub tests
// ---------------------------------------------------------------------------

func TestHub_RegisterClient(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:       "client-1",
		OrderIDs: []string{"order-123"},
		Send:     make(chan []byte, 256),
		hub:      hub,
	}

	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.OrderSubscriberCount("order-123") != 1 {
		t.Fatalf("expected 1 client on order-123, got %d", hub.OrderSubscriberCount("order-123"))
	}
}

func TestHub_UnregisterClient(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:       "client-2",
		OrderIDs: []string{"order-456"},
		Send:     make(chan []byte, 256),
		hub:      hub,
	}

	hub.Register(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.OrderSubscriberCount("order-456") != 0 {
		t.Fatalf("expected 0 clients on order-456, got %d", hub.OrderSubscriberCount("order-456"))
	}
}

func TestHub_BroadcastToSubscribers(t *testing.T) {
	hub := NewHub()

	subscriber := &Client{
		ID:       "sub-1",
		OrderIDs: []string{"order-123"},
		Send:     make(chan []byte, 256),
		hub:      hub,
	}
	nonSubscriber := &Client{
		ID:       "non-sub-1",
		OrderIDs: []string{"order-999"},
		Send:     make(chan []byte, 256),
		hub:      hub,
	}

	hub.Register(subscriber)
	hub.Register(nonSubscriber)

	event := Event{
		Type:      "order.status_changed",
		OrderID:   "order-123",
		Resource:  "order",
		Timestamp: time.Now(),
	}

	hub.Broadcast(event)

	select {
	case msg := <-subscriber.Send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		if received.Type != "order.status_changed" {
			t.Fatalf("expected order.status_changed, got %s", received.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-nonSubscriber.Send:
		t.Fatal("non-subscriber should not have received event")
	default:
		// expected
	}
}

func TestHub_BroadcastPreservesOrder(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:       "ordered-1",
		OrderIDs: []string{"order-1"},
		Send:     make(chan []byte, 256),
		hub:      hub,
	}
	hub.Register(client)

	types := []string{"order.created", "order.status_changed", "result.verified"}
	for _, typ := range types {
		hub.Broadcast(Event{Type: typ, OrderID: "order-1", Timestamp: time.Now()})
	}

	for i, want := range types {
		select {
		case msg := <-client.Send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("failed to unmarshal: %v", err)
			}
			if received.Type != want {
				t.Fatalf("event %d: expected %s, got %s", i, want, received.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("did not receive event %d", i)
		}
	}
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:       "slow-1",
		OrderIDs: []string{"order-1"},
		Send:     make(chan []byte, 1),
		hub:      hub,
	}
	hub.Register(client)

	hub.Broadcast(Event{Type: "order.created", OrderID: "order-1", Timestamp: time.Now()})
	// Second event overflows the buffer; the hub must disconnect rather
	// than silently drop.
	hub.Broadcast(Event{Type: "order.status_changed", OrderID: "order-1", Timestamp: time.Now()})

	if hub.ClientCount() != 0 {
		t.Fatalf("expected slow client to be unregistered, got %d clients", hub.ClientCount())
	}

	// The buffered event is still readable, then the channel is closed.
	if _, ok := <-client.Send; !ok {
		t.Fatal("expected buffered event before close")
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send channel to be closed after disconnect")
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub()

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0, got %d", hub.ClientCount())
	}

	clients := make([]*Client, 5)
	for i := range clients {
		clients[i] = &Client{
			ID:       "count-" + string(rune('a'+i)),
			OrderIDs: []string{"order-x"},
			Send:     make(chan []byte, 256),
			hub:      hub,
		}
		hub.Register(clients[i])
	}

	if hub.ClientCount() != 5 {
		t.Fatalf("expected 5, got %d", hub.ClientCount())
	}

	hub.Unregister(clients[0])
	hub.Unregister(clients[1])

	if hub.ClientCount() != 3 {
		t.Fatalf("expected 3, got %d", hub.ClientCount())
	}
}

func TestHub_OrderSubscriberCount(t *testing.T) {
	hub := NewHub()

	c1 := &Client{ID: "sc-1", OrderIDs: []string{"order-1"}, Send: make(chan []byte, 256), hub: hub}
	c2 := &Client{ID: "sc-2", OrderIDs: []string{"order-1"}, Send: make(chan []byte, 256), hub: hub}
	c3 := &Client{ID: "sc-3", OrderIDs: []string{"order-5"}, Send: make(chan []byte, 256), hub: hub}

	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)

	if hub.OrderSubscriberCount("order-1") != 2 {
		t.Fatalf("expected 2 on order-1, got %d", hub.OrderSubscriberCount("order-1"))
	}
	if hub.OrderSubscriberCount("order-5") != 1 {
		t.Fatalf("expected 1 on order-5, got %d", hub.OrderSubscriberCount("order-5"))
	}
	if hub.OrderSubscriberCount("nonexistent") != 0 {
		t.Fatalf("expected 0 on nonexistent, got %d", hub.OrderSubscriberCount("nonexistent"))
	}
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:       "close-1",
		OrderIDs: []string{"order-a"},
		Send:     make(chan []byte, 256),
		hub:      hub,
	}

	hub.Register(client)
	hub.Unregister(client)

	_, ok := <-client.Send
	if ok {
		t.Fatal("expected Send channel to be closed after unregister")
	}
}

func TestHub_BroadcastWithNoSubscribers(t *testing.T) {
	hub := NewHub()

	event := Event{
		Type:      "order.delivered",
		OrderID:   "no-one-here",
		Resource:  "order",
		Timestamp: time.Now(),
	}

	// Should not panic
	hub.Broadcast(event)
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n * 2)

	clients := make([]*Client, n)
	for i := 0; i < n; i++ {
		clients[i] = &Client{
			ID:       "concurrent-" + string(rune(i)),
			OrderIDs: []string{"order-concurrent"},
			Send:     make(chan []byte, 256),
			hub:      hub,
		}
	}

	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			hub.Register(clients[idx])
		}(i)
	}

	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			hub.Unregister(clients[idx])
		}(i)
	}

	wg.Wait()

	count := hub.ClientCount()
	if count < 0 {
		t.Fatalf("client count should not be negative, got %d", count)
	}
}

// ---------------------------------------------------------------------------
// Publisher tests
// ---------------------------------------------------------------------------

func TestHub_PublishEvent(t *testing.T) {
	hub := NewHub()

	client := &Client{
		ID:       "pub-1",
		OrderIDs: []string{"order-100"},
		Send:     make(chan []byte, 256),
		hub:      hub,
	}
	hub.Register(client)

	var publisher Publisher = hub

	event := Event{
		Type:      "result.submitted",
		OrderID:   "order-100",
		Resource:  "result",
		Timestamp: time.Now(),
	}

	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-client.Send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if received.OrderID != "order-100" {
			t.Fatalf("expected OrderID order-100, got %s", received.OrderID)
		}
	case <-time.After(time.Second):
		t.Fatal("did not receive published event")
	}
}

func TestHub_SubscribeAddsOrders(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:       "dynamic-sub-1",
		OrderIDs: []string{},
		Send:     make(chan []byte, 256),
		hub:      hub,
	}
	hub.Register(client)

	hub.Subscribe(client, []string{"order-new", "order-other"})

	if hub.OrderSubscriberCount("order-new") != 1 {
		t.Fatalf("expected 1 on order-new, got %d", hub.OrderSubscriberCount("order-new"))
	}
	if len(client.OrderIDs) != 2 {
		t.Fatalf("expected 2 subscriptions on client, got %d", len(client.OrderIDs))
	}
}

func TestHub_UnsubscribeRemovesOrders(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:       "dynamic-unsub-1",
		OrderIDs: []string{"order-1", "order-2", "order-3"},
		Send:     make(chan []byte, 256),
		hub:      hub,
	}
	hub.Register(client)

	hub.Unsubscribe(client, []string{"order-1", "order-3"})

	if hub.OrderSubscriberCount("order-1") != 0 {
		t.Fatalf("expected 0 on order-1, got %d", hub.OrderSubscriberCount("order-1"))
	}
	if hub.OrderSubscriberCount("order-2") != 1 {
		t.Fatalf("expected 1 on order-2, got %d", hub.OrderSubscriberCount("order-2"))
	}
	if len(client.OrderIDs) != 1 {
		t.Fatalf("expected 1 subscription remaining, got %d", len(client.OrderIDs))
	}
}

func TestClientMessage_ProcessSubscribe(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:       "process-1",
		OrderIDs: []string{},
		Send:     make(chan []byte, 256),
		hub:      hub,
	}
	hub.Register(client)

	raw := `{"action":"subscribe","orderIds":["order-123","order-456"]}`
	var msg ClientMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	hub.ProcessMessage(client, msg)

	if hub.OrderSubscriberCount("order-123") != 1 {
		t.Fatalf("expected 1 subscriber on order-123, got %d", hub.OrderSubscriberCount("order-123"))
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func TestHandler_RegisterRoutes(t *testing.T) {
	hub := NewHub()
	handler := NewHandler(hub)

	e := echo.New()
	g := e.Group("")
	handler.RegisterRoutes(g)

	routes := e.Routes()
	found := false
	for _, r := range routes {
		if r.Path == "/ws" && r.Method == http.MethodGet {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected GET /ws route to be registered")
	}
}

func TestHandler_HandleConnectRequiresWebSocket(t *testing.T) {
	hub := NewHub()
	handler := NewHandler(hub)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.HandleConnect(c)

	// gorilla/websocket upgrader will reject non-WS requests
	if err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for non-websocket request")
	}
}

func TestHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := NewHub()
	handler := NewHandler(hub)

	e := echo.New()
	g := e.Group("")
	handler.RegisterRoutes(g)

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?order_id=order-ws"

	dialer := gorillawebsocket.Dialer{}
	conn, resp, err := dialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	// Give the goroutine a moment to register
	time.Sleep(50 * time.Millisecond)
	if hub.OrderSubscriberCount("order-ws") != 1 {
		t.Fatalf("expected 1 subscriber on order-ws, got %d", hub.OrderSubscriberCount("order-ws"))
	}

	subMsg := ClientMessage{
		Action:   "subscribe",
		OrderIDs: []string{"order-extra"},
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if hub.OrderSubscriberCount("order-extra") != 1 {
		t.Fatalf("expected 1 subscriber on order-extra, got %d", hub.OrderSubscriberCount("order-extra"))
	}

	event := Event{
		Type:      "order.status_changed",
		OrderID:   "order-ws",
		Resource:  "order",
		Timestamp: time.Now(),
	}
	hub.Broadcast(event)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Type != "order.status_changed" {
		t.Fatalf("expected order.status_changed, got %s", received.Type)
	}
	if received.OrderID != "order-ws" {
		t.Fatalf("expected OrderID order-ws, got %s", received.OrderID)
	}
}

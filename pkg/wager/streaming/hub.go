// Package streaming pushes live wagering events to WebSocket clients:
// stake and offer flow, matches, settlements and claim payouts.
package streaming

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventType classifies a streaming event.
type EventType string

const (
	EventTypeWager     EventType = "wager"   // wager opened
	EventTypeStake     EventType = "stake"   // pool stake accepted
	EventTypeOffer     EventType = "offer"   // order-book offer posted
	EventTypeMatch     EventType = "match"   // offer (partially) accepted
	EventTypeSettled   EventType = "settled" // wager reached a terminal state
	EventTypeClaim     EventType = "claim"   // payout claimed
	EventTypeError     EventType = "error"
	EventTypeHeartbeat EventType = "heartbeat"
)

var allEventTypes = []EventType{
	EventTypeWager, EventTypeStake, EventTypeOffer, EventTypeMatch,
	EventTypeSettled, EventTypeClaim, EventTypeError, EventTypeHeartbeat,
}

// Event is one message pushed to clients. WagerID is set on all wager
// scoped events so clients can filter to the wagers they watch.
type Event struct {
	Type      EventType   `json:"type"`
	WagerID   string      `json:"wager_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Hub fans wagering events out to connected WebSocket clients.
type Hub struct {
	log *zap.Logger

	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	upgrader websocket.Upgrader
}

// Client is one WebSocket connection with its subscription filters.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	subMu  sync.RWMutex
	types  map[EventType]bool
	wagers map[string]bool // empty means all wagers
}

// NewHub creates a streaming hub. Call Run before serving connections.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:        log,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run is the hub's event loop. It exits when the broadcast channel is
// drained and closed; in practice it runs for the process lifetime.
func (h *Hub) Run() {
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("streaming client connected", zap.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("streaming client disconnected", zap.Int("clients", n))

		case event := <-h.broadcast:
			h.deliver(event)

		case <-heartbeat.C:
			h.Broadcast(Event{
				Type: EventTypeHeartbeat,
				Data: map[string]interface{}{"clients": h.ClientCount()},
			})
		}
	}
}

func (h *Hub) deliver(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Warn("failed to marshal streaming event", zap.Error(err))
		return
	}

	// Write lock: a slow consumer is dropped from the map right here.
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.wants(event) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Slow consumer, drop it.
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// Broadcast queues an event for delivery. Drops the event when the queue
// is full rather than blocking the caller.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("streaming queue full, dropping event", zap.String("type", string(event.Type)))
	}
}

// BroadcastWager announces a newly opened wager.
func (h *Hub) BroadcastWager(wagerID string, wager interface{}) {
	h.Broadcast(Event{Type: EventTypeWager, WagerID: wagerID, Data: wager})
}

// BroadcastStake announces an accepted pool stake.
func (h *Hub) BroadcastStake(wagerID string, stake interface{}) {
	h.Broadcast(Event{Type: EventTypeStake, WagerID: wagerID, Data: stake})
}

// BroadcastOffer announces a posted order-book offer.
func (h *Hub) BroadcastOffer(wagerID string, offer interface{}) {
	h.Broadcast(Event{Type: EventTypeOffer, WagerID: wagerID, Data: offer})
}

// BroadcastMatch announces an offer acceptance.
func (h *Hub) BroadcastMatch(wagerID string, match interface{}) {
	h.Broadcast(Event{Type: EventTypeMatch, WagerID: wagerID, Data: match})
}

// BroadcastSettled announces a wager reaching a terminal state.
func (h *Hub) BroadcastSettled(wagerID string, wager interface{}) {
	h.Broadcast(Event{Type: EventTypeSettled, WagerID: wagerID, Data: wager})
}

// BroadcastClaim announces a paid-out claim.
func (h *Hub) BroadcastClaim(wagerID string, claim interface{}) {
	h.Broadcast(Event{Type: EventTypeClaim, WagerID: wagerID, Data: claim})
}

// BroadcastError announces an operational error.
func (h *Hub) BroadcastError(err error, context string) {
	h.Broadcast(Event{
		Type: EventTypeError,
		Data: map[string]interface{}{"error": err.Error(), "context": context},
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a streaming connection. New clients
// receive every event type for every wager until they narrow the filter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		types:  make(map[EventType]bool, len(allEventTypes)),
		wagers: make(map[string]bool),
	}
	for _, t := range allEventTypes {
		client.types[t] = true
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// wants reports whether the client's filters admit the event. Heartbeats
// and errors carry no wager id and pass the wager filter unconditionally.
func (c *Client) wants(event Event) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if !c.types[event.Type] {
		return false
	}
	if event.WagerID == "" || len(c.wagers) == 0 {
		return true
	}
	return c.wagers[event.WagerID]
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read error", zap.Error(err))
			}
			break
		}
		c.handleMessage(message)
	}
}

// handleMessage applies a client's filter change:
//
//	{"type":"subscribe","events":["stake"],"wagers":["<id>"]}
//	{"type":"unsubscribe","events":["heartbeat"],"wagers":["<id>"]}
func (c *Client) handleMessage(message []byte) {
	var msg struct {
		Type   string   `json:"type"`
		Events []string `json:"events"`
		Wagers []string `json:"wagers"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()

	switch msg.Type {
	case "subscribe":
		for _, e := range msg.Events {
			c.types[EventType(e)] = true
		}
		for _, id := range msg.Wagers {
			c.wagers[id] = true
		}
	case "unsubscribe":
		for _, e := range msg.Events {
			delete(c.types, EventType(e))
		}
		for _, id := range msg.Wagers {
			delete(c.wagers, id)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

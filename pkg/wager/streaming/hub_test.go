package streaming

import (
	"sync"
	"testing"
	"time"
)

// addClient registers a client directly, bypassing the WebSocket upgrade.
func addClient(h *Hub, buffer int) *Client {
	c := &Client{
		hub:    h,
		send:   make(chan []byte, buffer),
		types:  make(map[EventType]bool, len(allEventTypes)),
		wagers: make(map[string]bool),
	}
	for _, t := range allEventTypes {
		c.types[t] = true
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

func TestDeliver_FiltersByTypeAndWager(t *testing.T) {
	h := NewHub(nil)
	c := addClient(h, 8)

	c.subMu.Lock()
	delete(c.types, EventTypeStake)
	c.wagers["w1"] = true
	c.subMu.Unlock()

	h.deliver(Event{Type: EventTypeStake, WagerID: "w1", Timestamp: time.Now()})
	h.deliver(Event{Type: EventTypeOffer, WagerID: "w2", Timestamp: time.Now()})
	if len(c.send) != 0 {
		t.Errorf("filtered events must not be delivered, got %d", len(c.send))
	}

	h.deliver(Event{Type: EventTypeOffer, WagerID: "w1", Timestamp: time.Now()})
	// Events without a wager id pass the wager filter.
	h.deliver(Event{Type: EventTypeHeartbeat, Timestamp: time.Now()})
	if len(c.send) != 2 {
		t.Errorf("expected 2 delivered events, got %d", len(c.send))
	}
}

// A slow consumer is dropped during delivery; the drop must be safe
// against concurrent readers of the client set.
func TestDeliver_DropsSlowConsumer(t *testing.T) {
	h := NewHub(nil)
	slow := addClient(h, 0) // no buffer, never read: always full
	fast := addClient(h, 8)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.ClientCount()
		}
	}()

	h.deliver(Event{Type: EventTypeSettled, WagerID: "w1", Timestamp: time.Now()})
	wg.Wait()

	if h.ClientCount() != 1 {
		t.Errorf("slow client should be dropped, count %d", h.ClientCount())
	}
	h.mu.RLock()
	_, stillThere := h.clients[slow]
	h.mu.RUnlock()
	if stillThere {
		t.Error("slow client still registered")
	}
	if len(fast.send) != 1 {
		t.Errorf("fast client should still receive the event, got %d", len(fast.send))
	}

	// The dropped client's channel is closed.
	select {
	case _, ok := <-slow.send:
		if ok {
			t.Error("expected closed channel for the dropped client")
		}
	default:
		t.Error("dropped client's send channel should be closed")
	}
}

package services

import (
	"sync"
)

// SSEEvent is one payload delivered on a channel
type SSEEvent struct {
	Channel string
	Data    []byte
}

type sseClient struct {
	ch       chan SSEEvent
	channels map[string]bool
}

// SSEHub manages SSE client connections and per-channel delivery
type SSEHub struct {
	clients map[string]*sseClient
	mu      sync.RWMutex
}

// NewSSEHub creates a new SSE hub instance
func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[string]*sseClient),
	}
}

func (h *SSEHub) Name() string { return "sse" }

// Subscribe registers a client for the given channels and returns a channel for receiving events
func (h *SSEHub) Subscribe(clientID string, channels []string) <-chan SSEEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[clientID]; ok {
		close(old.ch)
	}

	c := &sseClient{
		// Buffered so a burst of commits does not block publishers
		ch:       make(chan SSEEvent, 100),
		channels: make(map[string]bool, len(channels)),
	}
	for _, name := range channels {
		c.channels[name] = true
	}
	h.clients[clientID] = c
	return c.ch
}

// Unsubscribe removes a client from the hub
func (h *SSEHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[clientID]; ok {
		close(c.ch)
		delete(h.clients, clientID)
	}
}

// Publish hands every client the first message on a channel it follows
func (h *SSEHub) Publish(msgs []Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		msg, channel, ok := firstMatch(msgs, c.channels)
		if !ok {
			continue
		}
		// Non-blocking send - drop event if client buffer is full
		select {
		case c.ch <- SSEEvent{Channel: channel, Data: msg.Payload}:
		default:
			deltaDrops.WithLabelValues(h.Name()).Inc()
		}
	}
	return nil
}

// ClientCount returns the number of connected clients
func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

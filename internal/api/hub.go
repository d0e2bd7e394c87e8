package api

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/flashcue-core/internal/flash"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/config"
	"github.com/nerrad567/flashcue-core/internal/infrastructure/logging"
)

// Broadcast channels.
const (
	ChannelFlashCompleted      = "flash.completed"
	ChannelSessionConnected    = "session.connected"
	ChannelSessionDisconnected = "session.disconnected"
)

// knownChannels is what clients may subscribe to.
var knownChannels = map[string]bool{
	ChannelFlashCompleted:      true,
	ChannelSessionConnected:    true,
	ChannelSessionDisconnected: true,
}

// Hub fans FlashCue events out to WebSocket operators. Each client picks
// channels and, optionally, the sessions it cares about.
//
// Thread Safety: All methods are safe for concurrent use.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	dropped atomic.Int64
}

// HubStats is a point-in-time view of the hub. Subscriptions counts
// clients per channel.
type HubStats struct {
	Clients       int            `json:"clients"`
	Subscriptions map[string]int `json:"subscriptions"`
	Dropped       int64          `json:"dropped_messages"`
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Broadcast delivers an event to every client subscribed to channel whose
// session filter admits the event's session. Satisfies flash.Broadcaster.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}
	sessionID := eventSession(payload)

	sent := 0
	for _, c := range h.snapshot() {
		if !c.wants(channel, sessionID) {
			continue
		}
		if c.trySend(data) {
			sent++
			continue
		}
		if h.dropped.Add(1) == 1 {
			h.logger.Warn("websocket client too slow, dropping events", "channel", channel)
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "session_id", sessionID, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns client and per-channel subscription counts.
func (h *Hub) Stats() HubStats {
	clients := h.snapshot()
	st := HubStats{
		Clients:       len(clients),
		Subscriptions: make(map[string]int, len(knownChannels)),
		Dropped:       h.dropped.Load(),
	}
	for ch := range knownChannels {
		st.Subscriptions[ch] = 0
	}
	for _, c := range clients {
		for _, ch := range c.channelList() {
			st.Subscriptions[ch]++
		}
	}
	return st
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// unregister removes c. Only the caller that actually removes it closes the
// send channel.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(c.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

func (h *Hub) snapshot() []*wsClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// eventSession extracts the session an event belongs to, or "" when it has
// none.
func eventSession(payload any) string {
	switch p := payload.(type) {
	case *flash.Execution:
		return p.SessionID
	case map[string]any:
		if id, ok := p["id"].(string); ok {
			return id
		}
		if id, ok := p["session_id"].(string); ok {
			return id
		}
	}
	return ""
}

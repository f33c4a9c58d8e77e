package control

import (
	"log/slog"
	"sync"

	"lanmeet/observability"
	"lanmeet/protocol"
	"lanmeet/session"
)

// Hub fans control envelopes out to every registered connection. One
// connection per username; delivery order is preserved per connection by the
// conn writer goroutine. A client that cannot drain its buffer is closed
// rather than allowed to stall the broadcast path.
type Hub struct {
	log      *slog.Logger
	registry *session.Registry
	stats    *observability.RelayStats

	mu    sync.RWMutex
	conns map[string]*conn
}

func NewHub(log *slog.Logger, registry *session.Registry, stats *observability.RelayStats) *Hub {
	return &Hub{
		log:      log,
		registry: registry,
		stats:    stats,
		conns:    make(map[string]*conn),
	}
}

func (h *Hub) attach(username string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[username] = c
}

// owns reports whether c is the connection currently attached for username.
func (h *Hub) owns(username string, c *conn) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[username] == c
}

// detach removes the username's connection and returns it, or nil when no
// connection was attached.
func (h *Hub) detach(username string) *conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[username]
	if !ok {
		return nil
	}
	delete(h.conns, username)
	return c
}

// BroadcastToAll delivers one event to every registered connection.
func (h *Hub) BroadcastToAll(action string, data any) {
	frame, err := protocol.Encode(action, data)
	if err != nil {
		h.log.Error("Failed to encode broadcast", "action", action, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for username, c := range h.conns {
		h.deliver(username, c, frame)
	}
}

// BroadcastToAllExcept skips one username, e.g. the sender of a typing
// indicator or the presenter for their own screen frames.
func (h *Hub) BroadcastToAllExcept(exclude string, action string, data any) {
	frame, err := protocol.Encode(action, data)
	if err != nil {
		h.log.Error("Failed to encode broadcast", "action", action, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for username, c := range h.conns {
		if username == exclude {
			continue
		}
		h.deliver(username, c, frame)
	}
}

// SendTo delivers one event to a single participant. It reports false when
// the participant has no attached connection.
func (h *Hub) SendTo(username string, action string, data any) bool {
	frame, err := protocol.Encode(action, data)
	if err != nil {
		h.log.Error("Failed to encode direct message", "action", action, "err", err)
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[username]
	if !ok {
		return false
	}
	h.deliver(username, c, frame)
	return true
}

func (h *Hub) deliver(username string, c *conn, frame []byte) {
	if !c.enqueue(frame) {
		// Buffer full or already closed: closing the socket routes the
		// cleanup through the connection's own teardown path.
		h.stats.SlowClientDrops.Add(1)
		h.log.Warn("Dropping slow control client", "username", username)
		c.close()
		return
	}
	h.registry.AddBytes(username, uint64(len(frame)), 0)
}

// Shutdown closes every connection. Used on graceful stop.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		c.close()
	}
	h.conns = make(map[string]*conn)
}

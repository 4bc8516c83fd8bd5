package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/clocked-app/clocked-core/internal/group"
	"github.com/clocked-app/clocked-core/internal/infrastructure/config"
	"github.com/clocked-app/clocked-core/internal/infrastructure/logging"
	"github.com/clocked-app/clocked-core/internal/infrastructure/telemetry"
)

// ActiveSessionStore provides the active-session snapshot sent to a
// client when it joins a group. Satisfied by group.Repository.
type ActiveSessionStore interface {
	ListActiveByGroup(ctx context.Context, groupID string) ([]group.Session, error)
}

// Hub manages authenticated WebSocket connections and fans group events
// out to them.
//
// Connections are keyed by user ID: a user has at most one live
// connection, and a reconnect displaces the previous one. Each
// connection carries an immutable group scope captured at handshake
// time; broadcasts are filtered against that scope.
type Hub struct {
	cfg       config.WebSocketConfig
	logger    *logging.Logger
	sessions  ActiveSessionStore
	telemetry *telemetry.Client

	conns map[string]*Conn // keyed by user ID
	mu    sync.RWMutex
}

// NewHub creates a new connection hub. The telemetry client may be nil.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, sessions ActiveSessionStore, tel *telemetry.Client) *Hub {
	return &Hub{
		cfg:       cfg,
		logger:    logger,
		sessions:  sessions,
		telemetry: tel,
		conns:     make(map[string]*Conn),
	}
}

// Run starts the hub's main loop. It blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a connection to the hub, displacing any existing
// connection for the same user. The displaced connection is closed here,
// after it has been removed from the map, so its own Unregister call
// becomes a no-op and the send channel is never closed twice.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	old := h.conns[c.userID]
	h.conns[c.userID] = c
	h.mu.Unlock()

	if old != nil {
		close(old.send)
		if old.ws != nil {
			old.ws.Close()
		}
		h.logger.Debug("websocket connection replaced", "user_id", c.userID)
	}
	h.logger.Debug("websocket connection registered", "user_id", c.userID, "connections", h.ConnectionCount())
	h.telemetry.WriteConnectionCount(h.ConnectionCount())
}

// Unregister removes a connection from the hub. Only the goroutine that
// removes the connection from the map closes the send channel; a
// connection already displaced by Register is left alone.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	current, ok := h.conns[c.userID]
	if ok && current == c {
		delete(h.conns, c.userID)
	} else {
		ok = false
	}
	h.mu.Unlock()

	if ok {
		close(c.send)
	}
	h.logger.Debug("websocket connection unregistered", "user_id", c.userID, "connections", h.ConnectionCount())
	h.telemetry.WriteConnectionCount(h.ConnectionCount())
}

// BroadcastToGroup sends a message to every connection whose scope
// includes the group. Delivery is best effort: slow or closed
// connections are skipped, never waited on. excludeUserID, when
// non-empty, names a user whose connection is left out of the fan-out.
//
// Lock ordering: the connection list is snapshotted under the hub lock,
// then released before any sends, so a stalled connection cannot block
// registration.
func (h *Hub) BroadcastToGroup(groupID string, msg Message, excludeUserID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for userID, c := range h.conns {
		if userID == excludeUserID {
			continue
		}
		if c.InGroup(groupID) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.trySend(data)
	}
	if len(targets) > 0 {
		h.logger.Debug("broadcast sent", "type", msg.Type, "group_id", groupID, "recipients", len(targets))
	}
	h.telemetry.WriteBroadcast(msg.Type, len(targets))
}

// SendToUser sends a message to a single user's connection. It reports
// whether the user had a registered connection; delivery itself remains
// best effort.
func (h *Hub) SendToUser(userID string, msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal direct message", "type", msg.Type, "error", err)
		return false
	}

	h.mu.RLock()
	c, ok := h.conns[userID]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	c.trySend(data)
	return true
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// closeAll disconnects all connections and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, c := range h.conns {
		close(c.send)
		if c.ws != nil {
			c.ws.Close()
		}
		delete(h.conns, userID)
	}
}

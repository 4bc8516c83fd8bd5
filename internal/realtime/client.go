package realtime

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Connection lifecycle states. A connection moves strictly forward:
// connecting -> authenticated -> closed.
const (
	StateConnecting int32 = iota
	StateAuthenticated
	StateClosed
)

// storeQueryTimeout bounds active-session lookups triggered by a
// client join_group message.
const storeQueryTimeout = 5 * time.Second

// Conn represents one authenticated WebSocket connection.
//
// The group scope (groups) is captured at handshake time and never
// mutated afterwards, so it is read without locking. A membership change
// takes effect on the next connection.
type Conn struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte

	userID string
	handle string
	groups map[string]struct{}

	state atomic.Int32
}

// NewConn builds a connection in the connecting state. groupIDs is the
// caller's membership snapshot; it becomes the connection's scope.
func NewConn(hub *Hub, ws *websocket.Conn, userID, handle string, groupIDs []string) *Conn {
	groups := make(map[string]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		groups[id] = struct{}{}
	}
	c := &Conn{
		hub:    hub,
		ws:     ws,
		send:   make(chan []byte, hub.cfg.SendBufferSize),
		userID: userID,
		handle: handle,
		groups: groups,
	}
	c.state.Store(StateConnecting)
	return c
}

// UserID returns the authenticated user's id.
func (c *Conn) UserID() string { return c.userID }

// InGroup reports whether the group is in the connection's scope.
func (c *Conn) InGroup(groupID string) bool {
	_, ok := c.groups[groupID]
	return ok
}

// GroupIDs returns the connection's scope as a slice.
func (c *Conn) GroupIDs() []string {
	ids := make([]string, 0, len(c.groups))
	for id := range c.groups {
		ids = append(ids, id)
	}
	return ids
}

// State returns the current lifecycle state.
func (c *Conn) State() int32 { return c.state.Load() }

// Start registers the connection with the hub, starts the read/write
// pumps, and sends the connected acknowledgement. After Start returns
// the connection is authenticated and eligible for broadcasts.
func (c *Conn) Start() {
	c.hub.Register(c)

	go c.writePump()
	go c.readPump()

	c.sendMessage(NewMessage(MsgTypeConnected, ConnectedData{
		UserID:   c.userID,
		Handle:   c.handle,
		GroupIDs: c.GroupIDs(),
	}))
	c.state.Store(StateAuthenticated)
}

// readPump reads messages from the WebSocket connection.
func (c *Conn) readPump() {
	defer func() {
		c.state.Store(StateClosed)
		c.hub.Unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	pingInterval := time.Duration(c.hub.cfg.PingInterval) * time.Second
	pongWait := time.Duration(c.hub.cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.ws.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "user_id", c.userID, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "user_id", c.userID, "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if the client doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.ws.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Conn) writePump() {
	pingInterval := time.Duration(c.hub.cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	pongWait := time.Duration(c.hub.cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.ws.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.ws.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *Conn) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case MsgTypePing:
		c.sendResponse(msg.ID, MsgTypePong, nil)
	case MsgTypeJoinGroup:
		c.handleJoinGroup(msg)
	case MsgTypeLeaveGroup:
		c.handleLeaveGroup(msg)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleJoinGroup replies with the group's active sessions. The group
// must already be in the connection's scope; join_group does not widen
// it, it asks for the current snapshot.
func (c *Conn) handleJoinGroup(msg Message) {
	ref, ok := c.parseGroupRef(msg)
	if !ok {
		return
	}
	if !c.InGroup(ref.GroupID) {
		c.sendError(msg.ID, "not a member of this group")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeQueryTimeout)
	defer cancel()

	sessions, err := c.hub.sessions.ListActiveByGroup(ctx, ref.GroupID)
	if err != nil {
		c.hub.logger.Error("active session lookup failed", "group_id", ref.GroupID, "error", err)
		c.sendError(msg.ID, "failed to load active sessions")
		return
	}

	c.sendResponse(msg.ID, MsgTypeGroupJoined, map[string]any{
		"group_id":        ref.GroupID,
		"active_sessions": sessions,
	})
}

// handleLeaveGroup acknowledges the leave. The connection's scope is
// fixed for its lifetime, so this only stops the client-side view; the
// server keeps delivering scope-filtered broadcasts until disconnect.
func (c *Conn) handleLeaveGroup(msg Message) {
	ref, ok := c.parseGroupRef(msg)
	if !ok {
		return
	}
	c.sendResponse(msg.ID, MsgTypeGroupLeft, GroupRefData{GroupID: ref.GroupID})
}

// parseGroupRef extracts the group reference from a client message,
// sending an error reply on malformed bodies.
func (c *Conn) parseGroupRef(msg Message) (GroupRefData, bool) {
	raw, err := json.Marshal(msg.Data)
	if err != nil {
		c.sendError(msg.ID, "invalid data")
		return GroupRefData{}, false
	}

	var ref GroupRefData
	if err := json.Unmarshal(raw, &ref); err != nil || ref.GroupID == "" {
		c.sendError(msg.ID, "invalid group data")
		return GroupRefData{}, false
	}
	return ref, true
}

// trySend attempts to send data to the connection's send channel.
// It silently handles closed channels (connection displaced or shut
// down during broadcast) and full buffers (slow client).
func (c *Conn) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Connection buffer full, skip
	}
}

// sendMessage marshals and sends an outbound message.
// Routes through trySend to safely handle closed channels during shutdown.
func (c *Conn) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendResponse sends a reply correlated to a client message id.
func (c *Conn) sendResponse(id, msgType string, body any) {
	msg := NewMessage(msgType, body)
	msg.ID = id
	c.sendMessage(msg)
}

// sendError sends an error message to the client.
func (c *Conn) sendError(id, message string) {
	c.sendResponse(id, MsgTypeError, map[string]string{"message": message})
}

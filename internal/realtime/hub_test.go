package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/clocked-app/clocked-core/internal/group"
	"github.com/clocked-app/clocked-core/internal/infrastructure/config"
	"github.com/clocked-app/clocked-core/internal/infrastructure/logging"
)

// fakeSessionStore returns a fixed active-session list.
type fakeSessionStore struct {
	sessions []group.Session
	err      error
}

func (f *fakeSessionStore) ListActiveByGroup(_ context.Context, _ string) ([]group.Session, error) {
	return f.sessions, f.err
}

func testHub(t *testing.T) *Hub {
	t.Helper()
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	return NewHub(
		config.WebSocketConfig{MaxMessageSize: 8192, SendBufferSize: 256, PingInterval: 30, PongTimeout: 10},
		log,
		&fakeSessionStore{},
		nil,
	)
}

// testConn creates a registered mock connection without a real socket.
func testConn(t *testing.T, hub *Hub, userID string, groupIDs ...string) *Conn {
	t.Helper()
	groups := make(map[string]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		groups[id] = struct{}{}
	}
	c := &Conn{
		hub:    hub,
		send:   make(chan []byte, hub.cfg.SendBufferSize),
		userID: userID,
		handle: userID,
		groups: groups,
	}
	hub.Register(c)
	return c
}

func recvMessage(t *testing.T, c *Conn) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func expectNoMessage(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Errorf("unexpected message received: %s", data)
	case <-time.After(100 * time.Millisecond):
		// OK
	}
}

// =============================================================================
// Broadcast Tests
// =============================================================================

func TestHub_BroadcastToGroupMembers(t *testing.T) {
	hub := testHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	member := testConn(t, hub, "usr-a", "grp-1")
	outsider := testConn(t, hub, "usr-b", "grp-2")

	hub.BroadcastToGroup("grp-1", NewMessage(MsgTypeSessionStarted, map[string]any{"id": "ses-1"}), "")

	msg := recvMessage(t, member)
	if msg.Type != MsgTypeSessionStarted {
		t.Errorf("type = %q, want %q", msg.Type, MsgTypeSessionStarted)
	}
	if msg.Timestamp == "" {
		t.Error("broadcast message missing timestamp")
	}

	expectNoMessage(t, outsider)
}

func TestHub_BroadcastExcludesActor(t *testing.T) {
	hub := testHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	actor := testConn(t, hub, "usr-a", "grp-1")
	peer := testConn(t, hub, "usr-b", "grp-1")

	hub.BroadcastToGroup("grp-1", NewMessage(MsgTypeSessionStarted, nil), "usr-a")

	if msg := recvMessage(t, peer); msg.Type != MsgTypeSessionStarted {
		t.Errorf("peer message type = %q, want %q", msg.Type, MsgTypeSessionStarted)
	}
	expectNoMessage(t, actor)
}

func TestHub_BroadcastSkipsFullBuffer(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(
		config.WebSocketConfig{MaxMessageSize: 8192, SendBufferSize: 1, PingInterval: 30, PongTimeout: 10},
		log,
		&fakeSessionStore{},
		nil,
	)

	slow := testConn(t, hub, "usr-slow", "grp-1")

	// Fill the one-slot buffer, then broadcast again. The second frame
	// must be dropped without blocking.
	hub.BroadcastToGroup("grp-1", NewMessage(MsgTypeSessionStarted, nil), "")

	done := make(chan struct{})
	go func() {
		hub.BroadcastToGroup("grp-1", NewMessage(MsgTypeSessionEnded, nil), "")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on full client buffer")
	}

	// Only the first frame is buffered.
	if msg := recvMessage(t, slow); msg.Type != MsgTypeSessionStarted {
		t.Errorf("buffered message type = %q, want %q", msg.Type, MsgTypeSessionStarted)
	}
	expectNoMessage(t, slow)
}

// =============================================================================
// Registration Tests
// =============================================================================

func TestHub_ConnectionCount(t *testing.T) {
	hub := testHub(t)

	if hub.ConnectionCount() != 0 {
		t.Errorf("initial connection count = %d, want 0", hub.ConnectionCount())
	}

	c := testConn(t, hub, "usr-a", "grp-1")

	if hub.ConnectionCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ConnectionCount())
	}

	hub.Unregister(c)

	if hub.ConnectionCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ConnectionCount())
	}
}

func TestHub_ReconnectDisplacesPrevious(t *testing.T) {
	hub := testHub(t)

	first := testConn(t, hub, "usr-a", "grp-1")
	second := testConn(t, hub, "usr-a", "grp-1")

	if hub.ConnectionCount() != 1 {
		t.Fatalf("connection count = %d, want 1 after reconnect", hub.ConnectionCount())
	}

	// The displaced connection's send channel is closed.
	select {
	case _, ok := <-first.send:
		if ok {
			t.Error("displaced connection received data instead of close")
		}
	case <-time.After(time.Second):
		t.Error("displaced connection's send channel not closed")
	}

	// The old connection's own teardown must not evict the new one.
	hub.Unregister(first)
	if hub.ConnectionCount() != 1 {
		t.Errorf("connection count = %d after stale unregister, want 1", hub.ConnectionCount())
	}

	hub.BroadcastToGroup("grp-1", NewMessage(MsgTypeReactionAdded, nil), "")
	if msg := recvMessage(t, second); msg.Type != MsgTypeReactionAdded {
		t.Errorf("message type = %q, want %q", msg.Type, MsgTypeReactionAdded)
	}
}

func TestHub_SendToUser(t *testing.T) {
	hub := testHub(t)

	c := testConn(t, hub, "usr-a", "grp-1")

	if !hub.SendToUser("usr-a", NewMessage(MsgTypePong, nil)) {
		t.Error("SendToUser() = false for registered user")
	}
	if msg := recvMessage(t, c); msg.Type != MsgTypePong {
		t.Errorf("message type = %q, want %q", msg.Type, MsgTypePong)
	}

	if hub.SendToUser("usr-missing", NewMessage(MsgTypePong, nil)) {
		t.Error("SendToUser() = true for unknown user")
	}
}

func TestHub_RunClosesAllOnCancel(t *testing.T) {
	hub := testHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	c := testConn(t, hub, "usr-a", "grp-1")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if hub.ConnectionCount() != 0 {
		t.Errorf("connection count = %d after shutdown, want 0", hub.ConnectionCount())
	}
	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("send channel still open after shutdown")
		}
	default:
		t.Error("send channel not closed after shutdown")
	}
}

// =============================================================================
// Scope Tests
// =============================================================================

func TestConn_InGroup(t *testing.T) {
	hub := testHub(t)
	c := testConn(t, hub, "usr-a", "grp-1", "grp-2")

	if !c.InGroup("grp-1") || !c.InGroup("grp-2") {
		t.Error("InGroup() = false for scoped group")
	}
	if c.InGroup("grp-3") {
		t.Error("InGroup() = true for out-of-scope group")
	}
	if got := len(c.GroupIDs()); got != 2 {
		t.Errorf("len(GroupIDs()) = %d, want 2", got)
	}
}

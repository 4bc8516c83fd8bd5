package realtime

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/clocked-app/clocked-core/internal/group"
)

func TestConn_PingPong(t *testing.T) {
	hub := testHub(t)
	c := testConn(t, hub, "usr-a", "grp-1")

	c.handleMessage([]byte(`{"type":"ping","id":"req-1"}`))

	msg := recvMessage(t, c)
	if msg.Type != MsgTypePong {
		t.Errorf("type = %q, want %q", msg.Type, MsgTypePong)
	}
	if msg.ID != "req-1" {
		t.Errorf("id = %q, want %q", msg.ID, "req-1")
	}
}

func TestConn_JoinGroupReturnsActiveSessions(t *testing.T) {
	hub := testHub(t)
	started := time.Now().UTC().Add(-10 * time.Minute)
	hub.sessions = &fakeSessionStore{sessions: []group.Session{
		{ID: "ses-1", GroupID: "grp-1", UserID: "usr-b", Activity: "reading", StartedAt: started},
	}}

	c := testConn(t, hub, "usr-a", "grp-1")

	c.handleMessage([]byte(`{"type":"join_group","id":"req-2","data":{"group_id":"grp-1"}}`))

	msg := recvMessage(t, c)
	if msg.Type != MsgTypeGroupJoined {
		t.Fatalf("type = %q, want %q", msg.Type, MsgTypeGroupJoined)
	}

	raw, err := json.Marshal(msg.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	var joined struct {
		GroupID        string          `json:"group_id"`
		ActiveSessions []group.Session `json:"active_sessions"`
	}
	if err := json.Unmarshal(raw, &joined); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if joined.GroupID != "grp-1" {
		t.Errorf("group_id = %q, want grp-1", joined.GroupID)
	}
	if len(joined.ActiveSessions) != 1 || joined.ActiveSessions[0].ID != "ses-1" {
		t.Errorf("active_sessions = %+v, want one session ses-1", joined.ActiveSessions)
	}
}

func TestConn_JoinGroupOutOfScope(t *testing.T) {
	hub := testHub(t)
	c := testConn(t, hub, "usr-a", "grp-1")

	c.handleMessage([]byte(`{"type":"join_group","data":{"group_id":"grp-other"}}`))

	msg := recvMessage(t, c)
	if msg.Type != MsgTypeError {
		t.Errorf("type = %q, want %q", msg.Type, MsgTypeError)
	}
}

func TestConn_JoinGroupStoreError(t *testing.T) {
	hub := testHub(t)
	hub.sessions = &fakeSessionStore{err: errors.New("db closed")}
	c := testConn(t, hub, "usr-a", "grp-1")

	c.handleMessage([]byte(`{"type":"join_group","data":{"group_id":"grp-1"}}`))

	if msg := recvMessage(t, c); msg.Type != MsgTypeError {
		t.Errorf("type = %q, want %q", msg.Type, MsgTypeError)
	}
}

func TestConn_LeaveGroupAck(t *testing.T) {
	hub := testHub(t)
	c := testConn(t, hub, "usr-a", "grp-1")

	c.handleMessage([]byte(`{"type":"leave_group","data":{"group_id":"grp-1"}}`))

	msg := recvMessage(t, c)
	if msg.Type != MsgTypeGroupLeft {
		t.Fatalf("type = %q, want %q", msg.Type, MsgTypeGroupLeft)
	}

	// Scope is fixed for the connection's lifetime: broadcasts keep
	// arriving after a leave_group ack.
	hub.BroadcastToGroup("grp-1", NewMessage(MsgTypeSessionStarted, nil), "")
	if msg := recvMessage(t, c); msg.Type != MsgTypeSessionStarted {
		t.Errorf("post-leave broadcast type = %q, want %q", msg.Type, MsgTypeSessionStarted)
	}
}

func TestConn_InvalidJSON(t *testing.T) {
	hub := testHub(t)
	c := testConn(t, hub, "usr-a", "grp-1")

	c.handleMessage([]byte(`{not json`))

	if msg := recvMessage(t, c); msg.Type != MsgTypeError {
		t.Errorf("type = %q, want %q", msg.Type, MsgTypeError)
	}
}

func TestConn_UnknownMessageType(t *testing.T) {
	hub := testHub(t)
	c := testConn(t, hub, "usr-a", "grp-1")

	c.handleMessage([]byte(`{"type":"teleport"}`))

	msg := recvMessage(t, c)
	if msg.Type != MsgTypeError {
		t.Fatalf("type = %q, want %q", msg.Type, MsgTypeError)
	}
}

func TestConn_MissingGroupID(t *testing.T) {
	hub := testHub(t)
	c := testConn(t, hub, "usr-a", "grp-1")

	c.handleMessage([]byte(`{"type":"join_group","data":{}}`))

	if msg := recvMessage(t, c); msg.Type != MsgTypeError {
		t.Errorf("type = %q, want %q", msg.Type, MsgTypeError)
	}
}

func TestConn_TrySendOnClosedChannel(t *testing.T) {
	hub := testHub(t)
	c := testConn(t, hub, "usr-a", "grp-1")

	hub.Unregister(c) // closes the send channel

	// Must absorb the send-on-closed-channel panic.
	c.trySend([]byte(`{}`))
}

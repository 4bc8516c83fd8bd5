package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clocked-app/clocked-core/internal/realtime"
)

// wsReadTimeout bounds each read while waiting for a broadcast.
const wsReadTimeout = 2 * time.Second

// dialWS connects to the test server's websocket endpoint with a token
// query parameter and consumes the initial connected message.
func dialWS(t *testing.T, ts *httptest.Server, access string) *websocket.Conn {
	t.Helper()

	url := strings.Replace(ts.URL, "http", "ws", 1) + "/ws?token=" + access
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	if resp != nil {
		resp.Body.Close() //nolint:errcheck // Test cleanup
	}
	t.Cleanup(func() { ws.Close() }) //nolint:errcheck // Test cleanup

	msg := readWSMessage(t, ws)
	if msg.Type != realtime.MsgTypeConnected {
		t.Fatalf("first message type = %q, want %q", msg.Type, realtime.MsgTypeConnected)
	}

	return ws
}

// readWSMessage reads and decodes the next message within the timeout.
func readWSMessage(t *testing.T, ws *websocket.Conn) realtime.Message {
	t.Helper()

	if err := ws.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("reading websocket message: %v", err)
	}

	var msg realtime.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decoding websocket message: %v", err)
	}
	return msg
}

func TestWebSocket_RequiresToken(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w := doJSON(t, router, http.MethodGet, "/ws", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/ws?token=garbage", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", w.Code)
	}
}

func TestWebSocket_ConnectAndReceiveBroadcast(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	ts := httptest.NewServer(router)
	defer ts.Close()

	_, ownerAccess, _ := loginUser(t, srv, router, "owner@example.com")
	memberID, memberAccess, _ := loginUser(t, srv, router, "member@example.com")

	groupID := createGroup(t, router, ownerAccess, "crew")
	w := doJSON(t, router, http.MethodPost, "/api/v1/groups/"+groupID+"/members",
		fmt.Sprintf(`{"user_id": %q}`, memberID), ownerAccess)
	if w.Code != http.StatusCreated {
		t.Fatalf("add member status = %d", w.Code)
	}

	// The member connects after joining, so the group is in scope.
	ws := dialWS(t, ts, memberAccess)

	// The owner starts a session over HTTP; the member hears about it.
	sessionID := startSession(t, router, ownerAccess, groupID, "deep work")

	msg := readWSMessage(t, ws)
	if msg.Type != realtime.MsgTypeSessionStarted {
		t.Fatalf("message type = %q, want %q", msg.Type, realtime.MsgTypeSessionStarted)
	}

	raw, err := json.Marshal(msg.Data)
	if err != nil {
		t.Fatalf("re-encoding data: %v", err)
	}
	var session struct {
		ID      string `json:"id"`
		GroupID string `json:"group_id"`
	}
	if err := json.Unmarshal(raw, &session); err != nil {
		t.Fatalf("decoding session data: %v", err)
	}
	if session.ID != sessionID {
		t.Errorf("session id = %q, want %q", session.ID, sessionID)
	}
	if session.GroupID != groupID {
		t.Errorf("session group id = %q, want %q", session.GroupID, groupID)
	}
}

func TestWebSocket_ScopeFixedAtConnect(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	ts := httptest.NewServer(router)
	defer ts.Close()

	_, ownerAccess, _ := loginUser(t, srv, router, "owner@example.com")
	memberID, memberAccess, _ := loginUser(t, srv, router, "member@example.com")

	// The member connects before being added to any group.
	ws := dialWS(t, ts, memberAccess)

	groupID := createGroup(t, router, ownerAccess, "crew")
	w := doJSON(t, router, http.MethodPost, "/api/v1/groups/"+groupID+"/members",
		fmt.Sprintf(`{"user_id": %q}`, memberID), ownerAccess)
	if w.Code != http.StatusCreated {
		t.Fatalf("add member status = %d", w.Code)
	}

	startSession(t, router, ownerAccess, groupID, "deep work")

	// The connection's scope was snapshotted before the membership
	// existed, so nothing arrives until the client reconnects.
	if err := ws.SetReadDeadline(time.Now().Add(300 * time.Millisecond)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	if _, data, err := ws.ReadMessage(); err == nil {
		t.Errorf("unexpected message on stale-scope connection: %s", data)
	}
}

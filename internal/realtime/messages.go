package realtime

import "time"

// Message type constants.
//
// Server-to-client types carry either a handshake acknowledgement, a
// request response, or a group event fanned out by the EventRouter.
// Client-to-server types are the small command set a connection may issue.
const (
	// Server -> client
	MsgTypeConnected      = "connected"
	MsgTypePong           = "pong"
	MsgTypeError          = "error"
	MsgTypeGroupJoined    = "group_joined"
	MsgTypeGroupLeft      = "group_left"
	MsgTypeSessionStarted = "session_started"
	MsgTypeSessionEnded   = "session_ended"
	MsgTypeReactionAdded  = "reaction_added"
	MsgTypeMemberJoined   = "member_joined"

	// Client -> server
	MsgTypePing       = "ping"
	MsgTypeJoinGroup  = "join_group"
	MsgTypeLeaveGroup = "leave_group"
)

// Message is the envelope for every frame exchanged over a connection.
// The body always travels under the data key.
type Message struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// NewMessage builds an outbound message with the current UTC timestamp.
func NewMessage(msgType string, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// ConnectedData is sent once after a successful handshake. It tells the
// client who it authenticated as and which groups its connection can hear.
type ConnectedData struct {
	UserID   string   `json:"user_id"`
	Handle   string   `json:"handle"`
	GroupIDs []string `json:"group_ids"`
}

// GroupRefData carries a single group reference, used by the
// join_group and leave_group client messages and their acknowledgements.
type GroupRefData struct {
	GroupID string `json:"group_id"`
}

package realtime

import (
	"github.com/clocked-app/clocked-core/internal/group"
	"github.com/clocked-app/clocked-core/internal/infrastructure/logging"
)

// EventRouter translates domain events into hub broadcasts.
//
// It is stateless and fire-and-forget: a failed or partial fan-out is
// logged by the hub but never surfaces to the caller, so the HTTP
// handlers that commit state changes can publish without caring whether
// anyone is connected.
type EventRouter struct {
	hub    *Hub
	logger *logging.Logger
}

// NewEventRouter creates a router over the hub.
func NewEventRouter(hub *Hub, logger *logging.Logger) *EventRouter {
	return &EventRouter{hub: hub, logger: logger}
}

// SessionStarted announces a new activity session to the group.
// The actor already knows; their connection is excluded.
func (r *EventRouter) SessionStarted(s *group.Session) {
	if s == nil {
		return
	}
	r.hub.BroadcastToGroup(s.GroupID, NewMessage(MsgTypeSessionStarted, s), s.UserID)
}

// SessionEnded announces a finished session to the group.
func (r *EventRouter) SessionEnded(s *group.Session) {
	if s == nil {
		return
	}
	r.hub.BroadcastToGroup(s.GroupID, NewMessage(MsgTypeSessionEnded, s), s.UserID)
}

// ReactionAdded announces a reaction to the group, including the
// reacting user's own connection so every client converges on the same
// reaction set.
func (r *EventRouter) ReactionAdded(groupID string, rx *group.Reaction) {
	if rx == nil {
		return
	}
	r.hub.BroadcastToGroup(groupID, NewMessage(MsgTypeReactionAdded, map[string]any{
		"group_id": groupID,
		"reaction": rx,
	}), "")
}

// MemberJoined announces a new group member. The new member's own
// connection, if any, predates the membership and is not yet scoped to
// the group, so no exclusion is needed.
func (r *EventRouter) MemberJoined(groupID, userID string, role string) {
	r.hub.BroadcastToGroup(groupID, NewMessage(MsgTypeMemberJoined, map[string]string{
		"group_id": groupID,
		"user_id":  userID,
		"role":     role,
	}), "")
}

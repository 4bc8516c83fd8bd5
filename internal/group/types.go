package group

import (
	"errors"
	"time"
)

// Group represents a private activity group.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Session represents one member's activity session within a group.
// A session is active while EndedAt is nil.
type Session struct {
	ID        string     `json:"id"`
	GroupID   string     `json:"group_id"`
	UserID    string     `json:"user_id"`
	Activity  string     `json:"activity"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Active reports whether the session is still running.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// Reaction represents a member's emoji reaction to a session.
// A member can react to a session with a given emoji at most once.
type Reaction struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// Sentinel errors for group operations.
var (
	ErrGroupNotFound     = errors.New("group not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionEnded      = errors.New("session already ended")
	ErrAlreadyMember     = errors.New("user is already a member")
	ErrDuplicateReaction = errors.New("reaction already exists")
)

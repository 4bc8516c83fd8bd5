package auth

import (
	"errors"
	"time"
)

// Role represents a member's authorisation tier within a group.
type Role string

const (
	// RoleMember can view group activity, run their own sessions and react.
	RoleMember Role = "MEMBER"

	// RoleAdmin can additionally manage members and moderate sessions.
	RoleAdmin Role = "ADMIN"

	// RoleOwner has full control of the group, including deleting it and
	// managing admins.
	RoleOwner Role = "OWNER"
)

// roleRanks orders roles for permission comparison. Higher rank wins.
var roleRanks = map[Role]int{
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

// Rank returns the role's position in the hierarchy, or 0 for unknown roles.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Meets returns true if the role satisfies the required role's rank.
// Unknown roles never satisfy anything.
func (r Role) Meets(required Role) bool {
	rank := r.Rank()
	return rank > 0 && rank >= required.Rank()
}

// IsValid returns true if the role is one of the known group roles.
func (r Role) IsValid() bool {
	return r.Rank() > 0
}

// User represents an authenticated account.
// Accounts are passwordless; login is via magic link only.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Handle    string    `json:"handle"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RefreshToken represents a stored refresh token record.
// The raw per-token secret is never stored - only its SHA-256 hash.
type RefreshToken struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SecretHash string    `json:"-"` // never serialised
	ExpiresAt  time.Time `json:"expires_at"`
	Revoked    bool      `json:"revoked"`
	CreatedAt  time.Time `json:"created_at"`
}

// Active reports whether the record can still be used for refresh.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}

// MagicLink represents a stored single-use login token.
// The raw token is delivered out-of-band; only its SHA-256 hash is stored.
type MagicLink struct {
	TokenHash string    `json:"-"` // never serialised
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership represents a user's role in a group. Read-only in this package;
// membership rows are owned by the group store.
type Membership struct {
	GroupID   string    `json:"group_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid        = errors.New("invalid token")
	ErrRefreshTokenInvalid = errors.New("invalid refresh token")
	ErrMagicLinkInvalid    = errors.New("invalid magic link")
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailExists         = errors.New("email already registered")
	ErrNotMember           = errors.New("not a member of this group")
	ErrForbidden           = errors.New("insufficient permissions")
)

package auth

import (
	"context"
	"errors"
)

// MembershipStore is the read-only membership lookup the resolver consumes.
// Membership rows are owned by the group store; this package never writes them.
type MembershipStore interface {
	// GetRole returns the user's role in the group, or ErrNotMember.
	GetRole(ctx context.Context, userID, groupID string) (Role, error)

	// ListGroupIDsForUser returns the ids of every group the user belongs to.
	ListGroupIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// PermissionResolver evaluates role-hierarchy permission for (user, group)
// pairs. It is a pure read-through over the membership store and holds no
// state of its own.
type PermissionResolver struct {
	memberships MembershipStore
}

// NewPermissionResolver creates a resolver over the given membership store.
func NewPermissionResolver(memberships MembershipStore) *PermissionResolver {
	return &PermissionResolver{memberships: memberships}
}

// HasPermission reports whether the user's role in the group meets the
// required role's rank. A user with no membership has no permission at any
// rank; that is not an error.
func (p *PermissionResolver) HasPermission(ctx context.Context, userID, groupID string, required Role) (bool, error) {
	role, err := p.memberships.GetRole(ctx, userID, groupID)
	if err != nil {
		if errors.Is(err, ErrNotMember) {
			return false, nil
		}
		return false, err
	}
	return role.Meets(required), nil
}

// GetRole returns the user's role in the group, or ErrNotMember.
func (p *PermissionResolver) GetRole(ctx context.Context, userID, groupID string) (Role, error) {
	return p.memberships.GetRole(ctx, userID, groupID)
}

// GroupScope returns the set of group ids the user may receive broadcasts
// for. Taken as a snapshot at connection time by the realtime hub.
func (p *PermissionResolver) GroupScope(ctx context.Context, userID string) ([]string, error) {
	return p.memberships.ListGroupIDsForUser(ctx, userID)
}

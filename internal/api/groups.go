package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clocked-app/clocked-core/internal/auth"
	"github.com/clocked-app/clocked-core/internal/group"
)

// createGroupRequest is the request body for POST /groups.
type createGroupRequest struct {
	Name string `json:"name"`
}

// addMemberRequest is the request body for POST /groups/{id}/members.
type addMemberRequest struct {
	UserID string    `json:"user_id"`
	Role   auth.Role `json:"role"`
}

// maxGroupNameLength bounds group names.
const maxGroupNameLength = 128

// handleCreateGroup creates a group owned by the caller.
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxGroupNameLength {
		writeBadRequest(w, "name must be 1-128 characters")
		return
	}

	g, err := s.groups.CreateGroup(r.Context(), name, claims.Subject)
	if err != nil {
		s.logger.Error("group create failed", "user_id", claims.Subject, "error", err)
		writeInternalError(w, "failed to create group")
		return
	}

	s.logger.Info("group created", "group_id", g.ID, "user_id", claims.Subject)
	writeJSON(w, http.StatusCreated, g)
}

// handleGetGroup returns a group the caller belongs to. Non-members get
// the same 404 as a missing group, so group ids leak nothing.
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	groupID := chi.URLParam(r, "id")

	if !s.requireMember(w, r, claims.Subject, groupID) {
		return
	}

	g, err := s.groups.GetGroup(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, group.ErrGroupNotFound) {
			writeNotFound(w, "group not found")
			return
		}
		s.logger.Error("group lookup failed", "group_id", groupID, "error", err)
		writeInternalError(w, "failed to load group")
		return
	}

	writeJSON(w, http.StatusOK, g)
}

// handleAddMember adds a user to the group. Requires ADMIN, and the
// granted role must rank strictly below the caller's own: an admin can
// add members, only an owner can mint admins, nobody mints owners.
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	groupID := chi.URLParam(r, "id")

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeBadRequest(w, "user_id is required")
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleMember
	}
	if !req.Role.IsValid() {
		writeBadRequest(w, "role must be OWNER, ADMIN or MEMBER")
		return
	}

	callerRole, err := s.resolver.GetRole(r.Context(), claims.Subject, groupID)
	if err != nil {
		if errors.Is(err, auth.ErrNotMember) {
			writeNotFound(w, "group not found")
			return
		}
		s.logger.Error("role lookup failed", "group_id", groupID, "error", err)
		writeInternalError(w, "failed to check permissions")
		return
	}
	if !callerRole.Meets(auth.RoleAdmin) {
		writeForbidden(w, "admin role required")
		return
	}
	if req.Role.Rank() >= callerRole.Rank() {
		writeForbidden(w, "cannot grant a role at or above your own")
		return
	}

	if _, err := s.users.GetByID(r.Context(), req.UserID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("user lookup failed", "user_id", req.UserID, "error", err)
		writeInternalError(w, "failed to look up user")
		return
	}

	if err := s.groups.AddMember(r.Context(), groupID, req.UserID, req.Role); err != nil {
		if errors.Is(err, group.ErrAlreadyMember) {
			writeConflict(w, "user is already a member")
			return
		}
		s.logger.Error("member add failed", "group_id", groupID, "user_id", req.UserID, "error", err)
		writeInternalError(w, "failed to add member")
		return
	}

	s.logger.Info("member added", "group_id", groupID, "user_id", req.UserID, "role", req.Role)
	s.events.MemberJoined(groupID, req.UserID, string(req.Role))

	writeJSON(w, http.StatusCreated, auth.Membership{
		GroupID: groupID,
		UserID:  req.UserID,
		Role:    req.Role,
	})
}

// handleListActiveSessions returns the group's running sessions.
func (s *Server) handleListActiveSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	groupID := chi.URLParam(r, "id")

	if !s.requireMember(w, r, claims.Subject, groupID) {
		return
	}

	sessions, err := s.groups.ListActiveByGroup(r.Context(), groupID)
	if err != nil {
		s.logger.Error("active session list failed", "group_id", groupID, "error", err)
		writeInternalError(w, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": groupID,
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// requireMember writes a 404 and returns false unless the user belongs
// to the group. Membership failures are indistinguishable from missing
// groups on purpose.
func (s *Server) requireMember(w http.ResponseWriter, r *http.Request, userID, groupID string) bool {
	ok, err := s.resolver.HasPermission(r.Context(), userID, groupID, auth.RoleMember)
	if err != nil {
		s.logger.Error("membership check failed", "group_id", groupID, "error", err)
		writeInternalError(w, "failed to check permissions")
		return false
	}
	if !ok {
		writeNotFound(w, "group not found")
		return false
	}
	return true
}

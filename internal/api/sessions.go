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

// startSessionRequest is the request body for POST /groups/{id}/sessions.
type startSessionRequest struct {
	Activity string `json:"activity"`
}

// reactionRequest is the request body for POST /sessions/{id}/reactions.
type reactionRequest struct {
	Emoji string `json:"emoji"`
}

// maxActivityLength bounds the free-text activity label.
const maxActivityLength = 128

// maxEmojiLength bounds the emoji field; enough for multi-codepoint
// sequences, far short of arbitrary text.
const maxEmojiLength = 16

// handleStartSession opens an activity session for the caller and
// announces it to the group.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	groupID := chi.URLParam(r, "id")

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	activity := strings.TrimSpace(req.Activity)
	if activity == "" || len(activity) > maxActivityLength {
		writeBadRequest(w, "activity must be 1-128 characters")
		return
	}

	if !s.requireMember(w, r, claims.Subject, groupID) {
		return
	}

	session, err := s.groups.StartSession(r.Context(), groupID, claims.Subject, activity)
	if err != nil {
		s.logger.Error("session start failed", "group_id", groupID, "user_id", claims.Subject, "error", err)
		writeInternalError(w, "failed to start session")
		return
	}

	s.logger.Info("session started", "session_id", session.ID, "group_id", groupID, "user_id", claims.Subject)

	// Broadcast after commit; delivery is best effort and never rolls
	// back the session.
	s.events.SessionStarted(session)

	writeJSON(w, http.StatusCreated, session)
}

// handleEndSession ends the caller's own session and announces it.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	sessionID := chi.URLParam(r, "id")

	session, err := s.groups.EndSession(r.Context(), sessionID, claims.Subject)
	if err != nil {
		switch {
		case errors.Is(err, group.ErrSessionNotFound):
			writeNotFound(w, "session not found")
		case errors.Is(err, group.ErrSessionEnded):
			writeConflict(w, "session already ended")
		default:
			s.logger.Error("session end failed", "session_id", sessionID, "error", err)
			writeInternalError(w, "failed to end session")
		}
		return
	}

	s.logger.Info("session ended", "session_id", session.ID, "group_id", session.GroupID)
	s.events.SessionEnded(session)

	writeJSON(w, http.StatusOK, session)
}

// handleAddReaction records an emoji reaction on a session in one of the
// caller's groups and announces it to everyone, the reactor included.
func (s *Server) handleAddReaction(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	sessionID := chi.URLParam(r, "id")

	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Emoji == "" || len(req.Emoji) > maxEmojiLength {
		writeBadRequest(w, "emoji is required")
		return
	}

	session, err := s.groups.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, group.ErrSessionNotFound) {
			writeNotFound(w, "session not found")
			return
		}
		s.logger.Error("session lookup failed", "session_id", sessionID, "error", err)
		writeInternalError(w, "failed to load session")
		return
	}

	// Same 404 for sessions in groups the caller can't see.
	ok, err := s.resolver.HasPermission(r.Context(), claims.Subject, session.GroupID, auth.RoleMember)
	if err != nil {
		s.logger.Error("membership check failed", "group_id", session.GroupID, "error", err)
		writeInternalError(w, "failed to check permissions")
		return
	}
	if !ok {
		writeNotFound(w, "session not found")
		return
	}

	reaction, err := s.groups.AddReaction(r.Context(), sessionID, claims.Subject, req.Emoji)
	if err != nil {
		if errors.Is(err, group.ErrDuplicateReaction) {
			writeConflict(w, "reaction already recorded")
			return
		}
		s.logger.Error("reaction add failed", "session_id", sessionID, "error", err)
		writeInternalError(w, "failed to add reaction")
		return
	}

	s.events.ReactionAdded(session.GroupID, reaction)

	writeJSON(w, http.StatusCreated, reaction)
}

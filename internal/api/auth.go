package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/clocked-app/clocked-core/internal/auth"
)

// magicLinkRequest is the request body for POST /auth/magic-link.
type magicLinkRequest struct {
	Email string `json:"email"`
}

// verifyRequest is the request body for POST /auth/verify.
type verifyRequest struct {
	Token string `json:"token"`
}

// refreshRequest is the request body for POST /auth/refresh and /auth/logout.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleMagicLinkRequest issues a single-use login token for a known email.
// Delivery is out of band; outside development the token never appears in
// the response.
func (s *Server) handleMagicLinkRequest(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		writeBadRequest(w, "invalid email address")
		return
	}

	token, err := s.issuer.RequestLink(r.Context(), email)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "no account for that email")
			return
		}
		s.logger.Error("magic link issue failed", "error", err)
		writeInternalError(w, "failed to issue login link")
		return
	}

	s.telemetry.WriteAuthEvent("magic_link_requested")

	resp := map[string]any{
		"status":     "sent",
		"expires_in": int(s.authCfg.MagicLinkDuration().Seconds()),
	}
	if s.devMode {
		// Development convenience only; delivery normally goes via email.
		resp["token"] = token
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// handleVerify exchanges a magic-link token for a token pair, creating the
// account on first login.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Token == "" {
		writeBadRequest(w, "token is required")
		return
	}

	email, err := s.issuer.Verify(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, auth.ErrMagicLinkInvalid) {
			writeUnauthorized(w, "invalid or expired login token")
			return
		}
		s.logger.Error("magic link verify failed", "error", err)
		writeInternalError(w, "failed to verify login token")
		return
	}

	user, err := s.users.GetOrCreateByEmail(r.Context(), email)
	if err != nil {
		s.logger.Error("user lookup failed on login", "error", err)
		writeInternalError(w, "failed to resolve account")
		return
	}

	pair, err := s.authority.IssuePair(r.Context(), user)
	if err != nil {
		s.logger.Error("token issue failed on login", "user_id", user.ID, "error", err)
		writeInternalError(w, "failed to issue tokens")
		return
	}

	s.telemetry.WriteAuthEvent("login")
	s.logger.Info("user logged in", "user_id", user.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"user":   user,
		"tokens": pair,
	})
}

// handleRefresh rotates a refresh token for a new pair. Presenting an
// already-revoked token is treated as a compromise signal: it is refused,
// logged, and counted.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := s.authority.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenReused) {
			s.logger.Warn("refresh token reuse rejected", "request_id", r.Context().Value(ctxKeyRequestID))
			s.telemetry.WriteAuthEvent("refresh_reuse_rejected")
			writeUnauthorized(w, "refresh token no longer valid")
			return
		}
		if errors.Is(err, auth.ErrRefreshTokenInvalid) {
			writeUnauthorized(w, "invalid or expired refresh token")
			return
		}
		s.logger.Error("token rotation failed", "error", err)
		writeInternalError(w, "failed to refresh tokens")
		return
	}

	s.telemetry.WriteAuthEvent("refresh")
	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes the presented refresh token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	record, err := s.authority.VerifyRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		writeUnauthorized(w, "invalid refresh token")
		return
	}
	if err := s.authority.Revoke(r.Context(), record.ID); err != nil {
		s.logger.Error("logout revoke failed", "token_id", record.ID, "error", err)
		writeInternalError(w, "failed to revoke token")
		return
	}

	s.telemetry.WriteAuthEvent("logout")
	w.WriteHeader(http.StatusNoContent)
}

// handleLogoutAll revokes every refresh token owned by the caller.
// Existing access tokens stay valid until they expire.
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	if err := s.authority.RevokeAllForUser(r.Context(), claims.Subject); err != nil {
		s.logger.Error("logout-all failed", "user_id", claims.Subject, "error", err)
		writeInternalError(w, "failed to revoke sessions")
		return
	}

	s.telemetry.WriteAuthEvent("logout_all")
	s.logger.Info("all sessions revoked", "user_id", claims.Subject)
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the authenticated caller's account.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	user, err := s.users.GetByID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "account not found")
			return
		}
		s.logger.Error("me lookup failed", "user_id", claims.Subject, "error", err)
		writeInternalError(w, "failed to load account")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

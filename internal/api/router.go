package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Login flow (no auth required)
		r.With(s.rateLimitMiddleware).Post("/auth/magic-link", s.handleMagicLinkRequest)
		r.Post("/auth/verify", s.handleVerify)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout-all", s.handleLogoutAll)
			r.Get("/auth/me", s.handleMe)

			r.Route("/groups", func(r chi.Router) {
				r.Post("/", s.handleCreateGroup)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetGroup)
					r.Post("/members", s.handleAddMember)
					r.Get("/sessions", s.handleListActiveSessions)
					r.Post("/sessions", s.handleStartSession)
				})
			})

			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Post("/end", s.handleEndSession)
				r.Post("/reactions", s.handleAddReaction)
			})
		})
	})

	// WebSocket endpoint (token validated in handler, supporting both
	// header and query parameter auth)
	r.Get(s.wsCfg.Path, s.handleWebSocket)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

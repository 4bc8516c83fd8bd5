package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/clocked-app/clocked-core/internal/realtime"
)

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection.
//
// The access token comes from the Authorization header or, for browser
// clients that cannot set headers on WebSocket requests, the token query
// parameter. The caller's group memberships are snapshotted here and
// become the connection's scope for its whole lifetime.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		writeUnauthorized(w, "access token is required")
		return
	}

	claims, err := s.authority.VerifyAccessToken(token)
	if err != nil {
		writeUnauthorized(w, "invalid or expired token")
		return
	}

	groupIDs, err := s.resolver.GroupScope(r.Context(), claims.Subject)
	if err != nil {
		s.logger.Error("group scope lookup failed", "user_id", claims.Subject, "error", err)
		writeInternalError(w, "failed to resolve group scope")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := realtime.NewConn(s.hub, ws, claims.Subject, claims.Handle, groupIDs)
	conn.Start()

	s.logger.Info("websocket connected", "user_id", claims.Subject, "groups", len(groupIDs))
}

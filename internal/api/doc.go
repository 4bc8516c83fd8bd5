// Package api implements the HTTP REST API and WebSocket server for Clocked Core.
//
// This package provides:
//   - Passwordless login endpoints (magic link request, verify, refresh, logout)
//   - Group, session and reaction endpoints guarded by role checks
//   - WebSocket handshake handing authenticated connections to the realtime hub
//   - Middleware stack (request ID, logging, recovery, CORS, rate limiting)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server is the only write path: handlers validate, persist via
// the auth and group repositories, and then publish an event through the
// realtime router. Reads and broadcasts keep working if telemetry or the
// rate limiter are disabled.
//
// # Security
//
// Access tokens are short-lived JWTs presented as bearer tokens; refresh
// tokens are long-lived, persisted hashed, and rotated on every use with
// reuse detection. The magic-link endpoint is rate limited per client IP.
// Membership checks answer 404 rather than 403 so group ids leak nothing
// to outsiders.
package api

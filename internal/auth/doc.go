// Package auth provides authentication and authorisation for Clocked Core.
//
// It implements passwordless login with:
//   - Single-use, time-boxed magic link tokens (atomic consume, no replay)
//   - Short-lived JWT access tokens (signature-only validation, no DB hit)
//   - Persisted, revocable refresh tokens with atomic rotation
//   - Audience separation between token kinds, so an access token can
//     never be replayed as a refresh token and vice versa
//   - A 3-tier group role hierarchy (MEMBER < ADMIN < OWNER) resolved
//     read-through over the membership store
//
// Raw token secrets never touch storage: refresh secrets and magic link
// tokens are hashed with SHA-256 before persistence.
package auth

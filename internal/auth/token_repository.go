package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenRepository defines the interface for refresh token persistence.
type TokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByID(ctx context.Context, id string) (*RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	Rotate(ctx context.Context, oldID string, newToken *RefreshToken) error
	ListActiveByUser(ctx context.Context, userID string) ([]RefreshToken, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// Create inserts a new refresh token record. The ID is generated if empty.
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	if token.ID == "" {
		token.ID = "rt-" + uuid.NewString()[:16]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	token.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, secret_hash, expires_at, revoked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		token.ID, token.UserID, token.SecretHash,
		token.ExpiresAt.UTC().Format(time.RFC3339),
		boolToInt(token.Revoked), now,
	)
	if err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}

	return nil
}

// GetByID retrieves a refresh token record by its ID.
func (r *SQLiteTokenRepository) GetByID(ctx context.Context, id string) (*RefreshToken, error) {
	var t RefreshToken
	var revoked int
	var expiresAt, createdAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, secret_hash, expires_at, revoked, created_at
		 FROM refresh_tokens WHERE id = ?`, id,
	).Scan(&t.ID, &t.UserID, &t.SecretHash, &expiresAt, &revoked, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRefreshTokenInvalid
		}
		return nil, fmt.Errorf("getting refresh token: %w", err)
	}

	t.Revoked = revoked != 0
	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &t, nil
}

// Revoke marks a single refresh token as revoked. Idempotent: revoking an
// already-revoked or unknown token is not an error.
func (r *SQLiteTokenRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// RevokeAllForUser marks all refresh tokens for a user as revoked.
// Used for logout-everywhere and suspected compromise.
func (r *SQLiteTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("revoking all tokens for user: %w", err)
	}
	return nil
}

// Rotate atomically consumes the old token and creates its replacement.
//
// The consume is conditional on the old token still being unrevoked; if
// another rotation already spent it, the transaction aborts with
// ErrTokenReused. This closes the TOCTOU window between verification and
// revocation under concurrent refresh attempts.
func (r *SQLiteTokenRepository) Rotate(ctx context.Context, oldID string, newToken *RefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rotation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	// Consume the presented token - only if nobody else spent it first
	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE id = ? AND revoked = 0", oldID)
	if err != nil {
		return fmt.Errorf("consuming old token: %w", err)
	}
	affected, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if affected == 0 {
		return ErrTokenReused
	}

	// Insert the replacement
	if newToken.ID == "" {
		newToken.ID = "rt-" + uuid.NewString()[:16]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	newToken.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, secret_hash, expires_at, revoked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		newToken.ID, newToken.UserID, newToken.SecretHash,
		newToken.ExpiresAt.UTC().Format(time.RFC3339),
		boolToInt(newToken.Revoked), now,
	); err != nil {
		return fmt.Errorf("creating replacement token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rotation: %w", err)
	}
	return nil
}

// ListActiveByUser returns all non-revoked, non-expired tokens for a user.
func (r *SQLiteTokenRepository) ListActiveByUser(ctx context.Context, userID string) ([]RefreshToken, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, secret_hash, expires_at, revoked, created_at
		 FROM refresh_tokens
		 WHERE user_id = ? AND revoked = 0 AND expires_at > ?
		 ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("listing active tokens: %w", err)
	}
	defer rows.Close()

	var tokens []RefreshToken
	for rows.Next() {
		var t RefreshToken
		var revoked int
		var expiresAt, createdAt string

		if err := rows.Scan(&t.ID, &t.UserID, &t.SecretHash, &expiresAt, &revoked, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning token: %w", err)
		}

		t.Revoked = revoked != 0
		t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tokens: %w", err)
	}

	if tokens == nil {
		tokens = []RefreshToken{}
	}
	return tokens, nil
}

// DeleteExpired removes tokens that have expired, freeing storage.
// Returns the number of deleted rows.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

// boolToInt converts a bool to the 0/1 integer SQLite stores.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MagicLinkRepository defines the interface for magic link persistence.
type MagicLinkRepository interface {
	Create(ctx context.Context, link *MagicLink) error
	Consume(ctx context.Context, tokenHash string) (*MagicLink, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteMagicLinkRepository implements MagicLinkRepository using SQLite.
type SQLiteMagicLinkRepository struct {
	db *sql.DB
}

// NewMagicLinkRepository creates a new SQLite-backed magic link repository.
func NewMagicLinkRepository(db *sql.DB) *SQLiteMagicLinkRepository {
	return &SQLiteMagicLinkRepository{db: db}
}

// Create inserts a new magic link record.
func (r *SQLiteMagicLinkRepository) Create(ctx context.Context, link *MagicLink) error {
	now := time.Now().UTC().Format(time.RFC3339)
	link.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO magic_links (token_hash, email, expires_at, used, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		link.TokenHash, link.Email,
		link.ExpiresAt.UTC().Format(time.RFC3339),
		boolToInt(link.Used), now,
	)
	if err != nil {
		return fmt.Errorf("creating magic link: %w", err)
	}

	return nil
}

// Consume atomically marks a link as used and returns it.
//
// The single conditional UPDATE is the atomicity guarantee: only one caller
// can flip used from 0 to 1, so concurrent verifications of the same token
// cannot both succeed. Missing, expired, and already-used links are all
// reported as ErrMagicLinkInvalid.
func (r *SQLiteMagicLinkRepository) Consume(ctx context.Context, tokenHash string) (*MagicLink, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := r.db.ExecContext(ctx,
		`UPDATE magic_links SET used = 1
		 WHERE token_hash = ? AND used = 0 AND expires_at > ?`,
		tokenHash, now)
	if err != nil {
		return nil, fmt.Errorf("consuming magic link: %w", err)
	}

	affected, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if affected == 0 {
		return nil, ErrMagicLinkInvalid
	}

	var link MagicLink
	var used int
	var expiresAt, createdAt string

	err = r.db.QueryRowContext(ctx,
		`SELECT token_hash, email, expires_at, used, created_at
		 FROM magic_links WHERE token_hash = ?`, tokenHash,
	).Scan(&link.TokenHash, &link.Email, &expiresAt, &used, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("loading consumed magic link: %w", err)
	}

	link.Used = used != 0
	link.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	link.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &link, nil
}

// DeleteExpired removes links past their expiry, used or not.
// Returns the number of deleted rows.
func (r *SQLiteMagicLinkRepository) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM magic_links WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired magic links: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

package auth

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// handleCharPattern strips everything a handle cannot contain.
var handleCharPattern = regexp.MustCompile(`[^a-z0-9._-]`)

// maxHandleLength bounds derived handles.
const maxHandleLength = 32

// UserRepository defines the interface for account persistence.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetOrCreateByEmail(ctx context.Context, email string) (*User, error)
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// GetByID retrieves a user by id.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByEmail retrieves a user by email.
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getBy(ctx, "email", email)
}

//nolint:dupl // two lookup keys share one scan path
func (r *SQLiteUserRepository) getBy(ctx context.Context, column, value string) (*User, error) {
	var u User
	var createdAt, updatedAt string

	//nolint:gosec // column is one of two compile-time constants
	query := `SELECT id, email, handle, created_at, updated_at FROM users WHERE ` + column + ` = ?`
	err := r.db.QueryRowContext(ctx, query, value).
		Scan(&u.ID, &u.Email, &u.Handle, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}

	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &u, nil
}

// GetOrCreateByEmail returns the account registered under the email,
// creating one on first login. The handle is derived from the email's
// local part and uniquified with a random suffix on collision.
func (r *SQLiteUserRepository) GetOrCreateByEmail(ctx context.Context, email string) (*User, error) {
	user, err := r.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if err != ErrUserNotFound {
		return nil, err
	}

	base := deriveHandle(email)
	now := time.Now().UTC().Format(time.RFC3339)

	// Try the bare handle first, then suffixed variants. The users table has
	// a UNIQUE constraint on handle, so collisions surface as insert errors.
	handle := base
	for attempt := 0; attempt < 5; attempt++ {
		u := &User{
			ID:     "usr-" + uuid.NewString()[:16],
			Email:  email,
			Handle: handle,
		}

		_, insertErr := r.db.ExecContext(ctx,
			`INSERT INTO users (id, email, handle, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			u.ID, u.Email, u.Handle, now, now,
		)
		if insertErr == nil {
			u.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
			u.UpdatedAt = u.CreatedAt
			return u, nil
		}

		// A concurrent login may have created the account meanwhile.
		if existing, lookupErr := r.GetByEmail(ctx, email); lookupErr == nil {
			return existing, nil
		}

		handle = base + "-" + uuid.NewString()[:4]
	}

	return nil, fmt.Errorf("creating user for %s: handle collisions exhausted", email)
}

// deriveHandle builds a handle candidate from the email's local part.
func deriveHandle(email string) string {
	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}

	handle := handleCharPattern.ReplaceAllString(strings.ToLower(local), "")
	if handle == "" {
		handle = "user"
	}
	if len(handle) > maxHandleLength {
		handle = handle[:maxHandleLength]
	}
	return handle
}

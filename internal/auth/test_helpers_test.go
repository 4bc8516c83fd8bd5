package auth

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the auth schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "auth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			handle TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;

		CREATE TABLE groups (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (created_by) REFERENCES users(id)
		) STRICT;

		CREATE TABLE group_members (
			group_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('OWNER', 'ADMIN', 'MEMBER')),
			created_at TEXT NOT NULL,
			PRIMARY KEY (group_id, user_id),
			FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE refresh_tokens (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			secret_hash TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			revoked INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE INDEX idx_refresh_tokens_user ON refresh_tokens(user_id);

		CREATE TABLE magic_links (
			token_hash TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			used INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		) STRICT;

		CREATE INDEX idx_magic_links_email ON magic_links(email);
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying auth schema: %v", err)
	}

	return db
}

// seedTestUser inserts a user directly and returns it.
func seedTestUser(t *testing.T, db *sql.DB, email string) *User {
	t.Helper()

	repo := NewUserRepository(db)
	user, err := repo.GetOrCreateByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("creating test user %s: %v", email, err)
	}
	return user
}

// testAuthority builds an Authority over the test database with a
// deterministic secret.
func testAuthority(t *testing.T, db *sql.DB) *Authority {
	t.Helper()

	return NewAuthority(
		NewTokenRepository(db),
		NewUserRepository(db),
		AuthorityConfig{Secret: "test-secret-key-at-least-32-characters-long"},
	)
}

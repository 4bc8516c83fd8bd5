package group

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clocked-app/clocked-core/internal/auth"
)

// Repository defines the interface for group, membership, session and
// reaction persistence. The membership read methods double as the
// auth.MembershipStore the permission resolver and the hub consume.
type Repository interface {
	CreateGroup(ctx context.Context, name, createdBy string) (*Group, error)
	GetGroup(ctx context.Context, id string) (*Group, error)
	AddMember(ctx context.Context, groupID, userID string, role auth.Role) error
	GetRole(ctx context.Context, userID, groupID string) (auth.Role, error)
	ListGroupIDsForUser(ctx context.Context, userID string) ([]string, error)

	StartSession(ctx context.Context, groupID, userID, activity string) (*Session, error)
	EndSession(ctx context.Context, sessionID, userID string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListActiveByGroup(ctx context.Context, groupID string) ([]Session, error)

	AddReaction(ctx context.Context, sessionID, userID, emoji string) (*Reaction, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed group repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateGroup inserts a group and its creator's OWNER membership in one
// transaction. A group always has at least one owner.
func (r *SQLiteRepository) CreateGroup(ctx context.Context, name, createdBy string) (*Group, error) {
	g := &Group{
		ID:        "grp-" + uuid.NewString()[:16],
		Name:      name,
		CreatedBy: createdBy,
	}

	now := time.Now().UTC().Format(time.RFC3339)
	g.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning group transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, created_by, created_at) VALUES (?, ?, ?, ?)`,
		g.ID, g.Name, g.CreatedBy, now,
	); err != nil {
		return nil, fmt.Errorf("creating group: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role, created_at) VALUES (?, ?, ?, ?)`,
		g.ID, createdBy, string(auth.RoleOwner), now,
	); err != nil {
		return nil, fmt.Errorf("creating owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing group: %w", err)
	}
	return g, nil
}

// GetGroup retrieves a group by id.
func (r *SQLiteRepository) GetGroup(ctx context.Context, id string) (*Group, error) {
	var g Group
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at FROM groups WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.CreatedBy, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("getting group: %w", err)
	}

	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &g, nil
}

// AddMember grants the user a role in the group.
func (r *SQLiteRepository) AddMember(ctx context.Context, groupID, userID string, role auth.Role) error {
	if !role.IsValid() {
		return fmt.Errorf("invalid role %q", role)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role, created_at) VALUES (?, ?, ?, ?)`,
		groupID, userID, string(role), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("adding member: %w", err)
	}
	return nil
}

// GetRole returns the user's role in the group, or auth.ErrNotMember.
func (r *SQLiteRepository) GetRole(ctx context.Context, userID, groupID string) (auth.Role, error) {
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT role FROM group_members WHERE user_id = ? AND group_id = ?`,
		userID, groupID,
	).Scan(&role)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", auth.ErrNotMember
		}
		return "", fmt.Errorf("getting role: %w", err)
	}
	return auth.Role(role), nil
}

// ListGroupIDsForUser returns the ids of every group the user belongs to.
func (r *SQLiteRepository) ListGroupIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT group_id FROM group_members WHERE user_id = ? ORDER BY group_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing groups for user: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning group id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group ids: %w", err)
	}

	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// StartSession opens a new activity session for the user in the group.
func (r *SQLiteRepository) StartSession(ctx context.Context, groupID, userID, activity string) (*Session, error) {
	s := &Session{
		ID:       "ses-" + uuid.NewString()[:16],
		GroupID:  groupID,
		UserID:   userID,
		Activity: activity,
	}

	now := time.Now().UTC().Format(time.RFC3339)
	s.StartedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_sessions (id, group_id, user_id, activity, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, NULL)`,
		s.ID, s.GroupID, s.UserID, s.Activity, now,
	)
	if err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}
	return s, nil
}

// EndSession closes the user's session. Only the session's owner can end
// it; ending an already-ended session fails with ErrSessionEnded.
func (r *SQLiteRepository) EndSession(ctx context.Context, sessionID, userID string) (*Session, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := r.db.ExecContext(ctx,
		`UPDATE activity_sessions SET ended_at = ?
		 WHERE id = ? AND user_id = ? AND ended_at IS NULL`,
		now, sessionID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ending session: %w", err)
	}

	affected, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if affected == 0 {
		// Distinguish missing from already-ended for the error taxonomy.
		s, getErr := r.GetSession(ctx, sessionID)
		if getErr != nil {
			return nil, getErr
		}
		if s.UserID != userID {
			return nil, ErrSessionNotFound
		}
		return nil, ErrSessionEnded
	}

	return r.GetSession(ctx, sessionID)
}

// GetSession retrieves a session by id.
func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	var startedAt string
	var endedAt sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, group_id, user_id, activity, started_at, ended_at
		 FROM activity_sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.GroupID, &s.UserID, &s.Activity, &startedAt, &endedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}

	s.StartedAt, _ = time.Parse(time.RFC3339, startedAt) //nolint:errcheck // format is controlled
	if endedAt.Valid {
		t, _ := time.Parse(time.RFC3339, endedAt.String) //nolint:errcheck // format is controlled
		s.EndedAt = &t
	}
	return &s, nil
}

// ListActiveByGroup returns all running sessions in the group, oldest first.
func (r *SQLiteRepository) ListActiveByGroup(ctx context.Context, groupID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, group_id, user_id, activity, started_at, ended_at
		 FROM activity_sessions
		 WHERE group_id = ? AND ended_at IS NULL
		 ORDER BY started_at`, groupID)
	if err != nil {
		return nil, fmt.Errorf("listing active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var startedAt string
		var endedAt sql.NullString

		if err := rows.Scan(&s.ID, &s.GroupID, &s.UserID, &s.Activity, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}

		s.StartedAt, _ = time.Parse(time.RFC3339, startedAt) //nolint:errcheck // format is controlled
		if endedAt.Valid {
			t, _ := time.Parse(time.RFC3339, endedAt.String) //nolint:errcheck // format is controlled
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}

// AddReaction records an emoji reaction to a session. A duplicate
// (session, user, emoji) triple fails with ErrDuplicateReaction.
func (r *SQLiteRepository) AddReaction(ctx context.Context, sessionID, userID, emoji string) (*Reaction, error) {
	reaction := &Reaction{
		ID:        "rx-" + uuid.NewString()[:16],
		SessionID: sessionID,
		UserID:    userID,
		Emoji:     emoji,
	}

	now := time.Now().UTC().Format(time.RFC3339)
	reaction.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_reactions (id, session_id, user_id, emoji, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		reaction.ID, reaction.SessionID, reaction.UserID, reaction.Emoji, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateReaction
		}
		return nil, fmt.Errorf("adding reaction: %w", err)
	}
	return reaction, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

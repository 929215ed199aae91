// Package postgres provides the PostgreSQL-backed session store for practice
// sessions. Attempts are serialised as a JSONB array; updates use an
// optimistic version check so concurrent Continue calls on the same session
// cannot double-consume a turn.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/soyeonk/replique/internal/practice"
)

// Schema is the SQL DDL for the practice_sessions table. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS practice_sessions (
    id           TEXT         PRIMARY KEY,
    user_id      TEXT         NOT NULL DEFAULT '',
    scene_id     TEXT         NOT NULL,
    episode_id   TEXT         NOT NULL DEFAULT '',
    character_name TEXT       NOT NULL,
    total_turns  INT          NOT NULL,
    cursor       INT          NOT NULL DEFAULT 0,
    attempts     JSONB        NOT NULL DEFAULT '[]',
    status       TEXT         NOT NULL DEFAULT 'active',
    started_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    completed_at TIMESTAMPTZ,
    version      BIGINT       NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_practice_sessions_user ON practice_sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_practice_sessions_status ON practice_sessions(status);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a [practice.SessionStore] backed by a PostgreSQL database.
type Store struct {
	db DB
}

// Compile-time interface check.
var _ practice.SessionStore = (*Store)(nil)

// NewStore creates a new [Store] that uses the given database connection or
// pool. The caller is responsible for calling [Store.Migrate] to ensure the
// schema exists before issuing queries.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// practice_sessions table and indexes if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("session store: migrate: %w", err)
	}
	return nil
}

// Create implements [practice.SessionStore]. It inserts a new session with
// version 0 regardless of the Version field on the value.
func (s *Store) Create(ctx context.Context, session practice.Session) error {
	attempts, err := json.Marshal(emptyAttempts(session.Attempts))
	if err != nil {
		return fmt.Errorf("session store: marshal attempts: %w", err)
	}

	const query = `
		INSERT INTO practice_sessions (
			id, user_id, scene_id, episode_id, character_name,
			total_turns, cursor, attempts, status, started_at, completed_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,0)`

	_, err = s.db.Exec(ctx, query,
		session.ID, session.UserID, session.SceneID, session.EpisodeID, session.Character,
		session.TotalTurns, session.Cursor, attempts, string(session.Status),
		session.StartedAt, nullTime(session.CompletedAt),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("session store: session %q already exists", session.ID)
		}
		return fmt.Errorf("session store: create: %w", err)
	}
	return nil
}

// Get implements [practice.SessionStore].
func (s *Store) Get(ctx context.Context, id string) (*practice.Session, error) {
	const query = `
		SELECT id, user_id, scene_id, episode_id, character_name,
		       total_turns, cursor, attempts, status, started_at, completed_at, version
		FROM practice_sessions
		WHERE id = $1`

	var (
		sess        practice.Session
		attempts    []byte
		status      string
		completedAt *time.Time
	)
	err := s.db.QueryRow(ctx, query, id).Scan(
		&sess.ID, &sess.UserID, &sess.SceneID, &sess.EpisodeID, &sess.Character,
		&sess.TotalTurns, &sess.Cursor, &attempts, &status, &sess.StartedAt,
		&completedAt, &sess.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session store: get %q: %w", id, practice.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("session store: get %q: %w", id, err)
	}

	if err := json.Unmarshal(attempts, &sess.Attempts); err != nil {
		return nil, fmt.Errorf("session store: unmarshal attempts: %w", err)
	}
	sess.Status = practice.Status(status)
	if completedAt != nil {
		sess.CompletedAt = *completedAt
	}
	return &sess, nil
}

// Update implements [practice.SessionStore]. The session's Version must match
// the stored row; on success the stored version is incremented by one.
func (s *Store) Update(ctx context.Context, session practice.Session) error {
	attempts, err := json.Marshal(emptyAttempts(session.Attempts))
	if err != nil {
		return fmt.Errorf("session store: marshal attempts: %w", err)
	}

	const query = `
		UPDATE practice_sessions SET
			cursor = $3, attempts = $4, status = $5, completed_at = $6,
			version = version + 1
		WHERE id = $1 AND version = $2`

	tag, err := s.db.Exec(ctx, query,
		session.ID, session.Version,
		session.Cursor, attempts, string(session.Status), nullTime(session.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("session store: update %q: %w", session.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing session from a lost version race.
		var exists bool
		checkErr := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM practice_sessions WHERE id = $1)`,
			session.ID,
		).Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("session store: update %q: %w", session.ID, checkErr)
		}
		if !exists {
			return fmt.Errorf("session store: update %q: %w", session.ID, practice.ErrSessionNotFound)
		}
		return fmt.Errorf("session store: update %q (version %d): %w",
			session.ID, session.Version, practice.ErrVersionConflict)
	}
	return nil
}

// nullTime maps a zero time to NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// emptyAttempts returns a if non-nil, otherwise an empty non-nil slice so
// JSON marshalling produces "[]" instead of "null".
func emptyAttempts(a []practice.Attempt) []practice.Attempt {
	if a == nil {
		return []practice.Attempt{}
	}
	return a
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

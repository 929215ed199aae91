// Package practice implements dialogue practice sessions: a learner picks a
// scene and a character, then works through that character's lines one turn
// at a time while every attempt is scored against the script.
//
// The package is organised around [Service], which coordinates the scene
// corpus, the similarity engine, and a [SessionStore]. Sessions persist only
// coordinates and attempt history; the turn list is recomputed from the scene
// text on every operation, which is safe because turn selection is
// deterministic.
package practice

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by [Service] and [SessionStore] implementations.
var (
	// ErrNoTurns is returned by Start when the chosen character has no
	// dialogue lines in the scene.
	ErrNoTurns = errors.New("practice: character has no turns in scene")

	// ErrSessionNotFound is returned when no session exists with the given ID.
	ErrSessionNotFound = errors.New("practice: session not found")

	// ErrSessionNotActive is returned by Continue when the session is paused.
	ErrSessionNotActive = errors.New("practice: session not active")

	// ErrNoMoreTurns is returned by Continue when the session has already
	// consumed every turn.
	ErrNoMoreTurns = errors.New("practice: no more turns")

	// ErrSessionNotCompleted is returned by Complete when the session still
	// has turns remaining.
	ErrSessionNotCompleted = errors.New("practice: session not completed")

	// ErrVersionConflict is returned by [SessionStore.Update] when the stored
	// session version no longer matches, meaning a concurrent update won.
	ErrVersionConflict = errors.New("practice: session version conflict")
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive means the session is accepting attempts.
	StatusActive Status = "active"

	// StatusPaused is reserved for suspend/resume. No current operation
	// transitions into it; Continue rejects paused sessions.
	StatusPaused Status = "paused"

	// StatusCompleted means every turn has been attempted.
	StatusCompleted Status = "completed"
)

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// Attempt is one scored learner response. Attempts are append-only and their
// Ordinals are contiguous from 1.
type Attempt struct {
	// Ordinal is the 1-based turn number this attempt answered.
	Ordinal int `json:"ordinal"`

	// LinePosition is the scene line position of the expected turn.
	LinePosition int `json:"line_position"`

	// Expected is the script line the learner was asked to produce.
	Expected string `json:"expected"`

	// Input is the learner's raw response.
	Input string `json:"input"`

	// Similarity is the final blended similarity score in [0, 1].
	Similarity float64 `json:"similarity"`

	// IsCorrect reports whether Similarity reached the scoring threshold.
	IsCorrect bool `json:"is_correct"`

	// AttemptedAt is when the attempt was scored.
	AttemptedAt time.Time `json:"attempted_at"`
}

// Session is one practice run of a (scene, character) pair by one learner.
//
// Invariants maintained by [Service]:
//   - 0 <= Cursor <= TotalTurns
//   - Cursor == TotalTurns exactly when Status is [StatusCompleted]
//   - len(Attempts) == Cursor, with Ordinals contiguous from 1
type Session struct {
	// ID is the session's unique identifier (a UUID).
	ID string

	// UserID identifies the practicing learner.
	UserID string

	// SceneID is the corpus scene being practiced.
	SceneID string

	// EpisodeID denormalises the scene's episode.
	EpisodeID string

	// Character is the role the learner performs.
	Character string

	// TotalTurns is the number of turns the character has in the scene.
	// Fixed at session start.
	TotalTurns int

	// Cursor is the index of the next turn to attempt. Every Continue
	// advances it by exactly one.
	Cursor int

	// Attempts holds every scored attempt in order.
	Attempts []Attempt

	// Status is the session lifecycle state.
	Status Status

	// StartedAt is when the session was created.
	StartedAt time.Time

	// CompletedAt is when the last turn was attempted. Zero until then.
	CompletedAt time.Time

	// Version is the optimistic-concurrency token. Incremented by the store
	// on every successful Update.
	Version int64
}

// CorrectCount returns how many attempts were scored correct.
func (s *Session) CorrectCount() int {
	n := 0
	for _, a := range s.Attempts {
		if a.IsCorrect {
			n++
		}
	}
	return n
}

// SessionStore persists practice sessions.
//
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// Create inserts a new session. The session's ID must be unique.
	Create(ctx context.Context, session Session) error

	// Get retrieves a session by ID.
	// Returns [ErrSessionNotFound] when no such session exists.
	Get(ctx context.Context, id string) (*Session, error)

	// Update persists the session. The session's Version field must equal the
	// stored version; on success the stored version is incremented by one.
	// Returns [ErrVersionConflict] when the versions no longer match and
	// [ErrSessionNotFound] when the session does not exist.
	Update(ctx context.Context, session Session) error
}

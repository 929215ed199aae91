// Package mock provides an in-memory test double for [practice.SessionStore].
//
// Unlike a purely canned mock, SessionStore behaves like a real store: Create
// and Update round-trip sessions and Update enforces the version check, so
// service-level tests exercise the same optimistic-concurrency path as the
// PostgreSQL store. Error fields allow failure injection.
package mock

import (
	"context"
	"sync"

	"github.com/soyeonk/replique/internal/practice"
)

// SessionStore is an in-memory [practice.SessionStore].
// Safe for concurrent use.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]practice.Session

	// CreateErr is returned by Create when non-nil.
	CreateErr error

	// GetErr is returned by Get when non-nil.
	GetErr error

	// UpdateErr is returned by Update when non-nil.
	UpdateErr error

	// UpdateCalls counts Update invocations, including failed ones.
	UpdateCalls int
}

var _ practice.SessionStore = (*SessionStore)(nil)

// NewSessionStore returns an empty in-memory store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]practice.Session)}
}

// Create implements [practice.SessionStore].
func (m *SessionStore) Create(_ context.Context, session practice.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.sessions[session.ID] = clone(session)
	return nil
}

// Get implements [practice.SessionStore].
func (m *SessionStore) Get(_ context.Context, id string) (*practice.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	sess, ok := m.sessions[id]
	if !ok {
		return nil, practice.ErrSessionNotFound
	}
	out := clone(sess)
	return &out, nil
}

// Update implements [practice.SessionStore], enforcing the version check the
// way the PostgreSQL store does.
func (m *SessionStore) Update(_ context.Context, session practice.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	stored, ok := m.sessions[session.ID]
	if !ok {
		return practice.ErrSessionNotFound
	}
	if stored.Version != session.Version {
		return practice.ErrVersionConflict
	}
	session.Version++
	m.sessions[session.ID] = clone(session)
	return nil
}

// Seed inserts a session directly, bypassing error injection.
func (m *SessionStore) Seed(session practice.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = clone(session)
}

// clone deep-copies a session so callers cannot mutate stored state.
func clone(s practice.Session) practice.Session {
	attempts := make([]practice.Attempt, len(s.Attempts))
	copy(attempts, s.Attempts)
	s.Attempts = attempts
	return s
}

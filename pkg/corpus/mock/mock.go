// Package mock provides test doubles for the corpus interfaces.
//
// Each mock records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. All mocks are safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	store := &mock.Store{GetSceneResult: &corpus.Scene{ID: "S01E01_001"}}
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("GetScene"); got != 1 {
//	    t.Errorf("expected 1 GetScene call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/soyeonk/replique/pkg/corpus"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [corpus.Store].
//
// When a *Result field is nil and the matching *Err field is nil, lookups
// return [corpus.ErrNotFound]; this mirrors an empty corpus.
type Store struct {
	mu    sync.Mutex
	calls []Call

	// GetSceneResult is returned by [Store.GetScene].
	GetSceneResult *corpus.Scene

	// GetSceneErr overrides the result of [Store.GetScene] when non-nil.
	GetSceneErr error

	// FindSceneResult is returned by [Store.FindSceneByCharacter].
	FindSceneResult *corpus.Scene

	// FindSceneErr overrides the result of [Store.FindSceneByCharacter] when
	// non-nil.
	FindSceneErr error

	// PutSceneErr is returned by [Store.PutScene] when non-nil.
	PutSceneErr error

	// PutScenes accumulates every scene passed to [Store.PutScene].
	PutScenes []corpus.Scene

	// ListScenesResult is returned by [Store.ListScenes]. When nil, an empty
	// non-nil slice is returned.
	ListScenesResult []corpus.Scene

	// ListScenesErr is returned by [Store.ListScenes] when non-nil.
	ListScenesErr error
}

var _ corpus.Store = (*Store)(nil)

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *Store) record(method string, args ...any) {
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

// GetScene records the call and returns GetSceneResult or GetSceneErr.
func (m *Store) GetScene(_ context.Context, id string) (*corpus.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetScene", id)
	if m.GetSceneErr != nil {
		return nil, m.GetSceneErr
	}
	if m.GetSceneResult == nil {
		return nil, corpus.ErrNotFound
	}
	return m.GetSceneResult, nil
}

// FindSceneByCharacter records the call and returns FindSceneResult or
// FindSceneErr.
func (m *Store) FindSceneByCharacter(_ context.Context, character, episodeID string) (*corpus.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("FindSceneByCharacter", character, episodeID)
	if m.FindSceneErr != nil {
		return nil, m.FindSceneErr
	}
	if m.FindSceneResult == nil {
		return nil, corpus.ErrNotFound
	}
	return m.FindSceneResult, nil
}

// PutScene records the call, appends to PutScenes, and returns PutSceneErr.
func (m *Store) PutScene(_ context.Context, scene corpus.Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("PutScene", scene)
	if m.PutSceneErr != nil {
		return m.PutSceneErr
	}
	m.PutScenes = append(m.PutScenes, scene)
	return nil
}

// ListScenes records the call and returns ListScenesResult or ListScenesErr.
func (m *Store) ListScenes(_ context.Context, episodeID string) ([]corpus.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListScenes", episodeID)
	if m.ListScenesErr != nil {
		return nil, m.ListScenesErr
	}
	if m.ListScenesResult == nil {
		return []corpus.Scene{}, nil
	}
	return m.ListScenesResult, nil
}

// SemanticIndex is a configurable test double for [corpus.SemanticIndex].
type SemanticIndex struct {
	mu    sync.Mutex
	calls []Call

	// IndexChunkErr is returned by [SemanticIndex.IndexChunk] when non-nil.
	IndexChunkErr error

	// Indexed accumulates every chunk passed to [SemanticIndex.IndexChunk].
	Indexed []corpus.Chunk

	// SearchResults is returned by [SemanticIndex.Search]. When nil, an empty
	// non-nil slice is returned.
	SearchResults []corpus.SearchResult

	// SearchErr is returned by [SemanticIndex.Search] when non-nil.
	SearchErr error
}

var _ corpus.SemanticIndex = (*SemanticIndex)(nil)

// Calls returns a copy of all recorded method invocations.
func (m *SemanticIndex) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *SemanticIndex) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// IndexChunk records the call, appends to Indexed, and returns IndexChunkErr.
func (m *SemanticIndex) IndexChunk(_ context.Context, chunk corpus.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "IndexChunk", Args: []any{chunk}})
	if m.IndexChunkErr != nil {
		return m.IndexChunkErr
	}
	m.Indexed = append(m.Indexed, chunk)
	return nil
}

// Search records the call and returns SearchResults or SearchErr.
func (m *SemanticIndex) Search(_ context.Context, embedding []float32, topK int, filter corpus.SearchFilter) ([]corpus.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Search", Args: []any{embedding, topK, filter}})
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if m.SearchResults == nil {
		return []corpus.SearchResult{}, nil
	}
	return m.SearchResults, nil
}

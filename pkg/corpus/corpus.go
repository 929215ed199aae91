// Package corpus defines the storage interfaces for the scene corpus: the
// parsed episode transcripts that practice sessions are built from.
//
// Two layers are exposed:
//
//   - [Store]: keyed scene lookup and character-based scene selection. This is
//     the layer the practice service depends on.
//   - [SemanticIndex]: a vector index over scene chunks for embedding-based
//     corpus search. Used by the conversational assistant, never by scoring.
//
// All interfaces are public so alternative backends (Postgres/pgvector,
// in-memory, …) can be supplied without depending on internals.
//
// Every implementation must be safe for concurrent use.
package corpus

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no scene matches.
var ErrNotFound = errors.New("corpus: scene not found")

// Scene is one parsed scene of an episode transcript. The raw Text is kept
// verbatim so line parsing stays reproducible; derived structures are never
// persisted.
type Scene struct {
	// ID uniquely identifies the scene, formatted "<episode>_<nnn>"
	// (e.g., "S01E01_003").
	ID string

	// EpisodeID identifies the episode, formatted "SxxEyy".
	EpisodeID string

	// EpisodeTitle is the episode's display title.
	EpisodeTitle string

	// Season and Episode are the numeric episode coordinates.
	Season  int
	Episode int

	// SceneNumber is the 1-based position of the scene within its episode.
	SceneNumber int

	// Location is the scene's setting (e.g., "Central Perk").
	Location string

	// Description is the rest of the scene header after the location.
	Description string

	// Characters lists the speakers appearing in the scene, sorted and
	// deduplicated.
	Characters []string

	// Text is the raw scene transcript including the header line.
	Text string
}

// Store is keyed access to the scene corpus.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// GetScene retrieves a scene by its unique ID.
	// Returns [ErrNotFound] when no such scene exists.
	GetScene(ctx context.Context, id string) (*Scene, error)

	// FindSceneByCharacter returns a scene in which character speaks,
	// preferring substantial scenes over fragments. episodeID narrows the
	// search to one episode; empty searches the whole corpus.
	// Returns [ErrNotFound] when the character speaks nowhere in scope.
	FindSceneByCharacter(ctx context.Context, character, episodeID string) (*Scene, error)

	// PutScene upserts a scene. A scene with the same ID is completely
	// replaced.
	PutScene(ctx context.Context, scene Scene) error

	// ListScenes returns all scenes of an episode ordered by SceneNumber.
	// Returns an empty (non-nil) slice when the episode is unknown.
	ListScenes(ctx context.Context, episodeID string) ([]Scene, error)
}

// Chunk is a segment of scene text prepared for semantic indexing. A Chunk
// carries its pre-computed embedding so the index never re-embeds on
// insertion.
type Chunk struct {
	// ID is the unique identifier for this chunk (e.g., "<scene>_c2").
	ID string

	// SceneID is the scene this chunk was cut from.
	SceneID string

	// EpisodeID denormalises the scene's episode for filtered search.
	EpisodeID string

	// Content is the chunk text.
	Content string

	// Embedding is the vector representation of Content. Dimension must match
	// the index configuration.
	Embedding []float32

	// Characters lists the speakers appearing in the chunk.
	Characters []string

	// IndexedAt is when this chunk was written to the index.
	IndexedAt time.Time
}

// SearchFilter narrows a semantic search to a subset of indexed chunks.
// All non-zero fields are applied as AND conditions.
type SearchFilter struct {
	// EpisodeID restricts results to a single episode.
	EpisodeID string

	// Character restricts results to chunks in which the character speaks.
	Character string
}

// SearchResult pairs a retrieved chunk with its vector-space distance from
// the query embedding. Lower Distance means higher semantic similarity.
type SearchResult struct {
	Chunk Chunk

	// Distance is the cosine distance to the query embedding.
	Distance float64
}

// SemanticIndex is a vector store over scene chunks.
//
// Callers produce embeddings before calling IndexChunk or Search.
// Implementations must be safe for concurrent use.
type SemanticIndex interface {
	// IndexChunk upserts a pre-embedded [Chunk] into the index.
	IndexChunk(ctx context.Context, chunk Chunk) error

	// Search finds the topK chunks whose embeddings are closest to the query
	// embedding, filtered by filter. Results are ordered by ascending
	// Distance. Returns an empty (non-nil) slice when nothing matches.
	Search(ctx context.Context, embedding []float32, topK int, filter SearchFilter) ([]SearchResult, error)
}

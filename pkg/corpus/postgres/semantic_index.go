package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/soyeonk/replique/pkg/corpus"
)

// SemanticIndexImpl is the chunk index backed by the scene_chunks table with
// a pgvector HNSW index for fast approximate nearest-neighbour search.
//
// Obtain one via [Store.Index] rather than constructing directly.
// All methods are safe for concurrent use.
type SemanticIndexImpl struct {
	pool *pgxpool.Pool
}

// IndexChunk implements [corpus.SemanticIndex]. It upserts a pre-embedded
// [corpus.Chunk] into the scene_chunks table. A chunk with the same ID is
// completely replaced.
func (s *SemanticIndexImpl) IndexChunk(ctx context.Context, chunk corpus.Chunk) error {
	characters, err := json.Marshal(emptySlice(chunk.Characters))
	if err != nil {
		return fmt.Errorf("chunk index: marshal characters: %w", err)
	}

	const q = `
		INSERT INTO scene_chunks
		    (id, scene_id, episode_id, content, embedding, characters, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
		    scene_id    = EXCLUDED.scene_id,
		    episode_id  = EXCLUDED.episode_id,
		    content     = EXCLUDED.content,
		    embedding   = EXCLUDED.embedding,
		    characters  = EXCLUDED.characters,
		    indexed_at  = now()`

	vec := pgvector.NewVector(chunk.Embedding)
	_, err = s.pool.Exec(ctx, q,
		chunk.ID,
		chunk.SceneID,
		chunk.EpisodeID,
		chunk.Content,
		vec,
		characters,
	)
	if err != nil {
		return fmt.Errorf("chunk index: index chunk %q: %w", chunk.ID, err)
	}
	return nil
}

// Search implements [corpus.SemanticIndex]. It finds the topK chunks whose
// embeddings are closest (cosine distance) to the supplied query embedding,
// optionally filtered by filter.
//
// Results are ordered by ascending cosine distance (most similar first).
func (s *SemanticIndexImpl) Search(ctx context.Context, embedding []float32, topK int, filter corpus.SearchFilter) ([]corpus.SearchResult, error) {
	queryVec := pgvector.NewVector(embedding)

	args := []any{queryVec} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.EpisodeID != "" {
		conditions = append(conditions, "episode_id = "+next(filter.EpisodeID))
	}
	if filter.Character != "" {
		conditions = append(conditions, `EXISTS (
			SELECT 1 FROM jsonb_array_elements_text(characters) AS c
			WHERE lower(c) = lower(`+next(filter.Character)+`))`)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT id, scene_id, episode_id, content, embedding, characters, indexed_at,
		       embedding <=> $1 AS distance
		FROM   scene_chunks
		%s
		ORDER  BY distance
		LIMIT  %s`, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("chunk index: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (corpus.SearchResult, error) {
		var (
			sr         corpus.SearchResult
			vec        pgvector.Vector
			characters []byte
		)
		if err := row.Scan(
			&sr.Chunk.ID,
			&sr.Chunk.SceneID,
			&sr.Chunk.EpisodeID,
			&sr.Chunk.Content,
			&vec,
			&characters,
			&sr.Chunk.IndexedAt,
			&sr.Distance,
		); err != nil {
			return corpus.SearchResult{}, err
		}
		sr.Chunk.Embedding = vec.Slice()
		if err := json.Unmarshal(characters, &sr.Chunk.Characters); err != nil {
			return corpus.SearchResult{}, fmt.Errorf("unmarshal characters: %w", err)
		}
		return sr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("chunk index: scan rows: %w", err)
	}
	if results == nil {
		results = []corpus.SearchResult{}
	}
	return results, nil
}

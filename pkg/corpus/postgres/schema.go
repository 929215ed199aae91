// Package postgres provides the PostgreSQL-backed scene corpus: keyed scene
// storage plus a pgvector chunk index for semantic corpus search.
//
// Both layers share a single [pgxpool.Pool]. The pgvector extension must be
// available in the target database; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//
//	scene, err := store.GetScene(ctx, "S01E01_003")
//
//	results, err := store.Index().Search(ctx, queryVec, 5, corpus.SearchFilter{})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlScenes = `
CREATE TABLE IF NOT EXISTS scenes (
    id            TEXT   PRIMARY KEY,
    episode_id    TEXT   NOT NULL,
    episode_title TEXT   NOT NULL DEFAULT '',
    season        INT    NOT NULL,
    episode       INT    NOT NULL,
    scene_number  INT    NOT NULL,
    location      TEXT   NOT NULL DEFAULT '',
    description   TEXT   NOT NULL DEFAULT '',
    characters    JSONB  NOT NULL DEFAULT '[]',
    text          TEXT   NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scenes_episode
    ON scenes (episode_id, scene_number);

CREATE INDEX IF NOT EXISTS idx_scenes_characters
    ON scenes USING GIN (characters);
`

// ddlChunks returns the chunk-index DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlChunks(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS scene_chunks (
    id          TEXT         PRIMARY KEY,
    scene_id    TEXT         NOT NULL,
    episode_id  TEXT         NOT NULL DEFAULT '',
    content     TEXT         NOT NULL,
    embedding   vector(%d),
    characters  JSONB        NOT NULL DEFAULT '[]',
    indexed_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scene_chunks_scene_id
    ON scene_chunks (scene_id);

CREATE INDEX IF NOT EXISTS idx_scene_chunks_embedding
    ON scene_chunks USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables and extensions exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
//
// embeddingDimensions must match the embedding model configured for the
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing it after the first migration requires a manual
// schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlScenes,
		ddlChunks(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("corpus migrate: %w", err)
		}
	}
	return nil
}

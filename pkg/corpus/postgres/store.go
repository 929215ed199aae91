package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/soyeonk/replique/pkg/corpus"
)

// Compile-time interface checks.
var (
	_ corpus.Store         = (*Store)(nil)
	_ corpus.SemanticIndex = (*SemanticIndexImpl)(nil)
)

// Store is the PostgreSQL-backed scene corpus. It holds a single
// [pgxpool.Pool] and exposes the chunk index as a sub-type via [Store.Index],
// keeping the practice-facing Store interface free of vector concerns.
//
// All operations are safe for concurrent use.
type Store struct {
	pool  *pgxpool.Pool
	index *SemanticIndexImpl
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce [corpus.Chunk.Embedding] values. Changing it after the
// first migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("corpus store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so vector columns can
	// be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("corpus store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("corpus store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("corpus store: migrate: %w", err)
	}

	return &Store{
		pool:  pool,
		index: &SemanticIndexImpl{pool: pool},
	}, nil
}

// Index returns the chunk index implementation which satisfies
// [corpus.SemanticIndex].
func (s *Store) Index() *SemanticIndexImpl { return s.index }

// Pool exposes the underlying connection pool so other stores (such as the
// practice session store) can share it.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const sceneColumns = `id, episode_id, episode_title, season, episode,
	scene_number, location, description, characters, text`

// GetScene implements [corpus.Store].
func (s *Store) GetScene(ctx context.Context, id string) (*corpus.Scene, error) {
	q := `SELECT ` + sceneColumns + ` FROM scenes WHERE id = $1`

	row := s.pool.QueryRow(ctx, q, id)
	scene, err := scanScene(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("corpus store: get scene %q: %w", id, corpus.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("corpus store: get scene %q: %w", id, err)
	}
	return scene, nil
}

// FindSceneByCharacter implements [corpus.Store]. Scenes with substantial text
// (more than 200 characters) are preferred so that practice does not land on
// a one-line fragment; ties resolve to corpus order.
func (s *Store) FindSceneByCharacter(ctx context.Context, character, episodeID string) (*corpus.Scene, error) {
	args := []any{character}
	q := `
		SELECT ` + sceneColumns + `
		FROM   scenes
		WHERE  EXISTS (
		           SELECT 1 FROM jsonb_array_elements_text(characters) AS c
		           WHERE lower(c) = lower($1)
		       )`
	if episodeID != "" {
		args = append(args, episodeID)
		q += `
		  AND  episode_id = $2`
	}
	q += `
		ORDER  BY (length(text) > 200) DESC, episode_id, scene_number
		LIMIT  1`

	row := s.pool.QueryRow(ctx, q, args...)
	scene, err := scanScene(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("corpus store: find scene for %q: %w", character, corpus.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("corpus store: find scene for %q: %w", character, err)
	}
	return scene, nil
}

// PutScene implements [corpus.Store].
func (s *Store) PutScene(ctx context.Context, scene corpus.Scene) error {
	characters, err := json.Marshal(emptySlice(scene.Characters))
	if err != nil {
		return fmt.Errorf("corpus store: marshal characters: %w", err)
	}

	const q = `
		INSERT INTO scenes
		    (id, episode_id, episode_title, season, episode,
		     scene_number, location, description, characters, text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
		    episode_id    = EXCLUDED.episode_id,
		    episode_title = EXCLUDED.episode_title,
		    season        = EXCLUDED.season,
		    episode       = EXCLUDED.episode,
		    scene_number  = EXCLUDED.scene_number,
		    location      = EXCLUDED.location,
		    description   = EXCLUDED.description,
		    characters    = EXCLUDED.characters,
		    text          = EXCLUDED.text`

	_, err = s.pool.Exec(ctx, q,
		scene.ID,
		scene.EpisodeID,
		scene.EpisodeTitle,
		scene.Season,
		scene.Episode,
		scene.SceneNumber,
		scene.Location,
		scene.Description,
		characters,
		scene.Text,
	)
	if err != nil {
		return fmt.Errorf("corpus store: put scene %q: %w", scene.ID, err)
	}
	return nil
}

// ListScenes implements [corpus.Store].
func (s *Store) ListScenes(ctx context.Context, episodeID string) ([]corpus.Scene, error) {
	q := `SELECT ` + sceneColumns + `
		FROM   scenes
		WHERE  episode_id = $1
		ORDER  BY scene_number`

	rows, err := s.pool.Query(ctx, q, episodeID)
	if err != nil {
		return nil, fmt.Errorf("corpus store: list scenes: %w", err)
	}

	scenes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (corpus.Scene, error) {
		scene, err := scanScene(row)
		if err != nil {
			return corpus.Scene{}, err
		}
		return *scene, nil
	})
	if err != nil {
		return nil, fmt.Errorf("corpus store: scan scenes: %w", err)
	}
	if scenes == nil {
		scenes = []corpus.Scene{}
	}
	return scenes, nil
}

// scanScene scans one scenes row in sceneColumns order.
func scanScene(row pgx.Row) (*corpus.Scene, error) {
	var (
		scene      corpus.Scene
		characters []byte
	)
	if err := row.Scan(
		&scene.ID,
		&scene.EpisodeID,
		&scene.EpisodeTitle,
		&scene.Season,
		&scene.Episode,
		&scene.SceneNumber,
		&scene.Location,
		&scene.Description,
		&characters,
		&scene.Text,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(characters, &scene.Characters); err != nil {
		return nil, fmt.Errorf("unmarshal characters: %w", err)
	}
	return &scene, nil
}

// emptySlice normalises a nil slice to an empty one so JSONB columns store
// '[]' instead of 'null'.
func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/soyeonk/replique/pkg/corpus"
	"github.com/soyeonk/replique/pkg/corpus/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if REPLIQUE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("REPLIQUE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("REPLIQUE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
// It calls t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	dropSchema(t, ctx, cleanPool)

	store, err := postgres.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

// mustPool opens a pgxpool with pgvector types registered.
func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// best-effort: pgvector may not be installed yet on a fresh DB
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return pool
}

// dropSchema removes all tables created by Migrate.
func dropSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS scene_chunks CASCADE",
		"DROP TABLE IF EXISTS scenes CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("dropSchema %q: %v", stmt, err)
		}
	}
}

func testScene(id string, sceneNumber int, characters []string, text string) corpus.Scene {
	return corpus.Scene{
		ID:           id,
		EpisodeID:    "S01E01",
		EpisodeTitle: "The One Where Monica Gets A Roommate",
		Season:       1,
		Episode:      1,
		SceneNumber:  sceneNumber,
		Location:     "Central Perk",
		Description:  "everyone is there.",
		Characters:   characters,
		Text:         text,
	}
}

func TestPutAndGetScene(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := testScene("S01E01_001", 1, []string{"Joey", "Monica"}, "Monica: There's nothing to tell!")
	if err := store.PutScene(ctx, want); err != nil {
		t.Fatalf("PutScene: %v", err)
	}

	got, err := store.GetScene(ctx, "S01E01_001")
	if err != nil {
		t.Fatalf("GetScene: %v", err)
	}
	if got.ID != want.ID || got.EpisodeID != want.EpisodeID || got.Text != want.Text {
		t.Errorf("GetScene = %+v, want %+v", got, want)
	}
	if len(got.Characters) != 2 || got.Characters[0] != "Joey" {
		t.Errorf("Characters = %v, want %v", got.Characters, want.Characters)
	}
}

func TestGetSceneNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetScene(context.Background(), "S09E99_001")
	if !errors.Is(err, corpus.ErrNotFound) {
		t.Errorf("GetScene error = %v, want ErrNotFound", err)
	}
}

func TestPutSceneUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	scene := testScene("S01E01_001", 1, []string{"Monica"}, "Monica: There's nothing to tell!")
	if err := store.PutScene(ctx, scene); err != nil {
		t.Fatalf("PutScene: %v", err)
	}

	scene.Text = "Monica: Okay, everybody relax."
	if err := store.PutScene(ctx, scene); err != nil {
		t.Fatalf("PutScene (update): %v", err)
	}

	got, err := store.GetScene(ctx, "S01E01_001")
	if err != nil {
		t.Fatalf("GetScene: %v", err)
	}
	if got.Text != scene.Text {
		t.Errorf("Text = %q, want %q", got.Text, scene.Text)
	}
}

func TestFindSceneByCharacter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	short := testScene("S01E01_001", 1, []string{"Ross"}, "Ross: Hi.")
	long := testScene("S01E01_002", 2, []string{"Ross", "Rachel"},
		"Ross: I just want to be married again.\n"+
			"Rachel: And I just want a million dollars!\n"+
			"Ross: Well, there you go.\n"+
			"Rachel: Oh God Monica hi! I just went to your building.\n"+
			"Ross: So you want to hang out some time?")
	for _, sc := range []corpus.Scene{short, long} {
		if err := store.PutScene(ctx, sc); err != nil {
			t.Fatalf("PutScene: %v", err)
		}
	}

	// The longer scene wins even though the short one comes first.
	got, err := store.FindSceneByCharacter(ctx, "ross", "")
	if err != nil {
		t.Fatalf("FindSceneByCharacter: %v", err)
	}
	if got.ID != long.ID {
		t.Errorf("scene ID = %q, want %q", got.ID, long.ID)
	}

	// Scoped to a different episode, nothing matches.
	if _, err := store.FindSceneByCharacter(ctx, "ross", "S02E01"); !errors.Is(err, corpus.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}

	if _, err := store.FindSceneByCharacter(ctx, "Gunther", ""); !errors.Is(err, corpus.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestListScenes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 3; i >= 1; i-- {
		sc := testScene(
			fmt.Sprintf("S01E01_%03d", i), i,
			[]string{"Monica"}, "Monica: Scene text.")
		if err := store.PutScene(ctx, sc); err != nil {
			t.Fatalf("PutScene: %v", err)
		}
	}

	scenes, err := store.ListScenes(ctx, "S01E01")
	if err != nil {
		t.Fatalf("ListScenes: %v", err)
	}
	if len(scenes) != 3 {
		t.Fatalf("len(scenes) = %d, want 3", len(scenes))
	}
	for i, sc := range scenes {
		if sc.SceneNumber != i+1 {
			t.Errorf("scenes[%d].SceneNumber = %d, want %d", i, sc.SceneNumber, i+1)
		}
	}

	empty, err := store.ListScenes(ctx, "S05E05")
	if err != nil {
		t.Fatalf("ListScenes (empty): %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListScenes (empty) = %v, want empty non-nil slice", empty)
	}
}

func TestSemanticIndexRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	index := store.Index()

	chunks := []corpus.Chunk{
		{
			ID:         "S01E01_001_c0",
			SceneID:    "S01E01_001",
			EpisodeID:  "S01E01",
			Content:    "Monica: There's nothing to tell!",
			Embedding:  []float32{1, 0, 0, 0},
			Characters: []string{"Monica"},
		},
		{
			ID:         "S01E01_002_c0",
			SceneID:    "S01E01_002",
			EpisodeID:  "S01E01",
			Content:    "Ross: I just want to be married again.",
			Embedding:  []float32{0, 1, 0, 0},
			Characters: []string{"Ross"},
		},
	}
	for _, c := range chunks {
		if err := index.IndexChunk(ctx, c); err != nil {
			t.Fatalf("IndexChunk: %v", err)
		}
	}

	results, err := index.Search(ctx, []float32{1, 0, 0, 0}, 5, corpus.SearchFilter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Chunk.ID != "S01E01_001_c0" {
		t.Errorf("closest chunk = %q, want S01E01_001_c0", results[0].Chunk.ID)
	}
	if results[0].Distance >= results[1].Distance {
		t.Errorf("results not ordered by distance: %v >= %v", results[0].Distance, results[1].Distance)
	}

	// Character filter narrows to Ross's chunk.
	rossOnly, err := index.Search(ctx, []float32{1, 0, 0, 0}, 5, corpus.SearchFilter{Character: "ross"})
	if err != nil {
		t.Fatalf("Search (filtered): %v", err)
	}
	if len(rossOnly) != 1 || rossOnly[0].Chunk.ID != "S01E01_002_c0" {
		t.Errorf("filtered results = %+v, want only Ross's chunk", rossOnly)
	}
}

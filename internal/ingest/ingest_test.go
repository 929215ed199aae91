package ingest_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/soyeonk/replique/internal/ingest"
	corpusmock "github.com/soyeonk/replique/pkg/corpus/mock"
	embmock "github.com/soyeonk/replique/pkg/provider/embeddings/mock"
)

func TestIngestEpisodeStoresScenes(t *testing.T) {
	t.Parallel()

	store := &corpusmock.Store{}
	g := ingest.New(store)

	res, err := g.IngestEpisode(context.Background(), "S01E01", 1, 1, strings.NewReader(sampleTranscript))
	if err != nil {
		t.Fatalf("IngestEpisode: %v", err)
	}
	if res.Scenes != 2 {
		t.Errorf("Scenes = %d, want 2", res.Scenes)
	}
	if res.Indexed != 0 {
		t.Errorf("Indexed = %d, want 0 without an index", res.Indexed)
	}
	if len(store.PutScenes) != 2 {
		t.Fatalf("stored = %d, want 2", len(store.PutScenes))
	}
	if store.PutScenes[0].ID != "S01E01_001" || store.PutScenes[1].ID != "S01E01_002" {
		t.Errorf("stored IDs = %q, %q", store.PutScenes[0].ID, store.PutScenes[1].ID)
	}
}

func TestIngestEpisodeIndexesScenes(t *testing.T) {
	t.Parallel()

	store := &corpusmock.Store{}
	index := &corpusmock.SemanticIndex{}
	embedder := &embmock.Provider{EmbedResult: []float32{0.5, 0.5, 0.5}}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g := ingest.New(store,
		ingest.WithSemanticIndex(embedder, index),
		ingest.WithConcurrency(2),
		ingest.WithClock(func() time.Time { return fixed }),
	)

	res, err := g.IngestEpisode(context.Background(), "S01E01", 1, 1, strings.NewReader(sampleTranscript))
	if err != nil {
		t.Fatalf("IngestEpisode: %v", err)
	}
	if res.Indexed != 2 {
		t.Errorf("Indexed = %d, want 2", res.Indexed)
	}
	if len(index.Indexed) != 2 {
		t.Fatalf("indexed chunks = %d, want 2", len(index.Indexed))
	}
	for _, chunk := range index.Indexed {
		if chunk.EpisodeID != "S01E01" {
			t.Errorf("chunk EpisodeID = %q", chunk.EpisodeID)
		}
		if len(chunk.Embedding) != 3 {
			t.Errorf("chunk embedding dims = %d, want 3", len(chunk.Embedding))
		}
		if !chunk.IndexedAt.Equal(fixed) {
			t.Errorf("IndexedAt = %v, want %v", chunk.IndexedAt, fixed)
		}
	}
}

func TestIngestEpisodeEmbeddingFailure(t *testing.T) {
	t.Parallel()

	store := &corpusmock.Store{}
	index := &corpusmock.SemanticIndex{}
	embedder := &embmock.Provider{EmbedErr: errors.New("quota exceeded")}
	g := ingest.New(store, ingest.WithSemanticIndex(embedder, index))

	_, err := g.IngestEpisode(context.Background(), "S01E01", 1, 1, strings.NewReader(sampleTranscript))
	if err == nil {
		t.Fatal("expected error from failed embedding")
	}
	// Scenes are stored before indexing, so the keyed corpus is still complete.
	if len(store.PutScenes) != 2 {
		t.Errorf("stored = %d, want 2 despite index failure", len(store.PutScenes))
	}
}

func TestIngestEpisodeEmptyTranscript(t *testing.T) {
	t.Parallel()

	g := ingest.New(&corpusmock.Store{})
	if _, err := g.IngestEpisode(context.Background(), "S01E01", 1, 1, strings.NewReader("no markers")); err == nil {
		t.Fatal("expected error for transcript without scenes")
	}
}

func TestIngestEpisodeStoreFailure(t *testing.T) {
	t.Parallel()

	store := &corpusmock.Store{PutSceneErr: errors.New("connection refused")}
	g := ingest.New(store)

	if _, err := g.IngestEpisode(context.Background(), "S01E01", 1, 1, strings.NewReader(sampleTranscript)); err == nil {
		t.Fatal("expected store error to propagate")
	}
}

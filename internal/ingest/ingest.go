package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soyeonk/replique/pkg/corpus"
	"github.com/soyeonk/replique/pkg/provider/embeddings"
)

// DefaultConcurrency bounds how many scenes are embedded at once.
const DefaultConcurrency = 4

// Result summarises one episode ingestion run.
type Result struct {
	EpisodeID string

	// Scenes is how many scenes were parsed and stored.
	Scenes int

	// Indexed is how many scenes were embedded and written to the semantic
	// index. Zero when the ingestor has no index wired.
	Indexed int
}

// Ingestor writes parsed episodes into the corpus store and, when an embedder
// and index are configured, into the semantic index.
type Ingestor struct {
	store       corpus.Store
	index       corpus.SemanticIndex
	embedder    embeddings.Provider
	concurrency int
	log         *slog.Logger
	now         func() time.Time
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithSemanticIndex enables embedding and indexing of ingested scenes.
func WithSemanticIndex(embedder embeddings.Provider, index corpus.SemanticIndex) Option {
	return func(g *Ingestor) {
		g.embedder = embedder
		g.index = index
	}
}

// WithConcurrency bounds parallel embedding calls. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(g *Ingestor) {
		if n >= 1 {
			g.concurrency = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(g *Ingestor) { g.log = log }
}

// WithClock overrides the time source for chunk timestamps. For tests.
func WithClock(now func() time.Time) Option {
	return func(g *Ingestor) { g.now = now }
}

// New creates an Ingestor over the given scene store.
func New(store corpus.Store, opts ...Option) *Ingestor {
	g := &Ingestor{
		store:       store,
		concurrency: DefaultConcurrency,
		log:         slog.Default(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// IngestFile ingests one transcript file named after its episode (SxxEyy.txt).
func (g *Ingestor) IngestFile(ctx context.Context, path string) (*Result, error) {
	episodeID, season, episode, err := EpisodeIDFromFilename(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()
	return g.IngestEpisode(ctx, episodeID, season, episode, f)
}

// IngestEpisode parses the transcript, upserts every scene into the store,
// and embeds and indexes each scene when semantic indexing is configured.
// Scenes are stored before indexing so a failed embedding run never leaves
// the keyed corpus incomplete.
func (g *Ingestor) IngestEpisode(ctx context.Context, episodeID string, season, episode int, r io.Reader) (*Result, error) {
	scenes, err := ParseEpisode(episodeID, season, episode, r)
	if err != nil {
		return nil, err
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("ingest: no scenes found in %s", episodeID)
	}

	for _, scene := range scenes {
		if err := g.store.PutScene(ctx, scene); err != nil {
			return nil, fmt.Errorf("ingest: store scene %s: %w", scene.ID, err)
		}
	}
	g.log.Info("scenes stored", "episode", episodeID, "scenes", len(scenes))

	res := &Result{EpisodeID: episodeID, Scenes: len(scenes)}
	if g.embedder == nil || g.index == nil {
		return res, nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for _, scene := range scenes {
		eg.Go(func() error {
			emb, err := g.embedder.Embed(ctx, scene.Text)
			if err != nil {
				return fmt.Errorf("ingest: embed scene %s: %w", scene.ID, err)
			}
			chunk := corpus.Chunk{
				ID:         scene.ID,
				SceneID:    scene.ID,
				EpisodeID:  scene.EpisodeID,
				Content:    scene.Text,
				Embedding:  emb,
				Characters: scene.Characters,
				IndexedAt:  g.now().UTC(),
			}
			if err := g.index.IndexChunk(ctx, chunk); err != nil {
				return fmt.Errorf("ingest: index scene %s: %w", scene.ID, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	res.Indexed = len(scenes)
	g.log.Info("scenes indexed", "episode", episodeID, "indexed", res.Indexed)
	return res, nil
}

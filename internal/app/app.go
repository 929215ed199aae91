// Package app wires all Replique subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Serve runs the optional diagnostics listener, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSceneStore, WithSessionStore, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soyeonk/replique/internal/assistant"
	"github.com/soyeonk/replique/internal/config"
	"github.com/soyeonk/replique/internal/health"
	"github.com/soyeonk/replique/internal/ingest"
	"github.com/soyeonk/replique/internal/practice"
	practicepg "github.com/soyeonk/replique/internal/practice/postgres"
	"github.com/soyeonk/replique/internal/similarity"
	"github.com/soyeonk/replique/pkg/corpus"
	corpuspg "github.com/soyeonk/replique/pkg/corpus/postgres"
	"github.com/soyeonk/replique/pkg/provider/embeddings"
	"github.com/soyeonk/replique/pkg/provider/llm"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes for the practice backend.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems. The practice service sits behind an atomic pointer so a
	// config reload can swap in a rebuilt one under live callers.
	scenes    corpus.Store
	index     corpus.SemanticIndex
	sessions  practice.SessionStore
	service   atomic.Pointer[practice.Service]
	assistant *assistant.Assistant
	ingestor  *ingest.Ingestor

	// logLevel backs the process logger so reloads can adjust verbosity.
	logLevel *slog.LevelVar

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSceneStore injects a scene store instead of connecting to PostgreSQL.
func WithSceneStore(s corpus.Store) Option {
	return func(a *App) { a.scenes = s }
}

// WithSemanticIndex injects a semantic index instead of the pgvector one.
func WithSemanticIndex(i corpus.SemanticIndex) Option {
	return func(a *App) { a.index = i }
}

// WithSessionStore injects a session store instead of creating one from config.
func WithSessionStore(s practice.SessionStore) Option {
	return func(a *App) { a.sessions = s }
}

// WithLogLevelVar shares the level variable driving the process logger so
// config reloads can change verbosity.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initCorpus(ctx); err != nil {
		return nil, fmt.Errorf("app: init corpus: %w", err)
	}

	a.service.Store(a.buildPracticeService(cfg.Scoring, cfg.Practice))

	if providers.LLM != nil {
		var aopts []assistant.Option
		if providers.Embeddings != nil && a.index != nil {
			aopts = append(aopts, assistant.WithSemanticSearch(providers.Embeddings, a.index))
		}
		a.assistant = assistant.New(providers.LLM, a.scenes, aopts...)
	}

	var iopts []ingest.Option
	if providers.Embeddings != nil && a.index != nil {
		iopts = append(iopts, ingest.WithSemanticIndex(providers.Embeddings, a.index))
	}
	a.ingestor = ingest.New(a.scenes, iopts...)

	return a, nil
}

// initCorpus connects the PostgreSQL scene and session stores, or accepts the
// injected replacements.
func (a *App) initCorpus(ctx context.Context) error {
	if a.scenes != nil && a.sessions != nil {
		return nil // both injected
	}

	dsn := a.cfg.Corpus.PostgresDSN
	if dsn == "" {
		return fmt.Errorf("corpus.postgres_dsn is required when stores are not injected")
	}

	dims := a.cfg.Corpus.EmbeddingDimensions
	if dims == 0 {
		dims = 1536 // matches OpenAI text-embedding-3-small
	}

	store, err := corpuspg.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}

	if a.scenes == nil {
		a.scenes = store
		if a.index == nil {
			a.index = store.Index()
		}
	}
	if a.sessions == nil {
		sessions := practicepg.NewStore(store.Pool())
		if err := sessions.Migrate(ctx); err != nil {
			store.Close()
			return err
		}
		a.sessions = sessions
	}

	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// buildPracticeService constructs the scorer and session service from the
// given tunables. Zero values fall through to the engine defaults.
func (a *App) buildPracticeService(scoring config.ScoringConfig, prac config.PracticeConfig) *practice.Service {
	var eopts []similarity.Option
	if a.providers.Embeddings != nil {
		eopts = append(eopts, similarity.WithEmbeddings(a.providers.Embeddings))
	}
	if scoring.CorrectThreshold > 0 {
		eopts = append(eopts, similarity.WithCorrectThreshold(scoring.CorrectThreshold))
	}
	if scoring.EmbeddingTrigger > 0 {
		eopts = append(eopts, similarity.WithEmbeddingTrigger(scoring.EmbeddingTrigger))
	}
	if scoring.ShortPhraseLimit > 0 {
		eopts = append(eopts, similarity.WithShortPhraseLimit(scoring.ShortPhraseLimit))
	}
	scorer := similarity.New(eopts...)

	var sopts []practice.ServiceOption
	if prac.ContextWindow > 0 {
		sopts = append(sopts, practice.WithContextWindow(prac.ContextWindow))
	}
	return practice.NewService(a.scenes, a.sessions, scorer, sopts...)
}

// Practice returns the current practice service. Callers must not cache the
// result across turns; a config reload may swap it.
func (a *App) Practice() *practice.Service { return a.service.Load() }

// Assistant returns the conversational assistant, or nil when no LLM provider
// is configured.
func (a *App) Assistant() *assistant.Assistant { return a.assistant }

// Ingestor returns the transcript ingestor.
func (a *App) Ingestor() *ingest.Ingestor { return a.ingestor }

// Reconfigure applies a config change detected by the watcher. Log level,
// scoring, and practice tunables take effect immediately; anything else is
// reported as needing a restart.
func (a *App) Reconfigure(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level updated", "level", d.NewLogLevel)
	}

	if d.ScoringChanged || d.PracticeChanged {
		a.cfg = new
		a.service.Store(a.buildPracticeService(new.Scoring, new.Practice))
		slog.Info("scoring and practice tunables reloaded")
	}

	if d.RestartRequired {
		slog.Warn("provider or corpus settings changed; restart to apply")
	}
}

// Serve runs the diagnostics HTTP listener (/metrics, /healthz, /readyz) and
// blocks until ctx is cancelled. It returns immediately when no metrics
// address is configured.
func (a *App) Serve(ctx context.Context) error {
	addr := a.cfg.Server.MetricsAddr
	if addr == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	h := health.New(health.Checker{
		Name:  "sessions",
		Check: a.pingSessions,
	})
	h.Register(mux)

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("diagnostics listening", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: diagnostics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

// pingSessions verifies the session store answers queries. A not-found result
// still proves the round trip works.
func (a *App) pingSessions(ctx context.Context) error {
	if a.sessions == nil {
		return fmt.Errorf("session store not initialised")
	}
	if _, err := a.sessions.Get(ctx, "readyz-probe"); err != nil && !errors.Is(err, practice.ErrSessionNotFound) {
		return err
	}
	return nil
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// slogLevel maps a config log level onto slog's scale.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

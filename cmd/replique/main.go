// Command replique is the entry point for the Replique conversation practice
// backend. It runs an interactive practice shell by default; with the
// "ingest" subcommand it loads episode transcripts into the corpus instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/soyeonk/replique/internal/app"
	"github.com/soyeonk/replique/internal/config"
	"github.com/soyeonk/replique/internal/observe"
	"github.com/soyeonk/replique/internal/resilience"
	"github.com/soyeonk/replique/pkg/provider/embeddings"
	ollamaembed "github.com/soyeonk/replique/pkg/provider/embeddings/ollama"
	oaembed "github.com/soyeonk/replique/pkg/provider/embeddings/openai"
	"github.com/soyeonk/replique/pkg/provider/llm"
	"github.com/soyeonk/replique/pkg/provider/llm/anyllm"
	oallm "github.com/soyeonk/replique/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload tunables when the config file changes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "replique: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "replique: %v\n", err)
		}
		return 1
	}

	logger, levelVar := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("replique starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "replique"})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownMetrics(flushCtx)
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogLevelVar(levelVar))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// Ingest mode: load the given transcript files and exit.
	if args := flag.Args(); len(args) > 0 && args[0] == "ingest" {
		return runIngest(ctx, application, args[1:])
	}

	if *watch {
		w, err := config.NewWatcher(*configPath, application.Reconfigure)
		if err != nil {
			slog.Warn("config watcher unavailable", "err", err)
		} else {
			defer w.Stop()
		}
	}

	// Diagnostics listener in the background.
	go func() {
		if err := application.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("diagnostics server error", "err", err)
		}
	}()

	code := runShell(ctx, application)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// runIngest loads each transcript file into the corpus.
func runIngest(ctx context.Context, application *app.App, paths []string) int {
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "replique: ingest requires at least one transcript file (SxxEyy.txt)")
		return 2
	}

	failed := 0
	for _, path := range paths {
		res, err := application.Ingestor().IngestFile(ctx, path)
		if err != nil {
			slog.Error("ingest failed", "path", path, "err", err)
			failed++
			continue
		}
		fmt.Printf("%s: %d scenes stored, %d indexed\n", res.EpisodeID, res.Scenes, res.Indexed)
	}
	if failed > 0 {
		return 1
	}
	return 0
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// openai speaks the official SDK directly so organization headers and
	// OpenAI-compatible gateways work.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org, ok := entry.Options["organization"].(string); ok && org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining hosted providers share one pattern through anyllm:
	// optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})
}

// buildProviders instantiates the providers named in cfg using the registry.
// Entries with fallbacks are wrapped in a circuit-breaking failover group.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		if fbs := cfg.Providers.LLM.Fallbacks; len(fbs) > 0 {
			group := resilience.NewLLMFallback(p, name, resilience.FallbackConfig{})
			for _, entry := range fbs {
				fb, err := reg.CreateLLM(entry)
				if err != nil {
					return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
				}
				group.AddFallback(entry.Name, fb)
			}
			ps.LLM = group
		}
		slog.Info("provider created", "kind", "llm", "name", name,
			"fallbacks", len(cfg.Providers.LLM.Fallbacks))
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = p
		if fbs := cfg.Providers.Embeddings.Fallbacks; len(fbs) > 0 {
			group := resilience.NewEmbeddingsFallback(p, name, resilience.FallbackConfig{})
			for _, entry := range fbs {
				fb, err := reg.CreateEmbeddings(entry)
				if err != nil {
					return nil, fmt.Errorf("create embeddings fallback %q: %w", entry.Name, err)
				}
				group.AddFallback(entry.Name, fb)
			}
			ps.Embeddings = group
		}
		slog.Info("provider created", "kind", "embeddings", "name", name,
			"fallbacks", len(cfg.Providers.Embeddings.Fallbacks))
	}

	return ps, nil
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Replique startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	fmt.Printf("║  Corpus          : %-19s ║\n", corpusLabel(cfg.Corpus.PostgresDSN))
	metricsState := "(disabled)"
	if cfg.Server.MetricsAddr != "" {
		metricsState = cfg.Server.MetricsAddr
	}
	fmt.Printf("║  Metrics         : %-19s ║\n", metricsState)
	fmt.Println("╚═══════════════════════════════════════╝")
}

// corpusLabel describes the corpus backend for the summary box. An empty DSN
// means App.New will refuse to start, so it reads as unconfigured rather than
// suggesting an in-memory mode that does not exist.
func corpusLabel(dsn string) string {
	if dsn == "" {
		return "(not configured)"
	}
	return "postgres"
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	switch level {
	case config.LogDebug:
		lvl.Set(slog.LevelDebug)
	case config.LogWarn:
		lvl.Set(slog.LevelWarn)
	case config.LogError:
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

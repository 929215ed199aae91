package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Scoring thresholds are fractions of a perfect match.
	if t := cfg.Scoring.CorrectThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("scoring.correct_threshold %.2f is out of range [0, 1]", t))
	}
	if t := cfg.Scoring.EmbeddingTrigger; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("scoring.embedding_trigger %.2f is out of range [0, 1]", t))
	}
	if cfg.Scoring.ShortPhraseLimit < 0 {
		errs = append(errs, fmt.Errorf("scoring.short_phrase_limit %d must not be negative", cfg.Scoring.ShortPhraseLimit))
	}
	if cfg.Practice.ContextWindow < 0 {
		errs = append(errs, fmt.Errorf("practice.context_window %d must not be negative", cfg.Practice.ContextWindow))
	}
	if cfg.Corpus.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("corpus.embedding_dimensions %d must not be negative", cfg.Corpus.EmbeddingDimensions))
	}

	// Warn about unknown provider names, including fallback chains.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	for _, fb := range cfg.Providers.LLM.Fallbacks {
		validateProviderName("llm", fb.Name)
		if fb.Name == "" {
			errs = append(errs, errors.New("providers.llm.fallbacks entry is missing a name"))
		}
	}
	for _, fb := range cfg.Providers.Embeddings.Fallbacks {
		validateProviderName("embeddings", fb.Name)
		if fb.Name == "" {
			errs = append(errs, errors.New("providers.embeddings.fallbacks entry is missing a name"))
		}
	}

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; the conversational assistant will be unavailable")
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("no embeddings provider configured; scoring will skip the semantic tier and episode search is disabled")
	}

	// Embeddings ↔ corpus dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Corpus.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but corpus.embedding_dimensions is not set; defaulting to 1536")
	}

	// Corpus availability
	if cfg.Corpus.PostgresDSN == "" {
		slog.Warn("corpus.postgres_dsn is empty; scenes and sessions will be kept in memory and lost on exit")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

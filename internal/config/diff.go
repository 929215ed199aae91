package config

import "reflect"

// ConfigDiff describes what changed between two configs. Log level, scoring,
// and practice settings can be applied to a running process; provider and
// corpus changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ScoringChanged is true when any similarity tunable changed.
	ScoringChanged bool
	NewScoring     ScoringConfig

	// PracticeChanged is true when the practice session tunables changed.
	PracticeChanged bool
	NewPractice     PracticeConfig

	// RestartRequired is true when providers or corpus settings changed;
	// those are only read at startup.
	RestartRequired bool
}

// HotReloadable reports whether the diff carries any change that can be
// applied without a restart.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.ScoringChanged || d.PracticeChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Scoring != new.Scoring {
		d.ScoringChanged = true
		d.NewScoring = new.Scoring
	}

	if old.Practice != new.Practice {
		d.PracticeChanged = true
		d.NewPractice = new.Practice
	}

	if !providerEntryEqual(old.Providers.LLM, new.Providers.LLM) ||
		!providerEntryEqual(old.Providers.Embeddings, new.Providers.Embeddings) ||
		old.Corpus != new.Corpus ||
		old.Server.MetricsAddr != new.Server.MetricsAddr {
		d.RestartRequired = true
	}

	return d
}

// providerEntryEqual compares entries structurally. Options values can be
// nested maps and entries can carry fallback chains, so this goes through
// reflect.DeepEqual.
func providerEntryEqual(a, b ProviderEntry) bool {
	return reflect.DeepEqual(a, b)
}

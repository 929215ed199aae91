// Package observe provides application-wide observability primitives for
// Replique: OpenTelemetry metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter is installed via [InitProvider] so metrics can be scraped from the
// standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Replique metrics.
const meterName = "github.com/soyeonk/replique"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ScoreDuration tracks end-to-end attempt scoring latency, including the
	// embedding tier when it runs.
	ScoreDuration metric.Float64Histogram

	// EmbedDuration tracks embedding provider latency.
	EmbedDuration metric.Float64Histogram

	// LLMDuration tracks LLM completion latency for the assistant.
	LLMDuration metric.Float64Histogram

	// --- Counters ---

	// Attempts counts scored practice attempts. Use with attribute:
	//   attribute.String("correct", "true"|"false")
	Attempts metric.Int64Counter

	// SessionsStarted counts practice sessions created.
	SessionsStarted metric.Int64Counter

	// SessionsCompleted counts practice sessions that reached their last turn.
	SessionsCompleted metric.Int64Counter

	// EmbeddingFallbacks counts attempts where the embedding tier failed and
	// scoring fell back to lexical similarity.
	EmbeddingFallbacks metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of practice sessions currently active.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Scoring is
// usually sub-millisecond but the embedding and LLM tiers reach into seconds.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ScoreDuration, err = m.Float64Histogram("replique.score.duration",
		metric.WithDescription("Latency of attempt scoring."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbedDuration, err = m.Float64Histogram("replique.embed.duration",
		metric.WithDescription("Latency of embedding provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("replique.llm.duration",
		metric.WithDescription("Latency of LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Attempts, err = m.Int64Counter("replique.practice.attempts",
		metric.WithDescription("Total scored practice attempts by correctness."),
	); err != nil {
		return nil, err
	}
	if met.SessionsStarted, err = m.Int64Counter("replique.practice.sessions_started",
		metric.WithDescription("Total practice sessions created."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("replique.practice.sessions_completed",
		metric.WithDescription("Total practice sessions completed."),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingFallbacks, err = m.Int64Counter("replique.score.embedding_fallbacks",
		metric.WithDescription("Total scoring attempts that fell back to lexical similarity."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("replique.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("replique.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("replique.practice.active_sessions",
		metric.WithDescription("Number of practice sessions currently active."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAttempt records one scored attempt with its correctness attribute.
func (m *Metrics) RecordAttempt(ctx context.Context, correct bool) {
	status := "false"
	if correct {
		status = "true"
	}
	m.Attempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("correct", status)),
	)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

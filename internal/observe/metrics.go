// Package observe provides application-wide observability primitives for
// ConvI: OpenTelemetry metrics, tracing helpers, structured logging, and the
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all ConvI metrics.
const meterName = "github.com/conviai/convi"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// NormalizeDuration tracks conversation normalization latency. Use with
	// attribute.String("path", "speech"|"text").
	NormalizeDuration metric.Float64Histogram

	// RetrievalDuration tracks knowledge retrieval latency. Use with
	// attribute.String("domain", ...).
	RetrievalDuration metric.Float64Histogram

	// AnalysisDuration tracks LLM analysis latency.
	AnalysisDuration metric.Float64Histogram

	// SpeechPipelineDuration tracks the external speech pipeline call latency.
	SpeechPipelineDuration metric.Float64Histogram

	// --- Counters ---

	// TurnsNormalized counts emitted conversation turns. Use with
	// attribute.String("path", ...).
	TurnsNormalized metric.Int64Counter

	// FallbackLines counts text-path lines classified by the alternation
	// fallback rather than an explicit label. A high ratio of fallback lines
	// to turns signals unlabeled transcripts whose role assignment is a
	// heuristic approximation.
	FallbackLines metric.Int64Counter

	// Conversations counts analyzed conversations. Use with attributes:
	//   attribute.String("path", ...), attribute.String("domain", ...)
	Conversations metric.Int64Counter

	// ProviderErrors counts provider/backend errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The upper
// buckets are sized for LLM and speech pipeline calls, which routinely take
// tens of seconds for long recordings.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.NormalizeDuration, err = m.Float64Histogram("convi.normalize.duration",
		metric.WithDescription("Latency of conversation normalization by ingest path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("convi.retrieval.duration",
		metric.WithDescription("Latency of knowledge retrieval by backend."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("convi.analysis.duration",
		metric.WithDescription("Latency of LLM conversation analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechPipelineDuration, err = m.Float64Histogram("convi.speech_pipeline.duration",
		metric.WithDescription("Latency of external speech pipeline transcription calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TurnsNormalized, err = m.Int64Counter("convi.turns.normalized",
		metric.WithDescription("Total conversation turns emitted by ingest path."),
	); err != nil {
		return nil, err
	}
	if met.FallbackLines, err = m.Int64Counter("convi.text.fallback_lines",
		metric.WithDescription("Text-path lines classified by the alternation fallback heuristic."),
	); err != nil {
		return nil, err
	}
	if met.Conversations, err = m.Int64Counter("convi.conversations",
		metric.WithDescription("Total analyzed conversations by path and domain."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("convi.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("convi.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordProviderError increments the provider error counter with the
// standard attribute set.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

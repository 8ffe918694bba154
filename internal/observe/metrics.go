// Package observe provides observability primitives for Glimpse:
// OpenTelemetry metrics for the dictation pipeline plus tracing helpers
// that tie spans to structured logs.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed
// over a Prometheus bridge configured by [InitProvider]. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Glimpse metrics.
const meterName = "github.com/LegendarySpy/Glimpse-sub000"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecordingDuration tracks how long each recording lasted.
	RecordingDuration metric.Float64Histogram

	// TranscribeDuration tracks transcription latency by backend.
	TranscribeDuration metric.Float64Histogram

	// CleanupDuration tracks LLM cleanup and edit latency.
	CleanupDuration metric.Float64Histogram

	// PasteDuration tracks clipboard delivery latency.
	PasteDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end stop-to-paste latency.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// Dictations counts finished dictations. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("status", ...)
	Dictations metric.Int64Counter

	// TranscriberErrors counts transcription failures. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("kind", ...)
	TranscriberErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings tracks recordings currently in flight (0 or 1 in
	// practice, but the instrument keeps the invariant visible).
	ActiveRecordings metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// dictation latencies: paste is milliseconds, cloud round trips can take
// tens of seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.RecordingDuration, "glimpse.recording.duration", "Length of each finished recording."},
		{&met.TranscribeDuration, "glimpse.transcribe.duration", "Latency of transcription by backend."},
		{&met.CleanupDuration, "glimpse.cleanup.duration", "Latency of LLM cleanup and edit requests."},
		{&met.PasteDuration, "glimpse.paste.duration", "Latency of clipboard delivery."},
		{&met.PipelineDuration, "glimpse.pipeline.duration", "End-to-end latency from stop to paste."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.Dictations, err = m.Int64Counter("glimpse.dictations",
		metric.WithDescription("Total finished dictations by mode and status."),
	); err != nil {
		return nil, err
	}
	if met.TranscriberErrors, err = m.Int64Counter("glimpse.transcriber.errors",
		metric.WithDescription("Total transcription failures by backend and kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveRecordings, err = m.Int64UpDownCounter("glimpse.active_recordings",
		metric.WithDescription("Recordings currently in flight."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen
// with the global provider).
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

// RecordDictation records a finished dictation with the standard attribute
// set. mode is "local" or "cloud"; status is "success", "error" or
// "cancelled".
func (m *Metrics) RecordDictation(ctx context.Context, mode, status string) {
	m.Dictations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", status),
		),
	)
}

// RecordTranscriberError records a transcription failure by backend and
// error kind.
func (m *Metrics) RecordTranscriberError(ctx context.Context, backend, kind string) {
	m.TranscriberErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("kind", kind),
		),
	)
}

// RecordStage records one stage latency with its backend attribute.
func RecordStage(ctx context.Context, hist metric.Float64Histogram, seconds float64, backend string) {
	hist.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}

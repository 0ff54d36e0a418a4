// Package observe provides application-wide observability primitives for
// voicecheck: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all voicecheck metrics.
const meterName = "github.com/MrWong99/voicecheck"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// FrameDuration tracks the time the worker spends on one frame
	// (metrics, classification, debounce). Use with attribute:
	//   attribute.String("mode", ...)
	FrameDuration metric.Float64Histogram

	// FileAnalysisDuration tracks the wall time of a batch file report.
	FileAnalysisDuration metric.Float64Histogram

	// --- Counters ---

	// FramesProcessed counts frames taken off the queue. Use with attribute:
	//   attribute.String("result", "ok"|"skipped"|"error")
	FramesProcessed metric.Int64Counter

	// FramesDropped counts frames lost to queue overflow.
	FramesDropped metric.Int64Counter

	// StatusChanges counts committed status transitions. Use with attribute:
	//   attribute.String("status", ...)
	StatusChanges metric.Int64Counter

	// WorkerFailures counts unexpected failures inside the worker loop. Use
	// with attribute:
	//   attribute.String("kind", "error"|"panic")
	WorkerFailures metric.Int64Counter

	// SourceStalls counts periods in which the frame source delivered nothing
	// for longer than the stall timeout.
	SourceStalls metric.Int64Counter

	// --- Gauges ---

	// Level reports the latest meter value (dBFS, or int RMS in rms mode).
	Level metric.Float64Gauge

	// ActiveAnalyzers tracks the number of running analyzers.
	ActiveAnalyzers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// frameBuckets defines histogram bucket boundaries (in seconds) for per-frame
// work, which has to fit well inside one frame period (~21ms at 1024/48kHz).
var frameBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.FrameDuration, err = m.Float64Histogram("voicecheck.frame.duration",
		metric.WithDescription("Time spent analysing one audio frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FileAnalysisDuration, err = m.Float64Histogram("voicecheck.file_analysis.duration",
		metric.WithDescription("Wall time of a batch file analysis."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("voicecheck.frames.processed",
		metric.WithDescription("Total frames taken off the queue by result."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voicecheck.frames.dropped",
		metric.WithDescription("Total frames lost to queue overflow."),
	); err != nil {
		return nil, err
	}
	if met.StatusChanges, err = m.Int64Counter("voicecheck.status.changes",
		metric.WithDescription("Total committed status transitions by new status."),
	); err != nil {
		return nil, err
	}
	if met.WorkerFailures, err = m.Int64Counter("voicecheck.worker.failures",
		metric.WithDescription("Total unexpected failures inside the analysis worker by kind."),
	); err != nil {
		return nil, err
	}
	if met.SourceStalls, err = m.Int64Counter("voicecheck.source.stalls",
		metric.WithDescription("Total periods in which the frame source delivered nothing."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.Level, err = m.Float64Gauge("voicecheck.level",
		metric.WithDescription("Latest meter value (dBFS, or int RMS in rms mode)."),
	); err != nil {
		return nil, err
	}
	if met.ActiveAnalyzers, err = m.Int64UpDownCounter("voicecheck.active_analyzers",
		metric.WithDescription("Number of running analyzers."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicecheck.http.request.duration",
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

// RecordFrame records one processed frame with its outcome and latency.
func (m *Metrics) RecordFrame(ctx context.Context, mode, result string, seconds float64) {
	m.FramesProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	if result == "ok" {
		m.FrameDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("mode", mode)))
	}
}

// RecordStatusChange records a committed status transition.
func (m *Metrics) RecordStatusChange(ctx context.Context, status string) {
	m.StatusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordWorkerFailure records an unexpected worker failure of the given kind.
func (m *Metrics) RecordWorkerFailure(ctx context.Context, kind string) {
	m.WorkerFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordFileAnalysis records the wall time of one batch file report.
func (m *Metrics) RecordFileAnalysis(ctx context.Context, mode, result string, seconds float64) {
	m.FileAnalysisDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("result", result),
	))
}

// Package observe provides application-wide observability primitives for
// signbridge: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all signbridge
// metrics.
const meterName = "github.com/mbenali/signbridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ResolutionDuration tracks phrase-to-sign resolution latency.
	ResolutionDuration metric.Float64Histogram

	// TranscriptionDuration tracks speech-to-text transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// VerificationDuration tracks face verification latency.
	VerificationDuration metric.Float64Histogram

	// --- Counters ---

	// SignLookups counts word lookups. Use with attributes:
	//   attribute.String("tier", ...) — raw, normalized, fuzzy_normalized,
	//   fuzzy_raw, or miss.
	SignLookups metric.Int64Counter

	// AuthAttempts counts authentication attempts. Use with attributes:
	//   attribute.String("method", ...), attribute.String("outcome", ...)
	AuthAttempts metric.Int64Counter

	// ProviderErrors counts backend provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of live transcription streams.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// the resolution and verification paths.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics registers every signbridge instrument on the given
// [metric.MeterProvider] and returns the joined error if any of them fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	var errs []error

	latency := func(name, desc string, opts ...metric.Float64HistogramOption) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name,
			append([]metric.Float64HistogramOption{
				metric.WithDescription(desc),
				metric.WithUnit("s"),
			}, opts...)...)
		errs = append(errs, err)
		return h
	}
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	buckets := metric.WithExplicitBucketBoundaries(latencyBuckets...)
	met := &Metrics{
		ResolutionDuration: latency("signbridge.resolution.duration",
			"Latency of phrase-to-sign resolution.", buckets),
		TranscriptionDuration: latency("signbridge.transcription.duration",
			"Latency of speech-to-text transcription.", buckets),
		VerificationDuration: latency("signbridge.verification.duration",
			"Latency of face verification.", buckets),
		SignLookups: counter("signbridge.sign.lookups",
			"Total word lookups by resolution tier."),
		AuthAttempts: counter("signbridge.auth.attempts",
			"Total authentication attempts by method and outcome."),
		ProviderErrors: counter("signbridge.provider.errors",
			"Total provider errors by provider and kind."),
		HTTPRequestDuration: latency("signbridge.http.request.duration",
			"HTTP request latency by method and path."),
	}

	streams, err := meter.Int64UpDownCounter("signbridge.active_streams",
		metric.WithDescription("Number of live transcription streams."))
	errs = append(errs, err)
	met.ActiveStreams = streams

	if err := errors.Join(errs...); err != nil {
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
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordSignLookup records a word lookup counter increment tagged with the
// resolution tier that satisfied it ("miss" when none did).
func (m *Metrics) RecordSignLookup(ctx context.Context, tier string) {
	m.SignLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("tier", tier)),
	)
}

// RecordAuthAttempt records an authentication attempt counter increment with
// the standard attribute set.
func (m *Metrics) RecordAuthAttempt(ctx context.Context, method, outcome string) {
	m.AuthAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("outcome", outcome),
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

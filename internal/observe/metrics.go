// Package observe provides the observability primitives shared by the studio
// server: OpenTelemetry metrics, tracing helpers, trace-aware slog loggers and
// the HTTP middleware that ties them together.
//
// Metrics go through the OpenTelemetry Metrics API and are scraped from
// /metrics via the Prometheus exporter installed by [InitProvider].
// [DefaultMetrics] uses the global meter provider; tests should build their
// own instance with [NewMetrics] and a private [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every cantor instrument.
const meterName = "github.com/MrWong99/cantor"

// Metrics holds the application's instruments. All fields are safe for
// concurrent use.
type Metrics struct {
	// InterpretDuration measures one feedback interpretation, attribute
	// "source" (llm or rules).
	InterpretDuration metric.Float64Histogram

	// InterpretFallbacks counts interpretations where the language model
	// failed and the rule interpreter answered instead.
	InterpretFallbacks metric.Int64Counter

	// LLMDuration, TTSDuration and STTDuration measure provider latency.
	LLMDuration metric.Float64Histogram
	TTSDuration metric.Float64Histogram
	STTDuration metric.Float64Histogram

	// ProviderRequests counts provider calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures by provider and kind.
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by provider
	// and target state.
	BreakerTransitions metric.Int64Counter

	// FeedbackEvents counts accepted feedback by source (typed, spoken) and
	// outcome (applied, discarded).
	FeedbackEvents metric.Int64Counter

	// ActiveSessions is the number of open studio sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration measures request handling by method and route.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Remote synthesis of a
// long passage can take tens of seconds.
var latencyBuckets = []float64{
	0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.InterpretDuration, err = histogram("cantor.interpret.duration",
		"Latency of turning one feedback utterance into markup."); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = histogram("cantor.llm.duration",
		"Latency of language model completions."); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = histogram("cantor.tts.duration",
		"Latency of speech synthesis."); err != nil {
		return nil, err
	}
	if met.STTDuration, err = histogram("cantor.stt.duration",
		"Latency of spoken feedback transcription."); err != nil {
		return nil, err
	}

	if met.InterpretFallbacks, err = m.Int64Counter("cantor.interpret.fallbacks",
		metric.WithDescription("Interpretations answered by the rule interpreter after a language model failure."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("cantor.provider.requests",
		metric.WithDescription("Provider API requests by provider, kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("cantor.provider.errors",
		metric.WithDescription("Provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("cantor.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and state."),
	); err != nil {
		return nil, err
	}
	if met.FeedbackEvents, err = m.Int64Counter("cantor.feedback.events",
		metric.WithDescription("Feedback utterances by source and outcome."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("cantor.active_sessions",
		metric.WithDescription("Number of open studio sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("cantor.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] built on
// [otel.GetMeterProvider]. It panics if instrument creation fails, which the
// global provider never does.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest increments ProviderRequests.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError increments ProviderErrors.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordFeedback increments FeedbackEvents.
func (m *Metrics) RecordFeedback(ctx context.Context, source, outcome string) {
	m.FeedbackEvents.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordBreakerTransition increments BreakerTransitions. Its signature lets
// it be passed as a breaker state-change hook after binding a context.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("state", state),
		),
	)
}

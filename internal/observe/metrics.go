// Package observe carries the observability plumbing of the coaching
// backend: OpenTelemetry metrics exported for Prometheus, tracing spans for
// each turn stage, learner-tagged slog loggers and the HTTP middleware tying
// them to requests.
//
// Components take a [*Metrics] through their options. Tests build one on a
// private meter provider with [NewMetrics]; production code that is given
// none falls back to [DefaultMetrics] on the global provider.
package observe

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/macca"

// Provider kinds used as the "kind" label.
const (
	KindSTT = "stt"
	KindLLM = "llm"
	KindTTS = "tts"
)

// Metrics holds the instruments of the backend. Safe for concurrent use.
type Metrics struct {
	// Stage latency, in seconds.
	STTDuration  metric.Float64Histogram
	LLMDuration  metric.Float64Histogram
	TTSDuration  metric.Float64Histogram
	TurnDuration metric.Float64Histogram

	// ProviderRequests is labelled provider, kind and status ("ok" or
	// "error"); ProviderErrors only provider and kind.
	ProviderRequests metric.Int64Counter
	ProviderErrors   metric.Int64Counter

	// GenerateOutcomes is labelled outcome: validated, parse_failed or
	// transport_failed.
	GenerateOutcomes metric.Int64Counter

	// SRSReviews is labelled correct.
	SRSReviews metric.Int64Counter

	ActiveTurns metric.Int64UpDownCounter

	// HTTPRequestDuration is labelled method, route and status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are in seconds. Hosted model calls can take tens of
// seconds, so the top bucket is 30.
var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30}

// instruments collects the first creation error so NewMetrics reads as a
// flat list.
type instruments struct {
	m   metric.Meter
	err error
}

func (in *instruments) latency(name, desc string) metric.Float64Histogram {
	h, err := in.m.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	in.err = errors.Join(in.err, err)
	return h
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.m.Int64Counter(name, metric.WithDescription(desc))
	in.err = errors.Join(in.err, err)
	return c
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{m: mp.Meter(meterName)}
	met := &Metrics{
		STTDuration:  in.latency("macca.stt.duration", "Latency of speech recognition."),
		LLMDuration:  in.latency("macca.llm.duration", "Latency of response generation."),
		TTSDuration:  in.latency("macca.tts.duration", "Latency of speech synthesis."),
		TurnDuration: in.latency("macca.turn.duration", "End-to-end latency of a coaching turn."),

		ProviderRequests: in.counter("macca.provider.requests", "Provider calls by provider, kind and status."),
		ProviderErrors:   in.counter("macca.provider.errors", "Failed provider calls by provider and kind."),
		GenerateOutcomes: in.counter("macca.generate.outcomes", "Generated responses by outcome."),
		SRSReviews:       in.counter("macca.srs.reviews", "Vocabulary reviews by correctness."),
	}

	var err error
	met.ActiveTurns, err = in.m.Int64UpDownCounter("macca.active_turns",
		metric.WithDescription("Coaching turns in flight."))
	in.err = errors.Join(in.err, err)

	met.HTTPRequestDuration, err = in.m.Float64Histogram("macca.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"))
	in.err = errors.Join(in.err, err)

	if in.err != nil {
		return nil, in.err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide instance built on
// [otel.GetMeterProvider]. It panics if the instruments cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		if defaultMetrics, err = NewMetrics(otel.GetMeterProvider()); err != nil {
			panic("observe: default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// stageLatency returns the latency histogram for a provider kind.
func (m *Metrics) stageLatency(kind string) metric.Float64Histogram {
	switch kind {
	case KindSTT:
		return m.STTDuration
	case KindLLM:
		return m.LLMDuration
	case KindTTS:
		return m.TTSDuration
	}
	return nil
}

// RecordProviderCall records one call to a back-end of kind: its latency on
// the stage histogram, a request with status "ok" or "error", and an error
// count when err is non-nil.
func (m *Metrics) RecordProviderCall(ctx context.Context, kind, provider string, elapsed time.Duration, err error) {
	if h := m.stageLatency(kind); h != nil {
		h.Record(ctx, elapsed.Seconds())
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		))
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordGenerateOutcome counts one generated response.
func (m *Metrics) RecordGenerateOutcome(ctx context.Context, outcome string) {
	m.GenerateOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSRSReview counts one vocabulary review.
func (m *Metrics) RecordSRSReview(ctx context.Context, correct bool) {
	m.SRSReviews.Add(ctx, 1, metric.WithAttributes(attribute.Bool("correct", correct)))
}

// TurnStarted marks a turn in flight and returns the func that ends it.
func (m *Metrics) TurnStarted(ctx context.Context) (done func()) {
	start := time.Now()
	m.ActiveTurns.Add(ctx, 1)
	return func() {
		m.ActiveTurns.Add(ctx, -1)
		m.TurnDuration.Record(ctx, time.Since(start).Seconds())
	}
}

// RecordHTTPRequest records the latency of one served request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, seconds float64) {
	m.HTTPRequestDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	))
}

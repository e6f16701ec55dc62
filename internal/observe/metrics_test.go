package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumOf adds up the data points of an int64 sum that carry every attribute
// in where.
func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string, where ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	var total int64
points:
	for _, dp := range sum.DataPoints {
		for _, kv := range where {
			if v, ok := dp.Attributes.Value(kv.Key); !ok || v != kv.Value {
				continue points
			}
		}
		total += dp.Value
	}
	return total
}

func histCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		return 0
	}
	var n uint64
	for _, dp := range met.Data.(metricdata.Histogram[float64]).DataPoints {
		n += dp.Count
	}
	return n
}

func TestRecordProviderCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderCall(ctx, KindLLM, "groq", 800*time.Millisecond, nil)
	m.RecordProviderCall(ctx, KindLLM, "groq", 2*time.Second, errors.New("503"))
	m.RecordProviderCall(ctx, KindSTT, "huggingface", time.Second, nil)
	m.RecordProviderCall(ctx, KindTTS, "elevenlabs", time.Second, errors.New("quota"))
	m.RecordProviderCall(ctx, "vad", "silero", time.Second, nil)

	rm := collect(t, reader)

	tests := []struct {
		name  string
		where []attribute.KeyValue
		want  int64
	}{
		{"macca.provider.requests", []attribute.KeyValue{attribute.String("provider", "groq"), attribute.String("status", "ok")}, 1},
		{"macca.provider.requests", []attribute.KeyValue{attribute.String("provider", "groq"), attribute.String("status", "error")}, 1},
		{"macca.provider.requests", []attribute.KeyValue{attribute.String("kind", "vad")}, 1},
		{"macca.provider.errors", []attribute.KeyValue{attribute.String("kind", KindTTS)}, 1},
		{"macca.provider.errors", []attribute.KeyValue{attribute.String("kind", KindSTT)}, 0},
	}
	for _, tt := range tests {
		if got := sumOf(t, rm, tt.name, tt.where...); got != tt.want {
			t.Errorf("%s%v = %d, want %d", tt.name, tt.where, got, tt.want)
		}
	}

	for name, want := range map[string]uint64{
		"macca.llm.duration": 2,
		"macca.stt.duration": 1,
		"macca.tts.duration": 1,
	} {
		if got := histCount(t, rm, name); got != want {
			t.Errorf("%s samples = %d, want %d", name, got, want)
		}
	}
}

func TestRecordGenerateOutcome(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordGenerateOutcome(ctx, "validated")
	m.RecordGenerateOutcome(ctx, "parse_failed")
	m.RecordGenerateOutcome(ctx, "parse_failed")

	rm := collect(t, reader)
	if got := sumOf(t, rm, "macca.generate.outcomes", attribute.String("outcome", "parse_failed")); got != 2 {
		t.Errorf("parse_failed = %d, want 2", got)
	}
	if got := sumOf(t, rm, "macca.generate.outcomes", attribute.String("outcome", "validated")); got != 1 {
		t.Errorf("validated = %d, want 1", got)
	}
}

func TestRecordSRSReview(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSRSReview(ctx, true)
	m.RecordSRSReview(ctx, false)
	m.RecordSRSReview(ctx, true)

	rm := collect(t, reader)
	if got := sumOf(t, rm, "macca.srs.reviews", attribute.Bool("correct", true)); got != 2 {
		t.Errorf("correct reviews = %d, want 2", got)
	}
}

func TestTurnStarted(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	doneA := m.TurnStarted(ctx)
	doneB := m.TurnStarted(ctx)
	if got := sumOf(t, collect(t, reader), "macca.active_turns"); got != 2 {
		t.Errorf("active turns mid-flight = %d, want 2", got)
	}
	doneA()
	doneB()

	rm := collect(t, reader)
	if got := sumOf(t, rm, "macca.active_turns"); got != 0 {
		t.Errorf("active turns after = %d, want 0", got)
	}
	if got := histCount(t, rm, "macca.turn.duration"); got != 2 {
		t.Errorf("turn duration samples = %d, want 2", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordHTTPRequest(context.Background(), "GET", "GET /healthz", 200, 0.05)

	met := findMetric(collect(t, reader), "macca.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	dp := met.Data.(metricdata.Histogram[float64]).DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("samples = %d, want 1", dp.Count)
	}
	if v, _ := dp.Attributes.Value("status"); v.AsString() != "200" {
		t.Errorf("status label = %q", v.AsString())
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}

package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the Macca tracer.
const tracerName = "github.com/MrWong99/macca"

// Span names for the stages of a coaching turn.
const (
	SpanTurn     = "macca.turn"
	SpanSTT      = "macca.stt"
	SpanGenerate = "macca.generate"
	SpanTTS      = "macca.tts"
)

// Attribute keys attached to every span started under [WithLearner].
const (
	AttrUserID    = attribute.Key("macca.user_id")
	AttrSessionID = attribute.Key("macca.session_id")
)

type learnerKey struct{}

// learner identifies whose turn a context belongs to.
type learner struct {
	userID    string
	sessionID string
}

// WithLearner returns a context tagged with the learner and session a turn
// belongs to. Empty values keep whatever an outer call already set, so a
// generator called from the orchestrator inherits the user id.
func WithLearner(ctx context.Context, userID, sessionID string) context.Context {
	cur, _ := ctx.Value(learnerKey{}).(learner)
	if userID != "" {
		cur.userID = userID
	}
	if sessionID != "" {
		cur.sessionID = sessionID
	}
	return context.WithValue(ctx, learnerKey{}, cur)
}

func learnerFrom(ctx context.Context) learner {
	l, _ := ctx.Value(learnerKey{}).(learner)
	return l
}

func (l learner) attrs() []attribute.KeyValue {
	var kv []attribute.KeyValue
	if l.userID != "" {
		kv = append(kv, AttrUserID.String(l.userID))
	}
	if l.sessionID != "" {
		kv = append(kv, AttrSessionID.String(l.sessionID))
	}
	return kv
}

// Tracer returns the package-level [trace.Tracer] for Macca. It uses the
// globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span carrying the learner attributes from ctx. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if kv := learnerFrom(ctx).attrs(); len(kv) > 0 {
		opts = append(opts, trace.WithAttributes(kv...))
	}
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
// It doubles as the X-Correlation-ID response header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger enriched with trace_id and span_id from
// the active span and with user_id and session_id from [WithLearner].
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	who := learnerFrom(ctx)
	if who.userID != "" {
		l = l.With(slog.String("user_id", who.userID))
	}
	if who.sessionID != "" {
		l = l.With(slog.String("session_id", who.sessionID))
	}
	return l
}

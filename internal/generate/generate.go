// Package generate implements the response generator: it builds the prompt,
// calls the completion back-end, parses the output against the response
// contract and falls back to the rule-based generator whenever either step
// fails.
//
// The caller always receives a valid [coach.Response]. The only errors are
// programmer errors in the inputs, reported as [ErrInvalidInput].
package generate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/macca/internal/contract"
	"github.com/MrWong99/macca/internal/fallback"
	"github.com/MrWong99/macca/internal/observe"
	"github.com/MrWong99/macca/internal/prompt"
	"github.com/MrWong99/macca/pkg/coach"
	"github.com/MrWong99/macca/pkg/provider/llm"
)

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 30 * time.Second

// ErrInvalidInput is returned for inputs no generator can act on.
var ErrInvalidInput = errors.New("generate: invalid input")

// ResponseGenerator produces the structured response for one learner turn.
type ResponseGenerator interface {
	// Generate always returns a valid response unless the inputs themselves
	// are invalid, in which case the error wraps [ErrInvalidInput].
	Generate(ctx context.Context, userText string, profile coach.UserProfile, session coach.SessionContext) (*coach.Response, error)
}

// Outcome records which path produced a response.
type Outcome string

const (
	// OutcomeValidated means the provider output parsed and validated.
	OutcomeValidated Outcome = "validated"
	// OutcomeParseFailed means the provider answered but the output violated
	// the contract; the fallback generator produced the response.
	OutcomeParseFailed Outcome = "parse_failed"
	// OutcomeTransportFailed means the provider call itself failed; the
	// fallback generator produced the response.
	OutcomeTransportFailed Outcome = "transport_failed"
)

// CheckInput rejects contexts that no generator can serve.
func CheckInput(session coach.SessionContext) error {
	if session.SessionID == "" {
		return fmt.Errorf("%w: session id must not be empty", ErrInvalidInput)
	}
	if !session.Mode.IsValid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, session.Mode)
	}
	return nil
}

// Option is a functional option for configuring a [Generator].
type Option func(*Generator)

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

// WithProviderName sets the provider label used in logs and metrics.
func WithProviderName(name string) Option {
	return func(g *Generator) {
		g.name = name
	}
}

// Generator is the [ResponseGenerator] backed by an [llm.Provider].
type Generator struct {
	provider llm.Provider
	name     string
	timeout  time.Duration
	metrics  *observe.Metrics
}

var _ ResponseGenerator = (*Generator)(nil)

// New returns a Generator calling p.
func New(p llm.Provider, opts ...Option) (*Generator, error) {
	if p == nil {
		return nil, errors.New("generate: provider must not be nil")
	}
	g := &Generator{provider: p, name: "llm", timeout: DefaultTimeout}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g, nil
}

// Generate implements [ResponseGenerator].
func (g *Generator) Generate(ctx context.Context, userText string, profile coach.UserProfile, session coach.SessionContext) (*coach.Response, error) {
	resp, _, err := g.GenerateWithOutcome(ctx, userText, profile, session)
	return resp, err
}

// GenerateWithOutcome is [Generator.Generate] that also reports which path
// produced the response.
func (g *Generator) GenerateWithOutcome(ctx context.Context, userText string, profile coach.UserProfile, session coach.SessionContext) (*coach.Response, Outcome, error) {
	if err := CheckInput(session); err != nil {
		return nil, "", err
	}

	ctx = observe.WithLearner(ctx, "", session.SessionID)
	ctx, span := observe.StartSpan(ctx, observe.SpanGenerate)
	defer span.End()
	log := observe.Logger(ctx).With("provider", g.name)

	req := prompt.Build(userText, profile, session)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	start := time.Now()
	out, err := g.provider.Complete(callCtx, req)
	cancel()
	if err == nil && out == nil {
		err = errors.New("provider returned no completion")
	}
	g.metrics.RecordProviderCall(ctx, observe.KindLLM, g.name, time.Since(start), err)
	if err != nil {
		log.Warn("generate: provider call failed, using fallback", "error", err)
		span.RecordError(err)
		return g.fallback(ctx, span, userText, profile, session, OutcomeTransportFailed)
	}

	resp, diag, err := contract.ParseWithDiagnostics(out.Content)
	if err != nil {
		var cerr *contract.Error
		kind := "unknown"
		if errors.As(err, &cerr) {
			kind = cerr.Kind.String()
		}
		log.Warn("generate: response violated contract, using fallback",
			"kind", kind,
			"error", err,
			"output_len", len(out.Content))
		span.RecordError(err)
		return g.fallback(ctx, span, userText, profile, session, OutcomeParseFailed)
	}
	if len(diag.Dropped) > 0 {
		log.Debug("generate: discarded malformed feedback", "dropped", diag.Dropped)
	}

	g.metrics.RecordGenerateOutcome(ctx, string(OutcomeValidated))
	span.SetAttributes(attribute.String("outcome", string(OutcomeValidated)))
	return resp, OutcomeValidated, nil
}

func (g *Generator) fallback(ctx context.Context, span trace.Span, userText string, profile coach.UserProfile, session coach.SessionContext, outcome Outcome) (*coach.Response, Outcome, error) {
	g.metrics.RecordGenerateOutcome(ctx, string(outcome))
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	span.SetStatus(codes.Error, string(outcome))
	return fallback.Generate(userText, profile, session), outcome, nil
}

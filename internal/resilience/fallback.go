package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrAllFailed is returned when no entry of a [FallbackGroup] produced a
// result, either because it failed or because its breaker was open.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig holds the breaker settings applied to every entry of a
// [FallbackGroup]. Each entry gets its own breaker named after the entry.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup is an ordered chain of interchangeable back-ends, such as a
// hosted recogniser followed by a local one. Calls go to the first member
// whose breaker admits them; a failure moves on to the next member.
//
// Members are added while the chain is being built. Once shared, the group
// is safe for concurrent use.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup starts a chain with primary at its head.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a member to the end of the chain.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: fallback, breaker: NewCircuitBreaker(bc)})
}

// Names lists the members in call order.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, 0, len(fg.members))
	for _, m := range fg.members {
		names = append(names, m.name)
	}
	return names
}

// Breaker returns the breaker guarding the named member, or nil if there is
// no such member.
func (fg *FallbackGroup[T]) Breaker(name string) *CircuitBreaker {
	for _, m := range fg.members {
		if m.name == name {
			return m.breaker
		}
	}
	return nil
}

// Execute is [ExecuteWithResult] for calls without a result value.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult walks the chain of fg and returns the first result fn
// produces without error. A cancelled ctx stops the walk and its error is
// returned unwrapped. When the chain is exhausted the error wraps both
// [ErrAllFailed] and the failure of the last member tried.
func ExecuteWithResult[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var zero R
	var last error
	for i := range fg.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		m := &fg.members[i]
		res, err := call(m, fn)
		if err == nil {
			if i > 0 {
				slog.Debug("fallback provider served the call", "provider", m.name, "position", i)
			}
			return res, nil
		}
		last = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, last)
}

// call runs fn against a single member through its breaker.
func call[T any, R any](m *member[T], fn func(T) (R, error)) (R, error) {
	var res R
	start := time.Now()
	err := m.breaker.Execute(func() error {
		var err error
		res, err = fn(m.value)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrCircuitOpen):
		slog.Debug("provider circuit open, skipping", "provider", m.name)
	default:
		slog.Warn("provider failed, trying next",
			"provider", m.name, "elapsed", time.Since(start), "err", err)
	}
	return res, err
}

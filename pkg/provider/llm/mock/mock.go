// Package mock is an in-memory llm.Provider for tests.
//
// A Provider answers with canned model output so the generator's prompt,
// contract parsing and fallback paths can be driven without a network:
//
//	p := mock.Replying(`{"reply":"Nice!","correction":"","explanation":"","next_question":"And then?"}`)
//	resp, err := p.Complete(ctx, req)
//
// Set fields before the first call; the provider itself is safe for
// concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/macca/pkg/provider/llm"
)

// CompleteCall is one recorded call to Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider answers Complete from its fields in this order of precedence:
// CompleteFunc, then the next entry of Replies, then CompleteResponse and
// CompleteErr. With nothing set it returns nil, nil, which callers must
// treat as an empty completion.
type Provider struct {
	mu sync.Mutex

	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// Replies are consumed one per call before CompleteResponse is used,
	// for multi-turn tests where each turn needs different model output.
	Replies []string

	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteCalls holds every call in arrival order. Prefer [Provider.Calls]
	// while calls may still be running.
	CompleteCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Replying returns a provider whose every completion has content as its text.
func Replying(content string) *Provider {
	return &Provider{CompleteResponse: &llm.CompletionResponse{Content: content}}
}

// Complete records the call and answers it.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn := p.CompleteFunc
	var next *llm.CompletionResponse
	if fn == nil && len(p.Replies) > 0 {
		next = &llm.CompletionResponse{Content: p.Replies[0]}
		p.Replies = p.Replies[1:]
	}
	resp, err := p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	switch {
	case fn != nil:
		return fn(ctx, req)
	case next != nil:
		return next, nil
	}
	return resp, err
}

// Calls returns a snapshot of the recorded calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompleteCall(nil), p.CompleteCalls...)
}

// LastRequest returns the most recent request and whether there was one.
func (p *Provider) LastRequest() (llm.CompletionRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.CompleteCalls) == 0 {
		return llm.CompletionRequest{}, false
	}
	return p.CompleteCalls[len(p.CompleteCalls)-1].Req, true
}

// Package mock provides a test double for the tts.Provider interface.
//
// [New] returns a Provider that answers with a short clip of WAV silence, which
// is what the "mock" synthesizer produces when the service runs without real
// back-ends.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/macca/pkg/audio"
	"github.com/MrWong99/macca/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
	// Language is the language hint passed to Synthesize.
	Language string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by Synthesize when Err is nil.
	Audio []byte

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// Calls records every call to Synthesize.
	Calls []SynthesizeCall
}

// New returns a Provider that answers with 100 ms of 16 kHz mono silence.
func New() *Provider {
	return &Provider{Audio: audio.EncodeWAV(make([]byte, 3200), 16000, 1)}
}

// Synthesize records the call and returns Audio, Err. It honours ctx
// cancellation so timeout paths can be exercised.
func (p *Provider) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Text: text, Language: language})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([]byte, len(p.Audio))
	copy(out, p.Audio)
	return out, nil
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastText returns the text of the most recent call, or "" if none.
func (p *Provider) LastText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return ""
	}
	return p.Calls[len(p.Calls)-1].Text
}

var _ tts.Provider = (*Provider)(nil)

// Package mock provides a test double for the stt.Provider interface.
//
// [New] returns a Provider preloaded with [DefaultTranscript], which is what the
// "mock" recognizer returns when the service runs without real back-ends.
//
// Example:
//
//	p := &mock.Provider{Text: "I go to the office yesterday"}
//	text, _ := p.Transcribe(ctx, clip, "en")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/macca/pkg/provider/stt"
)

// DefaultTranscript is returned by providers built with [New].
const DefaultTranscript = "I have five years of experience in software development."

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is a copy of the audio bytes passed to Transcribe.
	Audio []byte
	// Language is the language hint passed to Transcribe.
	Language string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by Transcribe when Err is nil.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// New returns a Provider that answers every call with [DefaultTranscript].
func New() *Provider {
	return &Provider{Text: DefaultTranscript}
}

// Transcribe records the call and returns Text, Err. It honours ctx
// cancellation so timeout paths can be exercised.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	clip := make([]byte, len(audio))
	copy(clip, audio)
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Audio: clip, Language: language})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Err != nil {
		return "", p.Err
	}
	return p.Text, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ stt.Provider = (*Provider)(nil)

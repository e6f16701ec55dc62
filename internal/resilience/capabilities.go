package resilience

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/macca/pkg/provider/llm"
	"github.com/MrWong99/macca/pkg/provider/stt"
	"github.com/MrWong99/macca/pkg/provider/tts"
)

// ErrEmptyResult marks a call that succeeded on the wire but returned
// nothing usable: a blank completion, a blank transcript or a silent clip.
// It counts against the member's breaker and moves the call to the next
// member like any other failure.
var ErrEmptyResult = errors.New("resilience: provider returned an empty result")

// LLMFallback chains completion back-ends behind [llm.Provider].
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback starts an LLM chain with primary at its head.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a completion back-end to the chain.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.group.AddFallback(name, p) }

// Group exposes the underlying chain.
func (f *LLMFallback) Group() *FallbackGroup[llm.Provider] { return f.group }

// Complete returns the first non-blank completion in the chain.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil || strings.TrimSpace(resp.Content) == "" {
			return nil, ErrEmptyResult
		}
		return resp, nil
	})
}

// STTFallback chains recognisers behind [stt.Provider].
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback starts a recogniser chain with primary at its head.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a recogniser to the chain.
func (f *STTFallback) AddFallback(name string, p stt.Provider) { f.group.AddFallback(name, p) }

// Group exposes the underlying chain.
func (f *STTFallback) Group() *FallbackGroup[stt.Provider] { return f.group }

// Transcribe returns the first non-blank transcript in the chain. An empty
// clip is rejected with [stt.ErrEmptyAudio] before any member is called, so
// it never trips a breaker.
func (f *STTFallback) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if len(audio) == 0 {
		return "", stt.ErrEmptyAudio
	}
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (string, error) {
		text, err := p.Transcribe(ctx, audio, language)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", ErrEmptyResult
		}
		return text, nil
	})
}

// TTSFallback chains synthesisers behind [tts.Provider].
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback starts a synthesiser chain with primary at its head.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a synthesiser to the chain.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) { f.group.AddFallback(name, p) }

// Group exposes the underlying chain.
func (f *TTSFallback) Group() *FallbackGroup[tts.Provider] { return f.group }

// Synthesize returns the first non-empty clip in the chain. Blank text is
// rejected with [tts.ErrEmptyText] before any member is called.
func (f *TTSFallback) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) ([]byte, error) {
		clip, err := p.Synthesize(ctx, text, language)
		if err != nil {
			return nil, err
		}
		if len(clip) == 0 {
			return nil, ErrEmptyResult
		}
		return clip, nil
	})
}

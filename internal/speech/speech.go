// Package speech adapts the raw STT and TTS back-ends to the turn pipeline.
//
// [Recognizer] never fails: any problem yields [stt.SentinelTranscript].
// [Synthesizer] never fails either: any problem yields ok=false, which the
// caller reports as "voice unavailable". Both record latency, request and
// error metrics and log the underlying [TransportError].
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/macca/internal/blob"
	"github.com/MrWong99/macca/internal/observe"
	"github.com/MrWong99/macca/pkg/audio"
	"github.com/MrWong99/macca/pkg/provider/stt"
	"github.com/MrWong99/macca/pkg/provider/tts"
)

// DefaultTimeout bounds a single recognition or synthesis call.
const DefaultTimeout = 30 * time.Second

// TransportError wraps a failed back-end call.
type TransportError struct {
	// Kind is "stt" or "tts".
	Kind string
	// Provider is the configured back-end name.
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("speech: %s provider %q: %v", e.Kind, e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Option configures a [Recognizer] or [Synthesizer].
type Option func(*options)

type options struct {
	name     string
	timeout  time.Duration
	metrics  *observe.Metrics
	language string
}

// WithProviderName sets the back-end label used in logs and metrics.
func WithProviderName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLanguage sets the voice language passed to the synthesizer back-end.
func WithLanguage(lang string) Option {
	return func(o *options) { o.language = lang }
}

func buildOptions(kind string, opts []Option) options {
	o := options{name: kind, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Recognizer turns captured audio into a transcript.
type Recognizer struct {
	provider stt.Provider
	opts     options
}

// NewRecognizer wraps p. A nil p makes every call return the sentinel, which
// is how a recognizer without credentials behaves.
func NewRecognizer(p stt.Provider, opts ...Option) *Recognizer {
	return &Recognizer{provider: p, opts: buildOptions("stt", opts)}
}

// Transcribe returns the recognised text or [stt.SentinelTranscript].
func (r *Recognizer) Transcribe(ctx context.Context, data []byte, language string) string {
	text, err := r.transcribe(ctx, data, language)
	if err != nil {
		observe.Logger(ctx).Warn("speech: transcription failed, using sentinel", "provider", r.opts.name, "error", err)
		return stt.SentinelTranscript
	}
	return text
}

func (r *Recognizer) transcribe(ctx context.Context, data []byte, language string) (string, error) {
	if len(data) == 0 {
		return "", stt.ErrEmptyAudio
	}
	if r.provider == nil {
		return "", errors.New("speech: no stt provider configured")
	}

	ctx, span := observe.StartSpan(ctx, observe.SpanSTT)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()
	start := time.Now()
	text, err := r.provider.Transcribe(callCtx, data, language)
	r.opts.metrics.RecordProviderCall(ctx, observe.KindSTT, r.opts.name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		return "", &TransportError{Kind: observe.KindSTT, Provider: r.opts.name, Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("speech: empty transcript")
	}
	return text, nil
}

// Synthesizer renders a reply as speech and stores the clip.
type Synthesizer struct {
	provider tts.Provider
	store    blob.Store
	opts     options
}

// NewSynthesizer wraps p, storing clips in store. A nil p or store makes every
// call report the voice as unavailable.
func NewSynthesizer(p tts.Provider, store blob.Store, opts ...Option) *Synthesizer {
	return &Synthesizer{provider: p, store: store, opts: buildOptions("tts", opts)}
}

// Synthesize returns the blob reference of the rendered clip. ok is false when
// no audio could be produced; that is not an error.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (ref string, ok bool) {
	ref, err := s.synthesize(ctx, text)
	if err != nil {
		observe.Logger(ctx).Warn("speech: synthesis failed, voice unavailable", "provider", s.opts.name, "error", err)
		return "", false
	}
	return ref, true
}

func (s *Synthesizer) synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", tts.ErrEmptyText
	}
	if s.provider == nil || s.store == nil {
		return "", errors.New("speech: no tts provider configured")
	}

	ctx, span := observe.StartSpan(ctx, observe.SpanTTS)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()
	start := time.Now()
	clip, err := s.provider.Synthesize(callCtx, text, s.opts.language)
	if err == nil && len(clip) == 0 {
		err = errors.New("empty audio payload")
	}
	s.opts.metrics.RecordProviderCall(ctx, observe.KindTTS, s.opts.name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		return "", &TransportError{Kind: observe.KindTTS, Provider: s.opts.name, Err: err}
	}

	ref, err := s.store.Save(ctx, clip, audio.SniffExt(clip))
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("speech: store clip: %w", err)
	}
	return ref, nil
}

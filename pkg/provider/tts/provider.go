// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a Hugging Face inference
// endpoint, ElevenLabs, a local Coqui server) and renders one coach reply into
// a complete encoded audio clip. The clip container (WAV, FLAC, MP3) depends on
// the backend; callers that need a file extension sniff it with
// audio.SniffExt.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned by backends when asked to synthesise nothing.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as speech and returns the encoded clip.
	// language is a BCP-47 hint for multilingual voices; empty means the
	// backend's default voice.
	//
	// Returns an error on transport failure, a non-2xx answer, an empty audio
	// payload, or when ctx is cancelled.
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

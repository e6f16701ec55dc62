// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (a Hugging Face ASR
// endpoint, a local whisper.cpp server, Deepgram's pre-recorded API) and turns
// one captured utterance into text. Backends report every failure as an error;
// the caller decides how to degrade.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// SentinelTranscript is the transcript substituted when recognition fails for
// any reason. Downstream stages treat it as ordinary user text.
const SentinelTranscript = "Unable to transcribe audio"

// ErrEmptyAudio is returned by backends when called with no audio bytes.
var ErrEmptyAudio = errors.New("stt: audio must not be empty")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts a complete encoded audio clip (WAV, WebM, MP3, or
	// whatever the backend accepts) into text. language is a BCP-47 hint such
	// as "en"; an empty string lets the backend choose.
	//
	// Returns an error on transport failure, a non-2xx answer, or when ctx is
	// cancelled.
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// Package coqui synthesises coaching replies on a self-hosted Coqui TTS
// server (ghcr.io/coqui-ai/tts-cpu). It is the local fallback behind a
// hosted voice: the server needs no API key and answers with WAV.
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithSpeaker("p225"))
//	clip, err := p.Synthesize(ctx, "Nice one! Try 'went' instead of 'goed'.", "en")
package coqui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/macca/pkg/audio"
	"github.com/MrWong99/macca/pkg/provider/tts"
)

const (
	ttsPath        = "/api/tts"
	defaultTimeout = 60 * time.Second

	// maxResponse caps the WAV read from the server.
	maxResponse = 32 << 20
)

// markup is stripped before synthesis; the models read it out literally.
var markup = strings.NewReplacer("**", "", "__", "", "`", "", "#", "", "*", "")

// Provider is a tts.Provider for one Coqui server.
type Provider struct {
	endpoint string
	speaker  string
	language string
	client   *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// Option configures [New].
type Option func(*Provider)

// WithSpeaker picks the voice of a multi-speaker model, e.g. "p225".
func WithSpeaker(id string) Option { return func(p *Provider) { p.speaker = id } }

// WithLanguage is the language_id used when a call passes none. Only
// multilingual models honour it.
func WithLanguage(lang string) Option { return func(p *Provider) { p.language = lang } }

// WithTimeout bounds each synthesis request. The default is 60s; CPU
// synthesis of a long reply is slow.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.client.Timeout = d
		}
	}
}

// New returns a provider for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		endpoint: strings.TrimRight(serverURL, "/") + ttsPath,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize renders text as a WAV clip. The text is sent as a form body
// rather than in the query so long replies stay within URL limits.
func (p *Provider) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	text = cleanText(text)
	if text == "" {
		return nil, tts.ErrEmptyText
	}

	form := url.Values{"text": {text}}
	if p.speaker != "" {
		form.Set("speaker_id", p.speaker)
	}
	if language == "" {
		language = p.language
	}
	if language != "" {
		form.Set("language_id", language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("coqui: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coqui: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, fmt.Errorf("coqui: read response: %w", err)
	}
	if _, err := audio.ParseWAV(wav); err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	return wav, nil
}

// cleanText removes markdown emphasis and collapses whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(markup.Replace(s)), " ")
}

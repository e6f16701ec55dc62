// Package whisper transcribes learner clips through a self-hosted
// whisper.cpp server (POST /inference, multipart upload, JSON reply).
//
// Browsers upload encoded clips (webm, ogg) which are forwarded untouched.
// Callers holding headerless 16-bit PCM use [WithRawPCM] and the samples are
// wrapped in a WAV container first.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/macca/pkg/audio"
	"github.com/MrWong99/macca/pkg/provider/stt"
)

const (
	inferencePath = "/inference"

	// Replies are a short JSON document; anything larger is not whisper.
	maxReply = 1 << 20
)

var _ stt.Provider = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel names the model the server should use. Empty keeps the one the
// server was started with.
func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithLanguage sets the fallback language for calls that pass none.
// Default "en".
func WithLanguage(lang string) Option { return func(p *Provider) { p.language = lang } }

// WithRawPCM marks input as headerless 16-bit PCM in the given format.
func WithRawPCM(sampleRate, channels int) Option {
	return func(p *Provider) {
		p.pcm = &pcmFormat{rate: sampleRate, channels: channels}
	}
}

// WithHTTPClient overrides the client. Default has a 60s timeout.
func WithHTTPClient(hc *http.Client) Option { return func(p *Provider) { p.hc = hc } }

type pcmFormat struct {
	rate, channels int
}

// Provider is a whisper.cpp client.
type Provider struct {
	endpoint string
	model    string
	language string
	pcm      *pcmFormat
	hc       *http.Client
}

// New returns a client for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		endpoint: strings.TrimRight(serverURL, "/") + inferencePath,
		language: "en",
		hc:       &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	if p.pcm != nil && (p.pcm.rate <= 0 || p.pcm.channels <= 0) {
		return nil, fmt.Errorf("whisper: raw PCM needs a positive rate and channel count, got %d Hz x %d",
			p.pcm.rate, p.pcm.channels)
	}
	return p, nil
}

// Transcribe uploads clip and returns the trimmed transcript. language
// overrides the configured default for this call.
func (p *Provider) Transcribe(ctx context.Context, clip []byte, language string) (string, error) {
	if len(clip) == 0 {
		return "", stt.ErrEmptyAudio
	}
	if language == "" {
		language = p.language
	}

	body, contentType, err := p.form(clip, language)
	if err != nil {
		return "", fmt.Errorf("whisper: build upload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReply))
	if err != nil {
		return "", fmt.Errorf("whisper: read reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: HTTP %d: %s", resp.StatusCode, snippet(raw))
	}

	var reply struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("whisper: decode reply: %w", err)
	}
	if reply.Error != "" {
		return "", fmt.Errorf("whisper: server: %s", reply.Error)
	}
	return strings.TrimSpace(reply.Text), nil
}

// form encodes the multipart upload. Empty fields are left out.
func (p *Provider) form(clip []byte, language string) (io.Reader, string, error) {
	name := "clip.bin"
	if p.pcm != nil {
		clip = audio.EncodeWAV(clip, p.pcm.rate, p.pcm.channels)
		name = "clip.wav"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(clip); err != nil {
		return nil, "", err
	}
	for _, f := range [][2]string{
		{"language", language},
		{"model", p.model},
		{"response_format", "json"},
	} {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

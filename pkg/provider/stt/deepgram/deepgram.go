// Package deepgram transcribes learner clips with Deepgram's pre-recorded
// listen API.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/macca/pkg/provider/stt"
)

const listenEndpoint = "https://api.deepgram.com/v1/listen"

var _ stt.Provider = (*Provider)(nil)

// ErrNoTranscript is returned when a reply carries no usable alternative.
var ErrNoTranscript = errors.New("deepgram: reply has no transcript")

// Option configures a [Provider].
type Option func(*Provider)

// WithModel picks the recognition model. Default "nova-3".
func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithLanguage sets the fallback BCP-47 code for calls that pass none.
// Default "en".
func WithLanguage(lang string) Option { return func(p *Provider) { p.language = lang } }

// WithEndpoint points the client at another listen URL, such as a
// self-hosted deployment.
func WithEndpoint(endpoint string) Option { return func(p *Provider) { p.endpoint = endpoint } }

// WithHTTPClient overrides the client. Default has a 60s timeout.
func WithHTTPClient(hc *http.Client) Option { return func(p *Provider) { p.hc = hc } }

// Provider is a Deepgram client.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
	hc       *http.Client
}

// New returns a client authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    "nova-3",
		language: "en",
		endpoint: listenEndpoint,
		hc:       &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe posts clip as the request body and returns the best transcript
// of the first channel.
func (p *Provider) Transcribe(ctx context.Context, clip []byte, language string) (string, error) {
	if len(clip) == 0 {
		return "", stt.ErrEmptyAudio
	}
	if language == "" {
		language = p.language
	}

	target, err := p.listenURL(language)
	if err != nil {
		return "", fmt.Errorf("deepgram: endpoint: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(clip))
	if err != nil {
		return "", fmt.Errorf("deepgram: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", contentType(clip))

	resp, err := p.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("deepgram: read reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, raw)
	}
	return decodeTranscript(raw)
}

func (p *Provider) listenURL(language string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", language)
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// contentType sniffs the clip; Deepgram detects the codec itself when told
// octet-stream.
func contentType(clip []byte) string {
	ct := http.DetectContentType(clip)
	if strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "video/webm") {
		return ct
	}
	return "application/octet-stream"
}

// statusError prefers the err_msg Deepgram puts in failure bodies.
func statusError(code int, body []byte) error {
	var e struct {
		Code string `json:"err_code"`
		Msg  string `json:"err_msg"`
	}
	if json.Unmarshal(body, &e) == nil && e.Msg != "" {
		return fmt.Errorf("deepgram: HTTP %d %s: %s", code, e.Code, e.Msg)
	}
	return fmt.Errorf("deepgram: HTTP %d", code)
}

type listenReply struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// decodeTranscript returns the first non-blank alternative of channel zero.
// A reply whose alternatives are all blank is silence and yields "".
func decodeTranscript(raw []byte) (string, error) {
	var r listenReply
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", fmt.Errorf("deepgram: decode reply: %w", err)
	}
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return "", ErrNoTranscript
	}
	for _, alt := range r.Results.Channels[0].Alternatives {
		if t := strings.TrimSpace(alt.Transcript); t != "" {
			return t, nil
		}
	}
	return "", nil
}

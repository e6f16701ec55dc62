// Package huggingface provides an STT provider backed by the Hugging Face
// serverless Inference API automatic-speech-recognition task.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/macca/pkg/provider/stt"
)

const (
	// DefaultBaseURL is the Inference API root. The model id is appended.
	DefaultBaseURL = "https://api-inference.huggingface.co/models"

	// DefaultModel is the Whisper checkpoint used when none is configured.
	DefaultModel = "openai/whisper-large-v3-turbo"
)

var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider against the Inference API.
type Provider struct {
	apiKey      string
	model       string
	baseURL     string
	contentType string
	client      *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithBaseURL overrides the Inference API root.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(url, "/")
	}
}

// WithModel sets the ASR model id. Defaults to [DefaultModel].
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithContentType sets the Content-Type header sent with the audio bytes.
// Defaults to "application/octet-stream", which lets the endpoint sniff the
// container format.
func WithContentType(ct string) Option {
	return func(p *Provider) {
		p.contentType = ct
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.client = hc
	}
}

// New constructs a Hugging Face ASR Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("huggingface: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:      apiKey,
		model:       DefaultModel,
		baseURL:     DefaultBaseURL,
		contentType: "application/octet-stream",
		client:      &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. The raw clip is posted as the request
// body; the endpoint answers with {"text": "..."}. The language hint is not
// forwarded because the task API has no field for it.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, _ string) (string, error) {
	if len(audio) == 0 {
		return "", stt.ErrEmptyAudio
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/"+p.model, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("huggingface: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", p.contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("huggingface: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("huggingface: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("huggingface: unexpected status %d", resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("huggingface: decode response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

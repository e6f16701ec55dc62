// Package huggingface provides an LLM provider backed by the Hugging Face
// serverless Inference API text-generation task.
//
// The text-generation task accepts a single prompt string, so the system prompt
// and messages of a request are flattened with [llm.Flatten].
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/macca/pkg/provider/llm"
)

const (
	// DefaultBaseURL is the Inference API root. The model id is appended.
	DefaultBaseURL = "https://api-inference.huggingface.co/models"

	// DefaultModel is a multilingual chat model tuned for South-East Asian
	// languages.
	DefaultModel = "SeaLLMs/SeaLLMs-v3-7B-Chat"

	defaultMaxNewTokens = 500
	maxErrorBody        = 512
)

// Provider implements llm.Provider against the Inference API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithBaseURL overrides the Inference API root.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(url, "/")
	}
}

// WithModel sets the model id. Defaults to [DefaultModel].
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.client = hc
	}
}

// New constructs a Hugging Face text-generation Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("huggingface: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type generationParameters struct {
	MaxNewTokens   int      `json:"max_new_tokens"`
	Temperature    *float64 `json:"temperature,omitempty"`
	ReturnFullText bool     `json:"return_full_text"`
}

type generationRequest struct {
	Inputs     string               `json:"inputs"`
	Parameters generationParameters `json:"parameters"`
}

type generationResult struct {
	GeneratedText string `json:"generated_text"`
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	prompt := llm.Flatten(req)
	if prompt == "" {
		return nil, fmt.Errorf("huggingface: request has no messages")
	}

	body := generationRequest{
		Inputs: prompt,
		Parameters: generationParameters{
			MaxNewTokens: defaultMaxNewTokens,
		},
	}
	if req.MaxTokens > 0 {
		body.Parameters.MaxNewTokens = req.MaxTokens
	}
	if req.Temperature != 0 {
		t := req.Temperature
		body.Parameters.Temperature = &t
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("huggingface: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/"+p.model, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("huggingface: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("huggingface: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("huggingface: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("huggingface: unexpected status %d: %s", resp.StatusCode, truncate(data))
	}

	text, err := decodeGenerated(data)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: text}, nil
}

// decodeGenerated accepts both the list form ([{"generated_text": ...}]) and
// the bare object form returned by some deployments.
func decodeGenerated(data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var results []generationResult
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return "", fmt.Errorf("huggingface: decode response: %w", err)
		}
		if len(results) == 0 {
			return "", fmt.Errorf("huggingface: empty generation list")
		}
		return results[0].GeneratedText, nil
	}
	var result generationResult
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return "", fmt.Errorf("huggingface: decode response: %w", err)
	}
	return result.GeneratedText, nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}

package anyllm

import (
	"slices"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/macca/pkg/provider/llm"
)

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{llm.RoleSystem, anyllmlib.RoleSystem},
		{llm.RoleUser, anyllmlib.RoleUser},
		{llm.RoleAssistant, anyllmlib.RoleAssistant},
		{"", anyllmlib.RoleUser},
	}
	for _, tt := range tests {
		got := convertMessage(llm.Message{Role: tt.in, Content: "x"})
		if got.Role != tt.want {
			t.Errorf("convertMessage(%q).Role = %q, want %q", tt.in, got.Role, tt.want)
		}
		if got.Content != "x" {
			t.Errorf("convertMessage(%q).Content = %v, want x", tt.in, got.Content)
		}
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "claude-3-5-haiku-latest"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "coach",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
		Temperature:  0.7,
		MaxTokens:    1024,
	})
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 1024 {
		t.Errorf("max tokens = %v, want 1024", params.MaxTokens)
	}
	if params.Model != "claude-3-5-haiku-latest" {
		t.Errorf("model = %q", params.Model)
	}
}

func TestBuildParams_ZeroSamplingLeftUnset(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "llama3"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
	})
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Errorf("expected nil sampling params, got temp=%v max=%v", params.Temperature, params.MaxTokens)
	}
}

func TestBuildParams_JSONModeAddsHint(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "llama3"}
	tests := []struct {
		name   string
		system string
		want   string
	}{
		{name: "with system prompt", system: "You are Macca.", want: "You are Macca.\n\n" + jsonHint},
		{name: "without system prompt", want: jsonHint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := p.buildParams(llm.CompletionRequest{
				SystemPrompt: tt.system,
				JSONMode:     true,
				Messages:     []llm.Message{{Role: llm.RoleUser, Content: "I goed home"}},
			})
			if got := params.Messages[0].Content; got != tt.want {
				t.Errorf("system content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBackends_Sorted(t *testing.T) {
	t.Parallel()

	if !slices.IsSorted(Backends) || len(Backends) != len(constructors) {
		t.Errorf("Backends = %v", Backends)
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_EmptyProviderName(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("openai", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil || !strings.Contains(err.Error(), "ollama") {
		t.Fatalf("err = %v, want unsupported backend listing the known ones", err)
	}
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		name  string
		model string
		opts  []anyllmlib.Option
	}{
		{"openai", "gpt-4o-mini", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{"anthropic", "claude-3-5-haiku-latest", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"ollama", "llama3", nil},
		{"Ollama", "llama3", nil},
		{"llamacpp", "llama3", nil},
		{"llamafile", "llama3", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.name, tt.model, tt.opts...)
			if err != nil {
				t.Fatalf("New(%q): %v", tt.name, err)
			}
			if p.model != tt.model {
				t.Errorf("model = %q, want %q", p.model, tt.model)
			}
		})
	}
}

func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

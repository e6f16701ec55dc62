package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/macca/pkg/provider/llm"
)

// TestConvertMessage_Roles checks that every supported role is converted.
func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()

	sys, err := convertMessage(llm.Message{Role: llm.RoleSystem, Content: "rules"})
	if err != nil || sys.OfSystem == nil {
		t.Fatalf("system: err=%v OfSystem=%v", err, sys.OfSystem)
	}
	usr, err := convertMessage(llm.Message{Role: llm.RoleUser, Content: "hi"})
	if err != nil || usr.OfUser == nil {
		t.Fatalf("user: err=%v OfUser=%v", err, usr.OfUser)
	}
	asst, err := convertMessage(llm.Message{Role: llm.RoleAssistant, Content: "hello"})
	if err != nil || asst.OfAssistant == nil {
		t.Fatalf("assistant: err=%v OfAssistant=%v", err, asst.OfAssistant)
	}
}

// TestConvertMessage_UnknownRole checks that an unknown role is rejected.
func TestConvertMessage_UnknownRole(t *testing.T) {
	t.Parallel()

	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

// TestNew_MissingAPIKey ensures constructor rejects an empty API key.
func TestNew_MissingAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// TestNew_MissingModel ensures constructor rejects an empty model.
func TestNew_MissingModel(t *testing.T) {
	t.Parallel()

	if _, err := New("sk-test", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestBuildParams_JSONMode checks that JSON mode and sampling settings reach
// the SDK params.
func TestBuildParams_JSONMode(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "be a coach",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature:  0.7,
		MaxTokens:    1024,
		JSONMode:     true,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.ResponseFormat.OfJSONObject == nil {
		t.Error("expected json_object response format")
	}
	if params.MaxCompletionTokens.Value != 1024 {
		t.Errorf("max tokens = %d, want 1024", params.MaxCompletionTokens.Value)
	}
}

// TestBuildParams_Empty checks that a request without messages is rejected.
func TestBuildParams_Empty(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}

// TestComplete_AgainstCompatibleServer runs a completion against a local
// OpenAI-compatible endpoint.
func TestComplete_AgainstCompatibleServer(t *testing.T) {
	t.Parallel()

	bodies := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		bodies <- body
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "llama-3.1-8b-instant",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"reply\":\"hi\"}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "llama-3.1-8b-instant", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"reply":"hi"}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
	gotBody := <-bodies
	rf, _ := gotBody["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", gotBody["response_format"])
	}
}

// TestComplete_ServerError checks that a 5xx answer surfaces as an error.
func TestComplete_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := NewGroq("sk-test", "llama-3.1-8b-instant", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewGroq: %v", err)
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
	}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

// TestComplete_RetriesWithoutJSONFormat checks that a json_validate_failed
// rejection is followed by one plain-text attempt.
func TestComplete_RetriesWithoutJSONFormat(t *testing.T) {
	t.Parallel()

	var formats []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		formats = append(formats, body["response_format"])

		w.Header().Set("Content-Type", "application/json")
		if len(formats) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"message":"Failed to generate JSON","type":"invalid_request_error","code":"json_validate_failed"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"c2","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Sure! {\"reply\":\"hi\"}"}}]}`)
	}))
	defer srv.Close()

	p, err := NewGroq("sk-test", "llama-3.1-8b-instant", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewGroq: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "I goed home"}},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.Contains(resp.Content, `{"reply":"hi"}`) {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(formats) != 2 || formats[0] == nil || formats[1] != nil {
		t.Errorf("response formats sent = %v, want [json_object <nil>]", formats)
	}
}

// TestComplete_PlainBadRequestNotRetried checks that other 400s fail at once.
func TestComplete_PlainBadRequestNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad model","code":"model_not_found"}}`)
	}))
	defer srv.Close()

	p, _ := New("sk-test", "nope", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		JSONMode: true,
	}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

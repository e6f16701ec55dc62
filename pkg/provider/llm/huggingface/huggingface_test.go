package huggingface_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/macca/pkg/provider/llm"
	"github.com/MrWong99/macca/pkg/provider/llm/huggingface"
)

func TestNew_MissingAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := huggingface.New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		want     string
	}{
		{name: "list form", response: `[{"generated_text":"{\"reply\":\"ok\"}"}]`, want: `{"reply":"ok"}`},
		{name: "object form", response: `{"generated_text":"plain"}`, want: "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bodies := make(chan map[string]any, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/org/model" {
					t.Errorf("path = %q, want /org/model", r.URL.Path)
				}
				if r.Header.Get("Authorization") != "Bearer hf_test" {
					t.Errorf("missing bearer token")
				}
				var body map[string]any
				_ = json.NewDecoder(r.Body).Decode(&body)
				bodies <- body
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			p, err := huggingface.New("hf_test", huggingface.WithBaseURL(srv.URL), huggingface.WithModel("org/model"))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			resp, err := p.Complete(context.Background(), llm.CompletionRequest{
				SystemPrompt: "system",
				Messages:     []llm.Message{{Role: llm.RoleUser, Content: "user"}},
				Temperature:  0.7,
				MaxTokens:    1024,
			})
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if resp.Content != tt.want {
				t.Errorf("Content = %q, want %q", resp.Content, tt.want)
			}
			got := <-bodies
			if got["inputs"] != "system\n\nuser" {
				t.Errorf("inputs = %q", got["inputs"])
			}
			params, _ := got["parameters"].(map[string]any)
			if params["return_full_text"] != false || params["max_new_tokens"] != float64(1024) {
				t.Errorf("parameters = %v", params)
			}
		})
	}
}

func TestComplete_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := huggingface.New("hf_test", huggingface.WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestComplete_EmptyRequest(t *testing.T) {
	t.Parallel()

	p, _ := huggingface.New("hf_test")
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}

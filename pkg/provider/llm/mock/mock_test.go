package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/macca/pkg/provider/llm"
)

func TestProvider_Precedence(t *testing.T) {
	t.Parallel()

	errDown := errors.New("down")
	p := &Provider{
		Replies:          []string{"first", "second"},
		CompleteResponse: &llm.CompletionResponse{Content: "static"},
		CompleteErr:      errDown,
	}
	ctx := context.Background()

	for _, want := range []string{"first", "second"} {
		resp, err := p.Complete(ctx, llm.CompletionRequest{})
		if err != nil || resp.Content != want {
			t.Fatalf("Complete = %+v, %v; want %q", resp, err, want)
		}
	}
	if _, err := p.Complete(ctx, llm.CompletionRequest{}); !errors.Is(err, errDown) {
		t.Errorf("after replies err = %v, want static error", err)
	}
	if n := len(p.Calls()); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestProvider_LastRequest(t *testing.T) {
	t.Parallel()

	p := Replying("ok")
	if _, ok := p.LastRequest(); ok {
		t.Fatal("LastRequest reported a call before any was made")
	}
	_, _ = p.Complete(context.Background(), llm.CompletionRequest{SystemPrompt: "a"})
	_, _ = p.Complete(context.Background(), llm.CompletionRequest{SystemPrompt: "b"})
	if req, ok := p.LastRequest(); !ok || req.SystemPrompt != "b" {
		t.Errorf("LastRequest = %+v, %v", req, ok)
	}
}

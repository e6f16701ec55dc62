package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/macca/pkg/provider/llm"
	llmmock "github.com/MrWong99/macca/pkg/provider/llm/mock"
	"github.com/MrWong99/macca/pkg/provider/stt"
	sttmock "github.com/MrWong99/macca/pkg/provider/stt/mock"
	"github.com/MrWong99/macca/pkg/provider/tts"
	ttsmock "github.com/MrWong99/macca/pkg/provider/tts/mock"
)

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		primaryText string
		primaryErr  error
		secondErr   error
		want        string
		wantErr     error
		secondCalls int
	}{
		{name: "primary ok", primaryText: "from primary", want: "from primary"},
		{name: "blank primary", primaryText: "  \n", want: "from secondary", secondCalls: 1},
		{name: "failover", primaryText: "from primary", primaryErr: errors.New("down"), want: "from secondary", secondCalls: 1},
		{name: "all fail", primaryText: "from primary", primaryErr: errors.New("down"), secondErr: errors.New("down too"), wantErr: ErrAllFailed, secondCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: tt.primaryText}, CompleteErr: tt.primaryErr}
			secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from secondary"}, CompleteErr: tt.secondErr}

			fb := NewLLMFallback(primary, "groq", FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3}})
			fb.AddFallback("huggingface", secondary)

			resp, err := fb.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if resp.Content != tt.want {
					t.Errorf("content = %q, want %q", resp.Content, tt.want)
				}
			}
			if got := len(secondary.Calls()); got != tt.secondCalls {
				t.Errorf("secondary calls = %d, want %d", got, tt.secondCalls)
			}
			if got := fb.Group().Names(); got[0] != "groq" {
				t.Errorf("Names = %v", got)
			}
		})
	}
}

func TestSTTFallback_Transcribe(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Err: errors.New("hf 503")}
	secondary := &sttmock.Provider{Text: "hello from whisper"}
	fb := NewSTTFallback(primary, "huggingface", FallbackConfig{})
	fb.AddFallback("whisper", secondary)

	got, err := fb.Transcribe(context.Background(), []byte{1, 2}, "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "hello from whisper" {
		t.Errorf("text = %q", got)
	}
	if secondary.CallCount() != 1 {
		t.Errorf("secondary calls = %d", secondary.CallCount())
	}

	if _, err := fb.Transcribe(context.Background(), nil, "en"); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("empty clip err = %v, want ErrEmptyAudio", err)
	}
	if primary.CallCount() != 1 {
		t.Errorf("empty clip reached the provider")
	}
}

func TestTTSFallback_Synthesize(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{Err: errors.New("quota")}
	secondary := ttsmock.New()
	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{})
	fb.AddFallback("mock", secondary)

	clip, err := fb.Synthesize(context.Background(), "Great answer!", "en")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(clip) == 0 {
		t.Error("empty clip")
	}
	if secondary.LastText() != "Great answer!" {
		t.Errorf("LastText = %q", secondary.LastText())
	}

	if _, err := fb.Synthesize(context.Background(), "   ", "en"); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("blank text err = %v, want ErrEmptyText", err)
	}
}

func TestFallback_EmptyResultCountsAsFailure(t *testing.T) {
	t.Parallel()

	cfg := FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}}

	t.Run("stt", func(t *testing.T) {
		t.Parallel()
		primary := &sttmock.Provider{Text: "   "}
		fb := NewSTTFallback(primary, "huggingface", cfg)
		fb.AddFallback("whisper", &sttmock.Provider{Text: "I goed home"})

		got, err := fb.Transcribe(context.Background(), []byte{1}, "en")
		if err != nil || got != "I goed home" {
			t.Fatalf("Transcribe = %q, %v", got, err)
		}
		if st := fb.Group().Breaker("huggingface").State(); st != StateOpen {
			t.Errorf("primary breaker = %v, want open after a blank transcript", st)
		}
	})

	t.Run("tts all silent", func(t *testing.T) {
		t.Parallel()
		fb := NewTTSFallback(&ttsmock.Provider{Audio: []byte{}}, "elevenlabs", cfg)
		fb.AddFallback("coqui", &ttsmock.Provider{Audio: []byte{}})

		_, err := fb.Synthesize(context.Background(), "Nice work.", "en")
		if !errors.Is(err, ErrAllFailed) || !errors.Is(err, ErrEmptyResult) {
			t.Errorf("err = %v, want ErrAllFailed wrapping ErrEmptyResult", err)
		}
	})

	t.Run("llm nil response", func(t *testing.T) {
		t.Parallel()
		fb := NewLLMFallback(&llmmock.Provider{}, "groq", cfg)

		_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
		if !errors.Is(err, ErrEmptyResult) {
			t.Errorf("err = %v, want ErrEmptyResult", err)
		}
	})
}

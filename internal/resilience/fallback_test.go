package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

// chain builds a group of named members, head first.
func chain(cfg FallbackConfig, names ...string) *FallbackGroup[string] {
	fg := NewFallbackGroup(names[0], names[0], cfg)
	for _, n := range names[1:] {
		fg.AddFallback(n, n)
	}
	return fg
}

func TestExecuteWithResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		members   []string
		failing   []string
		want      string
		wantTried []string
		wantErr   error
	}{
		{
			name:      "head answers",
			members:   []string{"huggingface", "whisper"},
			want:      "huggingface",
			wantTried: []string{"huggingface"},
		},
		{
			name:      "second answers",
			members:   []string{"huggingface", "whisper"},
			failing:   []string{"huggingface"},
			want:      "whisper",
			wantTried: []string{"huggingface", "whisper"},
		},
		{
			name:      "third answers",
			members:   []string{"elevenlabs", "huggingface", "coqui"},
			failing:   []string{"elevenlabs", "huggingface"},
			want:      "coqui",
			wantTried: []string{"elevenlabs", "huggingface", "coqui"},
		},
		{
			name:      "exhausted",
			members:   []string{"groq", "huggingface"},
			failing:   []string{"groq", "huggingface"},
			wantTried: []string{"groq", "huggingface"},
			wantErr:   ErrAllFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fg := chain(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3}}, tt.members...)
			var tried []string
			got, err := ExecuteWithResult(context.Background(), fg, func(v string) (string, error) {
				tried = append(tried, v)
				if slices.Contains(tt.failing, v) {
					return "", errTest
				}
				return v, nil
			})

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want %v wrapping the last failure", err, tt.wantErr)
				}
			} else if err != nil || got != tt.want {
				t.Fatalf("got %q, %v; want %q", got, err, tt.want)
			}
			if !slices.Equal(tried, tt.wantTried) {
				t.Errorf("tried %v, want %v", tried, tt.wantTried)
			}
			if !slices.Equal(fg.Names(), tt.members) {
				t.Errorf("Names = %v, want %v", fg.Names(), tt.members)
			}
		})
	}
}

func TestFallbackGroup_OpenBreakerIsSkipped(t *testing.T) {
	t.Parallel()

	fg := chain(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}},
		"groq", "huggingface")
	failGroq := func(v string) error {
		if v == "groq" {
			return errTest
		}
		return nil
	}
	for range 2 {
		if err := fg.Execute(context.Background(), failGroq); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	if st := fg.Breaker("groq").State(); st != StateOpen {
		t.Fatalf("groq breaker = %v, want open", st)
	}

	var tried []string
	err := fg.Execute(context.Background(), func(v string) error {
		tried = append(tried, v)
		return nil
	})
	if err != nil || !slices.Equal(tried, []string{"huggingface"}) {
		t.Fatalf("tried %v, err %v; want only huggingface", tried, err)
	}
}

func TestFallbackGroup_StopsWhenContextDone(t *testing.T) {
	t.Parallel()

	fg := chain(FallbackConfig{}, "groq", "huggingface")
	ctx, cancel := context.WithCancel(context.Background())

	var tried []string
	err := fg.Execute(ctx, func(v string) error {
		tried = append(tried, v)
		cancel()
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want bare context.Canceled", err)
	}
	if len(tried) != 1 {
		t.Fatalf("tried %v, want only the head", tried)
	}
}

func TestFallbackGroup_BreakerLookup(t *testing.T) {
	t.Parallel()

	fg := chain(FallbackConfig{}, "elevenlabs", "coqui")
	if b := fg.Breaker("coqui"); b == nil || b.Name() != "coqui" {
		t.Errorf("Breaker(coqui) = %v", b)
	}
	if fg.Breaker("deepgram") != nil {
		t.Error("Breaker(unknown) should be nil")
	}
}

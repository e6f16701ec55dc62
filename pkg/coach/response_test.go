package coach_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/macca/pkg/coach"
)

func validResponse() *coach.Response {
	return (&coach.Response{
		Reply:      "Nice!",
		NextPrompt: "What next?",
	}).Normalize()
}

func TestResponseValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(r *coach.Response)
		wantErr error
	}{
		{name: "valid", mutate: func(*coach.Response) {}},
		{name: "empty reply", mutate: func(r *coach.Response) { r.Reply = "  " }, wantErr: coach.ErrEmptyReply},
		{name: "empty next prompt", mutate: func(r *coach.Response) { r.NextPrompt = "" }, wantErr: coach.ErrEmptyNextPrompt},
		{name: "nil grammar", mutate: func(r *coach.Response) { r.Feedback.Grammar = nil }, wantErr: coach.ErrMissingFeedback},
		{name: "nil pronunciation", mutate: func(r *coach.Response) { r.Feedback.Pronunciation = nil }, wantErr: coach.ErrMissingFeedback},
		{
			name: "bad severity",
			mutate: func(r *coach.Response) {
				r.Feedback.Pronunciation = []coach.PronunciationFeedback{{Word: "think", Severity: "extreme"}}
			},
			wantErr: coach.ErrInvalidSeverity,
		},
		{
			name: "bad drill",
			mutate: func(r *coach.Response) {
				r.Drills = []coach.Drill{{Type: "dance", Instruction: "x"}}
			},
			wantErr: coach.ErrInvalidDrillType,
		},
		{
			name: "bad language",
			mutate: func(r *coach.Response) {
				r.Feedback.Grammar = []coach.GrammarFeedback{{Issue: "x", ExplanationLanguage: "fr"}}
			},
			wantErr: coach.ErrInvalidLanguage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := validResponse()
			tt.mutate(r)
			err := r.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResponseNormalize_EncodesEmptyArrays(t *testing.T) {
	t.Parallel()

	r := &coach.Response{Reply: "a", NextPrompt: "b"}
	r.Normalize()
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got := string(data)
	for _, want := range []string{`"grammar":[]`, `"vocabulary":[]`, `"pronunciation":[]`, `"drills":[]`, `"better_sentence":null`} {
		if !strings.Contains(got, want) {
			t.Errorf("encoded response %s missing %s", got, want)
		}
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want coach.Mode
		ok   bool
	}{
		{"live", coach.ModeLiveConversation, true},
		{"Guided", coach.ModeGuidedLesson, true},
		{"pronunciation_coach", coach.ModePronunciationCoach, true},
		{"karaoke", "", false},
	}
	for _, tt := range tests {
		got, ok := coach.ParseMode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseMode(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLevelOrdinal(t *testing.T) {
	t.Parallel()

	if got := coach.LevelA1.Ordinal(); got != 1 {
		t.Errorf("A1 ordinal = %d, want 1", got)
	}
	if got := coach.Level("c2").Ordinal(); got != 6 {
		t.Errorf("c2 ordinal = %d, want 6", got)
	}
	if coach.Level("Z9").IsValid() {
		t.Error("Z9 reported valid")
	}
}

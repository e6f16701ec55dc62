package generate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/macca/internal/generate"
	"github.com/MrWong99/macca/pkg/coach"
)

func TestCanned_Modes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		mode          coach.Mode
		text          string
		wantReply     string
		wantNext      string
		wantGrammar   int
		wantPronounce int
	}{
		{
			name:        "live with go",
			mode:        coach.ModeLiveConversation,
			text:        "I go to office",
			wantReply:   "That's interesting! You mentioned 'I go to office...'. Can you tell me more about that?",
			wantNext:    "Can you tell me more about your day?",
			wantGrammar: 1,
		},
		{
			name:      "live without go",
			mode:      coach.ModeLiveConversation,
			text:      "I am going home",
			wantReply: "That's interesting! You mentioned 'I am going home...'. Can you tell me more about that?",
			wantNext:  "Can you tell me more about your day?",
		},
		{
			name:      "guided",
			mode:      coach.ModeGuidedLesson,
			text:      "I have worked here two years",
			wantReply: "Great answer! Now let's move to the next part of our lesson.",
			wantNext:  "Tell me about your work experience.",
		},
		{
			name:          "pronunciation",
			mode:          coach.ModePronunciationCoach,
			text:          "tink about it",
			wantReply:     "Good attempt! Let's practice that sound again.",
			wantNext:      "Try saying 'think' again.",
			wantPronounce: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := &generate.Canned{}
			resp, err := c.Generate(context.Background(), tt.text, coach.DefaultProfile("u"), coach.SessionContext{SessionID: "s", Mode: tt.mode})
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if err := resp.Validate(); err != nil {
				t.Fatalf("invalid: %v", err)
			}
			if resp.Reply != tt.wantReply || resp.NextPrompt != tt.wantNext {
				t.Errorf("reply/next = %q / %q", resp.Reply, resp.NextPrompt)
			}
			if len(resp.Feedback.Grammar) != tt.wantGrammar {
				t.Errorf("grammar = %d, want %d", len(resp.Feedback.Grammar), tt.wantGrammar)
			}
			if len(resp.Feedback.Pronunciation) != tt.wantPronounce {
				t.Errorf("pronunciation = %d, want %d", len(resp.Feedback.Pronunciation), tt.wantPronounce)
			}
		})
	}
}

func TestCanned_PronunciationWord(t *testing.T) {
	t.Parallel()

	c := &generate.Canned{}
	resp, _ := c.Generate(context.Background(), "", coach.DefaultProfile("u"), coach.SessionContext{SessionID: "s", Mode: coach.ModePronunciationCoach})
	if got := resp.Feedback.Pronunciation[0].Word; got != "word" {
		t.Errorf("word = %q, want placeholder", got)
	}
}

func TestCanned_DelayHonoursContext(t *testing.T) {
	t.Parallel()

	c := &generate.Canned{Delay: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	resp, err := c.Generate(ctx, "hi", coach.DefaultProfile("u"), coach.SessionContext{SessionID: "s", Mode: coach.ModeGuidedLesson})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp == nil {
		t.Fatal("nil response after cancelled delay")
	}
}

func TestCanned_InvalidInput(t *testing.T) {
	t.Parallel()

	c := &generate.Canned{}
	if _, err := c.Generate(context.Background(), "hi", coach.DefaultProfile("u"), coach.SessionContext{Mode: coach.ModeGuidedLesson}); !errors.Is(err, generate.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

package generate

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/macca/internal/fallback"
	"github.com/MrWong99/macca/pkg/coach"
)

// Canned is the offline [ResponseGenerator] selected by the "mock" provider
// name. It answers with a fixed response per session mode, so the whole
// service can run without credentials.
type Canned struct {
	// Delay simulates model latency. Zero answers immediately.
	Delay time.Duration
}

var _ ResponseGenerator = (*Canned)(nil)

// Generate implements [ResponseGenerator].
func (c *Canned) Generate(ctx context.Context, userText string, profile coach.UserProfile, session coach.SessionContext) (*coach.Response, error) {
	if err := CheckInput(session); err != nil {
		return nil, err
	}
	if c.Delay > 0 {
		t := time.NewTimer(c.Delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	switch session.Mode {
	case coach.ModeGuidedLesson:
		return (&coach.Response{
			Reply:      "Great answer! Now let's move to the next part of our lesson.",
			NextPrompt: "Tell me about your work experience.",
		}).Normalize(), nil

	case coach.ModePronunciationCoach:
		word := "word"
		if f := strings.Fields(userText); len(f) > 0 {
			word = f[0]
		}
		return (&coach.Response{
			Reply: "Good attempt! Let's practice that sound again.",
			Feedback: coach.Feedback{
				Pronunciation: []coach.PronunciationFeedback{{
					Word:        word,
					TargetSound: "/θ/",
					Issue:       "th_sound",
					Tip:         "Put your tongue between your teeth",
					Severity:    coach.SeverityMedium,
				}},
			},
			NextPrompt: "Try saying 'think' again.",
		}).Normalize(), nil
	}

	// Live conversation reuses the fallback wording and adds the canned
	// office correction whenever "go" shows up.
	resp := fallback.Generate(userText, profile, session)
	if !mentionsGo(userText) {
		return resp, nil
	}
	const better = "I went to the office yesterday."
	lang := profile.ExplanationLanguage
	if !lang.IsValid() {
		lang = coach.LanguageIndonesian
	}
	explanation := "Gunakan past tense untuk kejadian kemarin"
	if lang == coach.LanguageEnglish {
		explanation = "Use past tense for yesterday's events"
	}
	resp.Feedback.BetterSentence = coach.Ptr(better)
	resp.Feedback.Grammar = []coach.GrammarFeedback{{
		Issue:               fallback.IssuePastTense,
		OriginalText:        userText,
		ExplanationLanguage: lang,
		Explanation:         explanation,
		Examples:            []string{"I went to work", "She visited her friend"},
	}}
	resp.Drills = []coach.Drill{{
		Type:        coach.DrillRepeatSentence,
		Instruction: "Please repeat this sentence:",
		Sentence:    coach.Ptr(better),
	}}
	return resp, nil
}

func mentionsGo(text string) bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z')
	})
	return slices.Contains(words, "go")
}

package turn

import (
	"fmt"

	"github.com/MrWong99/macca/pkg/coach"
)

// Fixed values of the flattened response older clients understand.
const (
	legacyFluencyScore = 85

	tipGoodID = "Bagus! Coba gunakan lebih banyak kata sifat."
	tipGoodEN = "Good! Try using more adjectives."

	encouragementID = "Sempurna! Mari lanjutkan."
	encouragementEN = "Perfect! Let's continue."
)

// LegacyResponse is the flattened turn result served to older clients.
type LegacyResponse struct {
	MaccaText     string          `json:"macca_text"`
	MaccaAudioURL string          `json:"macca_audio_url,omitempty"`
	Feedback      *LegacyFeedback `json:"feedback,omitempty"`
	NextStep      string          `json:"next_step,omitempty"`
}

// LegacyFeedback is the feedback block of a [LegacyResponse].
type LegacyFeedback struct {
	GrammarOK     bool   `json:"grammar_ok"`
	Tip           string `json:"tip,omitempty"`
	FluencyScore  *int   `json:"fluency_score,omitempty"`
	StepComplete  *bool  `json:"step_complete,omitempty"`
	Encouragement string `json:"encouragement,omitempty"`
}

// Project flattens resp for older clients. resp is only read.
//
// A response with grammar corrections reports grammar_ok=false and the first
// explanation as the tip. Otherwise the turn scores a fixed fluency of 85 with
// an encouraging tip. Guided lessons additionally mark the step complete and
// point at the following step, unless the lesson's last step is done.
func Project(resp *coach.Response, profile coach.UserProfile, session coach.SessionContext, audioRef string) LegacyResponse {
	out := LegacyResponse{MaccaText: resp.Reply, MaccaAudioURL: audioRef}
	fb := &LegacyFeedback{}
	id := profile.ExplanationLanguage == coach.LanguageIndonesian

	if len(resp.Feedback.Grammar) > 0 {
		fb.Tip = resp.Feedback.Grammar[0].Explanation
	} else {
		score := legacyFluencyScore
		fb.GrammarOK, fb.FluencyScore = true, &score
		fb.Tip = pick(id, tipGoodID, tipGoodEN)
	}

	if session.Mode == coach.ModeGuidedLesson {
		done := true
		fb.StepComplete = &done
		fb.Encouragement = pick(id, encouragementID, encouragementEN)
		out.NextStep = nextStep(session.LessonStep, session.LessonSteps)
	}
	out.Feedback = fb
	return out
}

// nextStep is empty once current reaches total.
func nextStep(current, total *int) string {
	step := 1
	if current != nil {
		step = *current
	}
	if total != nil && step >= *total {
		return ""
	}
	return fmt.Sprintf("step_%d", step+1)
}

func pick(indonesian bool, id, en string) string {
	if indonesian {
		return id
	}
	return en
}

// Package coach defines the data model shared by every stage of the Macca
// coaching pipeline: the learner profile, the per-turn session context and the
// canonical structured response ([Response]) that the generator produces and
// the orchestrator persists.
//
// The JSON field names of [Response] and its feedback types are a wire
// contract. Callers outside this module decode them, so renaming a tag is a
// breaking change.
package coach

import "strings"

// Level is a CEFR proficiency tier.
type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"
)

var levelOrder = map[Level]int{
	LevelA1: 1, LevelA2: 2, LevelB1: 3, LevelB2: 4, LevelC1: 5, LevelC2: 6,
}

// IsValid reports whether l is a recognised CEFR tier.
func (l Level) IsValid() bool {
	_, ok := levelOrder[l]
	return ok
}

// Ordinal returns the 1-based position of l in the A1–C2 scale, or 0 for an
// unknown level.
func (l Level) Ordinal() int {
	return levelOrder[Level(strings.ToUpper(string(l)))]
}

// Goal is the learner's stated reason for practising.
type Goal string

const (
	GoalJobInterview      Goal = "job_interview"
	GoalStudy             Goal = "study"
	GoalDailyConversation Goal = "daily_conversation"
)

// IsValid reports whether g is a recognised goal.
func (g Goal) IsValid() bool {
	switch g {
	case GoalJobInterview, GoalStudy, GoalDailyConversation:
		return true
	}
	return false
}

// Language selects the language used for grammar explanations.
type Language string

const (
	LanguageIndonesian Language = "id"
	LanguageEnglish    Language = "en"
)

// IsValid reports whether l is a supported explanation language.
func (l Language) IsValid() bool {
	return l == LanguageIndonesian || l == LanguageEnglish
}

// DisplayName returns the English name of the language for use in prompts.
func (l Language) DisplayName() string {
	if l == LanguageIndonesian {
		return "Indonesian"
	}
	return "English"
}

// Mode is the kind of practice session a turn belongs to.
type Mode string

const (
	ModeLiveConversation   Mode = "live_conversation"
	ModeGuidedLesson       Mode = "guided_lesson"
	ModePronunciationCoach Mode = "pronunciation_coach"
)

// IsValid reports whether m is a recognised session mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeLiveConversation, ModeGuidedLesson, ModePronunciationCoach:
		return true
	}
	return false
}

// ParseMode accepts both the canonical mode names and the short aliases used by
// older clients ("live", "guided", "pronunciation").
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live", string(ModeLiveConversation):
		return ModeLiveConversation, true
	case "guided", string(ModeGuidedLesson):
		return ModeGuidedLesson, true
	case "pronunciation", string(ModePronunciationCoach):
		return ModePronunciationCoach, true
	}
	return "", false
}

// UserProfile describes the learner for one turn. It is constructed by the
// caller and treated as immutable by the pipeline.
type UserProfile struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Level               Level    `json:"level"`
	Goal                Goal     `json:"goal"`
	ExplanationLanguage Language `json:"explanation_language"`
	CommonIssues        []string `json:"common_issues"`
}

// DefaultProfile returns the profile assigned to learners who have not set
// one up yet.
func DefaultProfile(userID string) UserProfile {
	return UserProfile{
		ID:                  userID,
		Name:                "User",
		Level:               LevelB1,
		Goal:                GoalDailyConversation,
		ExplanationLanguage: LanguageIndonesian,
		CommonIssues:        []string{},
	}
}

// SessionContext carries what the generator needs to know about the session a
// turn belongs to.
type SessionContext struct {
	SessionID        string   `json:"session_id"`
	Mode             Mode     `json:"mode"`
	Topic            string   `json:"topic,omitempty"`
	LessonID         string   `json:"lesson_id,omitempty"`
	LessonObjective  string   `json:"lesson_objective,omitempty"`
	TargetGrammar    []string `json:"target_grammar,omitempty"`
	TargetVocabulary []string `json:"target_vocabulary,omitempty"`
	LessonStep       *int     `json:"lesson_step,omitempty"`
	LessonSteps      *int     `json:"lesson_steps,omitempty"`
	ShortSummary     string   `json:"short_summary,omitempty"`
}

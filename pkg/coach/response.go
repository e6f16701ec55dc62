package coach

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Severity grades how much a pronunciation issue impairs intelligibility.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IsValid reports whether s is a recognised severity.
func (s Severity) IsValid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// DrillType is the kind of practice exercise offered after a turn.
type DrillType string

const (
	DrillRepeatSentence DrillType = "repeat_sentence"
	DrillShortAnswer    DrillType = "short_answer"
)

// IsValid reports whether d is a recognised drill type.
func (d DrillType) IsValid() bool {
	return d == DrillRepeatSentence || d == DrillShortAnswer
}

// GrammarFeedback is one grammar correction.
type GrammarFeedback struct {
	Issue               string   `json:"issue"`
	OriginalText        string   `json:"original_text"`
	ExplanationLanguage Language `json:"explanation_language"`
	Explanation         string   `json:"explanation"`
	Examples            []string `json:"examples"`
}

// VocabularyFeedback suggests a word worth learning.
type VocabularyFeedback struct {
	Word        string `json:"word"`
	Translation string `json:"translation"`
	Example     string `json:"example"`
}

// PronunciationFeedback flags a sound the learner should work on.
type PronunciationFeedback struct {
	Word        string   `json:"word"`
	TargetSound string   `json:"target_sound"`
	Issue       string   `json:"issue"`
	Tip         string   `json:"tip"`
	Severity    Severity `json:"severity"`
}

// Feedback groups all corrective feedback for one turn.
type Feedback struct {
	BetterSentence *string                 `json:"better_sentence"`
	Grammar        []GrammarFeedback       `json:"grammar"`
	Vocabulary     []VocabularyFeedback    `json:"vocabulary"`
	Pronunciation  []PronunciationFeedback `json:"pronunciation"`
}

// Drill is a follow-up exercise.
type Drill struct {
	Type        DrillType `json:"type"`
	Instruction string    `json:"instruction"`
	Sentence    *string   `json:"sentence,omitempty"`
	Question    *string   `json:"question,omitempty"`
}

// Response is the canonical structured result of one conversational turn.
//
// A Response is valid when Reply and NextPrompt are non-empty and all three
// feedback arrays are present. Use [Response.Normalize] before encoding so
// that empty arrays serialise as [] rather than null.
type Response struct {
	Reply      string   `json:"reply"`
	Feedback   Feedback `json:"feedback"`
	Drills     []Drill  `json:"drills"`
	NextPrompt string   `json:"next_prompt"`
}

// Validation errors returned (joined) by [Response.Validate].
var (
	ErrEmptyReply       = errors.New("coach: reply must not be empty")
	ErrEmptyNextPrompt  = errors.New("coach: next_prompt must not be empty")
	ErrMissingFeedback  = errors.New("coach: feedback arrays must be present")
	ErrInvalidSeverity  = errors.New("coach: invalid pronunciation severity")
	ErrInvalidDrillType = errors.New("coach: invalid drill type")
	ErrInvalidLanguage  = errors.New("coach: invalid explanation language")
)

// Normalize replaces nil slices with empty ones, in place. It returns r for
// chaining.
func (r *Response) Normalize() *Response {
	if r.Feedback.Grammar == nil {
		r.Feedback.Grammar = []GrammarFeedback{}
	}
	if r.Feedback.Vocabulary == nil {
		r.Feedback.Vocabulary = []VocabularyFeedback{}
	}
	if r.Feedback.Pronunciation == nil {
		r.Feedback.Pronunciation = []PronunciationFeedback{}
	}
	if r.Drills == nil {
		r.Drills = []Drill{}
	}
	for i := range r.Feedback.Grammar {
		if r.Feedback.Grammar[i].Examples == nil {
			r.Feedback.Grammar[i].Examples = []string{}
		}
	}
	return r
}

// Validate reports every violation of the response invariant. A nil error
// means the response may be handed to callers.
func (r *Response) Validate() error {
	if r == nil {
		return ErrEmptyReply
	}
	var errs []error
	if strings.TrimSpace(r.Reply) == "" {
		errs = append(errs, ErrEmptyReply)
	}
	if strings.TrimSpace(r.NextPrompt) == "" {
		errs = append(errs, ErrEmptyNextPrompt)
	}
	if r.Feedback.Grammar == nil || r.Feedback.Vocabulary == nil || r.Feedback.Pronunciation == nil {
		errs = append(errs, ErrMissingFeedback)
	}
	for i, g := range r.Feedback.Grammar {
		if g.ExplanationLanguage != "" && !g.ExplanationLanguage.IsValid() {
			errs = append(errs, fmt.Errorf("grammar[%d]: %w %q", i, ErrInvalidLanguage, g.ExplanationLanguage))
		}
	}
	for i, p := range r.Feedback.Pronunciation {
		if !p.Severity.IsValid() {
			errs = append(errs, fmt.Errorf("pronunciation[%d]: %w %q", i, ErrInvalidSeverity, p.Severity))
		}
	}
	for i, d := range r.Drills {
		if !d.Type.IsValid() {
			errs = append(errs, fmt.Errorf("drills[%d]: %w %q", i, ErrInvalidDrillType, d.Type))
		}
	}
	return errors.Join(errs...)
}

// HasGrammar reports whether the response carries at least one grammar
// correction.
func (r *Response) HasGrammar() bool {
	return len(r.Feedback.Grammar) > 0
}

// Ptr returns a pointer to s. It is a convenience for optional string fields.
func Ptr(s string) *string { return &s }

// VocabularySource records how a vocabulary item entered the learner's deck.
type VocabularySource string

const (
	SourceConversation VocabularySource = "conversation"
	SourceLesson       VocabularySource = "lesson"
	SourceManual       VocabularySource = "manual"
)

// IsValid reports whether s is a recognised source.
func (s VocabularySource) IsValid() bool {
	switch s {
	case SourceConversation, SourceLesson, SourceManual:
		return true
	}
	return false
}

// VocabularyItem is one entry in a learner's spaced-repetition deck.
type VocabularyItem struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	Word           string           `json:"word"`
	Translation    string           `json:"translation"`
	Example        string           `json:"example"`
	Source         VocabularySource `json:"source"`
	Strength       float64          `json:"strength"`
	LastReviewedAt *time.Time       `json:"last_reviewed_at"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Role identifies the speaker of an utterance.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Utterance is one persisted side of a turn.
type Utterance struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	Role        Role      `json:"role"`
	Transcript  string    `json:"transcript"`
	AudioRef    string    `json:"audio_ref,omitempty"`
	RawResponse []byte    `json:"raw_response,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// IssueType classifies a persisted feedback issue.
type IssueType string

const (
	IssueGrammar       IssueType = "grammar"
	IssueVocabulary    IssueType = "vocabulary"
	IssuePronunciation IssueType = "pronunciation"
)

// FeedbackIssue is one feedback element persisted for analytics.
type FeedbackIssue struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	UtteranceID string    `json:"utterance_id"`
	Type        IssueType `json:"type"`
	IssueCode   string    `json:"issue_code"`
	Detail      []byte    `json:"detail"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session is a practice session started by a learner.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Mode      Mode      `json:"mode"`
	Topic     string    `json:"topic,omitempty"`
	LessonID  string    `json:"lesson_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

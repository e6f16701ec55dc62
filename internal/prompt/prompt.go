// Package prompt assembles the completion request sent to the response
// generator for one learner turn.
//
// [Build] is a pure function of its inputs. The system prompt holds the
// persona, the learner profile, the session, the output contract, the mode
// directives and three worked examples, in that order.
package prompt

import (
	"fmt"
	"strings"

	"github.com/MrWong99/macca/pkg/coach"
	"github.com/MrWong99/macca/pkg/provider/llm"
)

// Generation parameters used for every coaching turn.
const (
	Temperature = 0.7
	MaxTokens   = 1024
)

// contractShape documents the required JSON structure. The explanation
// language placeholder is filled per learner.
const contractShape = `{
  "reply": "your encouraging conversational response in English",
  "feedback": {
    "better_sentence": "corrected sentence, or null when nothing needs fixing",
    "grammar": [{
      "issue": "grammar_issue_code",
      "original_text": "the learner's words",
      "explanation_language": "%s",
      "explanation": "explanation in %s",
      "examples": ["example 1", "example 2"]
    }],
    "vocabulary": [{
      "word": "word",
      "translation": "translation",
      "example": "example sentence"
    }],
    "pronunciation": [{
      "word": "word",
      "target_sound": "/sound/",
      "issue": "issue_code",
      "tip": "pronunciation tip",
      "severity": "low|medium|high"
    }]
  },
  "drills": [{
    "type": "repeat_sentence|short_answer",
    "instruction": "instruction text",
    "sentence": "sentence to repeat (repeat_sentence only)",
    "question": "question to answer (short_answer only)"
  }],
  "next_prompt": "follow-up question or prompt"
}`

// Build returns the completion request for userText.
func Build(userText string, profile coach.UserProfile, session coach.SessionContext) llm.CompletionRequest {
	return llm.CompletionRequest{
		SystemPrompt: System(profile, session),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: UserMessage(userText)},
		},
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
		JSONMode:    true,
	}
}

// UserMessage wraps the learner's words in the turn instruction.
func UserMessage(userText string) string {
	return "User said: '" + userText + "'\n\nProvide your response as valid JSON:"
}

// System renders the system prompt.
func System(profile coach.UserProfile, session coach.SessionContext) string {
	lang := profile.ExplanationLanguage
	if !lang.IsValid() {
		lang = coach.LanguageIndonesian
	}

	var b strings.Builder
	b.WriteString("You are Macca, an AI English speaking coach for Indonesian learners.\n\n")

	b.WriteString("User Profile:\n")
	fmt.Fprintf(&b, "- Name: %s\n", orDefault(profile.Name, "User"))
	fmt.Fprintf(&b, "- Level: %s\n", orDefault(string(profile.Level), string(coach.LevelB1)))
	fmt.Fprintf(&b, "- Goal: %s\n", orDefault(string(profile.Goal), string(coach.GoalDailyConversation)))
	fmt.Fprintf(&b, "- Explanation Language: %s\n", lang.DisplayName())
	if len(profile.CommonIssues) > 0 {
		fmt.Fprintf(&b, "- Recurring issues: %s\n", strings.Join(profile.CommonIssues, ", "))
	}

	b.WriteString("\nSession Context:\n")
	fmt.Fprintf(&b, "- Mode: %s\n", session.Mode)
	fmt.Fprintf(&b, "- Topic: %s\n", orDefault(session.Topic, "General conversation"))
	if session.ShortSummary != "" {
		fmt.Fprintf(&b, "- So far: %s\n", session.ShortSummary)
	}

	b.WriteString("\nInstructions:\n")
	b.WriteString("1. Provide natural, encouraging responses in English.\n")
	fmt.Fprintf(&b, "2. Write every grammar explanation in %s.\n", lang.DisplayName())
	b.WriteString("3. Give constructive feedback on grammar, vocabulary and pronunciation; use empty arrays when there is nothing to say.\n")
	b.WriteString("4. Respond with ONE JSON object and nothing else, matching this structure exactly:\n\n")
	fmt.Fprintf(&b, contractShape, lang, lang.DisplayName())
	b.WriteString("\n\n")

	writeModeDirectives(&b, session)

	b.WriteString("\nWorked examples:\n")
	for i, ex := range examples {
		fmt.Fprintf(&b, "\nExample %d (%s)\nUser said: '%s'\nResponse:\n%s\n", i+1, ex.title, ex.said, ex.output)
	}
	return b.String()
}

func writeModeDirectives(b *strings.Builder, session coach.SessionContext) {
	switch session.Mode {
	case coach.ModeGuidedLesson:
		b.WriteString("Guided Lesson Mode:\n")
		if session.LessonObjective != "" {
			fmt.Fprintf(b, "- Lesson objective: %s\n", session.LessonObjective)
		}
		if session.LessonStep != nil {
			fmt.Fprintf(b, "- Current step: %d\n", *session.LessonStep)
		}
		if len(session.TargetGrammar) > 0 {
			fmt.Fprintf(b, "- Target grammar: %s\n", strings.Join(session.TargetGrammar, ", "))
		}
		if len(session.TargetVocabulary) > 0 {
			fmt.Fprintf(b, "- Target vocabulary: %s\n", strings.Join(session.TargetVocabulary, ", "))
		}
		b.WriteString("- Drill the target grammar: correct every misuse and add a drill that practises it.\n")
		b.WriteString("- Keep the learner on the current step and end with the prompt for the next one.\n")
	case coach.ModePronunciationCoach:
		b.WriteString("Pronunciation Coach Mode:\n")
		b.WriteString("- Focus on pronunciation feedback; name the target sound in IPA and give a practical tip.\n")
		b.WriteString("- Grade each issue with severity low, medium or high.\n")
		b.WriteString("- Prefer repeat_sentence drills that contain the target sound.\n")
	default:
		b.WriteString("Live Conversation Mode:\n")
		b.WriteString("- Have a natural conversation and ask one follow-up question about what the learner said.\n")
		b.WriteString("- Give feedback after each turn without interrupting the flow.\n")
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

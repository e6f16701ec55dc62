// Package fallback produces a structurally valid [coach.Response] without a
// generator. It is used whenever the provider fails or its output cannot be
// parsed, so the learner always gets an answer.
//
// The rules are deliberately small and deterministic: the same input always
// yields the same response.
package fallback

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/macca/pkg/coach"
)

// NextPrompt is the follow-up question of every fallback response.
const NextPrompt = "Can you tell me more about your day?"

// IssuePastTense is the grammar issue code emitted by the past-tense rule.
const IssuePastTense = "past_tense"

const (
	explainPastTenseID = "Gunakan past tense untuk kejadian kemarin"
	explainPastTenseEN = "Use past tense for yesterday's events"

	repeatInstruction = "Please repeat this sentence:"

	// quoteLen is how many characters of the learner's text are echoed back.
	quoteLen = 30
)

var pastTenseExamples = []string{"I went to work", "She visited her friend"}

// pastForms maps unconjugated main verbs to their simple past. Auxiliaries
// ("do", "have") are left out: their base form is often correct in a past
// sentence ("What did you do", "I have a cat").
var pastForms = map[string]string{
	"go":   "went",
	"eat":  "ate",
	"see":  "saw",
	"buy":  "bought",
	"come": "came",
	"make": "made",
	"take": "took",
	"meet": "met",
}

var (
	pastMarker = regexp.MustCompile(`(?i)\b(yesterday|last|ago)\b`)
	word       = regexp.MustCompile(`[\p{L}']+`)
)

// subjects are the words after which a base verb is a finite verb.
var subjects = set("i", "you", "he", "she", "we", "they", "it")

// auxiliaries anywhere earlier in a clause keep its main verb in the base
// form ("Where did you go", "You will go").
var auxiliaries = set(
	"did", "do", "does", "didn't", "don't", "doesn't",
	"will", "would", "can", "could", "should", "must", "may", "might",
	"won't", "wouldn't", "can't", "cannot", "couldn't", "shouldn't",
)

// notSubjects never stand directly before a finite verb: the infinitive
// marker, articles, conjunctions, prepositions and time words.
var notSubjects = set(
	"to", "let's", "a", "an", "the", "and", "or", "but", "then", "so", "not", "please",
	"in", "on", "at", "for", "with", "from", "of", "about", "there", "here",
	"yesterday", "ago", "last", "today", "night", "week", "weekend", "month", "year", "time",
)

// adverbs may sit between a subject and its verb ("I also go").
var adverbs = set("also", "always", "often", "usually", "just", "really", "never", "sometimes")

// continuations join a second verb to the same subject ("I buy a car and see").
var continuations = set("and", "then")

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Generate returns a valid response for userText. Only the explanation
// language of profile is consulted; the session does not change the rules.
func Generate(userText string, profile coach.UserProfile, _ coach.SessionContext) *coach.Response {
	text := strings.TrimSpace(userText)

	resp := &coach.Response{
		Reply:      reply(text),
		NextPrompt: NextPrompt,
	}

	if better, ok := correctPastTense(text); ok {
		lang := profile.ExplanationLanguage
		if !lang.IsValid() {
			lang = coach.LanguageIndonesian
		}
		explanation := explainPastTenseID
		if lang == coach.LanguageEnglish {
			explanation = explainPastTenseEN
		}
		resp.Feedback.BetterSentence = coach.Ptr(better)
		resp.Feedback.Grammar = []coach.GrammarFeedback{{
			Issue:               IssuePastTense,
			OriginalText:        text,
			ExplanationLanguage: lang,
			Explanation:         explanation,
			Examples:            append([]string(nil), pastTenseExamples...),
		}}
		resp.Drills = []coach.Drill{{
			Type:        coach.DrillRepeatSentence,
			Instruction: repeatInstruction,
			Sentence:    coach.Ptr(better),
		}}
	}

	return resp.Normalize()
}

// correctPastTense rewrites base verbs to their past form when text refers to
// past time. A verb is rewritten only as the finite verb of its clause: right
// after a subject (pronoun or noun, optionally through an adverb), or after
// "and"/"then" once the clause already had a rewrite, and never in a clause
// carrying an auxiliary. It reports false when nothing was rewritten.
func correctPastTense(text string) (string, bool) {
	if !pastMarker.MatchString(text) {
		return "", false
	}

	var (
		out       strings.Builder
		last      int
		prev      []string // lower-cased words of the current clause
		rewritten bool     // the current clause already had a rewrite
		changed   bool
	)
	for _, loc := range word.FindAllStringIndex(text, -1) {
		if strings.ContainsAny(text[last:loc[0]], ".!?;,") {
			prev, rewritten = prev[:0], false
		}
		w := text[loc[0]:loc[1]]
		lw := strings.ToLower(w)
		if past, ok := pastForms[lw]; ok && finite(prev, rewritten) {
			out.WriteString(text[last:loc[0]])
			out.WriteString(matchCase(w, past))
			last = loc[1]
			rewritten, changed = true, true
		}
		prev = append(prev, lw)
	}
	if !changed {
		return "", false
	}
	out.WriteString(text[last:])
	return out.String(), true
}

// finite reports whether a verb following the words in clause is the
// clause's finite verb.
func finite(clause []string, rewritten bool) bool {
	if slices.ContainsFunc(clause, func(w string) bool { return auxiliaries[w] }) {
		return false
	}
	i := len(clause) - 1
	for i >= 0 && adverbs[clause[i]] {
		i--
	}
	if i < 0 {
		return false
	}
	p := clause[i]
	switch {
	case continuations[p]:
		return rewritten
	case subjects[p]:
		return true
	case notSubjects[p], pastForms[p] != "":
		return false
	}
	// A noun subject; question words are not.
	return !strings.HasPrefix(p, "wh") && p != "how"
}

// matchCase applies the capitalisation of orig to repl.
func matchCase(orig, repl string) string {
	if len(orig) > 1 && strings.ToUpper(orig) == orig {
		return strings.ToUpper(repl)
	}
	r, _ := utf8.DecodeRuneInString(orig)
	if unicode.IsUpper(r) {
		first, size := utf8.DecodeRuneInString(repl)
		return string(unicode.ToUpper(first)) + repl[size:]
	}
	return repl
}

func reply(text string) string {
	if text == "" {
		return "That's interesting! Can you tell me more about that?"
	}
	quoted := text
	if utf8.RuneCountInString(text) > quoteLen {
		quoted = string([]rune(text)[:quoteLen])
	}
	return "That's interesting! You mentioned '" + quoted + "...'. Can you tell me more about that?"
}

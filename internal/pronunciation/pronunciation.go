// Package pronunciation scores a learner's attempt at a single word.
//
// There is no signal processing: the recognised text is compared with the
// expected word using Double Metaphone codes and Jaro-Winkler similarity, and
// each tricky sound in the word is checked for whether its spelling survived
// recognition. A learner who says "tink" for "think" keeps the phonetic code
// close but loses the "th", so /θ/ is flagged.
package pronunciation

import (
	"errors"
	"math"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/macca/pkg/coach"
)

// Status buckets a score.
type Status string

const (
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusNeedsWork Status = "needs_work"
)

// Score thresholds.
const (
	ExcellentScore = 90
	GoodScore      = 75

	// lostSoundCap is the highest score a sound can get when its spelling is
	// missing from the recognised text.
	lostSoundCap = 65
	// phoneticFloor is the lowest similarity credited when the Double
	// Metaphone codes of target and attempt overlap.
	phoneticFloor = 0.8
)

// ErrEmpty is returned when either the target word or the attempt is empty.
var ErrEmpty = errors.New("pronunciation: target and attempt must not be empty")

// Result is the verdict for one sound of the target word.
type Result struct {
	Word        string `json:"word"`
	TargetSound string `json:"target_sound"`
	Status      Status `json:"status"`
	Score       int    `json:"score"`
	// Tip is in the requested explanation language.
	Tip   string `json:"tip"`
	TipID string `json:"tip_id"`
	TipEN string `json:"tip_en"`
}

// Check scores heard against target. One result is returned per tricky sound
// found in target, or a single whole-word result when it has none.
func Check(target, heard string, lang coach.Language) ([]Result, error) {
	word := normalize(target)
	tokens := strings.Fields(normalizeText(heard))
	if word == "" || len(tokens) == 0 {
		return nil, ErrEmpty
	}

	best, sim := closest(word, tokens)
	base := sim * 100

	found := soundsIn(word)
	if len(found) == 0 {
		return []Result{build(target, wholeWord, int(math.Round(base)), lang)}, nil
	}
	results := make([]Result, 0, len(found))
	for _, s := range found {
		score := base
		if !s.kept(best) {
			score = min(score, lostSoundCap)
		}
		results = append(results, build(target, s, int(math.Round(score)), lang))
	}
	return results, nil
}

// Feedback converts needs-work results into the structured feedback the rest
// of the pipeline understands.
func Feedback(results []Result, lang coach.Language) []coach.PronunciationFeedback {
	out := make([]coach.PronunciationFeedback, 0, len(results))
	for _, r := range results {
		if r.Status != StatusNeedsWork {
			continue
		}
		severity := coach.SeverityMedium
		if r.Score < 40 {
			severity = coach.SeverityHigh
		}
		tip := r.TipEN
		if lang == coach.LanguageIndonesian {
			tip = r.TipID
		}
		out = append(out, coach.PronunciationFeedback{
			Word:        r.Word,
			TargetSound: r.TargetSound,
			Issue:       issueCode(r.TargetSound),
			Tip:         tip,
			Severity:    severity,
		})
	}
	return out
}

// closest returns the attempt token most similar to word and its similarity
// in [0, 1].
func closest(word string, tokens []string) (string, float64) {
	wordCodes := codes(word)
	var (
		best string
		sim  = -1.0
	)
	for _, tok := range tokens {
		s := matchr.JaroWinkler(word, tok, false)
		if overlaps(wordCodes, codes(tok)) {
			s = max(s, phoneticFloor)
		}
		if tok == word {
			s = 1
		}
		if s > sim {
			best, sim = tok, s
		}
	}
	return best, sim
}

func build(word string, s sound, score int, lang coach.Language) Result {
	score = min(100, max(0, score))
	r := Result{Word: word, TargetSound: s.symbol, Score: score}
	switch {
	case score >= ExcellentScore:
		r.Status = StatusExcellent
	case score >= GoodScore:
		r.Status = StatusGood
	default:
		r.Status = StatusNeedsWork
	}
	if r.Status == StatusNeedsWork {
		r.TipID, r.TipEN = s.tipID, s.tipEN
	} else {
		r.TipID, r.TipEN = s.goodID, s.goodEN
	}
	r.Tip = r.TipEN
	if lang == coach.LanguageIndonesian {
		r.Tip = r.TipID
	}
	return r
}

func codes(s string) map[string]struct{} {
	p, sec := matchr.DoubleMetaphone(s)
	out := make(map[string]struct{}, 2)
	if p != "" {
		out[p] = struct{}{}
	}
	if sec != "" {
		out[sec] = struct{}{}
	}
	return out
}

func overlaps(a, b map[string]struct{}) bool {
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	f := strings.Fields(normalizeText(s))
	if len(f) == 0 {
		return ""
	}
	return strings.Join(f, "")
}

// normalizeText lower-cases s and replaces everything but letters and
// apostrophes with spaces.
func normalizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || r == '\'' {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
}

func issueCode(symbol string) string {
	switch symbol {
	case "/θ/", "/ð/":
		return "th_sound"
	case "/v/":
		return "v_sound"
	case "/r/":
		return "r_sound"
	case "vowel /ɪ/":
		return "short_i"
	}
	return "pronunciation"
}

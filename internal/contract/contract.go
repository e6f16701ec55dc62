// Package contract turns raw generator output into a validated
// [coach.Response].
//
// Generators are free-form text producers: they wrap the JSON object in prose,
// code fences or trailing remarks, and occasionally emit an array with the
// wrong element shape. [Parse] locates the first complete top-level object,
// decodes the envelope strictly and each feedback array leniently. A broken
// array is replaced by an empty one and reported in [Diagnostics]; a missing
// reply or next_prompt fails the whole parse.
package contract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/macca/pkg/coach"
)

// Kind classifies a parse failure.
type Kind int

const (
	// KindNoObject means the output contained no complete JSON object.
	KindNoObject Kind = iota + 1
	// KindMalformed means an object was found but could not be decoded.
	KindMalformed
	// KindInvalid means the object decoded but violates the response contract.
	KindInvalid
)

// String returns a short label suitable for log attributes and metrics.
func (k Kind) String() string {
	switch k {
	case KindNoObject:
		return "no_object"
	case KindMalformed:
		return "malformed"
	case KindInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels matched by [errors.Is] against an [*Error] of the same kind.
var (
	ErrNoObject  = errors.New("contract: no JSON object in output")
	ErrMalformed = errors.New("contract: malformed JSON object")
	ErrInvalid   = errors.New("contract: response violates contract")
)

// Error is returned by [Parse] for every failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.sentinel().Error()
	}
	return e.sentinel().Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.sentinel()}
	}
	return []error{e.sentinel(), e.Err}
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindNoObject:
		return ErrNoObject
	case KindMalformed:
		return ErrMalformed
	default:
		return ErrInvalid
	}
}

// Diagnostics lists the fields that were discarded while parsing. The
// response is still valid when Dropped is non-empty.
type Diagnostics struct {
	Dropped []string
}

func (d *Diagnostics) drop(field string, err error) {
	d.Dropped = append(d.Dropped, field+": "+err.Error())
}

// Parse extracts and validates a response from raw generator output.
func Parse(raw string) (*coach.Response, error) {
	resp, _, err := ParseWithDiagnostics(raw)
	return resp, err
}

// ParseWithDiagnostics is [Parse] that also reports the fields it discarded.
// On error the response is always nil.
func ParseWithDiagnostics(raw string) (*coach.Response, Diagnostics, error) {
	var diag Diagnostics

	candidates := objects(raw)
	if len(candidates) == 0 {
		return nil, diag, &Error{Kind: KindNoObject}
	}

	// Commentary may itself contain braces ("{name}"), so the first object that
	// decodes as a JSON object wins.
	var (
		env      map[string]json.RawMessage
		firstErr error
	)
	for _, c := range candidates {
		var m map[string]json.RawMessage
		if err := json.Unmarshal([]byte(c), &m); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		env = m
		break
	}
	if env == nil {
		return nil, diag, &Error{Kind: KindMalformed, Err: firstErr}
	}

	resp, err := decode(env, &diag)
	if err != nil {
		return nil, diag, err
	}
	resp.Normalize()
	if err := resp.Validate(); err != nil {
		return nil, diag, &Error{Kind: KindInvalid, Err: err}
	}
	return resp, diag, nil
}

func decode(env map[string]json.RawMessage, diag *Diagnostics) (*coach.Response, error) {
	reply, err := requiredString(env, "reply")
	if err != nil {
		return nil, err
	}
	next, err := requiredString(env, "next_prompt")
	if err != nil {
		return nil, err
	}

	resp := &coach.Response{Reply: reply, NextPrompt: next}

	var fb map[string]json.RawMessage
	if raw, ok := env["feedback"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &fb); err != nil {
			diag.drop("feedback", err)
			fb = nil
		}
	}

	if raw, ok := fb["better_sentence"]; ok && !isNull(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			diag.drop("feedback.better_sentence", err)
		} else if strings.TrimSpace(s) != "" {
			resp.Feedback.BetterSentence = &s
		}
	}

	resp.Feedback.Grammar = decodeArray(fb["grammar"], "feedback.grammar", diag, checkGrammar)
	resp.Feedback.Vocabulary = decodeArray[coach.VocabularyFeedback](fb["vocabulary"], "feedback.vocabulary", diag, nil)
	resp.Feedback.Pronunciation = decodeArray(fb["pronunciation"], "feedback.pronunciation", diag, checkPronunciation)
	resp.Drills = decodeArray(env["drills"], "drills", diag, checkDrill)
	return resp, nil
}

func requiredString(env map[string]json.RawMessage, field string) (string, error) {
	raw, ok := env[field]
	if !ok || isNull(raw) {
		return "", &Error{Kind: KindInvalid, Err: fmt.Errorf("missing %s", field)}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &Error{Kind: KindInvalid, Err: fmt.Errorf("%s: %w", field, err)}
	}
	if strings.TrimSpace(s) == "" {
		return "", &Error{Kind: KindInvalid, Err: fmt.Errorf("empty %s", field)}
	}
	return s, nil
}

// decodeArray decodes every element of raw independently. If any element
// fails to decode or check, the whole array is discarded so that no partially
// decoded list reaches the caller. Absent arrays yield an empty slice.
func decodeArray[T any](raw json.RawMessage, field string, diag *Diagnostics, check func(T) error) []T {
	out := []T{}
	if len(raw) == 0 || isNull(raw) {
		return out
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		diag.drop(field, err)
		return out
	}
	for i, e := range elems {
		var v T
		if err := json.Unmarshal(e, &v); err != nil {
			diag.drop(fmt.Sprintf("%s[%d]", field, i), err)
			return []T{}
		}
		if check != nil {
			if err := check(v); err != nil {
				diag.drop(fmt.Sprintf("%s[%d]", field, i), err)
				return []T{}
			}
		}
		out = append(out, v)
	}
	return out
}

func checkGrammar(g coach.GrammarFeedback) error {
	if g.ExplanationLanguage != "" && !g.ExplanationLanguage.IsValid() {
		return fmt.Errorf("%w %q", coach.ErrInvalidLanguage, g.ExplanationLanguage)
	}
	return nil
}

func checkPronunciation(p coach.PronunciationFeedback) error {
	if !p.Severity.IsValid() {
		return fmt.Errorf("%w %q", coach.ErrInvalidSeverity, p.Severity)
	}
	return nil
}

func checkDrill(d coach.Drill) error {
	if !d.Type.IsValid() {
		return fmt.Errorf("%w %q", coach.ErrInvalidDrillType, d.Type)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

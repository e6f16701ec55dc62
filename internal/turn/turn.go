// Package turn runs one conversation turn end to end: recognise the learner's
// speech, generate the coaching response, optionally voice the reply, and
// persist the result.
//
// Provider stages run strictly in sequence. Persistence follows a fixed order:
// the learner's utterance, then the assistant's utterance, then one feedback
// issue per feedback element. The context is checked before every write, so a
// cancelled turn stops cleanly between records and no feedback issue is ever
// written without the utterance it references.
package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/macca/internal/blob"
	"github.com/MrWong99/macca/internal/generate"
	"github.com/MrWong99/macca/internal/observe"
	"github.com/MrWong99/macca/internal/store"
	"github.com/MrWong99/macca/pkg/coach"
	"github.com/MrWong99/macca/pkg/provider/stt"
)

// ErrEmptyTurn is returned when a request carries neither text nor audio.
var ErrEmptyTurn = errors.New("turn: user text or audio is required")

// Recognizer turns captured audio into text. Implementations never fail; a
// problem yields [stt.SentinelTranscript].
type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte, language string) string
}

// Synthesizer renders a reply and returns the blob reference of the clip. ok is
// false when the voice is unavailable.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (ref string, ok bool)
}

// Deck receives vocabulary suggested during a turn.
type Deck interface {
	AddIfNew(ctx context.Context, userID, word, translation, example string, source coach.VocabularySource) (coach.VocabularyItem, bool, error)
}

// Request is one learner turn.
type Request struct {
	UserID  string
	Profile coach.UserProfile
	Session coach.SessionContext

	// Text is used when Audio is empty.
	Text string
	// Audio is the captured recording. When set it takes precedence over
	// Text.
	Audio []byte
	// AudioExt is the file extension used to store Audio, e.g. "webm".
	AudioExt string
	// Language is the recognition language hint. Default "en".
	Language string

	// Synthesize requests a voiced reply.
	Synthesize bool
}

// Result is what a completed turn hands back.
type Result struct {
	Transcript string
	Response   *coach.Response
	// AudioRef is the blob reference of the voiced reply, empty when no voice
	// was requested or the voice was unavailable.
	AudioRef string

	User      coach.Utterance
	Assistant coach.Utterance
	Issues    []coach.FeedbackIssue
	// Added holds vocabulary items that entered the learner's deck.
	Added []coach.VocabularyItem
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithRecognizer sets the speech recogniser. Without one, audio turns get the
// sentinel transcript.
func WithRecognizer(r Recognizer) Option {
	return func(o *Orchestrator) { o.recognizer = r }
}

// WithSynthesizer sets the reply voice. Without one, every voice request
// reports the voice as unavailable.
func WithSynthesizer(s Synthesizer) Option {
	return func(o *Orchestrator) { o.synthesizer = s }
}

// WithBlobStore sets where captured audio is kept. Without one, captured
// audio is transcribed but not stored.
func WithBlobStore(b blob.Store) Option {
	return func(o *Orchestrator) { o.blobs = b }
}

// WithDeck adds suggested vocabulary to the learner's deck.
func WithDeck(d Deck) Option {
	return func(o *Orchestrator) { o.deck = d }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator sequences the stages of a turn. It holds no per-turn state and
// is safe for concurrent use.
type Orchestrator struct {
	generator   generate.ResponseGenerator
	utterances  store.UtteranceStore
	recognizer  Recognizer
	synthesizer Synthesizer
	blobs       blob.Store
	deck        Deck
	metrics     *observe.Metrics
}

// New returns an Orchestrator generating with gen and persisting through
// utterances.
func New(gen generate.ResponseGenerator, utterances store.UtteranceStore, opts ...Option) (*Orchestrator, error) {
	if gen == nil {
		return nil, errors.New("turn: generator must not be nil")
	}
	if utterances == nil {
		return nil, errors.New("turn: utterance store must not be nil")
	}
	o := &Orchestrator{generator: gen, utterances: utterances}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o, nil
}

// Run executes one turn. Provider failures never surface here; the returned
// error reports invalid input, cancellation or a persistence failure.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if err := generate.CheckInput(req.Session); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id must not be empty", generate.ErrInvalidInput)
	}
	if len(req.Audio) == 0 && strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyTurn
	}

	start := time.Now()
	defer o.metrics.TurnStarted(ctx)()

	ctx = observe.WithLearner(ctx, req.UserID, req.Session.SessionID)
	ctx, span := observe.StartSpan(ctx, observe.SpanTurn)
	defer span.End()
	span.SetAttributes(attribute.String("macca.mode", string(req.Session.Mode)))
	log := observe.Logger(ctx)

	res := &Result{}
	var capturedRef string
	if len(req.Audio) > 0 {
		capturedRef = o.keepCapture(ctx, req)
		res.Transcript = o.transcribe(ctx, req)
	} else {
		res.Transcript = strings.TrimSpace(req.Text)
	}

	resp, err := o.generator.Generate(ctx, res.Transcript, req.Profile, req.Session)
	if err == nil && resp == nil {
		err = errors.New("generator returned no response")
	}
	if err != nil {
		return nil, fmt.Errorf("turn: generate: %w", err)
	}
	res.Response = resp.Normalize()

	if req.Synthesize {
		if o.synthesizer != nil {
			res.AudioRef, _ = o.synthesizer.Synthesize(ctx, resp.Reply)
		}
		if res.AudioRef == "" {
			log.Info("turn: voice unavailable")
		}
	}

	if err := o.persist(ctx, req, capturedRef, res); err != nil {
		span.RecordError(err)
		return nil, err
	}
	res.Added = o.addVocabulary(ctx, req, resp)

	log.Debug("turn: completed",
		"issues", len(res.Issues),
		"voiced", res.AudioRef != "",
		"duration", time.Since(start))
	return res, nil
}

func (o *Orchestrator) keepCapture(ctx context.Context, req Request) string {
	if o.blobs == nil {
		return ""
	}
	ext := req.AudioExt
	if ext == "" {
		ext = "webm"
	}
	ref, err := o.blobs.Save(ctx, req.Audio, ext)
	if err != nil {
		observe.Logger(ctx).Warn("turn: could not store captured audio", "error", err)
		return ""
	}
	return ref
}

func (o *Orchestrator) transcribe(ctx context.Context, req Request) string {
	if o.recognizer == nil {
		return stt.SentinelTranscript
	}
	lang := req.Language
	if lang == "" {
		lang = "en"
	}
	return o.recognizer.Transcribe(ctx, req.Audio, lang)
}

func (o *Orchestrator) persist(ctx context.Context, req Request, capturedRef string, res *Result) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("turn: before user utterance: %w", err)
	}
	user, err := o.utterances.SaveUtterance(ctx, coach.Utterance{
		SessionID:  req.Session.SessionID,
		UserID:     req.UserID,
		Role:       coach.RoleUser,
		Transcript: res.Transcript,
		AudioRef:   capturedRef,
	})
	if err != nil {
		return fmt.Errorf("turn: save user utterance: %w", err)
	}
	res.User = user

	raw, err := json.Marshal(res.Response)
	if err != nil {
		return fmt.Errorf("turn: encode response: %w", err)
	}
	issues, err := Issues(res.Response, req.UserID, req.Session.SessionID)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("turn: before assistant utterance: %w", err)
	}
	assistant, saved, err := o.utterances.SaveAssistantTurn(ctx, coach.Utterance{
		SessionID:   req.Session.SessionID,
		UserID:      req.UserID,
		Role:        coach.RoleAssistant,
		Transcript:  res.Response.Reply,
		AudioRef:    res.AudioRef,
		RawResponse: raw,
	}, issues)
	if err != nil {
		return fmt.Errorf("turn: save assistant turn: %w", err)
	}
	res.Assistant, res.Issues = assistant, saved
	return nil
}

func (o *Orchestrator) addVocabulary(ctx context.Context, req Request, resp *coach.Response) []coach.VocabularyItem {
	if o.deck == nil {
		return nil
	}
	var added []coach.VocabularyItem
	for _, v := range resp.Feedback.Vocabulary {
		if ctx.Err() != nil {
			break
		}
		if strings.TrimSpace(v.Word) == "" {
			continue
		}
		item, ok, err := o.deck.AddIfNew(ctx, req.UserID, v.Word, v.Translation, v.Example, coach.SourceConversation)
		if err != nil {
			observe.Logger(ctx).Warn("turn: could not add vocabulary", "word", v.Word, "error", err)
			continue
		}
		if ok {
			added = append(added, item)
		}
	}
	return added
}

// Issues flattens the feedback of resp into unsaved feedback-issue records,
// one per element. Each Detail holds the element's JSON encoding.
func Issues(resp *coach.Response, userID, sessionID string) ([]coach.FeedbackIssue, error) {
	fb := resp.Feedback
	out := make([]coach.FeedbackIssue, 0, len(fb.Grammar)+len(fb.Vocabulary)+len(fb.Pronunciation))
	add := func(typ coach.IssueType, code string, element any) error {
		detail, err := json.Marshal(element)
		if err != nil {
			return fmt.Errorf("turn: encode %s issue: %w", typ, err)
		}
		out = append(out, coach.FeedbackIssue{
			UserID:    userID,
			SessionID: sessionID,
			Type:      typ,
			IssueCode: code,
			Detail:    detail,
		})
		return nil
	}
	for _, g := range fb.Grammar {
		if err := add(coach.IssueGrammar, g.Issue, g); err != nil {
			return nil, err
		}
	}
	for _, v := range fb.Vocabulary {
		if err := add(coach.IssueVocabulary, string(coach.IssueVocabulary), v); err != nil {
			return nil, err
		}
	}
	for _, p := range fb.Pronunciation {
		if err := add(coach.IssuePronunciation, p.Issue, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

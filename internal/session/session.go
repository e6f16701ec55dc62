// Package session starts practice sessions and rebuilds the per-turn
// [coach.SessionContext] for a session that already exists.
//
// A session id is always explicit. A turn that arrives without one gets a new
// session; the most recent session of the learner is never guessed.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/MrWong99/macca/internal/lesson"
	"github.com/MrWong99/macca/internal/store"
	"github.com/MrWong99/macca/pkg/coach"
	"github.com/MrWong99/macca/pkg/provider/stt"
)

var (
	// ErrForbidden is returned when a learner touches another learner's
	// session.
	ErrForbidden = errors.New("session: belongs to another user")
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session: not found")
	// ErrInvalidMode is returned for an unrecognised mode.
	ErrInvalidMode = errors.New("session: invalid mode")
)

// Summary tuning.
const (
	summaryTurns     = 3
	summarySnippet   = 60
	defaultFirstStep = 1
)

// Started is what a new session hands back to the caller.
type Started struct {
	Session       coach.Session `json:"-"`
	SessionID     string        `json:"session_id"`
	InitialPrompt string        `json:"initial_prompt"`
	LessonStep    *int          `json:"lesson_step,omitempty"`
	LessonTitle   string        `json:"lesson_title,omitempty"`
	TotalSteps    *int          `json:"total_steps,omitempty"`
}

// Starter creates sessions and resolves their context.
type Starter struct {
	sessions   store.SessionStore
	utterances store.UtteranceStore
	lessons    atomic.Pointer[lesson.Catalog]
}

// NewStarter returns a Starter. utterances may be nil, in which case contexts
// carry no summary of earlier turns.
func NewStarter(sessions store.SessionStore, utterances store.UtteranceStore, lessons *lesson.Catalog) *Starter {
	s := &Starter{sessions: sessions, utterances: utterances}
	s.SetLessons(lessons)
	return s
}

// SetLessons swaps the lesson catalogue. Sessions already started keep their
// lesson id; a lesson that disappears is no longer applied to their context.
// A nil catalogue selects [lesson.Builtin].
func (s *Starter) SetLessons(c *lesson.Catalog) {
	if c == nil {
		c = lesson.Builtin()
	}
	s.lessons.Store(c)
}

// Lessons returns the current lesson catalogue.
func (s *Starter) Lessons() *lesson.Catalog { return s.lessons.Load() }

// Start creates a session for userID. Guided lessons default to the first
// lesson in the catalogue when lessonID is empty.
func (s *Starter) Start(ctx context.Context, userID string, profile coach.UserProfile, mode coach.Mode, topic, lessonID string) (Started, error) {
	if !mode.IsValid() {
		return Started{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	var (
		l         lesson.Lesson
		guided    = mode == coach.ModeGuidedLesson
		hasLesson bool
	)
	switch {
	case lessonID != "":
		var err error
		if l, err = s.Lessons().Get(lessonID); err != nil {
			return Started{}, err
		}
		hasLesson = true
	case guided:
		l, hasLesson = s.Lessons().List()[0], true
	}

	sess, err := s.sessions.CreateSession(ctx, coach.Session{
		UserID:   userID,
		Mode:     mode,
		Topic:    strings.TrimSpace(topic),
		LessonID: l.ID,
	})
	if err != nil {
		return Started{}, fmt.Errorf("session: create: %w", err)
	}

	out := Started{
		Session:       sess,
		SessionID:     sess.ID,
		InitialPrompt: initialPrompt(mode, displayName(profile), l, hasLesson),
	}
	if hasLesson {
		out.LessonTitle = l.Title
	}
	if guided {
		step, total := defaultFirstStep, l.TotalSteps()
		out.LessonStep, out.TotalSteps = &step, &total
	}
	return out, nil
}

func initialPrompt(mode coach.Mode, name string, l lesson.Lesson, hasLesson bool) string {
	switch mode {
	case coach.ModeLiveConversation:
		return fmt.Sprintf("Hi %s! Let's have a natural conversation. How was your day?", name)
	case coach.ModeGuidedLesson:
		if hasLesson && len(l.Steps) > 0 {
			return fmt.Sprintf("Welcome to today's lesson, %s! %s. Let's begin with %s.", name, l.Title, l.Steps[0])
		}
		return fmt.Sprintf("Welcome to today's lesson, %s! Let's start with introducing yourself.", name)
	case coach.ModePronunciationCoach:
		return fmt.Sprintf("Hi %s! Let's practice pronunciation. Say the word 'think'.", name)
	}
	return "Let's start practicing!"
}

func displayName(p coach.UserProfile) string {
	if n := strings.TrimSpace(p.Name); n != "" {
		return n
	}
	return "there"
}

// Context rebuilds the generator context for a turn in sessionID. A mode
// given by the caller overrides the stored one; step is the 1-based lesson
// step, ignored when zero.
func (s *Starter) Context(ctx context.Context, userID, sessionID string, mode coach.Mode, step int) (coach.SessionContext, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return coach.SessionContext{}, fmt.Errorf("%w: %q", ErrNotFound, sessionID)
	}
	if err != nil {
		return coach.SessionContext{}, fmt.Errorf("session: get: %w", err)
	}
	if sess.UserID != userID {
		return coach.SessionContext{}, ErrForbidden
	}
	if mode == "" {
		mode = sess.Mode
	}
	if !mode.IsValid() {
		return coach.SessionContext{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	sc := coach.SessionContext{SessionID: sess.ID, Mode: mode, Topic: sess.Topic}
	if sess.LessonID != "" {
		if l, err := s.Lessons().Get(sess.LessonID); err == nil {
			sc = l.Apply(sc, step)
		}
	} else if step > 0 {
		sc.LessonStep = &step
	}

	if s.utterances != nil {
		history, err := s.utterances.ListUtterances(ctx, sess.ID)
		if err != nil {
			return coach.SessionContext{}, fmt.Errorf("session: history: %w", err)
		}
		sc.ShortSummary = Summarize(history)
	}
	return sc, nil
}

// Summarize condenses the last few learner utterances into one line, oldest
// first. Sentinel transcripts are skipped.
func Summarize(history []coach.Utterance) string {
	var picked []string
	for i := len(history) - 1; i >= 0 && len(picked) < summaryTurns; i-- {
		u := history[i]
		if u.Role != coach.RoleUser {
			continue
		}
		t := strings.TrimSpace(u.Transcript)
		if t == "" || t == stt.SentinelTranscript {
			continue
		}
		picked = append(picked, snippet(t))
	}
	if len(picked) == 0 {
		return ""
	}
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return "The learner said: " + strings.Join(picked, " / ")
}

func snippet(s string) string {
	if utf8.RuneCountInString(s) <= summarySnippet {
		return fmt.Sprintf("%q", s)
	}
	r := []rune(s)
	return fmt.Sprintf("%q", string(r[:summarySnippet])+"...")
}

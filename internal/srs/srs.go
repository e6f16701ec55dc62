// Package srs schedules vocabulary review with a strength-based rule.
//
// Every item carries a strength in [0, 1]. A correct answer adds
// [CorrectStep], an incorrect one subtracts [IncorrectStep], and the result is
// clamped. Items due for review are the weakest ones first.
package srs

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/macca/internal/observe"
	"github.com/MrWong99/macca/internal/store"
	"github.com/MrWong99/macca/pkg/coach"
)

// Scheduling constants.
const (
	InitialStrength = 0.2
	CorrectStep     = 0.2
	IncorrectStep   = 0.3

	DefaultLimit = 5
	MaxLimit     = 50
)

var (
	// ErrNotFound is returned when the reviewed item does not exist.
	ErrNotFound = errors.New("srs: item not found")
	// ErrForbidden is returned when the item belongs to another learner.
	ErrForbidden = errors.New("srs: item belongs to another user")
	// ErrInvalidItem is returned by Add for an empty word or unknown source.
	ErrInvalidItem = errors.New("srs: invalid item")
)

// NextStrength applies one review to strength s.
func NextStrength(s float64, correct bool) float64 {
	if correct {
		s += CorrectStep
	} else {
		s -= IncorrectStep
	}
	s = min(1, max(0, s))
	// Snap to 1e-9 so repeated steps do not drift (0.1+0.2 and friends).
	return math.Round(s*1e9) / 1e9
}

// Less reports whether a is due before b: weaker first, then never reviewed,
// then least recently reviewed, then by id.
func Less(a, b coach.VocabularyItem) bool {
	return compare(a, b) < 0
}

func compare(a, b coach.VocabularyItem) int {
	if c := cmp.Compare(a.Strength, b.Strength); c != 0 {
		return c
	}
	switch {
	case a.LastReviewedAt == nil && b.LastReviewedAt != nil:
		return -1
	case a.LastReviewedAt != nil && b.LastReviewedAt == nil:
		return 1
	case a.LastReviewedAt != nil && b.LastReviewedAt != nil:
		if c := a.LastReviewedAt.Compare(*b.LastReviewedAt); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ID, b.ID)
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithClock overrides the clock used to stamp reviews.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler manages learners' decks on top of a [store.VocabularyStore].
type Scheduler struct {
	store   store.VocabularyStore
	now     func() time.Time
	metrics *observe.Metrics
}

// New returns a Scheduler over vs.
func New(vs store.VocabularyStore, opts ...Option) *Scheduler {
	s := &Scheduler{store: vs, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Add creates a new item with [InitialStrength].
func (s *Scheduler) Add(ctx context.Context, userID, word, translation, example string, source coach.VocabularySource) (coach.VocabularyItem, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return coach.VocabularyItem{}, fmt.Errorf("%w: word must not be empty", ErrInvalidItem)
	}
	if !source.IsValid() {
		return coach.VocabularyItem{}, fmt.Errorf("%w: unknown source %q", ErrInvalidItem, source)
	}
	item, err := s.store.CreateVocabularyItem(ctx, coach.VocabularyItem{
		UserID:      userID,
		Word:        word,
		Translation: translation,
		Example:     example,
		Source:      source,
		Strength:    InitialStrength,
	})
	if err != nil {
		return coach.VocabularyItem{}, fmt.Errorf("srs: add %q: %w", word, err)
	}
	return item, nil
}

// AddIfNew adds the word unless userID already has it (case-insensitive).
// added reports whether a new item was created.
func (s *Scheduler) AddIfNew(ctx context.Context, userID, word, translation, example string, source coach.VocabularySource) (item coach.VocabularyItem, added bool, err error) {
	items, err := s.store.ListVocabularyItems(ctx, userID)
	if err != nil {
		return coach.VocabularyItem{}, false, fmt.Errorf("srs: list deck: %w", err)
	}
	key := strings.ToLower(strings.TrimSpace(word))
	for _, it := range items {
		if strings.ToLower(it.Word) == key {
			return it, false, nil
		}
	}
	item, err = s.Add(ctx, userID, word, translation, example, source)
	return item, err == nil, err
}

// List returns the learner's whole deck in review order.
func (s *Scheduler) List(ctx context.Context, userID string) ([]coach.VocabularyItem, error) {
	items, err := s.store.ListVocabularyItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("srs: list deck: %w", err)
	}
	slices.SortFunc(items, compare)
	return items, nil
}

// DueItems returns up to limit items in review order. limit <= 0 means
// [DefaultLimit]; larger values are capped at [MaxLimit].
func (s *Scheduler) DueItems(ctx context.Context, userID string, limit int) ([]coach.VocabularyItem, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	items, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Review records one answer for itemID on behalf of userID and returns the
// updated item.
func (s *Scheduler) Review(ctx context.Context, userID, itemID string, correct bool) (coach.VocabularyItem, error) {
	item, err := s.store.GetVocabularyItem(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return coach.VocabularyItem{}, ErrNotFound
	}
	if err != nil {
		return coach.VocabularyItem{}, fmt.Errorf("srs: get item: %w", err)
	}
	if item.UserID != userID {
		return coach.VocabularyItem{}, ErrForbidden
	}

	reviewed := s.now().UTC()
	item.Strength = NextStrength(item.Strength, correct)
	item.LastReviewedAt = &reviewed
	if err := s.store.UpdateVocabularyStrength(ctx, item.ID, item.Strength, reviewed); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return coach.VocabularyItem{}, ErrNotFound
		}
		return coach.VocabularyItem{}, fmt.Errorf("srs: update item: %w", err)
	}
	s.metrics.RecordSRSReview(ctx, correct)
	return item, nil
}

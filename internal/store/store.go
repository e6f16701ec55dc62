// Package store defines the persistence collaborator of the coaching pipeline.
//
// A [Store] keeps utterances, feedback issues, vocabulary items, sessions and
// learner profiles. Three back-ends implement it: memstore (in-process, for
// tests and single-node demos), postgres (pgx/v5) and sqlite
// (modernc.org/sqlite). The composition root owns the instance and hands it to
// every component that needs it; there is no package-level store.
//
// All implementations must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/macca/pkg/coach"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicateID is returned when a record with the same ID already exists.
var ErrDuplicateID = errors.New("store: record with that ID already exists")

// UtteranceStore persists both sides of a turn and their feedback.
type UtteranceStore interface {
	// SaveUtterance persists u and returns it with ID and CreatedAt filled in
	// when they were empty.
	SaveUtterance(ctx context.Context, u coach.Utterance) (coach.Utterance, error)

	// SaveAssistantTurn persists the assistant utterance and one issue per
	// element of issues. Each issue's UtteranceID is set to the saved
	// utterance's ID. Back-ends with transactions write all rows or none.
	SaveAssistantTurn(ctx context.Context, u coach.Utterance, issues []coach.FeedbackIssue) (coach.Utterance, []coach.FeedbackIssue, error)

	// SaveFeedbackIssue persists a single issue. Its UtteranceID must refer
	// to a saved utterance.
	SaveFeedbackIssue(ctx context.Context, fi coach.FeedbackIssue) (coach.FeedbackIssue, error)

	// ListUtterances returns every utterance of a session, oldest first.
	ListUtterances(ctx context.Context, sessionID string) ([]coach.Utterance, error)

	// ListFeedbackIssues returns every issue attached to an utterance.
	ListFeedbackIssues(ctx context.Context, utteranceID string) ([]coach.FeedbackIssue, error)
}

// VocabularyStore persists spaced-repetition decks.
type VocabularyStore interface {
	// CreateVocabularyItem persists item and returns it with ID and CreatedAt
	// filled in when they were empty.
	CreateVocabularyItem(ctx context.Context, item coach.VocabularyItem) (coach.VocabularyItem, error)

	// GetVocabularyItem returns the item with id or [ErrNotFound].
	GetVocabularyItem(ctx context.Context, id string) (coach.VocabularyItem, error)

	// ListVocabularyItems returns every item owned by userID in no particular
	// order.
	ListVocabularyItems(ctx context.Context, userID string) ([]coach.VocabularyItem, error)

	// UpdateVocabularyStrength sets the strength and last-reviewed time of
	// item id. Concurrent updates are last-write-wins.
	UpdateVocabularyStrength(ctx context.Context, id string, strength float64, reviewedAt time.Time) error
}

// SessionStore persists practice sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s coach.Session) (coach.Session, error)
	GetSession(ctx context.Context, id string) (coach.Session, error)
}

// ProfileStore persists learner profiles.
type ProfileStore interface {
	// GetProfile returns the stored profile or [ErrNotFound].
	GetProfile(ctx context.Context, userID string) (coach.UserProfile, error)
	// SaveProfile inserts or replaces the profile keyed by p.ID.
	SaveProfile(ctx context.Context, p coach.UserProfile) error
}

// Store is the full persistence collaborator.
type Store interface {
	UtteranceStore
	VocabularyStore
	SessionStore
	ProfileStore

	// Ping reports whether the back-end is reachable.
	Ping(ctx context.Context) error

	// Close releases the back-end's resources.
	Close() error
}

// NewID returns a fresh record identifier.
func NewID() string { return uuid.NewString() }

// now is truncated to microseconds, the precision of a Postgres timestamptz.
func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// PrepareUtterance fills in a missing ID and creation time.
func PrepareUtterance(u coach.Utterance) coach.Utterance {
	if u.ID == "" {
		u.ID = NewID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now()
	}
	return u
}

// PrepareIssue fills in a missing ID and creation time and attaches the issue
// to utteranceID when that is non-empty.
func PrepareIssue(fi coach.FeedbackIssue, utteranceID string) coach.FeedbackIssue {
	if fi.ID == "" {
		fi.ID = NewID()
	}
	if fi.CreatedAt.IsZero() {
		fi.CreatedAt = now()
	}
	if utteranceID != "" {
		fi.UtteranceID = utteranceID
	}
	if len(fi.Detail) == 0 {
		fi.Detail = []byte("{}")
	}
	return fi
}

// PrepareVocabularyItem fills in a missing ID and creation time.
func PrepareVocabularyItem(item coach.VocabularyItem) coach.VocabularyItem {
	if item.ID == "" {
		item.ID = NewID()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now()
	}
	return item
}

// PrepareSession fills in a missing ID and start time.
func PrepareSession(s coach.Session) coach.Session {
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = now()
	}
	return s
}

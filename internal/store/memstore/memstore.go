// Package memstore is an in-memory [store.Store].
//
// Records live for the lifetime of the process. The composition root creates
// one instance and passes it around explicitly.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/macca/internal/store"
	"github.com/MrWong99/macca/pkg/coach"
)

var _ store.Store = (*Store)(nil)

// Store is a thread-safe, in-memory implementation of [store.Store]. The zero
// value is not usable; call [New].
type Store struct {
	mu         sync.RWMutex
	utterances map[string]coach.Utterance
	bySession  map[string][]string
	issues     map[string][]coach.FeedbackIssue
	vocab      map[string]coach.VocabularyItem
	sessions   map[string]coach.Session
	profiles   map[string]coach.UserProfile
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		utterances: make(map[string]coach.Utterance),
		bySession:  make(map[string][]string),
		issues:     make(map[string][]coach.FeedbackIssue),
		vocab:      make(map[string]coach.VocabularyItem),
		sessions:   make(map[string]coach.Session),
		profiles:   make(map[string]coach.UserProfile),
	}
}

// SaveUtterance implements [store.UtteranceStore].
func (s *Store) SaveUtterance(ctx context.Context, u coach.Utterance) (coach.Utterance, error) {
	if err := ctx.Err(); err != nil {
		return coach.Utterance{}, err
	}
	u = store.PrepareUtterance(u)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putUtterance(u); err != nil {
		return coach.Utterance{}, err
	}
	return u, nil
}

func (s *Store) putUtterance(u coach.Utterance) error {
	if _, exists := s.utterances[u.ID]; exists {
		return store.ErrDuplicateID
	}
	u.RawResponse = slices.Clone(u.RawResponse)
	s.utterances[u.ID] = u
	s.bySession[u.SessionID] = append(s.bySession[u.SessionID], u.ID)
	return nil
}

// SaveAssistantTurn implements [store.UtteranceStore]. The utterance and its
// issues become visible together.
func (s *Store) SaveAssistantTurn(ctx context.Context, u coach.Utterance, issues []coach.FeedbackIssue) (coach.Utterance, []coach.FeedbackIssue, error) {
	if err := ctx.Err(); err != nil {
		return coach.Utterance{}, nil, err
	}
	u = store.PrepareUtterance(u)
	saved := make([]coach.FeedbackIssue, len(issues))
	for i, fi := range issues {
		saved[i] = store.PrepareIssue(fi, u.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putUtterance(u); err != nil {
		return coach.Utterance{}, nil, err
	}
	for _, fi := range saved {
		fi.Detail = slices.Clone(fi.Detail)
		s.issues[u.ID] = append(s.issues[u.ID], fi)
	}
	return u, saved, nil
}

// SaveFeedbackIssue implements [store.UtteranceStore].
func (s *Store) SaveFeedbackIssue(ctx context.Context, fi coach.FeedbackIssue) (coach.FeedbackIssue, error) {
	if err := ctx.Err(); err != nil {
		return coach.FeedbackIssue{}, err
	}
	fi = store.PrepareIssue(fi, "")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.utterances[fi.UtteranceID]; !ok {
		return coach.FeedbackIssue{}, fmt.Errorf("memstore: utterance %q: %w", fi.UtteranceID, store.ErrNotFound)
	}
	fi.Detail = slices.Clone(fi.Detail)
	s.issues[fi.UtteranceID] = append(s.issues[fi.UtteranceID], fi)
	return fi, nil
}

// ListUtterances implements [store.UtteranceStore].
func (s *Store) ListUtterances(_ context.Context, sessionID string) ([]coach.Utterance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySession[sessionID]
	out := make([]coach.Utterance, 0, len(ids))
	for _, id := range ids {
		u := s.utterances[id]
		u.RawResponse = slices.Clone(u.RawResponse)
		out = append(out, u)
	}
	return out, nil
}

// ListFeedbackIssues implements [store.UtteranceStore].
func (s *Store) ListFeedbackIssues(_ context.Context, utteranceID string) ([]coach.FeedbackIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.issues[utteranceID]
	out := make([]coach.FeedbackIssue, len(src))
	for i, fi := range src {
		fi.Detail = slices.Clone(fi.Detail)
		out[i] = fi
	}
	return out, nil
}

// CreateVocabularyItem implements [store.VocabularyStore].
func (s *Store) CreateVocabularyItem(ctx context.Context, item coach.VocabularyItem) (coach.VocabularyItem, error) {
	if err := ctx.Err(); err != nil {
		return coach.VocabularyItem{}, err
	}
	item = store.PrepareVocabularyItem(item)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.vocab[item.ID]; exists {
		return coach.VocabularyItem{}, store.ErrDuplicateID
	}
	s.vocab[item.ID] = cloneItem(item)
	return item, nil
}

// GetVocabularyItem implements [store.VocabularyStore].
func (s *Store) GetVocabularyItem(_ context.Context, id string) (coach.VocabularyItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.vocab[id]
	if !ok {
		return coach.VocabularyItem{}, store.ErrNotFound
	}
	return cloneItem(item), nil
}

// ListVocabularyItems implements [store.VocabularyStore].
func (s *Store) ListVocabularyItems(_ context.Context, userID string) ([]coach.VocabularyItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]coach.VocabularyItem, 0)
	for _, item := range s.vocab {
		if item.UserID == userID {
			out = append(out, cloneItem(item))
		}
	}
	return out, nil
}

// UpdateVocabularyStrength implements [store.VocabularyStore].
func (s *Store) UpdateVocabularyStrength(ctx context.Context, id string, strength float64, reviewedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.vocab[id]
	if !ok {
		return store.ErrNotFound
	}
	item.Strength = strength
	item.LastReviewedAt = &reviewedAt
	s.vocab[id] = item
	return nil
}

// CreateSession implements [store.SessionStore].
func (s *Store) CreateSession(ctx context.Context, sess coach.Session) (coach.Session, error) {
	if err := ctx.Err(); err != nil {
		return coach.Session{}, err
	}
	sess = store.PrepareSession(sess)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return coach.Session{}, store.ErrDuplicateID
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

// GetSession implements [store.SessionStore].
func (s *Store) GetSession(_ context.Context, id string) (coach.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return coach.Session{}, store.ErrNotFound
	}
	return sess, nil
}

// GetProfile implements [store.ProfileStore].
func (s *Store) GetProfile(_ context.Context, userID string) (coach.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return coach.UserProfile{}, store.ErrNotFound
	}
	p.CommonIssues = slices.Clone(p.CommonIssues)
	if p.CommonIssues == nil {
		p.CommonIssues = []string{}
	}
	return p, nil
}

// SaveProfile implements [store.ProfileStore].
func (s *Store) SaveProfile(ctx context.Context, p coach.UserProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ID == "" {
		return fmt.Errorf("memstore: profile id must not be empty")
	}
	p.CommonIssues = slices.Clone(p.CommonIssues)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	return nil
}

// Ping implements [store.Store]. It always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close implements [store.Store]. It is a no-op.
func (s *Store) Close() error { return nil }

func cloneItem(item coach.VocabularyItem) coach.VocabularyItem {
	if item.LastReviewedAt != nil {
		t := *item.LastReviewedAt
		item.LastReviewedAt = &t
	}
	return item
}

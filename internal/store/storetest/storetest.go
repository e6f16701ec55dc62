// Package storetest is a conformance suite run against every [store.Store]
// back-end.
package storetest

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/macca/internal/store"
	"github.com/MrWong99/macca/pkg/coach"
)

// Run exercises s. newStore must return an empty store; it is called once per
// subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("utterance order", func(t *testing.T) { testUtteranceOrder(t, newStore(t)) })
	t.Run("assistant turn", func(t *testing.T) { testAssistantTurn(t, newStore(t)) })
	t.Run("orphan issue", func(t *testing.T) { testOrphanIssue(t, newStore(t)) })
	t.Run("vocabulary", func(t *testing.T) { testVocabulary(t, newStore(t)) })
	t.Run("sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("profiles", func(t *testing.T) { testProfiles(t, newStore(t)) })
	t.Run("cancelled context", func(t *testing.T) { testCancelled(t, newStore(t)) })
	t.Run("concurrent updates", func(t *testing.T) { testConcurrentUpdates(t, newStore(t)) })
	t.Run("ping", func(t *testing.T) {
		if err := newStore(t).Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}

func testUtteranceOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"first", "second", "third"} {
		_, err := s.SaveUtterance(ctx, coach.Utterance{
			SessionID:  "sess-1",
			UserID:     "u1",
			Role:       coach.RoleUser,
			Transcript: text,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("SaveUtterance(%s): %v", text, err)
		}
	}
	if _, err := s.SaveUtterance(ctx, coach.Utterance{SessionID: "other", UserID: "u1", Role: coach.RoleUser, Transcript: "x"}); err != nil {
		t.Fatalf("SaveUtterance(other): %v", err)
	}

	got, err := s.ListUtterances(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ListUtterances: %v", err)
	}
	var texts []string
	for _, u := range got {
		if u.ID == "" {
			t.Error("utterance saved without id")
		}
		texts = append(texts, u.Transcript)
	}
	if diff := cmp.Diff([]string{"first", "second", "third"}, texts); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func testAssistantTurn(t *testing.T, s store.Store) {
	ctx := context.Background()
	raw := []byte(`{"reply":"hi"}`)
	u, issues, err := s.SaveAssistantTurn(ctx, coach.Utterance{
		SessionID:   "sess-1",
		UserID:      "u1",
		Role:        coach.RoleAssistant,
		Transcript:  "hi",
		AudioRef:    "/static/audio/x.wav",
		RawResponse: raw,
	}, []coach.FeedbackIssue{
		{UserID: "u1", SessionID: "sess-1", Type: coach.IssueGrammar, IssueCode: "past_tense", Detail: []byte(`{"issue":"past_tense"}`)},
		{UserID: "u1", SessionID: "sess-1", Type: coach.IssueVocabulary, IssueCode: "vocabulary"},
	})
	if err != nil {
		t.Fatalf("SaveAssistantTurn: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("issues = %d, want 2", len(issues))
	}
	for _, fi := range issues {
		if fi.UtteranceID != u.ID {
			t.Errorf("issue utterance id = %q, want %q", fi.UtteranceID, u.ID)
		}
	}

	listed, err := s.ListUtterances(ctx, "sess-1")
	if err != nil || len(listed) != 1 {
		t.Fatalf("ListUtterances = %v, %v", listed, err)
	}
	if listed[0].AudioRef != u.AudioRef || string(listed[0].RawResponse) != string(raw) {
		t.Errorf("stored utterance = %+v", listed[0])
	}

	stored, err := s.ListFeedbackIssues(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListFeedbackIssues: %v", err)
	}
	if len(stored) != 2 || stored[0].IssueCode != "past_tense" || stored[1].Type != coach.IssueVocabulary {
		t.Errorf("stored issues = %+v", stored)
	}
	if string(stored[1].Detail) != "{}" {
		t.Errorf("empty detail stored as %q, want {}", stored[1].Detail)
	}

	extra, err := s.SaveFeedbackIssue(ctx, coach.FeedbackIssue{UserID: "u1", SessionID: "sess-1", UtteranceID: u.ID, Type: coach.IssuePronunciation, IssueCode: "th_sound"})
	if err != nil {
		t.Fatalf("SaveFeedbackIssue: %v", err)
	}
	if extra.ID == "" {
		t.Error("issue saved without id")
	}
}

func testOrphanIssue(t *testing.T, s store.Store) {
	_, err := s.SaveFeedbackIssue(context.Background(), coach.FeedbackIssue{
		UserID: "u1", SessionID: "s", UtteranceID: "does-not-exist", Type: coach.IssueGrammar, IssueCode: "x",
	})
	if err == nil {
		t.Fatal("issue without parent utterance was accepted")
	}
}

func testVocabulary(t *testing.T, s store.Store) {
	ctx := context.Background()
	item, err := s.CreateVocabularyItem(ctx, coach.VocabularyItem{
		UserID: "u1", Word: "colleague", Translation: "rekan kerja", Example: "My colleague is kind.",
		Source: coach.SourceConversation, Strength: 0.2,
	})
	if err != nil {
		t.Fatalf("CreateVocabularyItem: %v", err)
	}
	if _, err := s.CreateVocabularyItem(ctx, coach.VocabularyItem{UserID: "u2", Word: "deadline", Source: coach.SourceManual, Strength: 0.2}); err != nil {
		t.Fatalf("CreateVocabularyItem(u2): %v", err)
	}
	if _, err := s.CreateVocabularyItem(ctx, item); !errors.Is(err, store.ErrDuplicateID) {
		t.Errorf("duplicate create: err = %v, want ErrDuplicateID", err)
	}

	got, err := s.GetVocabularyItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetVocabularyItem: %v", err)
	}
	if got.Word != "colleague" || got.LastReviewedAt != nil || got.Strength != 0.2 {
		t.Errorf("item = %+v", got)
	}

	reviewed := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	if err := s.UpdateVocabularyStrength(ctx, item.ID, 0.4, reviewed); err != nil {
		t.Fatalf("UpdateVocabularyStrength: %v", err)
	}
	got, _ = s.GetVocabularyItem(ctx, item.ID)
	if math.Abs(got.Strength-0.4) > 1e-9 || got.LastReviewedAt == nil || !got.LastReviewedAt.Equal(reviewed) {
		t.Errorf("after review = %+v", got)
	}

	list, err := s.ListVocabularyItems(ctx, "u1")
	if err != nil || len(list) != 1 {
		t.Errorf("ListVocabularyItems(u1) = %v, %v", list, err)
	}

	if _, err := s.GetVocabularyItem(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get missing: err = %v, want ErrNotFound", err)
	}
	if err := s.UpdateVocabularyStrength(ctx, "missing", 1, reviewed); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update missing: err = %v, want ErrNotFound", err)
	}
}

func testSessions(t *testing.T, s store.Store) {
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, coach.Session{UserID: "u1", Mode: coach.ModeGuidedLesson, Topic: "interview", LessonID: "job_interview_basics"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Mode != coach.ModeGuidedLesson || got.LessonID != "job_interview_basics" || !got.StartedAt.Equal(sess.StartedAt) {
		t.Errorf("session = %+v, want %+v", got, sess)
	}
	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetSession missing: err = %v, want ErrNotFound", err)
	}
}

func testProfiles(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.GetProfile(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetProfile before save: err = %v, want ErrNotFound", err)
	}
	p := coach.DefaultProfile("u1")
	p.Name = "Sari"
	p.CommonIssues = []string{"past_tense", "articles"}
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	got, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}

	p.Level = coach.LevelC1
	p.CommonIssues = nil
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile(update): %v", err)
	}
	got, _ = s.GetProfile(ctx, "u1")
	if got.Level != coach.LevelC1 || got.CommonIssues == nil || len(got.CommonIssues) != 0 {
		t.Errorf("updated profile = %+v", got)
	}
}

func testCancelled(t *testing.T, s store.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.SaveUtterance(ctx, coach.Utterance{SessionID: "s", UserID: "u", Role: coach.RoleUser, Transcript: "x"}); err == nil {
		t.Error("SaveUtterance succeeded on a cancelled context")
	}
	if _, _, err := s.SaveAssistantTurn(ctx, coach.Utterance{SessionID: "s", UserID: "u", Role: coach.RoleAssistant, Transcript: "x"}, nil); err == nil {
		t.Error("SaveAssistantTurn succeeded on a cancelled context")
	}
	got, _ := s.ListUtterances(context.Background(), "s")
	if len(got) != 0 {
		t.Errorf("utterances written after cancel: %+v", got)
	}
}

func testConcurrentUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()
	item, err := s.CreateVocabularyItem(ctx, coach.VocabularyItem{UserID: "u1", Word: "w", Source: coach.SourceManual, Strength: 0.2})
	if err != nil {
		t.Fatalf("CreateVocabularyItem: %v", err)
	}
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			_ = s.UpdateVocabularyStrength(ctx, item.ID, float64(i)/10, time.Now())
		})
	}
	wg.Wait()
	got, err := s.GetVocabularyItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetVocabularyItem: %v", err)
	}
	if got.Strength < 0 || got.Strength > 0.7+1e-9 {
		t.Errorf("strength = %v, want one of the written values", got.Strength)
	}
}

// Package postgres is a [store.Store] on PostgreSQL using a pgx/v5 connection
// pool.
//
// [New] runs an idempotent migration on start-up, so pointing the service at
// an empty database is enough.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/macca/internal/store"
	"github.com/MrWong99/macca/pkg/coach"
)

const ddl = `
CREATE TABLE IF NOT EXISTS utterances (
    seq          BIGSERIAL    PRIMARY KEY,
    id           TEXT         NOT NULL UNIQUE,
    session_id   TEXT         NOT NULL,
    user_id      TEXT         NOT NULL,
    role         TEXT         NOT NULL,
    transcript   TEXT         NOT NULL,
    audio_ref    TEXT         NOT NULL DEFAULT '',
    raw_response JSONB,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_utterances_session
    ON utterances (session_id, seq);

CREATE TABLE IF NOT EXISTS feedback_issues (
    seq          BIGSERIAL    PRIMARY KEY,
    id           TEXT         NOT NULL UNIQUE,
    user_id      TEXT         NOT NULL,
    session_id   TEXT         NOT NULL,
    utterance_id TEXT         NOT NULL REFERENCES utterances (id),
    type         TEXT         NOT NULL,
    issue_code   TEXT         NOT NULL,
    detail       JSONB        NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_feedback_issues_utterance
    ON feedback_issues (utterance_id, seq);

CREATE INDEX IF NOT EXISTS idx_feedback_issues_user_type
    ON feedback_issues (user_id, type);

CREATE TABLE IF NOT EXISTS vocabulary_items (
    id               TEXT              PRIMARY KEY,
    user_id          TEXT              NOT NULL,
    word             TEXT              NOT NULL,
    translation      TEXT              NOT NULL DEFAULT '',
    example          TEXT              NOT NULL DEFAULT '',
    source           TEXT              NOT NULL,
    strength         DOUBLE PRECISION  NOT NULL CHECK (strength >= 0 AND strength <= 1),
    last_reviewed_at TIMESTAMPTZ,
    created_at       TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_vocabulary_items_user
    ON vocabulary_items (user_id, strength);

CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT         PRIMARY KEY,
    user_id    TEXT         NOT NULL,
    mode       TEXT         NOT NULL,
    topic      TEXT         NOT NULL DEFAULT '',
    lesson_id  TEXT         NOT NULL DEFAULT '',
    started_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS profiles (
    id                   TEXT   PRIMARY KEY,
    name                 TEXT   NOT NULL,
    level                TEXT   NOT NULL,
    goal                 TEXT   NOT NULL,
    explanation_language TEXT   NOT NULL,
    common_issues        JSONB  NOT NULL DEFAULT '[]'
);
`

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed [store.Store]. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, pings the server and runs [Migrate].
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates every table and index if it does not already exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SaveUtterance implements [store.UtteranceStore].
func (s *Store) SaveUtterance(ctx context.Context, u coach.Utterance) (coach.Utterance, error) {
	u = store.PrepareUtterance(u)
	if err := insertUtterance(ctx, s.pool, u); err != nil {
		return coach.Utterance{}, err
	}
	return u, nil
}

// SaveAssistantTurn implements [store.UtteranceStore] inside one transaction.
func (s *Store) SaveAssistantTurn(ctx context.Context, u coach.Utterance, issues []coach.FeedbackIssue) (coach.Utterance, []coach.FeedbackIssue, error) {
	u = store.PrepareUtterance(u)
	saved := make([]coach.FeedbackIssue, len(issues))
	for i, fi := range issues {
		saved[i] = store.PrepareIssue(fi, u.ID)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := insertUtterance(ctx, tx, u); err != nil {
			return err
		}
		for _, fi := range saved {
			if err := insertIssue(ctx, tx, fi); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return coach.Utterance{}, nil, err
	}
	return u, saved, nil
}

// SaveFeedbackIssue implements [store.UtteranceStore].
func (s *Store) SaveFeedbackIssue(ctx context.Context, fi coach.FeedbackIssue) (coach.FeedbackIssue, error) {
	fi = store.PrepareIssue(fi, "")
	if err := insertIssue(ctx, s.pool, fi); err != nil {
		return coach.FeedbackIssue{}, err
	}
	return fi, nil
}

func insertUtterance(ctx context.Context, q querier, u coach.Utterance) error {
	const sql = `
		INSERT INTO utterances
		    (id, session_id, user_id, role, transcript, audio_ref, raw_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	var raw any
	if len(u.RawResponse) > 0 {
		raw = json.RawMessage(u.RawResponse)
	}
	_, err := q.Exec(ctx, sql, u.ID, u.SessionID, u.UserID, string(u.Role), u.Transcript, u.AudioRef, raw, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: insert utterance: %w", mapErr(err))
	}
	return nil
}

func insertIssue(ctx context.Context, q querier, fi coach.FeedbackIssue) error {
	const sql = `
		INSERT INTO feedback_issues
		    (id, user_id, session_id, utterance_id, type, issue_code, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := q.Exec(ctx, sql, fi.ID, fi.UserID, fi.SessionID, fi.UtteranceID, string(fi.Type), fi.IssueCode, json.RawMessage(fi.Detail), fi.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: insert feedback issue: %w", mapErr(err))
	}
	return nil
}

// ListUtterances implements [store.UtteranceStore].
func (s *Store) ListUtterances(ctx context.Context, sessionID string) ([]coach.Utterance, error) {
	const q = `
		SELECT id, session_id, user_id, role, transcript, audio_ref, raw_response, created_at
		FROM   utterances
		WHERE  session_id = $1
		ORDER  BY seq`
	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list utterances: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (coach.Utterance, error) {
		var (
			u    coach.Utterance
			role string
			raw  []byte
		)
		if err := row.Scan(&u.ID, &u.SessionID, &u.UserID, &role, &u.Transcript, &u.AudioRef, &raw, &u.CreatedAt); err != nil {
			return coach.Utterance{}, err
		}
		u.Role = coach.Role(role)
		u.RawResponse = raw
		u.CreatedAt = u.CreatedAt.UTC()
		return u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan utterances: %w", err)
	}
	return out, nil
}

// ListFeedbackIssues implements [store.UtteranceStore].
func (s *Store) ListFeedbackIssues(ctx context.Context, utteranceID string) ([]coach.FeedbackIssue, error) {
	const q = `
		SELECT id, user_id, session_id, utterance_id, type, issue_code, detail, created_at
		FROM   feedback_issues
		WHERE  utterance_id = $1
		ORDER  BY seq`
	rows, err := s.pool.Query(ctx, q, utteranceID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list feedback issues: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (coach.FeedbackIssue, error) {
		var (
			fi  coach.FeedbackIssue
			typ string
		)
		if err := row.Scan(&fi.ID, &fi.UserID, &fi.SessionID, &fi.UtteranceID, &typ, &fi.IssueCode, &fi.Detail, &fi.CreatedAt); err != nil {
			return coach.FeedbackIssue{}, err
		}
		fi.Type = coach.IssueType(typ)
		fi.CreatedAt = fi.CreatedAt.UTC()
		return fi, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan feedback issues: %w", err)
	}
	return out, nil
}

// CreateVocabularyItem implements [store.VocabularyStore].
func (s *Store) CreateVocabularyItem(ctx context.Context, item coach.VocabularyItem) (coach.VocabularyItem, error) {
	item = store.PrepareVocabularyItem(item)
	const q = `
		INSERT INTO vocabulary_items
		    (id, user_id, word, translation, example, source, strength, last_reviewed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.pool.Exec(ctx, q, item.ID, item.UserID, item.Word, item.Translation, item.Example,
		string(item.Source), item.Strength, item.LastReviewedAt, item.CreatedAt)
	if err != nil {
		return coach.VocabularyItem{}, fmt.Errorf("postgres store: insert vocabulary item: %w", mapErr(err))
	}
	return item, nil
}

const vocabColumns = `id, user_id, word, translation, example, source, strength, last_reviewed_at, created_at`

// GetVocabularyItem implements [store.VocabularyStore].
func (s *Store) GetVocabularyItem(ctx context.Context, id string) (coach.VocabularyItem, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+vocabColumns+` FROM vocabulary_items WHERE id = $1`, id)
	if err != nil {
		return coach.VocabularyItem{}, fmt.Errorf("postgres store: get vocabulary item: %w", err)
	}
	item, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if errors.Is(err, pgx.ErrNoRows) {
		return coach.VocabularyItem{}, store.ErrNotFound
	}
	if err != nil {
		return coach.VocabularyItem{}, fmt.Errorf("postgres store: get vocabulary item: %w", err)
	}
	return item, nil
}

// ListVocabularyItems implements [store.VocabularyStore].
func (s *Store) ListVocabularyItems(ctx context.Context, userID string) ([]coach.VocabularyItem, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+vocabColumns+` FROM vocabulary_items WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list vocabulary: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan vocabulary: %w", err)
	}
	return items, nil
}

func scanItem(row pgx.CollectableRow) (coach.VocabularyItem, error) {
	var (
		item   coach.VocabularyItem
		source string
	)
	if err := row.Scan(&item.ID, &item.UserID, &item.Word, &item.Translation, &item.Example, &source, &item.Strength, &item.LastReviewedAt, &item.CreatedAt); err != nil {
		return coach.VocabularyItem{}, err
	}
	item.Source = coach.VocabularySource(source)
	item.CreatedAt = item.CreatedAt.UTC()
	if item.LastReviewedAt != nil {
		t := item.LastReviewedAt.UTC()
		item.LastReviewedAt = &t
	}
	return item, nil
}

// UpdateVocabularyStrength implements [store.VocabularyStore].
func (s *Store) UpdateVocabularyStrength(ctx context.Context, id string, strength float64, reviewedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE vocabulary_items SET strength = $2, last_reviewed_at = $3 WHERE id = $1`, id, strength, reviewedAt)
	if err != nil {
		return fmt.Errorf("postgres store: update strength: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateSession implements [store.SessionStore].
func (s *Store) CreateSession(ctx context.Context, sess coach.Session) (coach.Session, error) {
	sess = store.PrepareSession(sess)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, mode, topic, lesson_id, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.UserID, string(sess.Mode), sess.Topic, sess.LessonID, sess.StartedAt)
	if err != nil {
		return coach.Session{}, fmt.Errorf("postgres store: insert session: %w", mapErr(err))
	}
	return sess, nil
}

// GetSession implements [store.SessionStore].
func (s *Store) GetSession(ctx context.Context, id string) (coach.Session, error) {
	var (
		sess coach.Session
		mode string
	)
	err := s.pool.QueryRow(ctx, `SELECT id, user_id, mode, topic, lesson_id, started_at FROM sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.UserID, &mode, &sess.Topic, &sess.LessonID, &sess.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return coach.Session{}, store.ErrNotFound
	}
	if err != nil {
		return coach.Session{}, fmt.Errorf("postgres store: get session: %w", err)
	}
	sess.Mode = coach.Mode(mode)
	sess.StartedAt = sess.StartedAt.UTC()
	return sess, nil
}

// GetProfile implements [store.ProfileStore].
func (s *Store) GetProfile(ctx context.Context, userID string) (coach.UserProfile, error) {
	var (
		p                 coach.UserProfile
		level, goal, lang string
	)
	err := s.pool.QueryRow(ctx, `SELECT id, name, level, goal, explanation_language, common_issues FROM profiles WHERE id = $1`, userID).
		Scan(&p.ID, &p.Name, &level, &goal, &lang, &p.CommonIssues)
	if errors.Is(err, pgx.ErrNoRows) {
		return coach.UserProfile{}, store.ErrNotFound
	}
	if err != nil {
		return coach.UserProfile{}, fmt.Errorf("postgres store: get profile: %w", err)
	}
	p.Level, p.Goal, p.ExplanationLanguage = coach.Level(level), coach.Goal(goal), coach.Language(lang)
	if p.CommonIssues == nil {
		p.CommonIssues = []string{}
	}
	return p, nil
}

// SaveProfile implements [store.ProfileStore].
func (s *Store) SaveProfile(ctx context.Context, p coach.UserProfile) error {
	if p.ID == "" {
		return errors.New("postgres store: profile id must not be empty")
	}
	issues := p.CommonIssues
	if issues == nil {
		issues = []string{}
	}
	const q = `
		INSERT INTO profiles (id, name, level, goal, explanation_language, common_issues)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    name                 = EXCLUDED.name,
		    level                = EXCLUDED.level,
		    goal                 = EXCLUDED.goal,
		    explanation_language = EXCLUDED.explanation_language,
		    common_issues        = EXCLUDED.common_issues`
	_, err := s.pool.Exec(ctx, q, p.ID, p.Name, string(p.Level), string(p.Goal), string(p.ExplanationLanguage), issues)
	if err != nil {
		return fmt.Errorf("postgres store: save profile: %w", err)
	}
	return nil
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close implements [store.Store].
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// mapErr turns unique violations into [store.ErrDuplicateID].
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrDuplicateID, pgErr.Message)
	}
	return err
}

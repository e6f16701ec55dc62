// Package sqlite is a [store.Store] on an embedded SQLite database, using the
// pure-Go modernc.org/sqlite driver.
//
// The database runs in WAL mode with foreign keys enforced, so a feedback
// issue can never reference a missing utterance.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/macca/internal/store"
	"github.com/MrWong99/macca/pkg/coach"
)

const schema = `
CREATE TABLE IF NOT EXISTS utterances (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT    NOT NULL UNIQUE,
	session_id   TEXT    NOT NULL,
	user_id      TEXT    NOT NULL,
	role         TEXT    NOT NULL,
	transcript   TEXT    NOT NULL,
	audio_ref    TEXT    NOT NULL DEFAULT '',
	raw_response TEXT,
	created_at   TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_utterances_session ON utterances (session_id, seq);

CREATE TABLE IF NOT EXISTS feedback_issues (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT    NOT NULL UNIQUE,
	user_id      TEXT    NOT NULL,
	session_id   TEXT    NOT NULL,
	utterance_id TEXT    NOT NULL REFERENCES utterances (id),
	type         TEXT    NOT NULL,
	issue_code   TEXT    NOT NULL,
	detail       TEXT    NOT NULL DEFAULT '{}',
	created_at   TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_issues_utterance ON feedback_issues (utterance_id, seq);

CREATE TABLE IF NOT EXISTS vocabulary_items (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	word             TEXT NOT NULL,
	translation      TEXT NOT NULL DEFAULT '',
	example          TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL,
	strength         REAL NOT NULL,
	last_reviewed_at TEXT,
	created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vocabulary_items_user ON vocabulary_items (user_id);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	mode       TEXT NOT NULL,
	topic      TEXT NOT NULL DEFAULT '',
	lesson_id  TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	level                TEXT NOT NULL,
	goal                 TEXT NOT NULL,
	explanation_language TEXT NOT NULL,
	common_issues        TEXT NOT NULL DEFAULT '[]'
);
`

var _ store.Store = (*Store)(nil)

// Store is a [store.Store] backed by a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite store: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveUtterance implements [store.UtteranceStore].
func (s *Store) SaveUtterance(ctx context.Context, u coach.Utterance) (coach.Utterance, error) {
	u = store.PrepareUtterance(u)
	if err := insertUtterance(ctx, s.db, u); err != nil {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return coach.Utterance{}, nil, fmt.Errorf("sqlite store: begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertUtterance(ctx, tx, u); err != nil {
		return coach.Utterance{}, nil, err
	}
	for _, fi := range saved {
		if err := insertIssue(ctx, tx, fi); err != nil {
			return coach.Utterance{}, nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return coach.Utterance{}, nil, fmt.Errorf("sqlite store: commit: %w", err)
	}
	return u, saved, nil
}

// SaveFeedbackIssue implements [store.UtteranceStore].
func (s *Store) SaveFeedbackIssue(ctx context.Context, fi coach.FeedbackIssue) (coach.FeedbackIssue, error) {
	fi = store.PrepareIssue(fi, "")
	if err := insertIssue(ctx, s.db, fi); err != nil {
		return coach.FeedbackIssue{}, err
	}
	return fi, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertUtterance(ctx context.Context, db execer, u coach.Utterance) error {
	const q = `INSERT INTO utterances (id, session_id, user_id, role, transcript, audio_ref, raw_response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var raw any
	if len(u.RawResponse) > 0 {
		raw = string(u.RawResponse)
	}
	_, err := db.ExecContext(ctx, q, u.ID, u.SessionID, u.UserID, string(u.Role), u.Transcript, u.AudioRef, raw, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite store: insert utterance: %w", mapErr(err))
	}
	return nil
}

func insertIssue(ctx context.Context, db execer, fi coach.FeedbackIssue) error {
	const q = `INSERT INTO feedback_issues (id, user_id, session_id, utterance_id, type, issue_code, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q, fi.ID, fi.UserID, fi.SessionID, fi.UtteranceID, string(fi.Type), fi.IssueCode, string(fi.Detail), formatTime(fi.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite store: insert feedback issue: %w", mapErr(err))
	}
	return nil
}

// ListUtterances implements [store.UtteranceStore].
func (s *Store) ListUtterances(ctx context.Context, sessionID string) ([]coach.Utterance, error) {
	const q = `SELECT id, session_id, user_id, role, transcript, audio_ref, raw_response, created_at
		FROM utterances WHERE session_id = ? ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list utterances: %w", err)
	}
	defer rows.Close()

	out := make([]coach.Utterance, 0)
	for rows.Next() {
		var (
			u       coach.Utterance
			role    string
			raw     sql.NullString
			created string
		)
		if err := rows.Scan(&u.ID, &u.SessionID, &u.UserID, &role, &u.Transcript, &u.AudioRef, &raw, &created); err != nil {
			return nil, fmt.Errorf("sqlite store: scan utterance: %w", err)
		}
		u.Role = coach.Role(role)
		if raw.Valid {
			u.RawResponse = []byte(raw.String)
		}
		if u.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListFeedbackIssues implements [store.UtteranceStore].
func (s *Store) ListFeedbackIssues(ctx context.Context, utteranceID string) ([]coach.FeedbackIssue, error) {
	const q = `SELECT id, user_id, session_id, utterance_id, type, issue_code, detail, created_at
		FROM feedback_issues WHERE utterance_id = ? ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, q, utteranceID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list feedback issues: %w", err)
	}
	defer rows.Close()

	out := make([]coach.FeedbackIssue, 0)
	for rows.Next() {
		var (
			fi      coach.FeedbackIssue
			typ     string
			detail  string
			created string
		)
		if err := rows.Scan(&fi.ID, &fi.UserID, &fi.SessionID, &fi.UtteranceID, &typ, &fi.IssueCode, &detail, &created); err != nil {
			return nil, fmt.Errorf("sqlite store: scan feedback issue: %w", err)
		}
		fi.Type = coach.IssueType(typ)
		fi.Detail = []byte(detail)
		if fi.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, fi)
	}
	return out, rows.Err()
}

// CreateVocabularyItem implements [store.VocabularyStore].
func (s *Store) CreateVocabularyItem(ctx context.Context, item coach.VocabularyItem) (coach.VocabularyItem, error) {
	item = store.PrepareVocabularyItem(item)
	const q = `INSERT INTO vocabulary_items (id, user_id, word, translation, example, source, strength, last_reviewed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var reviewed any
	if item.LastReviewedAt != nil {
		reviewed = formatTime(*item.LastReviewedAt)
	}
	_, err := s.db.ExecContext(ctx, q, item.ID, item.UserID, item.Word, item.Translation, item.Example,
		string(item.Source), item.Strength, reviewed, formatTime(item.CreatedAt))
	if err != nil {
		return coach.VocabularyItem{}, fmt.Errorf("sqlite store: insert vocabulary item: %w", mapErr(err))
	}
	return item, nil
}

const vocabColumns = `id, user_id, word, translation, example, source, strength, last_reviewed_at, created_at`

// GetVocabularyItem implements [store.VocabularyStore].
func (s *Store) GetVocabularyItem(ctx context.Context, id string) (coach.VocabularyItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+vocabColumns+` FROM vocabulary_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return coach.VocabularyItem{}, store.ErrNotFound
	}
	return item, err
}

// ListVocabularyItems implements [store.VocabularyStore].
func (s *Store) ListVocabularyItems(ctx context.Context, userID string) ([]coach.VocabularyItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+vocabColumns+` FROM vocabulary_items WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list vocabulary: %w", err)
	}
	defer rows.Close()

	out := make([]coach.VocabularyItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// UpdateVocabularyStrength implements [store.VocabularyStore].
func (s *Store) UpdateVocabularyStrength(ctx context.Context, id string, strength float64, reviewedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE vocabulary_items SET strength = ?, last_reviewed_at = ? WHERE id = ?`,
		strength, formatTime(reviewedAt), id)
	if err != nil {
		return fmt.Errorf("sqlite store: update strength: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (coach.VocabularyItem, error) {
	var (
		item     coach.VocabularyItem
		source   string
		reviewed sql.NullString
		created  string
	)
	if err := row.Scan(&item.ID, &item.UserID, &item.Word, &item.Translation, &item.Example, &source, &item.Strength, &reviewed, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return coach.VocabularyItem{}, err
		}
		return coach.VocabularyItem{}, fmt.Errorf("sqlite store: scan vocabulary item: %w", err)
	}
	item.Source = coach.VocabularySource(source)
	var err error
	if item.CreatedAt, err = parseTime(created); err != nil {
		return coach.VocabularyItem{}, err
	}
	if reviewed.Valid {
		t, err := parseTime(reviewed.String)
		if err != nil {
			return coach.VocabularyItem{}, err
		}
		item.LastReviewedAt = &t
	}
	return item, nil
}

// CreateSession implements [store.SessionStore].
func (s *Store) CreateSession(ctx context.Context, sess coach.Session) (coach.Session, error) {
	sess = store.PrepareSession(sess)
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (id, user_id, mode, topic, lesson_id, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, string(sess.Mode), sess.Topic, sess.LessonID, formatTime(sess.StartedAt))
	if err != nil {
		return coach.Session{}, fmt.Errorf("sqlite store: insert session: %w", mapErr(err))
	}
	return sess, nil
}

// GetSession implements [store.SessionStore].
func (s *Store) GetSession(ctx context.Context, id string) (coach.Session, error) {
	var (
		sess    coach.Session
		mode    string
		started string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, user_id, mode, topic, lesson_id, started_at FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.UserID, &mode, &sess.Topic, &sess.LessonID, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return coach.Session{}, store.ErrNotFound
	}
	if err != nil {
		return coach.Session{}, fmt.Errorf("sqlite store: get session: %w", err)
	}
	sess.Mode = coach.Mode(mode)
	if sess.StartedAt, err = parseTime(started); err != nil {
		return coach.Session{}, err
	}
	return sess, nil
}

// GetProfile implements [store.ProfileStore].
func (s *Store) GetProfile(ctx context.Context, userID string) (coach.UserProfile, error) {
	var (
		p                 coach.UserProfile
		level, goal, lang string
		issues            string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, level, goal, explanation_language, common_issues FROM profiles WHERE id = ?`, userID).
		Scan(&p.ID, &p.Name, &level, &goal, &lang, &issues)
	if errors.Is(err, sql.ErrNoRows) {
		return coach.UserProfile{}, store.ErrNotFound
	}
	if err != nil {
		return coach.UserProfile{}, fmt.Errorf("sqlite store: get profile: %w", err)
	}
	p.Level, p.Goal, p.ExplanationLanguage = coach.Level(level), coach.Goal(goal), coach.Language(lang)
	p.CommonIssues = []string{}
	if err := json.Unmarshal([]byte(issues), &p.CommonIssues); err != nil {
		return coach.UserProfile{}, fmt.Errorf("sqlite store: decode common issues: %w", err)
	}
	if p.CommonIssues == nil {
		p.CommonIssues = []string{}
	}
	return p, nil
}

// SaveProfile implements [store.ProfileStore].
func (s *Store) SaveProfile(ctx context.Context, p coach.UserProfile) error {
	if p.ID == "" {
		return errors.New("sqlite store: profile id must not be empty")
	}
	issues := p.CommonIssues
	if issues == nil {
		issues = []string{}
	}
	encoded, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("sqlite store: encode common issues: %w", err)
	}
	const q = `INSERT INTO profiles (id, name, level, goal, explanation_language, common_issues)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			level = excluded.level,
			goal = excluded.goal,
			explanation_language = excluded.explanation_language,
			common_issues = excluded.common_issues`
	if _, err := s.db.ExecContext(ctx, q, p.ID, p.Name, string(p.Level), string(p.Goal), string(p.ExplanationLanguage), string(encoded)); err != nil {
		return fmt.Errorf("sqlite store: save profile: %w", err)
	}
	return nil
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close implements [store.Store].
func (s *Store) Close() error { return s.db.Close() }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite store: parse time %q: %w", s, err)
	}
	return t, nil
}

// mapErr turns uniqueness violations into [store.ErrDuplicateID].
func mapErr(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", store.ErrDuplicateID, err)
	}
	return err
}

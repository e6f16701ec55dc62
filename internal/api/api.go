// Package api exposes the coaching pipeline over HTTP.
//
// Every route lives under /api and is registered on a caller-supplied
// [http.ServeMux] so the composition root can wrap the whole mux with the
// observe middleware. The caller is identified by the X-User-ID header, which
// an upstream gateway is trusted to set; this package makes no authentication
// decisions of its own.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrWong99/macca/internal/generate"
	"github.com/MrWong99/macca/internal/lesson"
	"github.com/MrWong99/macca/internal/observe"
	"github.com/MrWong99/macca/internal/pronunciation"
	"github.com/MrWong99/macca/internal/session"
	"github.com/MrWong99/macca/internal/srs"
	"github.com/MrWong99/macca/internal/store"
	"github.com/MrWong99/macca/internal/turn"
)

// UserHeader carries the resolved caller id.
const UserHeader = observe.CallerHeader

// DefaultMaxBodyBytes bounds request bodies. Base64 audio is the largest
// payload the API accepts.
const DefaultMaxBodyBytes int64 = 10 << 20

// errBadRequest marks malformed requests detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

// errUnauthenticated is returned when no caller id is present and anonymous
// access is disabled.
var errUnauthenticated = errors.New("missing " + UserHeader + " header")

// Option configures a [Server].
type Option func(*Server)

// WithAnonymousUser lets requests without a caller id act as id. An empty id
// disables anonymous access, which is the default.
func WithAnonymousUser(id string) Option {
	return func(s *Server) { s.anonymous = strings.TrimSpace(id) }
}

// WithRecognizer sets the recogniser used by the pronunciation endpoint for
// audio attempts. Without one, attempts must be sent as text.
func WithRecognizer(r turn.Recognizer) Option {
	return func(s *Server) { s.recognizer = r }
}

// WithMaxBodyBytes overrides [DefaultMaxBodyBytes].
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// Server holds the collaborators behind the HTTP handlers. It has no mutable
// state of its own and is safe for concurrent use.
type Server struct {
	store   store.Store
	starter *session.Starter
	turns   *turn.Orchestrator
	deck    *srs.Scheduler

	recognizer turn.Recognizer
	anonymous  string
	maxBody    int64
}

// New returns a Server. All collaborators are required.
func New(st store.Store, starter *session.Starter, turns *turn.Orchestrator, deck *srs.Scheduler, opts ...Option) *Server {
	s := &Server{
		store:   st,
		starter: starter,
		turns:   turns,
		deck:    deck,
		maxBody: DefaultMaxBodyBytes,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the API routes to mux.
//
//	POST  /api/session/start
//	POST  /api/session/turn              legacy response shape
//	POST  /api/session/turn/full         canonical response
//	GET   /api/user/profile
//	PATCH /api/user/profile
//	GET   /api/user/vocabulary
//	POST  /api/user/vocabulary
//	GET   /api/user/vocabulary/review
//	POST  /api/user/vocabulary/{id}/review
//	POST  /api/pronunciation/analyze
//	GET   /api/lessons
//	GET   /api/lessons/{id}
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/session/start", s.handleStart)
	mux.HandleFunc("POST /api/session/turn", s.handleTurn)
	mux.HandleFunc("POST /api/session/turn/full", s.handleTurnFull)

	mux.HandleFunc("GET /api/user/profile", s.handleGetProfile)
	mux.HandleFunc("PATCH /api/user/profile", s.handlePatchProfile)

	mux.HandleFunc("GET /api/user/vocabulary", s.handleListVocabulary)
	mux.HandleFunc("POST /api/user/vocabulary", s.handleAddVocabulary)
	mux.HandleFunc("GET /api/user/vocabulary/review", s.handleDueVocabulary)
	mux.HandleFunc("POST /api/user/vocabulary/{id}/review", s.handleReviewVocabulary)

	mux.HandleFunc("POST /api/pronunciation/analyze", s.handleAnalyze)

	mux.HandleFunc("GET /api/lessons", s.handleListLessons)
	mux.HandleFunc("GET /api/lessons/{id}", s.handleGetLesson)
}

// caller resolves the caller id for r.
func (s *Server) caller(r *http.Request) (string, error) {
	if id := strings.TrimSpace(r.Header.Get(UserHeader)); id != "" {
		return id, nil
	}
	if s.anonymous != "" {
		return s.anonymous, nil
	}
	return "", errUnauthenticated
}

// decode reads a JSON body into dst, bounded by the server's body limit.
// Unknown fields are ignored so older clients keep working.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body too large", errBadRequest)
		}
		return fmt.Errorf("%w: invalid request body", errBadRequest)
	}
	return nil
}

// decodeAudio accepts plain base64 as well as a data URL
// ("data:audio/webm;base64,....").
func decodeAudio(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.Index(encoded, ","); i >= 0 {
			encoded = encoded[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: audio_base64 is not valid base64", errBadRequest)
	}
	return data, nil
}

// errorBody is the JSON error envelope. The "detail" key matches what existing
// clients already parse.
type errorBody struct {
	Detail string `json:"detail"`
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, srs.ErrForbidden), errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, srs.ErrNotFound), errors.Is(err, session.ErrNotFound),
		errors.Is(err, lesson.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest), errors.Is(err, generate.ErrInvalidInput),
		errors.Is(err, turn.ErrEmptyTurn), errors.Is(err, session.ErrInvalidMode),
		errors.Is(err, srs.ErrInvalidItem), errors.Is(err, pronunciation.ErrEmpty):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError writes err with the status from [statusFor]. Internal failures
// are logged and reported with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Detail: msg})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response", "err", err)
	}
}

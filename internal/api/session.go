package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/macca/internal/store"
	"github.com/MrWong99/macca/internal/turn"
	"github.com/MrWong99/macca/pkg/coach"
)

type startRequest struct {
	Mode     string `json:"mode"`
	Topic    string `json:"topic"`
	LessonID string `json:"lesson_id"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	uid, err := s.caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req startRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	mode, ok := coach.ParseMode(req.Mode)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: unknown mode %q", errBadRequest, req.Mode))
		return
	}
	profile, err := s.profile(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	started, err := s.starter.Start(r.Context(), uid, profile, mode, req.Topic, req.LessonID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, started)
}

type turnRequest struct {
	SessionID   string `json:"session_id"`
	UserText    string `json:"user_text"`
	AudioBase64 string `json:"audio_base64"`
	AudioExt    string `json:"audio_ext"`
	Language    string `json:"language"`
	Mode        string `json:"mode"`
	LessonStep  int    `json:"lesson_step"`
	Synthesize  bool   `json:"synthesize"`
}

// turnResponse is the body of /api/session/turn/full.
type turnResponse struct {
	SessionID  string                 `json:"session_id"`
	Transcript string                 `json:"transcript"`
	AudioURL   string                 `json:"audio_url,omitempty"`
	Response   *coach.Response        `json:"response"`
	Legacy     turn.LegacyResponse    `json:"legacy"`
	Vocabulary []coach.VocabularyItem `json:"vocabulary_added"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	out, err := s.runTurn(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out.Legacy)
}

func (s *Server) handleTurnFull(w http.ResponseWriter, r *http.Request) {
	out, err := s.runTurn(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// runTurn resolves the session and runs one turn. A request without a
// session id starts a new session in the requested mode.
func (s *Server) runTurn(w http.ResponseWriter, r *http.Request) (turnResponse, error) {
	uid, err := s.caller(r)
	if err != nil {
		return turnResponse{}, err
	}
	var req turnRequest
	if err := s.decode(w, r, &req); err != nil {
		return turnResponse{}, err
	}

	var mode coach.Mode
	if req.Mode != "" {
		m, ok := coach.ParseMode(req.Mode)
		if !ok {
			return turnResponse{}, fmt.Errorf("%w: unknown mode %q", errBadRequest, req.Mode)
		}
		mode = m
	}
	if req.LessonStep < 0 {
		return turnResponse{}, fmt.Errorf("%w: lesson_step must not be negative", errBadRequest)
	}
	audio, err := decodeAudio(req.AudioBase64)
	if err != nil {
		return turnResponse{}, err
	}
	if len(audio) == 0 && strings.TrimSpace(req.UserText) == "" {
		return turnResponse{}, turn.ErrEmptyTurn
	}

	ctx := r.Context()
	profile, err := s.profile(ctx, uid)
	if err != nil {
		return turnResponse{}, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		start := mode
		if start == "" {
			start = coach.ModeLiveConversation
		}
		started, err := s.starter.Start(ctx, uid, profile, start, "", "")
		if err != nil {
			return turnResponse{}, err
		}
		sessionID = started.SessionID
	}
	sc, err := s.starter.Context(ctx, uid, sessionID, mode, req.LessonStep)
	if err != nil {
		return turnResponse{}, err
	}

	res, err := s.turns.Run(ctx, turn.Request{
		UserID:     uid,
		Profile:    profile,
		Session:    sc,
		Text:       req.UserText,
		Audio:      audio,
		AudioExt:   req.AudioExt,
		Language:   req.Language,
		Synthesize: req.Synthesize,
	})
	if err != nil {
		return turnResponse{}, err
	}

	added := res.Added
	if added == nil {
		added = []coach.VocabularyItem{}
	}
	return turnResponse{
		SessionID:  sc.SessionID,
		Transcript: res.Transcript,
		AudioURL:   res.AudioRef,
		Response:   res.Response,
		Legacy:     turn.Project(res.Response, profile, sc, res.AudioRef),
		Vocabulary: added,
	}, nil
}

// profile returns the stored profile of uid, or the default profile when the
// learner has not saved one yet.
func (s *Server) profile(ctx context.Context, uid string) (coach.UserProfile, error) {
	p, err := s.store.GetProfile(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return coach.DefaultProfile(uid), nil
	}
	if err != nil {
		return coach.UserProfile{}, fmt.Errorf("api: load profile: %w", err)
	}
	return p, nil
}

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/macca/pkg/coach"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	uid, err := s.caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.profile(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// profileUpdate is a partial profile; nil fields are left unchanged.
type profileUpdate struct {
	Name                *string         `json:"name"`
	Level               *coach.Level    `json:"level"`
	Goal                *coach.Goal     `json:"goal"`
	ExplanationLanguage *coach.Language `json:"explanation_language"`
	CommonIssues        []string        `json:"common_issues"`
}

// apply validates u and merges it into p.
func (u profileUpdate) apply(p coach.UserProfile) (coach.UserProfile, error) {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return p, fmt.Errorf("%w: name must not be empty", errBadRequest)
		}
		p.Name = name
	}
	if u.Level != nil {
		l := coach.Level(strings.ToUpper(string(*u.Level)))
		if !l.IsValid() {
			return p, fmt.Errorf("%w: unknown level %q", errBadRequest, *u.Level)
		}
		p.Level = l
	}
	if u.Goal != nil {
		if !u.Goal.IsValid() {
			return p, fmt.Errorf("%w: unknown goal %q", errBadRequest, *u.Goal)
		}
		p.Goal = *u.Goal
	}
	if u.ExplanationLanguage != nil {
		if !u.ExplanationLanguage.IsValid() {
			return p, fmt.Errorf("%w: unknown explanation_language %q", errBadRequest, *u.ExplanationLanguage)
		}
		p.ExplanationLanguage = *u.ExplanationLanguage
	}
	if u.CommonIssues != nil {
		p.CommonIssues = append([]string{}, u.CommonIssues...)
	}
	return p, nil
}

func (s *Server) handlePatchProfile(w http.ResponseWriter, r *http.Request) {
	uid, err := s.caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var u profileUpdate
	if err := s.decode(w, r, &u); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.profile(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p, err = u.apply(p); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.SaveProfile(r.Context(), p); err != nil {
		writeError(w, r, fmt.Errorf("api: save profile: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListVocabulary(w http.ResponseWriter, r *http.Request) {
	uid, err := s.caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.deck.List(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

type addVocabularyRequest struct {
	Word        string `json:"word"`
	Translation string `json:"translation"`
	Example     string `json:"example"`
}

func (s *Server) handleAddVocabulary(w http.ResponseWriter, r *http.Request) {
	uid, err := s.caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req addVocabularyRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := s.deck.Add(r.Context(), uid, req.Word, req.Translation, req.Example, coach.SourceManual)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleDueVocabulary(w http.ResponseWriter, r *http.Request) {
	uid, err := s.caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, r, fmt.Errorf("%w: limit must be an integer", errBadRequest))
			return
		}
	}
	items, err := s.deck.DueItems(r.Context(), uid, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

type reviewRequest struct {
	Correct *bool `json:"correct"`
}

func (s *Server) handleReviewVocabulary(w http.ResponseWriter, r *http.Request) {
	uid, err := s.caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req reviewRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Correct == nil {
		writeError(w, r, fmt.Errorf("%w: correct is required", errBadRequest))
		return
	}
	item, err := s.deck.Review(r.Context(), uid, r.PathValue("id"), *req.Correct)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

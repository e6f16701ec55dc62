package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/macca/internal/pronunciation"
	"github.com/MrWong99/macca/pkg/provider/stt"
)

type analyzeRequest struct {
	Word        string `json:"word"`
	Heard       string `json:"heard"`
	AudioBase64 string `json:"audio_base64"`
	// AudioData is the field name older clients send.
	AudioData string `json:"audio_data"`
}

// handleAnalyze scores one attempt at a word. The attempt is either the
// recognised text in heard or a recording that is transcribed first.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	uid, err := s.caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req analyzeRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Word) == "" {
		writeError(w, r, fmt.Errorf("%w: word is required", errBadRequest))
		return
	}

	heard := strings.TrimSpace(req.Heard)
	if heard == "" {
		encoded := req.AudioBase64
		if encoded == "" {
			encoded = req.AudioData
		}
		audio, err := decodeAudio(encoded)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(audio) == 0 {
			writeError(w, r, fmt.Errorf("%w: heard or audio_base64 is required", errBadRequest))
			return
		}
		if s.recognizer == nil {
			writeError(w, r, fmt.Errorf("%w: audio attempts are not supported, send heard", errBadRequest))
			return
		}
		heard = s.recognizer.Transcribe(r.Context(), audio, "en")
		if heard == stt.SentinelTranscript {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: "speech could not be recognised"})
			return
		}
	}

	profile, err := s.profile(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	results, err := pronunciation.Check(req.Word, heard, profile.ExplanationLanguage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

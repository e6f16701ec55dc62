package api

import (
	"net/http"

	"github.com/MrWong99/macca/internal/lesson"
)

// lessonView is a lesson as the lesson picker shows it.
type lessonView struct {
	lesson.Lesson
	TotalSteps  int `json:"total_steps"`
	CurrentStep int `json:"current_step"`
}

func viewOf(l lesson.Lesson) lessonView {
	return lessonView{Lesson: l, TotalSteps: l.TotalSteps(), CurrentStep: 1}
}

func (s *Server) handleListLessons(w http.ResponseWriter, _ *http.Request) {
	lessons := s.starter.Lessons().List()
	out := make([]lessonView, 0, len(lessons))
	for _, l := range lessons {
		out = append(out, viewOf(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	l, err := s.starter.Lessons().Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(l))
}

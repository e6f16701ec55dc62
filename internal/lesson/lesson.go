// Package lesson holds the guided-lesson catalogue.
//
// The built-in catalogue is embedded from lessons.yaml. Deployments can point
// the service at their own file with the same layout:
//
//	lessons:
//	  - id: lesson_1
//	    title: "Job Interview: Introducing Yourself"
//	    objective: "Introduce yourself and your work experience"
//	    steps: ["Step 1 – Warm-up", "Step 2 – Key phrases"]
//	    target_grammar: [present perfect for experience]
//	    target_vocabulary: [experience, background]
package lesson

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/macca/pkg/coach"
)

//go:embed lessons.yaml
var builtin []byte

// ErrNotFound is returned by [Catalog.Get] for an unknown lesson id.
var ErrNotFound = errors.New("lesson: not found")

// Lesson is one guided lesson.
type Lesson struct {
	ID               string      `yaml:"id"                json:"id"`
	Title            string      `yaml:"title"             json:"title"`
	Subtitle         string      `yaml:"subtitle"          json:"subtitle"`
	Objective        string      `yaml:"objective"         json:"objective"`
	Goal             coach.Goal  `yaml:"goal"              json:"goal,omitempty"`
	Level            coach.Level `yaml:"level"             json:"level,omitempty"`
	Steps            []string    `yaml:"steps"             json:"steps"`
	TargetGrammar    []string    `yaml:"target_grammar"    json:"target_grammar"`
	TargetVocabulary []string    `yaml:"target_vocabulary" json:"target_vocabulary"`
}

// TotalSteps returns the number of steps in the lesson.
func (l Lesson) TotalSteps() int { return len(l.Steps) }

// Apply fills the lesson fields of sc for the given 1-based step. A step past
// the last one is clamped to it.
func (l Lesson) Apply(sc coach.SessionContext, step int) coach.SessionContext {
	sc.LessonID = l.ID
	sc.LessonObjective = l.Objective
	sc.TargetGrammar = append([]string(nil), l.TargetGrammar...)
	sc.TargetVocabulary = append([]string(nil), l.TargetVocabulary...)
	if sc.Topic == "" {
		sc.Topic = l.Title
	}
	if total := l.TotalSteps(); total > 0 {
		sc.LessonSteps = &total
		step = min(step, total)
	}
	if step > 0 {
		sc.LessonStep = &step
	}
	return sc
}

type file struct {
	Lessons []Lesson `yaml:"lessons"`
}

// Catalog is an immutable, ordered set of lessons. It is safe for concurrent
// use.
type Catalog struct {
	lessons []Lesson
	byID    map[string]int
}

// Builtin returns the embedded catalogue.
func Builtin() *Catalog {
	c, err := Parse(bytes.NewReader(builtin))
	if err != nil {
		panic(fmt.Sprintf("lesson: embedded catalogue is invalid: %v", err))
	}
	return c
}

// LoadFile reads a catalogue from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lesson: open %q: %w", path, err)
	}
	defer f.Close()
	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("lesson: parse %q: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalogue.
func Parse(r io.Reader) (*Catalog, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("lesson: decode yaml: %w", err)
	}

	c := &Catalog{byID: make(map[string]int, len(f.Lessons))}
	var errs []error
	for i, l := range f.Lessons {
		prefix := fmt.Sprintf("lessons[%d]", i)
		if strings.TrimSpace(l.ID) == "" {
			errs = append(errs, fmt.Errorf("%s: id is required", prefix))
			continue
		}
		if _, dup := c.byID[l.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate id %q", prefix, l.ID))
			continue
		}
		if l.Title == "" {
			errs = append(errs, fmt.Errorf("%s: title is required", prefix))
		}
		if len(l.Steps) == 0 {
			errs = append(errs, fmt.Errorf("%s: at least one step is required", prefix))
		}
		if l.Goal != "" && !l.Goal.IsValid() {
			errs = append(errs, fmt.Errorf("%s: unknown goal %q", prefix, l.Goal))
		}
		if l.Level != "" && !l.Level.IsValid() {
			errs = append(errs, fmt.Errorf("%s: unknown level %q", prefix, l.Level))
		}
		if l.TargetGrammar == nil {
			l.TargetGrammar = []string{}
		}
		if l.TargetVocabulary == nil {
			l.TargetVocabulary = []string{}
		}
		c.byID[l.ID] = len(c.lessons)
		c.lessons = append(c.lessons, l)
	}
	if len(c.lessons) == 0 && len(errs) == 0 {
		errs = append(errs, errors.New("no lessons defined"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("lesson: invalid catalogue: %w", err)
	}
	return c, nil
}

// List returns every lesson in catalogue order.
func (c *Catalog) List() []Lesson {
	out := make([]Lesson, len(c.lessons))
	copy(out, c.lessons)
	return out
}

// Get returns the lesson with id or [ErrNotFound].
func (c *Catalog) Get(id string) (Lesson, error) {
	i, ok := c.byID[id]
	if !ok {
		return Lesson{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return c.lessons[i], nil
}

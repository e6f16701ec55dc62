package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/macca/pkg/provider/llm"
	"github.com/MrWong99/macca/pkg/provider/stt"
	"github.com/MrWong99/macca/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when a config entry names a back-end
// that no factory was registered for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a back-end from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factories is the name table for one capability kind.
type factories[P any] struct {
	kind string
	byID map[string]Factory[P]
}

func newFactories[P any](kind string) factories[P] {
	return factories[P]{kind: kind, byID: make(map[string]Factory[P])}
}

func (f factories[P]) create(e ProviderEntry) (P, error) {
	build, ok := f.byID[e.Name]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q (known: %s)",
			ErrProviderNotRegistered, f.kind, e.Name, strings.Join(f.names(), ", "))
	}
	return build(e)
}

func (f factories[P]) names() []string {
	return slices.Sorted(maps.Keys(f.byID))
}

// Registry holds the recogniser, completion and synthesiser factories the
// selector can instantiate by name. Registering a name twice replaces the
// earlier factory. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm factories[llm.Provider]
	stt factories[stt.Provider]
	tts factories[tts.Provider]
}

// NewRegistry returns a registry with no factories.
func NewRegistry() *Registry {
	return &Registry{
		llm: newFactories[llm.Provider]("llm"),
		stt: newFactories[stt.Provider]("stt"),
		tts: newFactories[tts.Provider]("tts"),
	}
}

// RegisterLLM adds a completion back-end factory.
func (r *Registry) RegisterLLM(name string, f func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.byID[name] = f
}

// RegisterSTT adds a recogniser factory.
func (r *Registry) RegisterSTT(name string, f func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.byID[name] = f
}

// RegisterTTS adds a synthesiser factory.
func (r *Registry) RegisterTTS(name string, f func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.byID[name] = f
}

// CreateLLM builds the completion back-end named by e. The error wraps
// [ErrProviderNotRegistered] and lists the known names when e.Name is unknown.
func (r *Registry) CreateLLM(e ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(e)
}

// CreateSTT builds the recogniser named by e.
func (r *Registry) CreateSTT(e ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(e)
}

// CreateTTS builds the synthesiser named by e.
func (r *Registry) CreateTTS(e ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create(e)
}

// Names returns the sorted factory names for kind, one of "llm", "stt" or
// "tts". Any other kind yields nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case r.llm.kind:
		return r.llm.names()
	case r.stt.kind:
		return r.stt.names()
	case r.tts.kind:
		return r.tts.names()
	}
	return nil
}

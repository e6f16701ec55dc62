package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/macca/internal/blob"
	"github.com/MrWong99/macca/internal/generate"
	"github.com/MrWong99/macca/internal/observe"
	"github.com/MrWong99/macca/internal/resilience"
	"github.com/MrWong99/macca/internal/speech"
	"github.com/MrWong99/macca/pkg/provider/llm"
	"github.com/MrWong99/macca/pkg/provider/stt"
	sttmock "github.com/MrWong99/macca/pkg/provider/stt/mock"
	"github.com/MrWong99/macca/pkg/provider/tts"
	ttsmock "github.com/MrWong99/macca/pkg/provider/tts/mock"
)

// mockName selects the offline implementation of a capability.
const mockName = "mock"

// Providers is the capability set a turn runs against. It is built once at
// start-up by [Select] and never changes afterwards.
type Providers struct {
	Recognizer  *speech.Recognizer
	Generator   generate.ResponseGenerator
	Synthesizer *speech.Synthesizer

	// Labels name the selected implementations, fallbacks included, for
	// logging and the start-up summary.
	STTLabel, LLMLabel, TTSLabel string
}

// Select builds the capability set described by cfg. Real back-ends come from
// reg; "mock" is always available. cfg.UseMock forces mock everywhere.
// Synthesised clips are stored in clips. The same cfg always yields the same
// implementation types.
func Select(cfg *Config, reg *Registry, clips blob.Store, m *observe.Metrics) (*Providers, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	entries := cfg.Providers
	if cfg.UseMock {
		entries = ProvidersConfig{
			STT: ProviderEntry{Name: mockName},
			LLM: ProviderEntry{Name: mockName},
			TTS: ProviderEntry{Name: mockName},
		}
	}
	fbCfg := fallbackConfig()
	ps := &Providers{}

	sttp, label, err := selectSTT(entries.STT, reg, fbCfg)
	if err != nil {
		return nil, err
	}
	ps.STTLabel = label
	ps.Recognizer = speech.NewRecognizer(sttp,
		speech.WithProviderName(label),
		speech.WithTimeout(cfg.Timeouts.STT),
		speech.WithMetrics(m),
	)

	if entries.LLM.Name == mockName {
		ps.Generator, ps.LLMLabel = &generate.Canned{}, mockName
	} else {
		llmp, label, err := selectLLM(entries.LLM, reg, fbCfg)
		if err != nil {
			return nil, err
		}
		gen, err := generate.New(llmp,
			generate.WithProviderName(label),
			generate.WithTimeout(cfg.Timeouts.LLM),
			generate.WithMetrics(m),
		)
		if err != nil {
			return nil, fmt.Errorf("config: build generator: %w", err)
		}
		ps.Generator, ps.LLMLabel = gen, label
	}

	ttsp, label, err := selectTTS(entries.TTS, reg, fbCfg)
	if err != nil {
		return nil, err
	}
	ps.TTSLabel = label
	ps.Synthesizer = speech.NewSynthesizer(ttsp, clips,
		speech.WithProviderName(label),
		speech.WithTimeout(cfg.Timeouts.TTS),
		speech.WithMetrics(m),
	)

	slog.Info("providers selected", "stt", ps.STTLabel, "llm", ps.LLMLabel, "tts", ps.TTSLabel)
	return ps, nil
}

func fallbackConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("provider circuit breaker changed state", "provider", name, "from", from, "to", to)
			},
		},
	}
}

func entryLabel(e ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}

func chainLabel(primary string, fallbacks []string) string {
	if len(fallbacks) == 0 {
		return primary
	}
	return primary + ">" + strings.Join(fallbacks, ">")
}

func createSTT(e ProviderEntry, reg *Registry) (stt.Provider, error) {
	if e.Name == mockName {
		return sttmock.New(), nil
	}
	p, err := reg.CreateSTT(e)
	if err != nil {
		return nil, fmt.Errorf("config: create stt provider %q: %w", e.Name, err)
	}
	return p, nil
}

func createTTS(e ProviderEntry, reg *Registry) (tts.Provider, error) {
	if e.Name == mockName {
		return ttsmock.New(), nil
	}
	p, err := reg.CreateTTS(e)
	if err != nil {
		return nil, fmt.Errorf("config: create tts provider %q: %w", e.Name, err)
	}
	return p, nil
}

func createLLM(e ProviderEntry, reg *Registry) (llm.Provider, error) {
	p, err := reg.CreateLLM(e)
	if err != nil {
		return nil, fmt.Errorf("config: create llm provider %q: %w", e.Name, err)
	}
	return p, nil
}

func selectSTT(e ProviderEntry, reg *Registry, fbCfg resilience.FallbackConfig) (stt.Provider, string, error) {
	primary, err := createSTT(e, reg)
	if err != nil {
		return nil, "", err
	}
	if len(e.Fallbacks) == 0 {
		return primary, entryLabel(e), nil
	}
	group := resilience.NewSTTFallback(primary, entryLabel(e), fbCfg)
	var names []string
	for _, fb := range e.Fallbacks {
		p, err := createSTT(fb, reg)
		if err != nil {
			return nil, "", err
		}
		group.AddFallback(entryLabel(fb), p)
		names = append(names, entryLabel(fb))
	}
	return group, chainLabel(entryLabel(e), names), nil
}

func selectTTS(e ProviderEntry, reg *Registry, fbCfg resilience.FallbackConfig) (tts.Provider, string, error) {
	primary, err := createTTS(e, reg)
	if err != nil {
		return nil, "", err
	}
	if len(e.Fallbacks) == 0 {
		return primary, entryLabel(e), nil
	}
	group := resilience.NewTTSFallback(primary, entryLabel(e), fbCfg)
	var names []string
	for _, fb := range e.Fallbacks {
		p, err := createTTS(fb, reg)
		if err != nil {
			return nil, "", err
		}
		group.AddFallback(entryLabel(fb), p)
		names = append(names, entryLabel(fb))
	}
	return group, chainLabel(entryLabel(e), names), nil
}

// selectLLM skips "mock" fallbacks: the generator already falls back to the
// rule-based response when every back-end fails.
func selectLLM(e ProviderEntry, reg *Registry, fbCfg resilience.FallbackConfig) (llm.Provider, string, error) {
	primary, err := createLLM(e, reg)
	if err != nil {
		return nil, "", err
	}
	var rest []ProviderEntry
	for _, fb := range e.Fallbacks {
		if fb.Name == mockName {
			slog.Debug("ignoring mock llm fallback; rule-based fallback is always active")
			continue
		}
		rest = append(rest, fb)
	}
	if len(rest) == 0 {
		return primary, entryLabel(e), nil
	}
	group := resilience.NewLLMFallback(primary, entryLabel(e), fbCfg)
	var names []string
	for _, fb := range rest {
		p, err := createLLM(fb, reg)
		if err != nil {
			return nil, "", err
		}
		group.AddFallback(entryLabel(fb), p)
		names = append(names, entryLabel(fb))
	}
	return group, chainLabel(entryLabel(e), names), nil
}

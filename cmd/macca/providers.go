package main

import (
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/macca/internal/config"
	"github.com/MrWong99/macca/pkg/provider/llm"
	"github.com/MrWong99/macca/pkg/provider/llm/anyllm"
	hfllm "github.com/MrWong99/macca/pkg/provider/llm/huggingface"
	"github.com/MrWong99/macca/pkg/provider/llm/openai"
	"github.com/MrWong99/macca/pkg/provider/stt"
	"github.com/MrWong99/macca/pkg/provider/stt/deepgram"
	hfstt "github.com/MrWong99/macca/pkg/provider/stt/huggingface"
	"github.com/MrWong99/macca/pkg/provider/stt/whisper"
	"github.com/MrWong99/macca/pkg/provider/tts"
	"github.com/MrWong99/macca/pkg/provider/tts/coqui"
	"github.com/MrWong99/macca/pkg/provider/tts/elevenlabs"
	hftts "github.com/MrWong99/macca/pkg/provider/tts/huggingface"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// "mock" is not registered here; the selector builds mocks itself.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		return openai.New(entry.APIKey, entry.Model, openaiOptions(entry)...)
	})
	reg.RegisterLLM("groq", func(entry config.ProviderEntry) (llm.Provider, error) {
		return openai.NewGroq(entry.APIKey, entry.Model, openaiOptions(entry)...)
	})
	reg.RegisterLLM("huggingface", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []hfllm.Option
		if entry.BaseURL != "" {
			opts = append(opts, hfllm.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, hfllm.WithModel(entry.Model))
		}
		return hfllm.New(entry.APIKey, opts...)
	})

	// The remaining hosted backends share one pattern: optional APIKey plus
	// optional BaseURL. openai and groq are served by the native client above.
	for _, name := range anyllm.Backends {
		if name == "openai" || name == "groq" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			// ollama is a local server; it uses BaseURL for the address, not an API key.
			if entry.APIKey != "" && name != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("huggingface", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []hfstt.Option
		if entry.BaseURL != "" {
			opts = append(opts, hfstt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, hfstt.WithModel(entry.Model))
		}
		if ct := optString(entry.Options, "content_type"); ct != "" {
			opts = append(opts, hfstt.WithContentType(ct))
		}
		return hfstt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("huggingface", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []hftts.Option
		if entry.BaseURL != "" {
			opts = append(opts, hftts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, hftts.WithModel(entry.Model))
		}
		return hftts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if voice := optString(entry.Options, "voice_id"); voice != "" {
			opts = append(opts, elevenlabs.WithVoice(voice))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		stability, okS := optFloat(entry.Options, "stability")
		similarity, okB := optFloat(entry.Options, "similarity_boost")
		if okS || okB {
			if !okS {
				stability = 0.5
			}
			if !okB {
				similarity = 0.75
			}
			opts = append(opts, elevenlabs.WithVoiceSettings(stability, similarity))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if speaker := optString(entry.Options, "speaker"); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for _, kind := range []string{"llm", "stt", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

func openaiOptions(entry config.ProviderEntry) []openai.Option {
	var opts []openai.Option
	if entry.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(entry.BaseURL))
	}
	if org := optString(entry.Options, "organization"); org != "" {
		opts = append(opts, openai.WithOrganization(org))
	}
	return opts
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optFloat reads a YAML number from opts; integers are accepted too.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// optDuration parses a Go duration string such as "20s" from opts. Missing or
// malformed values yield zero.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}

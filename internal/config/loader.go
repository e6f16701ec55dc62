package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"mock", "openai", "groq", "huggingface", "anthropic", "ollama", "gemini", "deepseek", "mistral", "llamacpp", "llamafile"},
	"stt": {"mock", "huggingface", "whisper", "deepgram"},
	"tts": {"mock", "huggingface", "elevenlabs", "coqui"},
}

// Default returns the configuration used when no file is given: mock
// providers, in-memory storage and anonymous access.
func Default() *Config {
	cfg := &Config{UseMock: true}
	cfg.Server.AllowAnonymous = true
	ApplyDefaults(cfg)
	return cfg
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references,
// applies defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	for i, o := range cfg.Server.CORSOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			errs = append(errs, fmt.Errorf("server.cors_origins[%d] %q must be \"*\" or an http(s) origin", i, o))
		}
	}
	if cfg.Server.AllowAnonymous {
		slog.Warn("server.allow_anonymous is enabled; requests without X-User-ID act as a shared user",
			"user", cfg.Server.AnonymousUser)
	}

	// Providers
	errs = append(errs, validateEntry("stt", "providers.stt", cfg.Providers.STT)...)
	errs = append(errs, validateEntry("llm", "providers.llm", cfg.Providers.LLM)...)
	errs = append(errs, validateEntry("tts", "providers.tts", cfg.Providers.TTS)...)

	// Storage
	if !cfg.Storage.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: memory, postgres, sqlite", cfg.Storage.Driver))
	}
	if (cfg.Storage.Driver == StoragePostgres || cfg.Storage.Driver == StorageSQLite) && cfg.Storage.DSN == "" {
		errs = append(errs, fmt.Errorf("storage.dsn is required for driver %q", cfg.Storage.Driver))
	}
	if cfg.Storage.Driver == StorageMemory && cfg.Storage.DSN != "" {
		slog.Warn("storage.dsn is ignored by the memory driver")
	}

	// Blob
	if cfg.Blob.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("blob.max_age %s must not be negative", cfg.Blob.MaxAge))
	}
	if cfg.Blob.CleanupInterval < 0 {
		errs = append(errs, fmt.Errorf("blob.cleanup_interval %s must not be negative", cfg.Blob.CleanupInterval))
	}

	// Timeouts
	if cfg.Timeouts.STT < 0 || cfg.Timeouts.LLM < 0 || cfg.Timeouts.TTS < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}

	// Tracing
	if !cfg.Tracing.Exporter.IsValid() {
		errs = append(errs, fmt.Errorf("tracing.exporter %q is invalid; valid values: none, stdout, otlp", cfg.Tracing.Exporter))
	}
	if cfg.Tracing.Exporter == TraceOTLP && cfg.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint is required for the otlp exporter"))
	}
	if r := cfg.Tracing.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio %g must be between 0 and 1", r))
	}

	return errors.Join(errs...)
}

func validateEntry(kind, prefix string, e ProviderEntry) []error {
	var errs []error
	if e.Name == "" {
		errs = append(errs, fmt.Errorf("%s.name is required", prefix))
	}
	validateProviderName(kind, e.Name)
	for i, fb := range e.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.fallbacks[%d].name is required", prefix, i))
		}
		if fb.Name == e.Name && fb.Model == e.Model {
			errs = append(errs, fmt.Errorf("%s.fallbacks[%d] duplicates the primary provider %q", prefix, i, e.Name))
		}
		if len(fb.Fallbacks) > 0 {
			slog.Warn("nested fallbacks are ignored", "entry", fmt.Sprintf("%s.fallbacks[%d]", prefix, i))
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

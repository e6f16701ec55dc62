package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/macca/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*config.Config)
		wantLevel   bool
		wantLessons bool
		wantRestart []string
	}{
		{name: "identical", mutate: func(*config.Config) {}},
		{
			name:      "log level",
			mutate:    func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			wantLevel: true,
		},
		{
			name:        "lessons file",
			mutate:      func(c *config.Config) { c.Lessons.File = "more.yaml" },
			wantLessons: true,
		},
		{
			name:        "listen address",
			mutate:      func(c *config.Config) { c.Server.ListenAddr = ":1" },
			wantRestart: []string{"server"},
		},
		{
			name:        "provider model",
			mutate:      func(c *config.Config) { c.Providers.LLM.Model = "gpt-4o" },
			wantRestart: []string{"providers"},
		},
		{
			name: "fallback added",
			mutate: func(c *config.Config) {
				c.Providers.STT.Fallbacks = []config.ProviderEntry{{Name: "whisper"}}
			},
			wantRestart: []string{"providers"},
		},
		{
			name: "storage and timeouts",
			mutate: func(c *config.Config) {
				c.Storage.Driver = config.StorageSQLite
				c.Timeouts.TTS = time.Second
			},
			wantRestart: []string{"storage", "timeouts"},
		},
		{
			name: "tracing header",
			mutate: func(c *config.Config) {
				c.Tracing.Headers = map[string]string{"authorization": "Bearer x"}
			},
			wantRestart: []string{"tracing"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, updated := baseConfig(), baseConfig()
			tt.mutate(updated)
			d := config.Diff(old, updated)
			if d.LogLevelChanged != tt.wantLevel || d.LessonsChanged != tt.wantLessons {
				t.Errorf("diff = %+v", d)
			}
			if !slices.Equal(d.RestartRequired, tt.wantRestart) {
				t.Errorf("restart required = %v, want %v", d.RestartRequired, tt.wantRestart)
			}
			wantChanged := tt.wantLevel || tt.wantLessons || len(tt.wantRestart) > 0
			if d.Changed() != wantChanged {
				t.Errorf("Changed() = %v, want %v", d.Changed(), wantChanged)
			}
		})
	}
}

func TestDiff_NewValues(t *testing.T) {
	t.Parallel()

	old, updated := baseConfig(), baseConfig()
	updated.Server.LogLevel = config.LogWarn
	updated.Lessons.File = "x.yaml"
	d := config.Diff(old, updated)
	if d.NewLogLevel != config.LogWarn || d.NewLessonsFile != "x.yaml" {
		t.Errorf("diff = %+v", d)
	}
}

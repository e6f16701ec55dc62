package config

import (
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart and is reported in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	LessonsChanged bool
	NewLessonsFile string

	// RestartRequired names the top-level sections that changed but are only
	// read at start-up.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.LessonsChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Lessons.File != new.Lessons.File {
		d.LessonsChanged = true
		d.NewLessonsFile = new.Lessons.File
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !serverEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.UseMock != new.UseMock || !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.Blob != new.Blob {
		d.RestartRequired = append(d.RestartRequired, "blob")
	}
	if old.Timeouts != new.Timeouts {
		d.RestartRequired = append(d.RestartRequired, "timeouts")
	}
	if !tracingEqual(old.Tracing, new.Tracing) {
		d.RestartRequired = append(d.RestartRequired, "tracing")
	}
	return d
}

func tracingEqual(a, b TracingConfig) bool {
	return a.Exporter == b.Exporter && a.Endpoint == b.Endpoint && a.Insecure == b.Insecure &&
		a.SampleRatio == b.SampleRatio && maps.Equal(a.Headers, b.Headers)
}

func serverEqual(a, b ServerConfig) bool {
	if a.ListenAddr != b.ListenAddr || a.AllowAnonymous != b.AllowAnonymous || a.AnonymousUser != b.AnonymousUser {
		return false
	}
	if !slices.Equal(a.CORSOrigins, b.CORSOrigins) {
		return false
	}
	if (a.TLS == nil) != (b.TLS == nil) {
		return false
	}
	return a.TLS == nil || *a.TLS == *b.TLS
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.STT, b.STT) && entryEqual(a.LLM, b.LLM) && entryEqual(a.TTS, b.TTS)
}

// entryEqual compares the fields that pick and reach a back-end. Options are
// compared by key set only.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k := range a.Options {
		if _, ok := b.Options[k]; !ok {
			return false
		}
	}
	return slices.EqualFunc(a.Fallbacks, b.Fallbacks, entryEqual)
}

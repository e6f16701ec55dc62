package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls its files.
const DefaultWatchInterval = 5 * time.Second

// fileStamp identifies one version of a file. The hash is only computed when
// the modification time moves.
type fileStamp struct {
	mtime time.Time
	hash  [sha256.Size]byte
}

// read returns the contents and stamp of path.
func read(path string) ([]byte, fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	return data, fileStamp{mtime: info.ModTime(), hash: sha256.Sum256(data)}, nil
}

// touched reports whether path's modification time differs from s.
func (s fileStamp) touched(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return !info.ModTime().Equal(s.mtime), nil
}

// Watcher polls the config file and the lesson catalogue it points at.
//
// A changed, valid config is handed to the change callback; an invalid one is
// logged and the previous config stays current. Edits to the lesson file
// alone (same lessons.file path) go to the lessons callback so the catalogue
// can be reloaded without touching the config.
type Watcher struct {
	path      string
	interval  time.Duration
	onChange  func(old, new *Config)
	onLessons func(path string)

	mu      sync.Mutex
	current *Config
	cfg     fileStamp
	lessons fileStamp
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLessonsHook registers fn to be called with the lesson file path when
// that file changes while the config itself does not.
func WithLessonsHook(fn func(path string)) WatcherOption {
	return func(w *Watcher) { w.onLessons = fn }
}

// NewWatcher creates a watcher and loads the initial config. Polling starts
// with [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.cfg = stamp
	w.lessons = lessonStamp(cfg)
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is done. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check polls both files once and fires the callbacks for what changed.
// Callbacks run outside the lock so they may call [Watcher.Current].
func (w *Watcher) Check() {
	if old, updated := w.checkConfig(); updated != nil {
		slog.Info("config watcher: configuration reloaded", "path", w.path)
		if w.onChange != nil {
			w.onChange(old, updated)
		}
		return
	}
	if path := w.checkLessons(); path != "" {
		slog.Info("config watcher: lesson file changed", "path", path)
		if w.onLessons != nil {
			w.onLessons(path)
		}
	}
}

// checkConfig returns the previous and new config when the file content
// changed and still validates.
func (w *Watcher) checkConfig() (old, updated *Config) {
	w.mu.Lock()
	stamp := w.cfg
	w.mu.Unlock()

	moved, err := stamp.touched(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return nil, nil
	}
	if !moved {
		return nil, nil
	}

	cfg, next, err := w.load()
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return nil, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg = next
	if next.hash == stamp.hash {
		return nil, nil
	}
	old = w.current
	w.current = cfg
	if cfg.Lessons.File != old.Lessons.File {
		// The change callback loads the new file; start tracking it from here.
		w.lessons = lessonStamp(cfg)
	}
	return old, cfg
}

// checkLessons returns the lesson file path when its content changed.
func (w *Watcher) checkLessons() string {
	w.mu.Lock()
	path := w.current.Lessons.File
	stamp := w.lessons
	w.mu.Unlock()

	if path == "" {
		return ""
	}
	moved, err := stamp.touched(path)
	if err != nil {
		slog.Warn("config watcher: cannot stat lesson file", "path", path, "err", err)
		return ""
	}
	if !moved {
		return ""
	}
	_, next, err := read(path)
	if err != nil {
		slog.Warn("config watcher: cannot read lesson file", "path", path, "err", err)
		return ""
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lessons = next
	if next.hash == stamp.hash {
		return ""
	}
	return path
}

// load reads, parses and validates the config file.
func (w *Watcher) load() (*Config, fileStamp, error) {
	data, stamp, err := read(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, stamp, nil
}

// lessonStamp stamps cfg's lesson file. A missing file yields the zero stamp,
// so its later appearance counts as a change.
func lessonStamp(cfg *Config) fileStamp {
	if cfg.Lessons.File == "" {
		return fileStamp{}
	}
	_, stamp, err := read(cfg.Lessons.File)
	if err != nil {
		return fileStamp{}
	}
	return stamp
}

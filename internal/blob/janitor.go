package blob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Janitor defaults.
const (
	DefaultMaxAge   = time.Hour
	DefaultInterval = 30 * time.Minute
)

// Janitor periodically deletes clips older than MaxAge from an [FS].
type Janitor struct {
	fs       *FS
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

// JanitorOption configures a [Janitor].
type JanitorOption func(*Janitor)

// WithMaxAge sets the age after which clips are deleted.
func WithMaxAge(d time.Duration) JanitorOption {
	return func(j *Janitor) {
		if d > 0 {
			j.maxAge = d
		}
	}
}

// WithInterval sets how often the janitor sweeps.
func WithInterval(d time.Duration) JanitorOption {
	return func(j *Janitor) {
		if d > 0 {
			j.interval = d
		}
	}
}

// WithClock overrides the clock used to age files.
func WithClock(now func() time.Time) JanitorOption {
	return func(j *Janitor) {
		j.now = now
	}
}

// NewJanitor returns a Janitor for fs.
func NewJanitor(fs *FS, opts ...JanitorOption) *Janitor {
	j := &Janitor{fs: fs, maxAge: DefaultMaxAge, interval: DefaultInterval, now: time.Now}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Run sweeps once immediately and then every interval until ctx is done. It
// returns nil on cancellation; sweep errors are logged, not returned.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		if n, err := j.Sweep(); err != nil {
			slog.Warn("blob janitor sweep failed", "dir", j.fs.Dir(), "error", err)
		} else if n > 0 {
			slog.Info("blob janitor removed old clips", "count", n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep deletes every clip and abandoned upload older than the max age and
// returns how many files were removed.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.fs.Dir())
	if err != nil {
		return 0, fmt.Errorf("blob: read %s: %w", j.fs.Dir(), err)
	}
	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	var firstErr error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if strings.HasPrefix(e.Name(), ".") && !strings.HasPrefix(e.Name(), ".upload-") {
			continue
		}
		if err := os.Remove(filepath.Join(j.fs.Dir(), e.Name())); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

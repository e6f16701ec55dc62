// Package blob stores audio clips and hands out the public references under
// which they are served.
//
// The filesystem back-end writes clips to <dir>/audio/<uuid>.<ext> and returns
// /static/audio/<uuid>.<ext>. [FS.Handler] serves exactly those references.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// URLPrefix is the public path under which clips are served.
const URLPrefix = "/static/audio/"

const audioSubdir = "audio"

// ErrEmpty is returned when asked to store an empty clip.
var ErrEmpty = errors.New("blob: data must not be empty")

// Store persists audio clips.
type Store interface {
	// Save writes data and returns its public reference. ext is the file
	// extension without the dot; unknown or unsafe extensions become "bin".
	Save(ctx context.Context, data []byte, ext string) (string, error)
}

// FS is a [Store] on the local filesystem.
type FS struct {
	root     string
	audioDir string
}

var _ Store = (*FS)(nil)

// NewFS returns an FS rooted at dir, creating <dir>/audio if needed.
func NewFS(dir string) (*FS, error) {
	if dir == "" {
		return nil, errors.New("blob: dir must not be empty")
	}
	audioDir := filepath.Join(dir, audioSubdir)
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create %s: %w", audioDir, err)
	}
	return &FS{root: dir, audioDir: audioDir}, nil
}

// Dir returns the directory clips are written to.
func (f *FS) Dir() string { return f.audioDir }

// Save implements [Store]. The file is written under a temporary name and
// renamed, so a concurrent reader never sees a partial clip.
func (f *FS) Save(ctx context.Context, data []byte, ext string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := uuid.NewString() + "." + cleanExt(ext)

	tmp, err := os.CreateTemp(f.audioDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("blob: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("blob: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("blob: close %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("blob: chmod %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(f.audioDir, name)); err != nil {
		return "", fmt.Errorf("blob: rename %s: %w", name, err)
	}
	return URLPrefix + name, nil
}

// Open returns the path of the clip behind ref, or an error if ref is not a
// reference produced by this store.
func (f *FS) Open(ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, URLPrefix)
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("blob: invalid reference %q", ref)
	}
	p := filepath.Join(f.audioDir, name)
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("blob: %w", err)
	}
	return p, nil
}

// Handler serves stored clips. Mount it at [URLPrefix]. Directory listings and
// dot files are refused.
func (f *FS) Handler() http.Handler {
	files := http.StripPrefix(URLPrefix, http.FileServer(http.Dir(f.audioDir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Base(r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/") || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// cleanExt lower-cases ext and keeps it only when it is 1-5 ASCII
// alphanumerics.
func cleanExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if len(ext) == 0 || len(ext) > 5 {
		return "bin"
	}
	for _, c := range ext {
		if !('a' <= c && c <= 'z') && !('0' <= c && c <= '9') {
			return "bin"
		}
	}
	return ext
}

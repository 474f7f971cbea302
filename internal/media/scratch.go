package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

// Scratch is a request-scoped temp directory. Every artifact the resolver
// materializes (decoded base64, downloads, sampled frames) lands inside it,
// so a single Cleanup removes everything on every exit path.
type Scratch struct {
	dir string
	seq atomic.Uint64
}

// NewScratch creates a private temp directory.
func NewScratch() (*Scratch, error) {
	dir, err := os.MkdirTemp("", "vlmd-*")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Dir returns the scratch root.
func (s *Scratch) Dir() string { return s.dir }

// NewPath reserves a unique file path with the given extension. Safe for
// concurrent use; nothing is created yet.
func (s *Scratch) NewPath(ext string) string {
	n := s.seq.Add(1)
	return filepath.Join(s.dir, fmt.Sprintf("media%03d%s", n, ext))
}

// SubDir creates a unique subdirectory, used for per-video frame sets.
func (s *Scratch) SubDir() (string, error) {
	n := s.seq.Add(1)
	dir := filepath.Join(s.dir, fmt.Sprintf("set%03d", n))
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", fmt.Errorf("scratch subdir: %w", err)
	}
	return dir, nil
}

// Cleanup removes the scratch tree. Idempotent.
func (s *Scratch) Cleanup() error {
	if s == nil || s.dir == "" {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("scratch cleanup: %w", err)
	}
	return nil
}

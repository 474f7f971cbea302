package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"vlmd/internal/common/fsutil"
)

// FindArtifact scans dir for files with the given extension (e.g. ".bmodel")
// and returns the absolute path of the lexically first match. The model
// directory convention keeps one weight artifact per directory; extras are
// tolerated and the first is used.
func FindArtifact(dir, ext string) (string, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", fmt.Errorf("read model dir: %w", err)
	}
	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), strings.ToLower(ext)) {
			matches = append(matches, e.Name())
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no %s artifact in %s", ext, abs)
	}
	sort.Strings(matches)
	return filepath.Join(abs, matches[0]), nil
}

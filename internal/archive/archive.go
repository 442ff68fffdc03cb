// Package archive dumps raw board documents to disk so a parse failure can
// be diagnosed against the exact markup that caused it.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// FS writes documents beneath a base directory.
type FS struct {
	baseDir string
}

// NewFS ensures the directory exists and is writable.
func NewFS(baseDir string) (*FS, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("archive directory is required")
	}

	info, err := os.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create archive directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat archive directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("archive path is not a directory")
	}

	probe := filepath.Join(baseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("archive directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}

	return &FS{baseDir: baseDir}, nil
}

// Save writes data under a sanitized form of name and returns the path
// written. Separators and other shell-hostile characters collapse to
// underscores, which also rules out traversal outside the base directory.
func (s *FS) Save(name string, data []byte) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name is required")
	}
	safe := unsafeNameChars.ReplaceAllString(name, "_")
	path := filepath.Join(s.baseDir, safe)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write archive file: %w", err)
	}
	return path, nil
}

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/chescofire/cadwatch/internal/dedup"
)

// FileStore persists the state as a single JSON document. Suited to the
// usual deployment, a lone daemon on a small box.
type FileStore struct {
	path string
}

// NewFileStore ensures the parent directory exists and returns the store.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the state document. A missing file is a first run, not an error.
func (s *FileStore) Load(_ context.Context) (dedup.State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return dedup.State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	var st dedup.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state file %s: %w", s.path, err)
	}
	if st == nil {
		st = dedup.State{}
	}
	return st.Normalize(), nil
}

// Save writes the full state document. The document is staged in the same
// directory and renamed into place, so readers never observe a torn file.
func (s *FileStore) Save(_ context.Context, st dedup.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("stage state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Close is a no-op for file storage.
func (s *FileStore) Close() {}

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ProgressFileName is the human-readable progress log inside the base path.
const ProgressFileName = "PROGRESS.md"

// ProgressFileStore persists the progress log as a markdown document.
type ProgressFileStore struct {
	mu       sync.Mutex
	basePath string
}

// NewProgressLogStore creates a ProgressFileStore for basePath/PROGRESS.md.
func NewProgressLogStore(basePath string) *ProgressFileStore {
	return &ProgressFileStore{basePath: basePath}
}

// Path returns the location of the progress document.
func (s *ProgressFileStore) Path() string {
	return filepath.Join(s.basePath, ProgressFileName)
}

// Load returns the document, or "" when it does not exist yet.
func (s *ProgressFileStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("loading progress log: %w", err)
	}
	return string(data), nil
}

// Save replaces the whole document atomically.
func (s *ProgressFileStore) Save(doc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.Path(), []byte(doc), 0o644); err != nil {
		return fmt.Errorf("saving progress log: %w", err)
	}
	return nil
}

// Append adds text to the end of the document without rewriting it. It is
// used when the existing document cannot be parsed and must not be touched.
func (s *ProgressFileStore) Append(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.basePath, 0o750); err != nil {
		return fmt.Errorf("appending progress log: creating directory: %w", err)
	}
	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("appending progress log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("appending progress log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("appending progress log: syncing: %w", err)
	}
	return nil
}

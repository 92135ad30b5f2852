package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

// CheckpointFileName is the checkpoint document inside the base path.
const CheckpointFileName = "checkpoint.yaml"

// CheckpointFileStore persists the checkpoint as YAML.
type CheckpointFileStore struct {
	mu       sync.Mutex
	basePath string
}

// NewCheckpointStore creates a CheckpointFileStore for
// basePath/checkpoint.yaml.
func NewCheckpointStore(basePath string) *CheckpointFileStore {
	return &CheckpointFileStore{basePath: basePath}
}

func (s *CheckpointFileStore) filePath() string {
	return filepath.Join(s.basePath, CheckpointFileName)
}

// Load reads the checkpoint. A missing file yields a zero checkpoint, which
// is a healthy breaker at iteration 0.
func (s *CheckpointFileStore) Load() (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &models.Checkpoint{}, nil
		}
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	cp := &models.Checkpoint{}
	if err := yaml.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("loading checkpoint: parsing YAML: %w", err)
	}
	if cp.ConsecutiveFailures < 0 || cp.Iteration < 0 {
		return nil, fmt.Errorf("loading checkpoint: negative counter in %s", s.filePath())
	}
	return cp, nil
}

// Save replaces the checkpoint atomically.
func (s *CheckpointFileStore) Save(cp *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(cp)
	if err != nil {
		return fmt.Errorf("saving checkpoint: marshaling YAML: %w", err)
	}
	if err := writeFileAtomic(s.filePath(), data, 0o600); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

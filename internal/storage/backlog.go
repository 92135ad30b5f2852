package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/pkg/models"
)

// BacklogFileName is the backlog document inside the base path.
const BacklogFileName = "backlog.yaml"

// RejectedRecord describes a backlog record quarantined on load.
type RejectedRecord struct {
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// backlogDocument is the on-disk shape of backlog.yaml. Tasks and rejected
// records are kept as raw nodes on read so an invalid record can be
// preserved verbatim.
type backlogDocument struct {
	Version  string                    `yaml:"version"`
	Counts   map[models.TaskStatus]int `yaml:"counts,omitempty"`
	Tasks    []yaml.Node               `yaml:"tasks"`
	Rejected []rejectedEntry           `yaml:"rejected,omitempty"`
}

type rejectedEntry struct {
	Reason string    `yaml:"reason"`
	Record yaml.Node `yaml:"record"`
}

type backlogOutput struct {
	Version  string                    `yaml:"version"`
	Counts   map[models.TaskStatus]int `yaml:"counts"`
	Tasks    []*models.Task            `yaml:"tasks"`
	Rejected []rejectedOutput          `yaml:"rejected,omitempty"`
}

type rejectedOutput struct {
	Reason string     `yaml:"reason"`
	Record *yaml.Node `yaml:"record"`
}

type quarantined struct {
	node   *yaml.Node
	record RejectedRecord
}

// BacklogFileStore persists the backlog as YAML. Records that fail
// validation are moved to a rejected section, kept verbatim, and
// re-validated on every load so a corrected record rejoins the backlog.
type BacklogFileStore struct {
	mu       sync.Mutex
	basePath string
	rejected []quarantined
}

// NewBacklogStore creates a BacklogFileStore for basePath/backlog.yaml.
func NewBacklogStore(basePath string) *BacklogFileStore {
	return &BacklogFileStore{basePath: basePath}
}

func (s *BacklogFileStore) filePath() string {
	return filepath.Join(s.basePath, BacklogFileName)
}

// Load reads the backlog. A missing file yields an empty backlog.
func (s *BacklogFileStore) Load() (*models.Backlog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			s.rejected = nil
			return models.NewBacklog(), nil
		}
		return nil, fmt.Errorf("loading backlog: %w", err)
	}

	var doc backlogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("loading backlog: parsing YAML: %w", err)
	}

	backlog := models.NewBacklog()
	if doc.Version != "" {
		backlog.Version = doc.Version
	}
	seen := make(map[string]bool)
	var rejected []quarantined
	nodes := make([]*yaml.Node, 0, len(doc.Tasks)+len(doc.Rejected))
	for i := range doc.Tasks {
		nodes = append(nodes, &doc.Tasks[i])
	}
	for i := range doc.Rejected {
		nodes = append(nodes, &doc.Rejected[i].Record)
	}
	for _, node := range nodes {
		task, reason := decodeTask(node, seen)
		if reason != "" {
			rejected = append(rejected, quarantined{
				node:   node,
				record: RejectedRecord{ID: task.ID, Reason: reason},
			})
			continue
		}
		core.NormalizeTask(task)
		seen[task.ID] = true
		backlog.Tasks = append(backlog.Tasks, task)
	}
	s.rejected = rejected
	backlog.Recount()
	return backlog, nil
}

// decodeTask decodes and validates one record. A non-empty reason means the
// record must be quarantined.
func decodeTask(node *yaml.Node, seen map[string]bool) (*models.Task, string) {
	task := &models.Task{}
	if err := node.Decode(task); err != nil {
		return task, fmt.Sprintf("decoding record: %v", err)
	}
	if err := core.ValidateTask(task); err != nil {
		return task, err.Error()
	}
	if seen[task.ID] {
		return task, fmt.Sprintf("duplicate task id %s", task.ID)
	}
	return task, ""
}

// Save writes backlog atomically with tasks ordered by id and counts
// recomputed. Records quarantined by the last Load are written back under
// rejected.
func (s *BacklogFileStore) Save(backlog *models.Backlog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := backlogOutput{
		Version: backlog.Version,
		Tasks:   append([]*models.Task(nil), backlog.Tasks...),
	}
	if out.Version == "" {
		out.Version = "1.0"
	}
	sort.Slice(out.Tasks, func(i, j int) bool {
		return out.Tasks[i].ID < out.Tasks[j].ID
	})
	counted := &models.Backlog{Tasks: out.Tasks}
	counted.Recount()
	out.Counts = counted.Counts

	for _, q := range s.rejected {
		out.Rejected = append(out.Rejected, rejectedOutput{Reason: q.record.Reason, Record: q.node})
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("saving backlog: marshaling YAML: %w", err)
	}
	if err := writeFileAtomic(s.filePath(), data, 0o600); err != nil {
		return fmt.Errorf("saving backlog: %w", err)
	}
	return nil
}

// Rejected returns the records quarantined by the most recent Load.
func (s *BacklogFileStore) Rejected() []RejectedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RejectedRecord, 0, len(s.rejected))
	for _, q := range s.rejected {
		out = append(out, q.record)
	}
	return out
}

// LoadTaskFile reads a YAML list of task records for ingestion. The file
// may hold either a bare list or a document with a tasks key.
func LoadTaskFile(path string) ([]models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}
	var tasks []models.Task
	if err := yaml.Unmarshal(data, &tasks); err == nil {
		return tasks, nil
	}
	var doc struct {
		Tasks []models.Task `yaml:"tasks"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing task file %s: %w", path, err)
	}
	return doc.Tasks, nil
}

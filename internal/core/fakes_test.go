package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

// opRecorder tracks the order in which the fake stores are written.
type opRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (r *opRecorder) record(op string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *opRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

func (r *opRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
}

type memBacklogStore struct {
	mu      sync.Mutex
	backlog *models.Backlog
	ops     *opRecorder
}

func newMemBacklogStore(tasks ...*models.Task) *memBacklogStore {
	b := models.NewBacklog()
	b.Tasks = tasks
	b.Recount()
	return &memBacklogStore{backlog: b}
}

func (s *memBacklogStore) Load() (*models.Backlog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBacklog(s.backlog), nil
}

func (s *memBacklogStore) Save(b *models.Backlog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops.record("backlog")
	s.backlog = cloneBacklog(b)
	return nil
}

func (s *memBacklogStore) task(id string) *models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.backlog.Task(id)
	if t == nil {
		return nil
	}
	c := cloneTask(t)
	return &c
}

type memCheckpointStore struct {
	mu  sync.Mutex
	cp  models.Checkpoint
	ops *opRecorder
}

func (s *memCheckpointStore) Load() (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.cp
	return &cp, nil
}

func (s *memCheckpointStore) Save(cp *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops.record("checkpoint")
	s.cp = *cp
	return nil
}

func (s *memCheckpointStore) current() models.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cp
}

type memProgressStore struct {
	mu  sync.Mutex
	doc string
	ops *opRecorder
}

func (s *memProgressStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, nil
}

func (s *memProgressStore) Save(doc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops.record("progress")
	s.doc = doc
	return nil
}

func (s *memProgressStore) Append(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops.record("progress-append")
	s.doc += text
	return nil
}

func (s *memProgressStore) current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// executorFunc adapts a function to the Executor interface.
type executorFunc func(ctx context.Context, task models.Task) (*ExecutionReport, error)

func (f executorFunc) Execute(ctx context.Context, task models.Task) (*ExecutionReport, error) {
	return f(ctx, task)
}

// recordingLogger captures event types in order.
type recordingLogger struct {
	mu     sync.Mutex
	events []string
	data   []map[string]any
}

func (l *recordingLogger) LogEvent(eventType string, data map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, eventType)
	l.data = append(l.data, data)
	return nil
}

func (l *recordingLogger) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func cloneBacklog(b *models.Backlog) *models.Backlog {
	out := &models.Backlog{Version: b.Version, Counts: make(map[models.TaskStatus]int, len(b.Counts))}
	for k, v := range b.Counts {
		out.Counts[k] = v
	}
	for _, t := range b.Tasks {
		c := cloneTask(t)
		out.Tasks = append(out.Tasks, &c)
	}
	return out
}

var testEpoch = time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)

// newTask builds a valid pending task with neutral weights.
func newTask(id string, priority models.Priority, taskType models.TaskType, blockedBy ...string) *models.Task {
	status := models.StatusPending
	if len(blockedBy) > 0 {
		status = models.StatusBlocked
	}
	return &models.Task{
		ID:        id,
		Type:      taskType,
		Title:     fmt.Sprintf("Task %s", id),
		Status:    status,
		Priority:  priority,
		BlockedBy: blockedBy,
	}
}

// scenarioScoring is the weight table used by the worked scoring example.
func scenarioScoring() models.ScoringConfig {
	return models.ScoringConfig{
		PriorityWeights: map[models.Priority]int{
			models.PriorityCritical: 1000,
			models.PriorityHigh:     750,
		},
		TypeWeights: map[models.TaskType]int{
			models.TaskTypeBlocker:       200,
			models.TaskTypeMilestoneWork: 100,
		},
		MaxSequence:        20,
		SequenceStepWeight: 5,
	}
}

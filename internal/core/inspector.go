package core

import (
	"fmt"
	"time"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

// TaskCounts holds the aggregate counts operators ask for.
type TaskCounts struct {
	ByStatus map[models.TaskStatus]int `json:"by_status"`
	ByType   map[models.TaskType]int   `json:"by_type"`
	Total    int                       `json:"total"`
}

// Inspector answers read-only operator queries. It never writes to a
// store, so it is safe to use while a driver is running.
type Inspector interface {
	NextTask() (*models.Task, error)
	Ranked(limit int) ([]models.Task, error)
	Counts() (*TaskCounts, error)
	BlockingChain(id string) ([]ChainLink, error)
	Task(id string) (*models.Task, error)
	Checkpoint() (*models.Checkpoint, error)
	Starving() ([]StarvationWarning, error)
}

type inspector struct {
	backlogs      BacklogStore
	checkpoints   CheckpointStore
	scorer        *Scorer
	starvationAge time.Duration
	now           func() time.Time
}

// NewInspector creates an Inspector over the given stores. Scores are
// recomputed at query time with the configured weights.
func NewInspector(backlogs BacklogStore, checkpoints CheckpointStore, cfg models.Config) Inspector {
	return &inspector{
		backlogs:      backlogs,
		checkpoints:   checkpoints,
		scorer:        NewScorer(cfg.Scoring),
		starvationAge: cfg.Loop.StarvationAge,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// NextTask returns the task the driver would select next. It returns
// ErrCircuitBreakerTripped while the breaker is tripped and
// ErrNoEligibleTask when nothing is eligible.
func (i *inspector) NextTask() (*models.Task, error) {
	cp, err := i.checkpoints.Load()
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	backlog, err := i.backlogs.Load()
	if err != nil {
		return nil, fmt.Errorf("loading backlog: %w", err)
	}
	return peekNext(backlog, cp, i.scorer, i.now())
}

// Ranked returns up to limit eligible tasks in selection order. A
// non-positive limit returns all of them.
func (i *inspector) Ranked(limit int) ([]models.Task, error) {
	backlog, err := i.projected()
	if err != nil {
		return nil, err
	}
	ranked := RankEligible(backlog)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]models.Task, 0, len(ranked))
	for _, t := range ranked {
		out = append(out, cloneTask(t))
	}
	return out, nil
}

func (i *inspector) Counts() (*TaskCounts, error) {
	backlog, err := i.backlogs.Load()
	if err != nil {
		return nil, fmt.Errorf("loading backlog: %w", err)
	}
	backlog.Recount()
	return &TaskCounts{
		ByStatus: backlog.Counts,
		ByType:   backlog.CountByType(),
		Total:    len(backlog.Tasks),
	}, nil
}

func (i *inspector) BlockingChain(id string) ([]ChainLink, error) {
	backlog, err := i.backlogs.Load()
	if err != nil {
		return nil, fmt.Errorf("loading backlog: %w", err)
	}
	return BlockingChain(backlog, id)
}

func (i *inspector) Task(id string) (*models.Task, error) {
	backlog, err := i.projected()
	if err != nil {
		return nil, err
	}
	t := backlog.Task(id)
	if t == nil {
		return nil, fmt.Errorf("task %s not found", id)
	}
	c := cloneTask(t)
	return &c, nil
}

func (i *inspector) Checkpoint() (*models.Checkpoint, error) {
	cp, err := i.checkpoints.Load()
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	return cp, nil
}

func (i *inspector) Starving() ([]StarvationWarning, error) {
	backlog, err := i.backlogs.Load()
	if err != nil {
		return nil, fmt.Errorf("loading backlog: %w", err)
	}
	return DetectStarvation(backlog, i.now(), i.starvationAge), nil
}

// projected loads the backlog and applies an in-memory resolve and rescore
// so answers match what the next iteration would see.
func (i *inspector) projected() (*models.Backlog, error) {
	backlog, err := i.backlogs.Load()
	if err != nil {
		return nil, fmt.Errorf("loading backlog: %w", err)
	}
	_, _ = Resolve(backlog)
	i.scorer.Rescore(backlog, i.now())
	return backlog, nil
}

func peekNext(backlog *models.Backlog, cp *models.Checkpoint, scorer *Scorer, now time.Time) (*models.Task, error) {
	if cp.Tripped {
		return nil, ErrCircuitBreakerTripped
	}
	_, _ = Resolve(backlog)
	scorer.Rescore(backlog, now)
	id, ok := SelectNext(backlog)
	if !ok {
		return nil, ErrNoEligibleTask
	}
	t := cloneTask(backlog.Task(id))
	return &t, nil
}

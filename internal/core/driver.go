package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

// Executor performs one task and reports what happened. It is a black box
// to the driver; the driver never retries it.
type Executor interface {
	Execute(ctx context.Context, task models.Task) (*ExecutionReport, error)
}

// ExecutionReport is the executor's account of one task attempt.
type ExecutionReport struct {
	Outcome     models.Outcome `json:"outcome"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Artifacts   []string       `json:"artifacts,omitempty"`
	Reference   string         `json:"reference,omitempty"`
	NextHint    string         `json:"next_hint,omitempty"`
	NewTasks    []models.Task  `json:"new_tasks,omitempty"`
	BlockedBy   []string       `json:"blocked_by,omitempty"`
}

// IterationResult summarises one driver iteration.
type IterationResult struct {
	IterationID string
	TaskID      string
	Outcome     models.Outcome
	Progress    bool
	TimedOut    bool
	ExecError   error
	Unblocked   []string
	Ingested    []string
	Problems    []error
	Breaker     Transition
	Compaction  *CompactionStats
	Starving    []StarvationWarning
}

// Completed reports whether the selected task finished in this iteration.
func (r *IterationResult) Completed() bool {
	return r.ExecError == nil && r.Outcome == models.OutcomeSuccess
}

// StopReason says why Run returned.
type StopReason string

const (
	StopNoEligibleTask StopReason = "no_eligible_task"
	StopTripped        StopReason = "breaker_tripped"
	StopMaxIterations  StopReason = "max_iterations"
	StopCancelled      StopReason = "cancelled"
)

// RunOptions tunes a single call to Run.
type RunOptions struct {
	// MaxIterations overrides loop.max_iterations when positive.
	MaxIterations int
	OnIteration   func(*IterationResult)
}

// RunSummary is returned by Run.
type RunSummary struct {
	Iterations int
	Completed  int
	Recovered  []string
	Reason     StopReason
}

// DriverStores groups the three durable stores the driver owns.
type DriverStores struct {
	Backlog    BacklogStore
	Checkpoint CheckpointStore
	Progress   ProgressLogStore
}

// DriverOption customises a Driver.
type DriverOption func(*Driver)

// WithClock replaces the wall clock used for scoring and timestamps.
func WithClock(now func() time.Time) DriverOption {
	return func(d *Driver) { d.now = now }
}

// WithIDGenerator replaces the iteration id generator.
func WithIDGenerator(next func() string) DriverOption {
	return func(d *Driver) { d.newID = next }
}

// Driver runs the select, execute, record loop. It is the only writer of
// the backlog, checkpoint, and progress log.
type Driver struct {
	backlogs    BacklogStore
	checkpoints CheckpointStore
	progress    ProgressLogStore
	executor    Executor
	events      EventLogger

	scorer    *Scorer
	breaker   Breaker
	compactor *Compactor
	durable   []glob.Glob

	budget        time.Duration
	maxIterations int
	starvationAge time.Duration

	now   func() time.Time
	newID func() string
}

// NewDriver builds a Driver from configuration. A nil events logger
// disables event logging.
func NewDriver(cfg models.Config, stores DriverStores, executor Executor, events EventLogger, opts ...DriverOption) (*Driver, error) {
	compactor, err := NewCompactor(cfg.Compaction)
	if err != nil {
		return nil, err
	}
	durable, err := CompileArtifactPatterns(cfg.Loop.DurableArtifacts)
	if err != nil {
		return nil, err
	}
	d := &Driver{
		backlogs:      stores.Backlog,
		checkpoints:   stores.Checkpoint,
		progress:      stores.Progress,
		executor:      executor,
		events:        events,
		scorer:        NewScorer(cfg.Scoring),
		breaker:       NewBreaker(cfg.Breaker.Threshold),
		compactor:     compactor,
		durable:       durable,
		budget:        cfg.Loop.IterationBudget,
		maxIterations: cfg.Loop.MaxIterations,
		starvationAge: cfg.Loop.StarvationAge,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// CompileArtifactPatterns compiles durable-artifact globs. "*" stops at a
// path separator; "**" does not.
func CompileArtifactPatterns(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling durable artifact pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Run recovers from any interrupted iteration and then iterates until no
// task is eligible, the breaker trips, the iteration limit is reached, or
// ctx is cancelled. Cancellation is only observed between iterations.
func (d *Driver) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	summary := &RunSummary{}
	recovered, err := d.Recover()
	if err != nil {
		return summary, fmt.Errorf("recovering interrupted iteration: %w", err)
	}
	summary.Recovered = recovered

	limit := opts.MaxIterations
	if limit <= 0 {
		limit = d.maxIterations
	}
	for {
		if ctx.Err() != nil {
			summary.Reason = StopCancelled
			return summary, nil
		}
		if limit > 0 && summary.Iterations >= limit {
			summary.Reason = StopMaxIterations
			return summary, nil
		}

		res, err := d.RunIteration(ctx)
		switch {
		case errors.Is(err, ErrNoEligibleTask):
			summary.Reason = StopNoEligibleTask
			return summary, nil
		case errors.Is(err, ErrCircuitBreakerTripped):
			summary.Reason = StopTripped
			return summary, err
		case err != nil:
			return summary, err
		}

		summary.Iterations++
		if res.Completed() {
			summary.Completed++
		}
		if opts.OnIteration != nil {
			opts.OnIteration(res)
		}
		if res.Breaker.To == models.BreakerTripped {
			summary.Reason = StopTripped
			return summary, ErrCircuitBreakerTripped
		}
	}
}

// RunIteration performs exactly one select, execute, record cycle. It
// returns ErrCircuitBreakerTripped without selecting when the breaker is
// tripped, and ErrNoEligibleTask when nothing can be selected.
func (d *Driver) RunIteration(ctx context.Context) (*IterationResult, error) {
	cp, err := d.checkpoints.Load()
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	if cp.Tripped {
		return nil, ErrCircuitBreakerTripped
	}
	backlog, err := d.backlogs.Load()
	if err != nil {
		return nil, fmt.Errorf("loading backlog: %w", err)
	}

	now := d.now()
	res := &IterationResult{IterationID: d.newID()}
	unblocked, problems := d.resolve(backlog, res.IterationID)
	res.Unblocked = unblocked
	res.Problems = problems
	d.scorer.Rescore(backlog, now)

	id, ok := SelectNext(backlog)
	if !ok {
		if err := d.backlogs.Save(backlog); err != nil {
			return nil, fmt.Errorf("saving backlog: %w", err)
		}
		return res, ErrNoEligibleTask
	}
	task := backlog.Task(id)
	res.TaskID = id
	d.logEvent(EventIterationStarted, map[string]any{
		"iteration_id": res.IterationID,
		"iteration":    cp.Iteration + 1,
	})

	// The in-flight marker goes to disk before the task is marked
	// in-progress so a crash in between is always visible to Recover.
	cp.InFlightTaskID = id
	cp.UpdatedAt = &now
	if err := d.checkpoints.Save(cp); err != nil {
		return nil, fmt.Errorf("saving in-flight checkpoint: %w", err)
	}
	started := now
	task.Status = models.StatusInProgress
	task.Started = &started
	backlog.Recount()
	if err := d.backlogs.Save(backlog); err != nil {
		return nil, fmt.Errorf("saving backlog: %w", err)
	}
	d.logEvent(EventTaskSelected, map[string]any{
		"iteration_id": res.IterationID,
		"task_id":      id,
		"score":        task.Score,
	})

	exec := d.execute(ctx, cloneTask(task))
	finished := d.now()
	entry, reference := d.applyOutcome(backlog, task, exec, finished, res)

	more, problems := d.resolve(backlog, res.IterationID)
	res.Unblocked = normalizeIDs(append(res.Unblocked, more...))
	res.Problems = append(res.Problems, problems...)
	d.scorer.Rescore(backlog, finished)
	backlog.Recount()
	if err := d.backlogs.Save(backlog); err != nil {
		return nil, fmt.Errorf("saving backlog: %w", err)
	}

	transition, err := d.breaker.Record(cp, IterationRecord{
		TaskID:    id,
		Progress:  res.Progress,
		Reference: reference,
		At:        finished,
	})
	if err != nil {
		return nil, fmt.Errorf("recording iteration: %w", err)
	}
	if err := d.checkpoints.Save(cp); err != nil {
		return nil, fmt.Errorf("saving checkpoint: %w", err)
	}
	res.Breaker = transition
	d.logTransition(transition, cp, res.IterationID)

	if err := d.appendProgress(entry, backlog, cp, finished, res); err != nil {
		return res, err
	}

	res.Starving = DetectStarvation(backlog, finished, d.starvationAge)
	for _, w := range res.Starving {
		d.logEvent(EventTaskStarving, map[string]any{
			"task_id": w.TaskID,
			"age":     w.Age.String(),
		})
	}
	return res, nil
}

// Next returns the task the next iteration would select without changing
// any stored state.
func (d *Driver) Next() (*models.Task, error) {
	cp, err := d.checkpoints.Load()
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	backlog, err := d.backlogs.Load()
	if err != nil {
		return nil, fmt.Errorf("loading backlog: %w", err)
	}
	return peekNext(backlog, cp, d.scorer, d.now())
}

// Reset clears a tripped breaker. Task statuses are not touched.
func (d *Driver) Reset() (Transition, error) {
	cp, err := d.checkpoints.Load()
	if err != nil {
		return Transition{}, fmt.Errorf("loading checkpoint: %w", err)
	}
	transition := d.breaker.Reset(cp, d.now())
	if err := d.checkpoints.Save(cp); err != nil {
		return Transition{}, fmt.Errorf("saving checkpoint: %w", err)
	}
	d.logEvent(EventBreakerReset, map[string]any{
		"from": string(transition.From),
	})
	return transition, nil
}

// Compact folds the stored progress log regardless of the size thresholds.
// An unparseable document is left untouched and reported as
// *CompactionError.
func (d *Driver) Compact() (CompactionStats, error) {
	raw, err := d.progress.Load()
	if err != nil {
		return CompactionStats{}, fmt.Errorf("loading progress log: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return CompactionStats{}, nil
	}
	out, stats, err := d.compactor.CompactDocument(raw, d.now())
	if err != nil {
		d.logEvent(EventCompactionFailed, map[string]any{"error": err.Error()})
		return stats, err
	}
	if !stats.Changed() {
		return stats, nil
	}
	if err := d.progress.Save(out); err != nil {
		return stats, fmt.Errorf("saving progress log: %w", err)
	}
	d.logEvent(EventCompacted, map[string]any{
		"folded":      stats.Folded,
		"rolled_up":   stats.RolledUp,
		"kept":        stats.Kept,
		"periods":     stats.Periods,
		"lines_after": stats.LinesAfter,
		"oversize":    stats.Oversize,
	})
	return stats, nil
}

// Recover returns tasks left in progress by an interrupted run to pending
// and counts the interrupted iteration as one without progress. A run that
// stopped after saving its task as complete but before saving the checkpoint
// only has its in-flight marker cleared; the breaker is left as it was. It
// returns the ids of the recovered tasks.
func (d *Driver) Recover() ([]string, error) {
	cp, err := d.checkpoints.Load()
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	backlog, err := d.backlogs.Load()
	if err != nil {
		return nil, fmt.Errorf("loading backlog: %w", err)
	}

	var recovered []string
	for _, t := range sortedTasks(backlog) {
		if t.Status == models.StatusInProgress {
			t.Status = models.StatusPending
			recovered = append(recovered, t.ID)
		}
	}
	interrupted := cp.InFlightTaskID
	if len(recovered) == 0 && interrupted == "" {
		return nil, nil
	}

	if len(recovered) > 0 {
		backlog.Recount()
		if err := d.backlogs.Save(backlog); err != nil {
			return nil, fmt.Errorf("saving backlog: %w", err)
		}
	}

	taskID := interrupted
	if taskID == "" {
		taskID = recovered[0]
	}
	finished := len(recovered) == 0 && backlog.Task(interrupted) != nil &&
		backlog.Task(interrupted).Status == models.StatusComplete
	if cp.Tripped || finished {
		cp.InFlightTaskID = ""
	} else {
		transition, err := d.breaker.Record(cp, IterationRecord{TaskID: taskID, At: d.now()})
		if err != nil {
			return nil, fmt.Errorf("recording interrupted iteration: %w", err)
		}
		d.logTransition(transition, cp, "")
	}
	if err := d.checkpoints.Save(cp); err != nil {
		return nil, fmt.Errorf("saving checkpoint: %w", err)
	}
	d.logEvent(EventLoopRecovered, map[string]any{
		"task_id":   taskID,
		"recovered": recovered,
		"completed": finished,
	})
	return recovered, nil
}

// Ingest validates and adds new tasks to the stored backlog. Accepted ids
// are returned; every rejected record contributes one error to the joined
// error.
func (d *Driver) Ingest(tasks []models.Task) ([]string, error) {
	backlog, err := d.backlogs.Load()
	if err != nil {
		return nil, fmt.Errorf("loading backlog: %w", err)
	}
	now := d.now()
	accepted, problems := d.ingestTasks(backlog, tasks, now)
	if len(accepted) > 0 {
		d.scorer.Rescore(backlog, now)
		backlog.Recount()
		if err := d.backlogs.Save(backlog); err != nil {
			return nil, fmt.Errorf("saving backlog: %w", err)
		}
	}
	return accepted, errors.Join(problems...)
}

type execution struct {
	report   *ExecutionReport
	err      error
	timedOut bool
}

// execute runs the executor with the iteration budget. Cancelling ctx does
// not interrupt an execution in flight; only the budget does.
func (d *Driver) execute(ctx context.Context, task models.Task) execution {
	execCtx := context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if d.budget > 0 {
		execCtx, cancel = context.WithTimeout(execCtx, d.budget)
	}
	defer cancel()

	done := make(chan execution, 1)
	go func() {
		report, err := d.executor.Execute(execCtx, task)
		done <- execution{report: report, err: err}
	}()

	select {
	case e := <-done:
		if e.err == nil && e.report == nil {
			e.err = errors.New("executor returned no report")
		}
		if e.err == nil && !validOutcomes[e.report.Outcome] {
			e.err = fmt.Errorf("executor reported invalid outcome %q", e.report.Outcome)
		}
		return e
	case <-execCtx.Done():
		return execution{
			err:      fmt.Errorf("executor exceeded iteration budget of %s", d.budget),
			timedOut: true,
		}
	}
}

// applyOutcome moves task out of in_progress according to the execution
// and returns the progress entry plus the reference recorded on progress.
func (d *Driver) applyOutcome(backlog *models.Backlog, task *models.Task, e execution, at time.Time, res *IterationResult) (models.ProgressEntry, string) {
	entry := models.ProgressEntry{
		Timestamp: at.UTC().Truncate(time.Second),
		Title:     task.Title,
	}

	if e.err != nil {
		task.Status = models.StatusPending
		res.Outcome = models.OutcomePartial
		res.ExecError = e.err
		res.TimedOut = e.timedOut
		entry.Outcome = models.OutcomePartial
		entry.Description = "No progress: " + e.err.Error()
		d.logEvent(EventExecutorFailed, map[string]any{
			"iteration_id": res.IterationID,
			"task_id":      task.ID,
			"timed_out":    e.timedOut,
			"error":        e.err.Error(),
		})
		d.logStatusChange(task.ID, models.StatusInProgress, task.Status)
		return entry, ""
	}

	r := e.report
	ingested, problems := d.ingestTasks(backlog, r.NewTasks, at)
	res.Ingested = ingested
	res.Problems = append(res.Problems, problems...)

	if r.Summary != "" {
		entry.Title = r.Summary
	}
	entry.Description = r.Description
	entry.Artifacts = append([]string(nil), r.Artifacts...)
	entry.Outcome = r.Outcome
	entry.NextHint = r.NextHint
	res.Outcome = r.Outcome

	switch r.Outcome {
	case models.OutcomeSuccess:
		completed := at
		task.Status = models.StatusComplete
		task.Completed = &completed
		d.logEvent(EventTaskCompleted, map[string]any{
			"iteration_id": res.IterationID,
			"task_id":      task.ID,
			"type":         string(task.Type),
		})
	case models.OutcomePartial:
		task.Status = models.StatusPending
	case models.OutcomeBlocked:
		switch {
		case len(r.BlockedBy) == 0:
			task.Status = models.StatusPending
			task.ReviewEscalated = true
		default:
			if err := CheckBlockers(backlog, task, r.BlockedBy); err != nil {
				task.Status = models.StatusPending
				res.Problems = append(res.Problems, err)
				d.logEvent(EventDependencyError, map[string]any{
					"iteration_id": res.IterationID,
					"task_id":      task.ID,
					"error":        err.Error(),
				})
			} else {
				task.BlockedBy = normalizeIDs(append(task.BlockedBy, r.BlockedBy...))
				task.Status = models.StatusBlocked
			}
		}
	}
	d.logStatusChange(task.ID, models.StatusInProgress, task.Status)

	reference := r.Reference
	for _, a := range r.Artifacts {
		if d.isDurableArtifact(a) {
			res.Progress = true
			if reference == "" {
				reference = a
			}
			break
		}
	}
	if r.Reference != "" {
		res.Progress = true
	}
	return entry, reference
}

func (d *Driver) isDurableArtifact(path string) bool {
	for _, g := range d.durable {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// ingestTasks adds discovered tasks to backlog in order, so later tasks may
// reference earlier ones.
func (d *Driver) ingestTasks(backlog *models.Backlog, tasks []models.Task, now time.Time) ([]string, []error) {
	var (
		accepted []string
		problems []error
	)
	for i := range tasks {
		t := cloneTask(&tasks[i])
		applyIngestDefaults(&t, now)
		err := ValidateTask(&t)
		if err == nil && t.Status != models.StatusPending && t.Status != models.StatusBlocked {
			err = &ValidationError{TaskID: t.ID, Field: "status", Reason: "must be pending or blocked for a new task"}
		}
		if err == nil {
			NormalizeTask(&t)
			err = CheckIngest(backlog, &t)
		}
		if err != nil {
			problems = append(problems, err)
			d.logEvent(EventTaskRejected, map[string]any{
				"task_id": t.ID,
				"error":   err.Error(),
			})
			continue
		}
		t.Score = 0
		t.Started = nil
		t.Completed = nil
		backlog.Tasks = append(backlog.Tasks, &t)
		accepted = append(accepted, t.ID)
		d.logEvent(EventTaskIngested, map[string]any{
			"task_id": t.ID,
			"status":  string(t.Status),
		})
	}
	return accepted, problems
}

// applyIngestDefaults fills the fields an executor may leave out.
func applyIngestDefaults(t *models.Task, now time.Time) {
	if t.Type == "" {
		t.Type = models.TaskTypeOther
	}
	if t.Priority == "" {
		t.Priority = models.PriorityNormal
	}
	if t.Status == "" {
		t.Status = models.StatusPending
	}
	if t.Status == models.StatusPending && len(t.BlockedBy) > 0 {
		t.Status = models.StatusBlocked
	}
	if t.Created == nil {
		created := now
		t.Created = &created
	}
}

func (d *Driver) resolve(backlog *models.Backlog, iterationID string) ([]string, []error) {
	unblocked, err := Resolve(backlog)
	for _, id := range unblocked {
		d.logEvent(EventTaskUnblocked, map[string]any{
			"iteration_id": iterationID,
			"task_id":      id,
		})
		d.logStatusChange(id, models.StatusBlocked, models.StatusPending)
	}
	if err == nil {
		return unblocked, nil
	}
	problems := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		problems = joined.Unwrap()
	}
	for _, p := range problems {
		d.logEvent(EventDependencyError, map[string]any{
			"iteration_id": iterationID,
			"error":        p.Error(),
		})
	}
	return unblocked, problems
}

// appendProgress adds entry to the progress log and compacts it when a
// threshold is exceeded. If the stored document cannot be parsed the entry
// is appended as raw text and compaction is skipped.
func (d *Driver) appendProgress(entry models.ProgressEntry, backlog *models.Backlog, cp *models.Checkpoint, at time.Time, res *IterationResult) error {
	raw, err := d.progress.Load()
	if err != nil {
		return fmt.Errorf("loading progress log: %w", err)
	}

	log := &models.ProgressLog{}
	if strings.TrimSpace(raw) != "" {
		parsed, err := ParseProgressLog(raw)
		if err != nil {
			cerr := &CompactionError{Err: err}
			res.Problems = append(res.Problems, cerr)
			d.logEvent(EventCompactionFailed, map[string]any{
				"iteration_id": res.IterationID,
				"error":        cerr.Error(),
			})
			if err := d.progress.Append("\n" + FormatProgressEntry(entry)); err != nil {
				return fmt.Errorf("appending progress entry: %w", err)
			}
			return nil
		}
		log = parsed
	}

	log.Recent = append(log.Recent, entry)
	log.Status = d.currentStatus(backlog, cp, res.TaskID, entry, at)
	if d.compactor.NeedsCompaction(log) {
		compacted, stats := d.compactor.Compact(log, at)
		log = compacted
		if stats.Changed() {
			res.Compaction = &stats
			d.logEvent(EventCompacted, map[string]any{
				"iteration_id": res.IterationID,
				"folded":       stats.Folded,
				"rolled_up":    stats.RolledUp,
				"kept":         stats.Kept,
				"periods":      stats.Periods,
				"lines_after":  stats.LinesAfter,
				"oversize":     stats.Oversize,
			})
		}
	}
	if err := d.progress.Save(FormatProgressLog(log)); err != nil {
		return fmt.Errorf("saving progress log: %w", err)
	}
	return nil
}

func (d *Driver) currentStatus(backlog *models.Backlog, cp *models.Checkpoint, taskID string, entry models.ProgressEntry, at time.Time) models.CurrentStatus {
	status := models.CurrentStatus{
		Updated:   at.UTC().Truncate(time.Second),
		Iteration: cp.Iteration,
		Breaker:   cp.State(),
		LastTask:  taskID,
		Counts:    make(map[models.TaskStatus]int, len(backlog.Counts)),
		NextHint:  entry.NextHint,
	}
	for k, v := range backlog.Counts {
		status.Counts[k] = v
	}
	if status.NextHint == "" && !cp.Tripped {
		if id, ok := SelectNext(backlog); ok {
			status.NextHint = id + " " + backlog.Task(id).Title
		}
	}
	return status
}

func (d *Driver) logTransition(t Transition, cp *models.Checkpoint, iterationID string) {
	switch {
	case t.To == models.BreakerTripped && t.Changed():
		d.logEvent(EventBreakerTripped, map[string]any{
			"iteration_id":         iterationID,
			"consecutive_failures": cp.ConsecutiveFailures,
			"reason":               cp.TripReason,
		})
	case t.To == models.BreakerDegraded:
		d.logEvent(EventBreakerDegraded, map[string]any{
			"iteration_id":         iterationID,
			"consecutive_failures": cp.ConsecutiveFailures,
		})
	}
}

func (d *Driver) logStatusChange(taskID string, from, to models.TaskStatus) {
	if from == to {
		return
	}
	d.logEvent(EventStatusChanged, map[string]any{
		"task_id": taskID,
		"from":    string(from),
		"to":      string(to),
	})
}

// logEvent emits an event if an EventLogger is configured.
func (d *Driver) logEvent(eventType string, data map[string]any) {
	if d.events != nil {
		_ = d.events.LogEvent(eventType, data)
	}
}

func cloneTask(t *models.Task) models.Task {
	c := *t
	c.BlockedBy = append([]string(nil), t.BlockedBy...)
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

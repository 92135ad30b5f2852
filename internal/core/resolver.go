package core

import (
	"errors"
	"fmt"
	"sort"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

// Resolve removes completed tasks from every pending or blocked task's
// blocking set and moves blocked tasks whose set empties back to pending.
// It returns the ids of those newly unblocked tasks, sorted.
//
// Dangling references and cycles are detected before anything is mutated.
// Tasks involved in either are left exactly as they were and reported as
// *DependencyError values joined into the returned error; all other tasks
// are still resolved. Calling Resolve again without new completions returns
// no ids and leaves the backlog unchanged.
func Resolve(backlog *models.Backlog) ([]string, error) {
	idx := backlog.Index()
	problems := findDependencyProblems(backlog, idx)

	rejected := make(map[string]bool, len(problems))
	errs := make([]error, 0, len(problems))
	for _, p := range problems {
		rejected[p.TaskID] = true
		errs = append(errs, p)
	}

	var unblocked []string
	for _, t := range sortedTasks(backlog) {
		if t.Status != models.StatusPending && t.Status != models.StatusBlocked {
			continue
		}
		if rejected[t.ID] {
			continue
		}
		var remaining []string
		for _, b := range t.BlockedBy {
			if dep := idx[b]; dep != nil && dep.IsComplete() {
				continue
			}
			remaining = append(remaining, b)
		}
		t.BlockedBy = normalizeIDs(remaining)
		if len(t.BlockedBy) == 0 && t.Status == models.StatusBlocked {
			t.Status = models.StatusPending
			unblocked = append(unblocked, t.ID)
		}
	}
	backlog.Recount()

	return unblocked, errors.Join(errs...)
}

// findDependencyProblems reports unknown blocker ids and tasks that are
// transitively blocked by themselves. Only edges between non-complete tasks
// can form a cycle.
func findDependencyProblems(backlog *models.Backlog, idx map[string]*models.Task) []*DependencyError {
	var problems []*DependencyError
	for _, t := range sortedTasks(backlog) {
		if t.IsComplete() {
			continue
		}
		var missing []string
		for _, b := range t.BlockedBy {
			if idx[b] == nil {
				missing = append(missing, b)
			}
		}
		if len(missing) > 0 {
			problems = append(problems, &DependencyError{Kind: DependencyMissing, TaskID: t.ID, Refs: normalizeIDs(missing)})
		}
	}

	reported := make(map[string]bool)
	for _, cycle := range findCycles(backlog, idx) {
		for _, id := range cycle {
			if reported[id] {
				continue
			}
			reported[id] = true
			problems = append(problems, &DependencyError{Kind: DependencyCycle, TaskID: id, Refs: cycle})
		}
	}
	return problems
}

// findCycles returns the strongly connected components of the open
// blocking graph that contain a cycle, each sorted by id. A task is in a
// returned component exactly when it is transitively blocked by itself.
func findCycles(backlog *models.Backlog, idx map[string]*models.Task) [][]string {
	var (
		counter int
		stack   []string
		cycles  [][]string
	)
	index := make(map[string]int, len(idx))
	low := make(map[string]int, len(idx))
	onStack := make(map[string]bool, len(idx))

	var connect func(id string)
	connect = func(id string) {
		index[id] = counter
		low[id] = counter
		counter++
		stack = append(stack, id)
		onStack[id] = true

		selfLoop := false
		for _, next := range openBlockers(idx[id], idx) {
			if next == id {
				selfLoop = true
			}
			if _, seen := index[next]; !seen {
				connect(next)
				low[id] = min(low[id], low[next])
			} else if onStack[next] {
				low[id] = min(low[id], index[next])
			}
		}

		if low[id] != index[id] {
			return
		}
		var component []string
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			component = append(component, top)
			if top == id {
				break
			}
		}
		if len(component) > 1 || selfLoop {
			sort.Strings(component)
			cycles = append(cycles, component)
		}
	}

	for _, t := range sortedTasks(backlog) {
		if t.IsComplete() {
			continue
		}
		if _, seen := index[t.ID]; !seen {
			connect(t.ID)
		}
	}
	return cycles
}

// openBlockers returns the known, non-complete blockers of t in id order.
func openBlockers(t *models.Task, idx map[string]*models.Task) []string {
	if t == nil {
		return nil
	}
	var out []string
	for _, b := range normalizeIDs(t.BlockedBy) {
		dep := idx[b]
		if dep == nil || dep.IsComplete() {
			continue
		}
		out = append(out, b)
	}
	return out
}

// ChainLink is one task in a blocking chain.
type ChainLink struct {
	TaskID string            `json:"task_id"`
	Title  string            `json:"title"`
	Status models.TaskStatus `json:"status"`
	Depth  int               `json:"depth"`
}

// BlockingChain returns every task that transitively blocks id, depth-first
// with direct blockers at depth 1. Unknown ids appear with an empty status.
func BlockingChain(backlog *models.Backlog, id string) ([]ChainLink, error) {
	idx := backlog.Index()
	root := idx[id]
	if root == nil {
		return nil, fmt.Errorf("task %s not found", id)
	}

	var chain []ChainLink
	visited := map[string]bool{id: true}
	var walk func(t *models.Task, depth int)
	walk = func(t *models.Task, depth int) {
		for _, b := range normalizeIDs(t.BlockedBy) {
			if visited[b] {
				continue
			}
			visited[b] = true
			dep := idx[b]
			if dep == nil {
				chain = append(chain, ChainLink{TaskID: b, Depth: depth})
				continue
			}
			chain = append(chain, ChainLink{TaskID: b, Title: dep.Title, Status: dep.Status, Depth: depth})
			walk(dep, depth+1)
		}
	}
	walk(root, 1)
	return chain, nil
}

// CheckIngest verifies that a new task only references known tasks and
// would not close a blocking cycle if added to backlog.
func CheckIngest(backlog *models.Backlog, task *models.Task) error {
	if backlog.Task(task.ID) != nil {
		return &ValidationError{TaskID: task.ID, Field: "id", Reason: "already exists"}
	}
	return checkCandidate(backlog, task)
}

// CheckBlockers verifies that adding blockers to task's blocking set only
// references known tasks and would not create a cycle through task.
func CheckBlockers(backlog *models.Backlog, task *models.Task, blockers []string) error {
	candidate := *task
	candidate.Status = models.StatusBlocked
	candidate.BlockedBy = normalizeIDs(append(append([]string(nil), task.BlockedBy...), blockers...))
	return checkCandidate(backlog, &candidate)
}

// checkCandidate checks candidate as if it replaced, or was added as, the
// task with its id.
func checkCandidate(backlog *models.Backlog, candidate *models.Task) error {
	idx := backlog.Index()
	idx[candidate.ID] = candidate

	var missing []string
	for _, b := range candidate.BlockedBy {
		if idx[b] == nil {
			missing = append(missing, b)
		}
	}
	if len(missing) > 0 {
		return &DependencyError{Kind: DependencyMissing, TaskID: candidate.ID, Refs: normalizeIDs(missing)}
	}

	tasks := make([]*models.Task, 0, len(backlog.Tasks)+1)
	replaced := false
	for _, t := range backlog.Tasks {
		if t.ID == candidate.ID {
			tasks = append(tasks, candidate)
			replaced = true
			continue
		}
		tasks = append(tasks, t)
	}
	if !replaced {
		tasks = append(tasks, candidate)
	}
	for _, cycle := range findCycles(&models.Backlog{Tasks: tasks}, idx) {
		for _, id := range cycle {
			if id == candidate.ID {
				return &DependencyError{Kind: DependencyCycle, TaskID: candidate.ID, Refs: cycle}
			}
		}
	}
	return nil
}

func sortedTasks(backlog *models.Backlog) []*models.Task {
	out := append([]*models.Task{}, backlog.Tasks...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

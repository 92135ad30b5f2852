package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/internal/observability"
	"github.com/valter-silva-au/taskloop/internal/storage"
	"github.com/valter-silva-au/taskloop/pkg/models"
)

func TestDashboardModel_Init(t *testing.T) {
	m := newDashboardModel()

	if m.activePanel != panelTasks {
		t.Errorf("expected activePanel = %d, got %d", panelTasks, m.activePanel)
	}
	if !m.loading {
		t.Error("expected loading = true on init")
	}
	if m.taskCounts == nil {
		t.Error("expected taskCounts to be initialized")
	}
	if m.Init() == nil {
		t.Error("expected Init to return a non-nil command")
	}
}

func TestDashboardModel_KeyQ(t *testing.T) {
	m := newDashboardModel()
	m.loading = false

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected tea.Quit command from q key")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestDashboardModel_KeyTab(t *testing.T) {
	m := newDashboardModel()

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if cmd != nil {
		t.Error("expected no command from tab key")
	}
	dm := updated.(dashboardModel)
	if dm.activePanel != panelMetrics {
		t.Errorf("expected panel %d after first tab, got %d", panelMetrics, dm.activePanel)
	}

	updated, _ = dm.Update(tea.KeyMsg{Type: tea.KeyTab})
	dm = updated.(dashboardModel)
	updated, _ = dm.Update(tea.KeyMsg{Type: tea.KeyTab})
	dm = updated.(dashboardModel)
	if dm.activePanel != panelTasks {
		t.Errorf("expected panel %d after wrap, got %d", panelTasks, dm.activePanel)
	}

	updated, _ = dm.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	dm = updated.(dashboardModel)
	if dm.activePanel != panelAlerts {
		t.Errorf("expected panel %d after shift+tab from 0, got %d", panelAlerts, dm.activePanel)
	}
}

func TestDashboardModel_KeyR(t *testing.T) {
	m := newDashboardModel()
	m.loading = false

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if !updated.(dashboardModel).loading {
		t.Error("expected loading = true after pressing r")
	}
	if cmd == nil {
		t.Error("expected a reload command from r key")
	}
}

func TestDashboardModel_StoreChangedReloadsInBackground(t *testing.T) {
	m := newDashboardModel()
	m.loading = false

	updated, cmd := m.Update(storeChangedMsg{})
	if cmd == nil {
		t.Fatal("expected a reload command after a store change")
	}
	if updated.(dashboardModel).loading {
		t.Error("a store change should not blank the current view")
	}
}

func TestDashboardModel_DataLoaded(t *testing.T) {
	m := newDashboardModel()
	loadedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	updated, cmd := m.Update(dataLoadedMsg{
		taskCounts: map[string]int{"pending": 5, "complete": 2},
		breaker:    models.BreakerDegraded,
		iteration:  12,
		failures:   1,
		nextTask:   "T-4 (score 800)",
		metrics:    &metricsSnapshot{iterations: 10, tasksCompleted: 6, completionRate: 0.6, eventCount: 42},
		alerts: []alertSnapshot{
			{severity: "high", message: "circuit breaker tripped"},
		},
		loadedAt: loadedAt,
	})
	if cmd != nil {
		t.Error("expected no command after dataLoadedMsg")
	}

	dm := updated.(dashboardModel)
	if dm.loading || dm.err != nil {
		t.Fatalf("loading = %v, err = %v", dm.loading, dm.err)
	}
	if dm.taskCounts["pending"] != 5 || dm.breaker != models.BreakerDegraded || dm.iteration != 12 {
		t.Errorf("unexpected model state: %+v", dm)
	}
	if dm.metricsData == nil || dm.metricsData.eventCount != 42 {
		t.Errorf("unexpected metrics: %+v", dm.metricsData)
	}
	if !dm.updatedAt.Equal(loadedAt) {
		t.Errorf("updatedAt = %v, want %v", dm.updatedAt, loadedAt)
	}
}

func TestDashboardModel_DataLoadedError(t *testing.T) {
	m := newDashboardModel()

	updated, _ := m.Update(dataLoadedMsg{err: errors.New("connection failed")})
	dm := updated.(dashboardModel)
	if dm.loading {
		t.Error("expected loading = false after error")
	}
	if dm.err == nil || dm.err.Error() != "connection failed" {
		t.Errorf("unexpected err: %v", dm.err)
	}
}

func TestDashboardModel_ViewLoading(t *testing.T) {
	m := newDashboardModel()
	m.width = 100

	if !strings.Contains(m.View(), "Loading data") {
		t.Error("expected loading view to contain 'Loading data'")
	}
}

func TestDashboardModel_ViewWithData(t *testing.T) {
	for _, width := range []int{130, 80} {
		m := newDashboardModel()
		m.width = width
		m.height = 40
		m.loading = false
		m.breaker = models.BreakerHealthy
		m.iteration = 3
		m.nextTask = "T-1 (score 1250)"
		m.taskCounts = map[string]int{"in_progress": 1, "complete": 1}
		m.metricsData = &metricsSnapshot{iterations: 3, tasksCompleted: 1, completionRate: 0.33}
		m.alerts = []alertSnapshot{{severity: "medium", message: "2 task(s) waiting"}}

		view := m.View()
		for _, want := range []string{"Loop", "Metrics", "Alerts", "in_progress", "healthy", "T-1 (score 1250)", "0.33", "[MEDIUM]"} {
			if !strings.Contains(view, want) {
				t.Errorf("width %d: view missing %q", width, want)
			}
		}
	}
}

func TestDashboardLoadData(t *testing.T) {
	origMetrics := MetricsCalc
	origAlerts := AlertEngine
	defer func() {
		MetricsCalc = origMetrics
		AlertEngine = origAlerts
	}()

	withInspector(t, &statusMock{
		counts: &core.TaskCounts{
			ByStatus: map[models.TaskStatus]int{models.StatusPending: 2, models.StatusBlocked: 1},
			Total:    3,
		},
		cp:   &models.Checkpoint{Iteration: 5, ConsecutiveFailures: 1},
		next: &models.Task{ID: "T-2", Score: 640},
	})
	MetricsCalc = &metricsMock{calcFn: func(time.Time) (*observability.Metrics, error) {
		return &observability.Metrics{Iterations: 4, TasksCompleted: 2, EventCount: 15}, nil
	}}
	now := time.Now().UTC()
	AlertEngine = staticAlerts(
		observability.Alert{Severity: observability.SeverityLow, Message: "low one", TriggeredAt: now},
		observability.Alert{Severity: observability.SeverityHigh, Message: "high one", TriggeredAt: now},
	)

	data, ok := loadData().(dataLoadedMsg)
	if !ok {
		t.Fatal("expected dataLoadedMsg")
	}
	if data.err != nil {
		t.Fatalf("unexpected error: %v", data.err)
	}
	if data.taskCounts["pending"] != 2 || data.taskCounts["blocked"] != 1 {
		t.Errorf("unexpected counts: %v", data.taskCounts)
	}
	if data.breaker != models.BreakerDegraded || data.iteration != 5 {
		t.Errorf("breaker = %q iteration = %d", data.breaker, data.iteration)
	}
	if data.nextTask != "T-2 (score 640)" {
		t.Errorf("nextTask = %q", data.nextTask)
	}
	if data.metrics == nil || data.metrics.completionRate != 0.5 {
		t.Errorf("unexpected metrics: %+v", data.metrics)
	}
	if len(data.alerts) != 2 || data.alerts[0].severity != "high" {
		t.Errorf("alerts not sorted by severity: %+v", data.alerts)
	}
}

func TestDashboardLoadData_NoEligibleTaskIsNotAnError(t *testing.T) {
	origMetrics := MetricsCalc
	origAlerts := AlertEngine
	defer func() {
		MetricsCalc = origMetrics
		AlertEngine = origAlerts
	}()
	MetricsCalc = nil
	AlertEngine = nil
	withInspector(t, &statusMock{nextErr: core.ErrCircuitBreakerTripped, cp: &models.Checkpoint{Tripped: true}})

	data := loadData().(dataLoadedMsg)
	if data.err != nil {
		t.Fatalf("unexpected error: %v", data.err)
	}
	if data.breaker != models.BreakerTripped || data.nextTask != "" {
		t.Errorf("breaker = %q nextTask = %q", data.breaker, data.nextTask)
	}
}

func TestDashboardCmd_NilInspector(t *testing.T) {
	withInspector(t, nil)

	err := dashboardCmd.RunE(dashboardCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestStoreWatcher_ReportsStateFileChanges(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan struct{}, 10)

	w, err := newStoreWatcher(dir, func() { changed <- struct{}{} })
	if err != nil {
		t.Fatalf("newStoreWatcher: %v", err)
	}
	w.Start()
	defer w.Stop()

	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
		t.Fatal("unexpected change notification for an unwatched file")
	case <-time.After(200 * time.Millisecond):
	}

	if err := os.WriteFile(filepath.Join(dir, storage.BacklogFileName), []byte("tasks: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification for the backlog")
	}
}

func TestStoreWatcher_MissingDirectory(t *testing.T) {
	_, err := newStoreWatcher(filepath.Join(t.TempDir(), "missing"), func() {})
	if err == nil {
		t.Fatal("expected error watching a missing directory")
	}
}

func TestStoreWatcher_StopIsIdempotent(t *testing.T) {
	w, err := newStoreWatcher(t.TempDir(), func() {})
	if err != nil {
		t.Fatal(err)
	}
	w.Start()
	w.Stop()
	w.Stop()
}

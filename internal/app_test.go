package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/taskloop/internal/cli"
	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/internal/observability"
	"github.com/valter-silva-au/taskloop/internal/storage"
	"github.com/valter-silva-au/taskloop/pkg/models"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, ".taskloop.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestResolveBasePath_HomeSet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, tmpDir)

	if got := ResolveBasePath(); got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FindsConfig(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "sub", "nested")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, tmpDir, "breaker:\n  threshold: 3\n")

	origDir, _ := os.Getwd()
	defer func() { _ = os.Chdir(origDir) }()
	if err := os.Chdir(subDir); err != nil {
		t.Fatal(err)
	}
	t.Setenv(HomeEnv, "")

	// Resolve symlinks so a /tmp -> /private/tmp style link does not break
	// the comparison.
	want, _ := filepath.EvalSymlinks(tmpDir)
	got, _ := filepath.EvalSymlinks(ResolveBasePath())
	if got != want {
		t.Errorf("ResolveBasePath() = %q, want %q", got, want)
	}
}

func TestResolveBasePath_FallbackToCwd(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	defer func() { _ = os.Chdir(origDir) }()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	t.Setenv(HomeEnv, "")

	want, _ := filepath.EvalSymlinks(tmpDir)
	got, _ := filepath.EvalSymlinks(ResolveBasePath())
	if got != want {
		t.Errorf("ResolveBasePath() = %q, want %q", got, want)
	}
}

func TestNewApp_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer func() { _ = app.Close() }()

	if app.Driver == nil || app.Inspector == nil {
		t.Fatal("expected driver and inspector to be wired")
	}
	if app.Executor != nil {
		t.Error("expected no executor without executor.command")
	}
	if app.Notifier != nil {
		t.Error("expected no notifier with notifications disabled")
	}
	if app.EventLog == nil || app.AlertEngine == nil || app.MetricsCalc == nil {
		t.Error("expected observability to be wired")
	}
	if app.Config.Breaker.Threshold != core.DefaultBreakerThreshold {
		t.Errorf("breaker threshold = %d, want default", app.Config.Breaker.Threshold)
	}

	if cli.BasePath != tmpDir || cli.Driver != app.Driver || cli.Inspector == nil {
		t.Error("expected CLI globals to be wired")
	}
	if cli.Executor != nil {
		t.Error("cli.Executor should be a nil interface when no executor is configured")
	}
	if cli.Rejected == nil {
		t.Error("expected cli.Rejected to be wired")
	}
}

func TestNewApp_WithExecutorAndNotifier(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `executor:
  command: sh
  args: ["-c", "true"]
notifications:
  enabled: true
  slack_webhook_url: https://hooks.example.com/T000
`)

	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer func() { _ = app.Close() }()

	if app.Executor == nil || cli.Executor == nil {
		t.Error("expected executor to be wired")
	}
	if app.Notifier == nil || cli.Notifier == nil {
		t.Error("expected notifier to be wired")
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "loop:\n  max_iterations: -1\n")

	_, err := NewApp(tmpDir)
	if err == nil {
		t.Fatal("expected error for invalid configuration")
	}
	if !strings.Contains(err.Error(), "loop.max_iterations") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewApp_UnreadableConfig(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "breaker: [not, a, map\n")

	if _, err := NewApp(tmpDir); err == nil {
		t.Fatal("expected error for malformed configuration")
	}
}

func TestApp_CloseWithoutEventLog(t *testing.T) {
	app := &App{}
	if err := app.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

// recordingEventLog captures written events.
type recordingEventLog struct {
	events []observability.Event
	err    error
}

func (r *recordingEventLog) Write(e observability.Event) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingEventLog) Read(observability.EventFilter) ([]observability.Event, error) {
	return r.events, nil
}

func (r *recordingEventLog) Close() error { return nil }

func TestEventLogAdapter(t *testing.T) {
	log := &recordingEventLog{}
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	adapter := &eventLogAdapter{log: log, now: func() time.Time { return at }}

	if err := adapter.LogEvent(core.EventBreakerTripped, map[string]any{"reason": "x"}); err != nil {
		t.Fatal(err)
	}
	if err := adapter.LogEvent(core.EventTaskCompleted, map[string]any{"task_id": "T-1"}); err != nil {
		t.Fatal(err)
	}

	if len(log.events) != 2 {
		t.Fatalf("got %d events, want 2", len(log.events))
	}
	first := log.events[0]
	if first.Level != "ERROR" || first.Type != core.EventBreakerTripped || !first.Time.Equal(at) {
		t.Errorf("unexpected event: %+v", first)
	}
	if log.events[1].Level != "INFO" || log.events[1].TaskID() != "T-1" {
		t.Errorf("unexpected event: %+v", log.events[1])
	}

	log.err = errors.New("disk full")
	if err := adapter.LogEvent(core.EventTaskSelected, nil); err == nil {
		t.Error("expected write error to propagate")
	}
}

func TestEventLevel(t *testing.T) {
	tests := []struct {
		eventType string
		want      string
	}{
		{core.EventBreakerTripped, "ERROR"},
		{core.EventBreakerDegraded, "WARN"},
		{core.EventTaskStarving, "WARN"},
		{core.EventDependencyError, "WARN"},
		{core.EventTaskRejected, "WARN"},
		{core.EventCompactionFailed, "WARN"},
		{core.EventExecutorFailed, "WARN"},
		{core.EventTaskCompleted, "INFO"},
		{core.EventBreakerReset, "INFO"},
		{"unknown.event", "INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			if got := eventLevel(tt.eventType); got != tt.want {
				t.Errorf("eventLevel(%q) = %q, want %q", tt.eventType, got, tt.want)
			}
		})
	}
}

func TestApp_RunsLoopEndToEnd(t *testing.T) {
	tmpDir := t.TempDir()
	script := filepath.Join(tmpDir, "executor.sh")
	body := "#!/bin/sh\ncat > /dev/null\necho \"working on $TASKLOOP_TASK_ID\" >&2\n" +
		"echo '{\"outcome\":\"success\",\"summary\":\"done\",\"reference\":\"ref-1\"}'\n"
	if err := os.WriteFile(script, []byte(body), 0o700); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, tmpDir, "executor:\n  command: sh\n  args: [\""+script+"\"]\n")

	backlog := models.NewBacklog()
	backlog.Tasks = []*models.Task{
		{ID: "T-1", Title: "First", Type: models.TaskTypeFix, Status: models.StatusPending, Priority: models.PriorityHigh},
		{ID: "T-2", Title: "Second", Type: models.TaskTypeReview, Status: models.StatusBlocked, Priority: models.PriorityNormal, BlockedBy: []string{"T-1"}},
	}
	if err := storage.NewBacklogStore(tmpDir).Save(backlog); err != nil {
		t.Fatal(err)
	}

	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer func() { _ = app.Close() }()

	summary, err := app.Driver.Run(context.Background(), core.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Completed != 2 || summary.Reason != core.StopNoEligibleTask {
		t.Errorf("summary = %+v", summary)
	}

	counts, err := app.Inspector.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if counts.ByStatus[models.StatusComplete] != 2 {
		t.Errorf("counts = %+v, want both tasks complete", counts.ByStatus)
	}

	cp, err := app.Inspector.Checkpoint()
	if err != nil {
		t.Fatal(err)
	}
	if cp.LastGoodReference != "ref-1" || cp.State() != models.BreakerHealthy {
		t.Errorf("checkpoint = %+v", cp)
	}

	metrics, err := app.MetricsCalc.Calculate(time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if metrics.TasksCompleted != 2 || metrics.Iterations != 2 {
		t.Errorf("metrics = %+v", metrics)
	}

	progress, err := os.ReadFile(filepath.Join(tmpDir, storage.ProgressFileName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(progress), "T-1") || !strings.Contains(string(progress), "T-2") {
		t.Errorf("progress log missing entries:\n%s", progress)
	}
}

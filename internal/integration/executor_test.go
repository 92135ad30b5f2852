package integration

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/taskloop/pkg/models"
)

func shellExecutor(t *testing.T, script string) *CommandExecutor {
	t.Helper()
	exec, err := NewCommandExecutor(models.ExecutorConfig{Command: "sh", Args: []string{"-c", script}})
	if err != nil {
		t.Fatalf("creating executor: %v", err)
	}
	return exec
}

func sampleTask() models.Task {
	return models.Task{
		ID:          "T-1",
		Type:        models.TaskTypeFix,
		Title:       "Fix the parser",
		Status:      models.StatusInProgress,
		Priority:    models.PriorityHigh,
		SequenceKey: "phase-1",
	}
}

func TestNewCommandExecutor_RequiresCommand(t *testing.T) {
	if _, err := NewCommandExecutor(models.ExecutorConfig{Command: "  "}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestBuildEnv_AppendsTaskVariables(t *testing.T) {
	base := []string{"PATH=/usr/bin"}
	env := BuildEnv(base, sampleTask())

	if len(base) != 1 {
		t.Fatalf("base environment was modified: %v", base)
	}
	want := []string{
		"PATH=/usr/bin",
		"TASKLOOP_TASK_ID=T-1",
		"TASKLOOP_TASK_TYPE=fix",
		"TASKLOOP_TASK_TITLE=Fix the parser",
		"TASKLOOP_TASK_PRIORITY=high",
		"TASKLOOP_TASK_SEQUENCE_KEY=phase-1",
	}
	if strings.Join(env, "\n") != strings.Join(want, "\n") {
		t.Errorf("BuildEnv = %v, want %v", env, want)
	}
}

func TestCommandExecutor_ParsesLastReport(t *testing.T) {
	script := `echo "working on $TASKLOOP_TASK_ID"
echo '{"outcome":"partial"}'
echo '{"outcome":"success","summary":"done","artifacts":["docs/a.md"],"new_tasks":[{"id":"T-2","type":"fix","title":"follow up"}]}'`
	report, err := shellExecutor(t, script).Execute(context.Background(), sampleTask())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.Outcome != models.OutcomeSuccess || report.Summary != "done" {
		t.Errorf("unexpected report %+v", report)
	}
	if len(report.Artifacts) != 1 || report.Artifacts[0] != "docs/a.md" {
		t.Errorf("Artifacts = %v", report.Artifacts)
	}
	if len(report.NewTasks) != 1 || report.NewTasks[0].ID != "T-2" {
		t.Errorf("NewTasks = %+v", report.NewTasks)
	}
}

func TestCommandExecutor_TaskOnStdin(t *testing.T) {
	script := `if grep -q '"id":"T-1"'; then echo '{"outcome":"success"}'; else echo '{"outcome":"blocked"}'; fi`
	report, err := shellExecutor(t, script).Execute(context.Background(), sampleTask())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.Outcome != models.OutcomeSuccess {
		t.Errorf("expected the task JSON on stdin, got outcome %q", report.Outcome)
	}
}

func TestCommandExecutor_WorkDir(t *testing.T) {
	dir := t.TempDir()
	exec, err := NewCommandExecutor(models.ExecutorConfig{
		Command: "sh",
		Args:    []string{"-c", `touch marker && echo '{"outcome":"success"}'`},
		WorkDir: dir,
	})
	if err != nil {
		t.Fatalf("creating executor: %v", err)
	}
	if _, err := exec.Execute(context.Background(), sampleTask()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "marker")); err != nil {
		t.Errorf("expected command to run in %s: %v", dir, err)
	}
}

func TestCommandExecutor_NonZeroExit(t *testing.T) {
	exec := shellExecutor(t, `echo "first" >&2; echo "disk full" >&2; exit 3`)
	var stderr bytes.Buffer
	exec.Stderr = &stderr

	_, err := exec.Execute(context.Background(), sampleTask())
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "code 3") || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error %q should carry the exit code and last stderr line", err)
	}
	if !strings.Contains(stderr.String(), "first") {
		t.Errorf("expected stderr to be copied, got %q", stderr.String())
	}
}

func TestCommandExecutor_NoReport(t *testing.T) {
	_, err := shellExecutor(t, `echo "nothing useful"`).Execute(context.Background(), sampleTask())
	if !errors.Is(err, ErrNoReport) {
		t.Errorf("expected ErrNoReport, got %v", err)
	}
}

func TestCommandExecutor_MalformedReport(t *testing.T) {
	_, err := shellExecutor(t, `echo '{"outcome":'`).Execute(context.Background(), sampleTask())
	if err == nil || !strings.Contains(err.Error(), "decoding execution report") {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestCommandExecutor_MissingCommand(t *testing.T) {
	exec, err := NewCommandExecutor(models.ExecutorConfig{Command: "nonexistent_command_xyz_12345"})
	if err != nil {
		t.Fatalf("creating executor: %v", err)
	}
	if _, err := exec.Execute(context.Background(), sampleTask()); err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestCommandExecutor_ContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := shellExecutor(t, `sleep 10`).Execute(ctx, sampleTask())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Execute took %s after the deadline", elapsed)
	}
}

func TestParseReport_IgnoresNonJSONLines(t *testing.T) {
	out := []byte("log line\n  {\"outcome\":\"blocked\",\"blocked_by\":[\"T-9\"]}  \ntrailing log\n")
	report, err := ParseReport(out)
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if report.Outcome != models.OutcomeBlocked || len(report.BlockedBy) != 1 || report.BlockedBy[0] != "T-9" {
		t.Errorf("unexpected report %+v", report)
	}
}

package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/pkg/models"
)

// ErrNoReport is returned when the executor command exits cleanly without
// printing an execution report.
var ErrNoReport = errors.New("executor produced no report")

// waitDelay bounds how long Execute waits for the command's output pipes
// after the context kills it.
const waitDelay = 2 * time.Second

// CommandExecutor runs one external command per task. The task is written to
// the command's stdin as JSON and the last JSON object printed on stdout is
// taken as the execution report.
type CommandExecutor struct {
	command string
	args    []string
	workDir string

	// Stderr receives a copy of the command's stderr when set.
	Stderr io.Writer
}

var _ core.Executor = (*CommandExecutor)(nil)

// NewCommandExecutor creates a CommandExecutor from configuration.
func NewCommandExecutor(cfg models.ExecutorConfig) (*CommandExecutor, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("executor command is not configured")
	}
	return &CommandExecutor{
		command: cfg.Command,
		args:    cfg.Args,
		workDir: cfg.WorkDir,
	}, nil
}

// BuildEnv appends TASKLOOP_* variables describing task to base.
func BuildEnv(base []string, task models.Task) []string {
	env := make([]string, len(base), len(base)+5)
	copy(env, base)
	return append(env,
		"TASKLOOP_TASK_ID="+task.ID,
		"TASKLOOP_TASK_TYPE="+string(task.Type),
		"TASKLOOP_TASK_TITLE="+task.Title,
		"TASKLOOP_TASK_PRIORITY="+string(task.Priority),
		"TASKLOOP_TASK_SEQUENCE_KEY="+task.SequenceKey,
	)
}

// Execute runs the command for task and parses its report. A non-zero exit
// is an error carrying the tail of stderr.
func (e *CommandExecutor) Execute(ctx context.Context, task models.Task) (*core.ExecutionReport, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encoding task %s: %w", task.ID, err)
	}

	cmd := exec.CommandContext(ctx, e.command, e.args...)
	cmd.Dir = e.workDir
	cmd.Env = BuildEnv(os.Environ(), task)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if e.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, e.Stderr)
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("executing %s for task %s: %w", e.command, task.ID, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("executor %s exited with code %d for task %s: %s",
				e.command, exitErr.ExitCode(), task.ID, lastLine(stderr.String()))
		}
		return nil, fmt.Errorf("executing %s for task %s: %w", e.command, task.ID, err)
	}

	report, err := ParseReport(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", task.ID, err)
	}
	return report, nil
}

// ParseReport returns the last line of output that decodes as a JSON
// execution report. Earlier lines are treated as free-form log output.
func ParseReport(output []byte) (*core.ExecutionReport, error) {
	var candidate string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "{") {
			candidate = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading executor output: %w", err)
	}
	if candidate == "" {
		return nil, ErrNoReport
	}

	var report core.ExecutionReport
	if err := json.Unmarshal([]byte(candidate), &report); err != nil {
		return nil, fmt.Errorf("decoding execution report: %w", err)
	}
	return &report, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(no stderr)"
	}
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

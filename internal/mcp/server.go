// Package mcp provides an MCP (Model Context Protocol) server that exposes
// read-only taskloop queries as MCP tools for AI coding assistants.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/internal/observability"
	"github.com/valter-silva-au/taskloop/pkg/models"
)

// Server wraps the taskloop inspector and exposes it as MCP tools. None of
// the tools write to the backlog or checkpoint.
type Server struct {
	server      *gomcp.Server
	inspector   core.Inspector
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
}

// NewServer creates a new MCP server. metricsCalc and alertEngine may be nil
// when the event log is unavailable.
func NewServer(inspector core.Inspector, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		inspector:   inspector,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "taskloop", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type emptyInput struct{}

type taskOutput struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	Type            string            `json:"type"`
	Status          string            `json:"status"`
	Priority        string            `json:"priority"`
	Score           int               `json:"score"`
	SequenceKey     string            `json:"sequence_key,omitempty"`
	BlockedBy       []string          `json:"blocked_by,omitempty"`
	Created         string            `json:"created,omitempty"`
	Started         string            `json:"started,omitempty"`
	Completed       string            `json:"completed,omitempty"`
	ReviewEscalated bool              `json:"review_escalated,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type nextTaskOutput struct {
	Found  bool        `json:"found"`
	Reason string      `json:"reason,omitempty"`
	Task   *taskOutput `json:"task,omitempty"`
}

type rankedTasksInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of tasks to return; 0 returns every eligible task"`
}

type taskListOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type taskCountsOutput struct {
	ByStatus map[string]int `json:"by_status"`
	ByType   map[string]int `json:"by_type"`
	Total    int            `json:"total"`
}

type taskIDInput struct {
	TaskID string `json:"task_id" jsonschema:"the task identifier (e.g. T-12)"`
}

type chainLinkOutput struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title,omitempty"`
	Status string `json:"status"`
	Depth  int    `json:"depth"`
}

type blockingChainOutput struct {
	TaskID string            `json:"task_id"`
	Chain  []chainLinkOutput `json:"chain"`
	Count  int               `json:"count"`
}

type checkpointOutput struct {
	State                string `json:"state"`
	Iteration            int    `json:"iteration"`
	ConsecutiveFailures  int    `json:"consecutive_failures"`
	Tripped              bool   `json:"tripped"`
	TripReason           string `json:"trip_reason,omitempty"`
	LastSuccessfulTaskID string `json:"last_successful_task_id,omitempty"`
	LastGoodReference    string `json:"last_good_reference,omitempty"`
	InFlightTaskID       string `json:"in_flight_task_id,omitempty"`
	UpdatedAt            string `json:"updated_at,omitempty"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	Iterations       int            `json:"iterations"`
	TasksCompleted   int            `json:"tasks_completed"`
	CompletedByType  map[string]int `json:"completed_by_type"`
	CompletionRate   float64        `json:"completion_rate"`
	TasksUnblocked   int            `json:"tasks_unblocked"`
	TasksIngested    int            `json:"tasks_ingested"`
	TasksRejected    int            `json:"tasks_rejected"`
	ExecutorFailures int            `json:"executor_failures"`
	Timeouts         int            `json:"timeouts"`
	BreakerTrips     int            `json:"breaker_trips"`
	Compactions      int            `json:"compactions"`
	EventCount       int            `json:"event_count"`
	OldestEvent      string         `json:"oldest_event,omitempty"`
	NewestEvent      string         `json:"newest_event,omitempty"`
}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "next_task",
		Description: "Return the task the loop would work on next, or the reason nothing would be selected.",
	}, s.handleNextTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "ranked_tasks",
		Description: "List eligible tasks in selection order with their current scores.",
	}, s.handleRankedTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_counts",
		Description: "Count backlog tasks by status and by type.",
	}, s.handleTaskCounts)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get a backlog task by ID, including its score, status and blockers.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "blocking_chain",
		Description: "List every task that transitively blocks the given task, nearest blockers first.",
	}, s.handleBlockingChain)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_checkpoint",
		Description: "Return the loop checkpoint: iteration, circuit breaker state and last good reference.",
	}, s.handleGetCheckpoint)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get loop metrics aggregated from the event log (iterations, completions, failures, breaker trips).",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (breaker state, stale in-progress tasks, blocked backlog, starving tasks).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleNextTask(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, nextTaskOutput, error) {
	task, err := s.inspector.NextTask()
	switch {
	case errors.Is(err, core.ErrCircuitBreakerTripped):
		return nil, nextTaskOutput{Reason: "circuit breaker tripped"}, nil
	case errors.Is(err, core.ErrNoEligibleTask):
		return nil, nextTaskOutput{Reason: "no eligible task"}, nil
	case err != nil:
		return errorResult(fmt.Sprintf("selecting next task: %s", err)), nextTaskOutput{}, nil
	}

	out := taskToOutput(task)
	return nil, nextTaskOutput{Found: true, Task: &out}, nil
}

func (s *Server) handleRankedTasks(_ context.Context, _ *gomcp.CallToolRequest, input rankedTasksInput) (*gomcp.CallToolResult, taskListOutput, error) {
	if input.Limit < 0 {
		return errorResult("limit must not be negative"), taskListOutput{}, nil
	}

	tasks, err := s.inspector.Ranked(input.Limit)
	if err != nil {
		return errorResult(fmt.Sprintf("ranking tasks: %s", err)), taskListOutput{}, nil
	}

	out := taskListOutput{
		Tasks: make([]taskOutput, len(tasks)),
		Count: len(tasks),
	}
	for i := range tasks {
		out.Tasks[i] = taskToOutput(&tasks[i])
	}
	return nil, out, nil
}

func (s *Server) handleTaskCounts(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, taskCountsOutput, error) {
	counts, err := s.inspector.Counts()
	if err != nil {
		return errorResult(fmt.Sprintf("counting tasks: %s", err)), emptyCountsOutput(), nil
	}

	out := emptyCountsOutput()
	out.Total = counts.Total
	for status, n := range counts.ByStatus {
		out.ByStatus[string(status)] = n
	}
	for typ, n := range counts.ByType {
		out.ByType[string(typ)] = n
	}
	return nil, out, nil
}

func (s *Server) handleGetTask(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}

	task, err := s.inspector.Task(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}

	return nil, taskToOutput(task), nil
}

func (s *Server) handleBlockingChain(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, blockingChainOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), blockingChainOutput{}, nil
	}

	chain, err := s.inspector.BlockingChain(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("resolving blockers of %s: %s", input.TaskID, err)), blockingChainOutput{}, nil
	}

	out := blockingChainOutput{
		TaskID: input.TaskID,
		Chain:  make([]chainLinkOutput, len(chain)),
		Count:  len(chain),
	}
	for i, link := range chain {
		out.Chain[i] = chainLinkOutput{
			TaskID: link.TaskID,
			Title:  link.Title,
			Status: string(link.Status),
			Depth:  link.Depth,
		}
	}
	return nil, out, nil
}

func (s *Server) handleGetCheckpoint(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, checkpointOutput, error) {
	cp, err := s.inspector.Checkpoint()
	if err != nil {
		return errorResult(fmt.Sprintf("loading checkpoint: %s", err)), checkpointOutput{}, nil
	}

	out := checkpointOutput{
		State:                string(cp.State()),
		Iteration:            cp.Iteration,
		ConsecutiveFailures:  cp.ConsecutiveFailures,
		Tripped:              cp.Tripped,
		TripReason:           cp.TripReason,
		LastSuccessfulTaskID: cp.LastSuccessfulTaskID,
		LastGoodReference:    cp.LastGoodReference,
		InFlightTaskID:       cp.InFlightTaskID,
		UpdatedAt:            formatTime(cp.UpdatedAt),
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log is disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		Iterations:       metrics.Iterations,
		TasksCompleted:   metrics.TasksCompleted,
		CompletedByType:  metrics.CompletedByType,
		CompletionRate:   metrics.CompletionRate(),
		TasksUnblocked:   metrics.TasksUnblocked,
		TasksIngested:    metrics.TasksIngested,
		TasksRejected:    metrics.TasksRejected,
		ExecutorFailures: metrics.ExecutorFailures,
		Timeouts:         metrics.Timeouts,
		BreakerTrips:     metrics.BreakerTrips,
		Compactions:      metrics.Compactions,
		EventCount:       metrics.EventCount,
		OldestEvent:      formatTime(metrics.OldestEvent),
		NewestEvent:      formatTime(metrics.NewestEvent),
	}
	if out.CompletedByType == nil {
		out.CompletedByType = make(map[string]int)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (event log is disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func taskToOutput(t *models.Task) taskOutput {
	return taskOutput{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Type:            string(t.Type),
		Status:          string(t.Status),
		Priority:        string(t.Priority),
		Score:           t.Score,
		SequenceKey:     t.SequenceKey,
		BlockedBy:       t.BlockedBy,
		Created:         formatTime(t.Created),
		Started:         formatTime(t.Started),
		Completed:       formatTime(t.Completed),
		ReviewEscalated: t.ReviewEscalated,
		Metadata:        t.Metadata,
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func emptyCountsOutput() taskCountsOutput {
	return taskCountsOutput{
		ByStatus: make(map[string]int),
		ByType:   make(map[string]int),
	}
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{CompletedByType: make(map[string]int)}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}

package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/pkg/models"
)

// Dashboard panel indices.
const (
	panelTasks = iota
	panelMetrics
	panelAlerts
	panelCount
)

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	// Data.
	taskCounts  map[string]int
	breaker     models.BreakerState
	iteration   int
	failures    int
	nextTask    string
	metricsData *metricsSnapshot
	alerts      []alertSnapshot
	updatedAt   time.Time

	// State.
	loading bool
	err     error
}

type metricsSnapshot struct {
	iterations       int
	tasksCompleted   int
	completionRate   float64
	tasksUnblocked   int
	executorFailures int
	breakerTrips     int
	compactions      int
	eventCount       int
}

type alertSnapshot struct {
	severity string
	message  string
	time     string
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	taskCounts map[string]int
	breaker    models.BreakerState
	iteration  int
	failures   int
	nextTask   string
	metrics    *metricsSnapshot
	alerts     []alertSnapshot
	loadedAt   time.Time
	err        error
}

// storeChangedMsg is sent when a state file under the base path changes.
type storeChangedMsg struct{}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	statusInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusComplete   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusBlocked    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusPending    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	breakerHealthy  = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	breakerDegraded = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	breakerTripped  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{
		activePanel: panelTasks,
		loading:     true,
		taskCounts:  make(map[string]int),
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadData
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case storeChangedMsg:
		// Keep showing the current data while the reload runs.
		return m, loadData

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.taskCounts = msg.taskCounts
		m.breaker = msg.breaker
		m.iteration = msg.iteration
		m.failures = msg.failures
		m.nextTask = msg.nextTask
		m.metricsData = msg.metrics
		m.alerts = msg.alerts
		m.updatedAt = msg.loadedAt
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" taskloop ")
	help := helpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	if !m.updatedAt.IsZero() {
		help = helpStyle.Render(fmt.Sprintf("updated %s | tab: switch panel | r: refresh | q: quit", m.updatedAt.Format("15:04:05")))
	}

	tasksPanel := m.renderTasksPanel()
	metricsPanel := m.renderMetricsPanel()
	alertsPanel := m.renderAlertsPanel()

	// Available width for panels after accounting for margins.
	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		colWidth := availableWidth / 3
		tasksPanel = m.applyPanelStyle(panelTasks, tasksPanel, colWidth-4)
		metricsPanel = m.applyPanelStyle(panelMetrics, metricsPanel, colWidth-4)
		alertsPanel = m.applyPanelStyle(panelAlerts, alertsPanel, colWidth-4)
		body = lipgloss.JoinHorizontal(lipgloss.Top, tasksPanel, metricsPanel, alertsPanel)
	} else {
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		tasksPanel = m.applyPanelStyle(panelTasks, tasksPanel, panelWidth)
		metricsPanel = m.applyPanelStyle(panelMetrics, metricsPanel, panelWidth)
		alertsPanel = m.applyPanelStyle(panelAlerts, alertsPanel, panelWidth)
		body = lipgloss.JoinVertical(lipgloss.Left, tasksPanel, metricsPanel, alertsPanel)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderTasksPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Loop"))
	b.WriteString("\n")

	if m.breaker != "" {
		b.WriteString(fmt.Sprintf("  %-14s %s\n", "Breaker", styleForBreaker(m.breaker).Render(string(m.breaker))))
		b.WriteString(fmt.Sprintf("  %-14s %d\n", "Iteration", m.iteration))
		if m.failures > 0 {
			b.WriteString(fmt.Sprintf("  %-14s %d\n", "Failures", m.failures))
		}
	}
	if m.nextTask != "" {
		b.WriteString(fmt.Sprintf("  %-14s %s\n", "Next", m.nextTask))
	}
	b.WriteString("\n")

	if len(m.taskCounts) == 0 {
		b.WriteString("  No tasks found.")
		return b.String()
	}

	total := 0
	for _, status := range models.AllStatuses {
		count := m.taskCounts[string(status)]
		total += count
		if count == 0 {
			continue
		}
		label := fmt.Sprintf("  %-14s %d", status, count)
		b.WriteString(styleForStatus(string(status)).Render(label))
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("\n  Total: %d", total))

	return b.String()
}

func (m dashboardModel) renderMetricsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Metrics (7d)"))
	b.WriteString("\n")

	if m.metricsData == nil {
		b.WriteString("  No metrics available.")
		return b.String()
	}

	md := m.metricsData
	lines := []struct {
		label string
		value int
	}{
		{"Iterations", md.iterations},
		{"Completed", md.tasksCompleted},
		{"Unblocked", md.tasksUnblocked},
		{"Failures", md.executorFailures},
		{"Trips", md.breakerTrips},
		{"Compactions", md.compactions},
		{"Events", md.eventCount},
	}

	for _, l := range lines {
		b.WriteString(fmt.Sprintf("  %-14s %d\n", l.label, l.value))
	}
	b.WriteString(fmt.Sprintf("  %-14s %.2f\n", "Rate", md.completionRate))

	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		sev := styleForSeverity(a.severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(a.severity)))
		b.WriteString(fmt.Sprintf("  %s %s\n", sev, a.message))
	}

	b.WriteString(fmt.Sprintf("\n  Total: %d alert(s)", len(m.alerts)))

	return b.String()
}

func styleForStatus(status string) lipgloss.Style {
	switch models.TaskStatus(status) {
	case models.StatusInProgress:
		return statusInProgress
	case models.StatusComplete:
		return statusComplete
	case models.StatusBlocked:
		return statusBlocked
	case models.StatusPending:
		return statusPending
	default:
		return lipgloss.NewStyle()
	}
}

func styleForBreaker(state models.BreakerState) lipgloss.Style {
	switch state {
	case models.BreakerHealthy:
		return breakerHealthy
	case models.BreakerDegraded:
		return breakerDegraded
	case models.BreakerTripped:
		return breakerTripped
	default:
		return lipgloss.NewStyle()
	}
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return severityHigh
	case "medium":
		return severityMedium
	case "low":
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

func loadData() tea.Msg {
	result := dataLoadedMsg{
		taskCounts: make(map[string]int),
		loadedAt:   time.Now(),
	}

	if Inspector != nil {
		counts, err := Inspector.Counts()
		if err != nil {
			result.err = fmt.Errorf("loading tasks: %w", err)
			return result
		}
		for status, n := range counts.ByStatus {
			result.taskCounts[string(status)] = n
		}

		cp, err := Inspector.Checkpoint()
		if err != nil {
			result.err = fmt.Errorf("loading checkpoint: %w", err)
			return result
		}
		result.breaker = cp.State()
		result.iteration = cp.Iteration
		result.failures = cp.ConsecutiveFailures

		next, err := Inspector.NextTask()
		switch {
		case err == nil:
			result.nextTask = fmt.Sprintf("%s (score %d)", next.ID, next.Score)
		case errors.Is(err, core.ErrNoEligibleTask), errors.Is(err, core.ErrCircuitBreakerTripped):
		default:
			result.err = fmt.Errorf("selecting next task: %w", err)
			return result
		}
	}

	if MetricsCalc != nil {
		since := time.Now().UTC().AddDate(0, 0, -7)
		metrics, err := MetricsCalc.Calculate(since)
		if err != nil {
			result.err = fmt.Errorf("loading metrics: %w", err)
			return result
		}
		result.metrics = &metricsSnapshot{
			iterations:       metrics.Iterations,
			tasksCompleted:   metrics.TasksCompleted,
			completionRate:   metrics.CompletionRate(),
			tasksUnblocked:   metrics.TasksUnblocked,
			executorFailures: metrics.ExecutorFailures,
			breakerTrips:     metrics.BreakerTrips,
			compactions:      metrics.Compactions,
			eventCount:       metrics.EventCount,
		}
	}

	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			result.err = fmt.Errorf("loading alerts: %w", err)
			return result
		}
		result.alerts = make([]alertSnapshot, 0, len(alerts))

		sort.SliceStable(alerts, func(i, j int) bool {
			return severityRank(string(alerts[i].Severity)) < severityRank(string(alerts[j].Severity))
		})

		for _, a := range alerts {
			result.alerts = append(result.alerts, alertSnapshot{
				severity: string(a.Severity),
				message:  a.Message,
				time:     a.TriggeredAt.Format("2006-01-02 15:04 UTC"),
			})
		}
	}

	return result
}

func severityRank(s string) int {
	switch s {
	case "high":
		return 0
	case "medium":
		return 1
	case "low":
		return 2
	default:
		return 3
	}
}

var dashboardNoWatch bool

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for the loop, metrics and alerts",
	Long: `Launch an interactive terminal dashboard showing the breaker state, task
counts, metrics and alerts.

The view reloads whenever the backlog, checkpoint, progress log or event log
changes, so it can be left open next to a running 'taskloop run'. Navigate
between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Inspector == nil {
			return fmt.Errorf("inspector not initialized")
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())

		if !dashboardNoWatch && BasePath != "" {
			w, err := newStoreWatcher(BasePath, func() { p.Send(storeChangedMsg{}) })
			if err != nil {
				return err
			}
			w.Start()
			defer w.Stop()
		}

		_, err := p.Run()
		return err
	},
}

func init() {
	dashboardCmd.Flags().BoolVar(&dashboardNoWatch, "no-watch", false, "Disable automatic refresh on file changes")
	rootCmd.AddCommand(dashboardCmd)
}

// Package internal provides the App struct that wires all components of
// taskloop together and initializes the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/valter-silva-au/taskloop/internal/cli"
	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/internal/integration"
	"github.com/valter-silva-au/taskloop/internal/observability"
	"github.com/valter-silva-au/taskloop/internal/storage"
	"github.com/valter-silva-au/taskloop/pkg/models"
)

// HomeEnv overrides base path discovery.
const HomeEnv = "TASKLOOP_HOME"

// App holds all service dependencies for taskloop.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.Config

	// Storage layer
	Backlog     *storage.BacklogFileStore
	Checkpoints *storage.CheckpointFileStore
	Progress    *storage.ProgressFileStore

	// Core services
	Inspector core.Inspector
	Driver    *core.Driver

	// Executor is nil when executor.command is not configured.
	Executor core.Executor

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp creates and wires all components of taskloop. basePath is the
// directory holding .taskloop.yaml, the backlog, the checkpoint and the
// progress log.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	// --- Storage layer ---
	app.Backlog = storage.NewBacklogStore(basePath)
	app.Checkpoints = storage.NewCheckpointStore(basePath)
	app.Progress = storage.NewProgressLogStore(basePath)

	// --- Observability ---
	eventLogPath := filepath.Join(basePath, observability.EventLogFileName)
	app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		// Non-fatal: run without the event log.
		app.EventLog = nil
	}
	var evtAdapter core.EventLogger
	if app.EventLog != nil {
		evtAdapter = &eventLogAdapter{log: app.EventLog}
	}

	// --- Core services ---
	app.Inspector = core.NewInspector(app.Backlog, app.Checkpoints, *cfg)

	if cfg.Executor.Command != "" {
		executor, err := integration.NewCommandExecutor(cfg.Executor)
		if err != nil {
			return nil, err
		}
		executor.Stderr = os.Stderr
		app.Executor = executor
	}

	app.Driver, err = core.NewDriver(*cfg, core.DriverStores{
		Backlog:    app.Backlog,
		Checkpoint: app.Checkpoints,
		Progress:   app.Progress,
	}, app.Executor, evtAdapter)
	if err != nil {
		return nil, fmt.Errorf("creating driver: %w", err)
	}

	if app.EventLog != nil {
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, app.Inspector, cfg.Alerts)
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	app.Notifier = observability.NewNotifier(cfg.Notifications.Enabled, cfg.Notifications.SlackWebhookURL)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = cfg
	cli.Driver = app.Driver
	cli.Inspector = app.Inspector
	cli.Executor = app.Executor
	cli.Rejected = app.Backlog.Rejected

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the taskloop base directory. It checks the
// TASKLOOP_HOME env var, then walks up from the current directory looking
// for .taskloop.yaml, then falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName+".yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
	now func() time.Time
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	now := time.Now().UTC()
	if a.now != nil {
		now = a.now()
	}
	return a.log.Write(observability.Event{
		Time:    now,
		Level:   eventLevel(eventType),
		Type:    eventType,
		Message: eventType,
		Data:    data,
	})
}

// eventLevel maps a driver event type to the log level it is recorded at.
func eventLevel(eventType string) string {
	switch eventType {
	case core.EventBreakerTripped:
		return "ERROR"
	case core.EventBreakerDegraded,
		core.EventTaskStarving,
		core.EventDependencyError,
		core.EventTaskRejected,
		core.EventCompactionFailed,
		core.EventExecutorFailed,
		core.EventLoopRecovered:
		return "WARN"
	default:
		return "INFO"
	}
}

package cli

import (
	"fmt"

	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/internal/observability"
	"github.com/valter-silva-au/taskloop/internal/storage"
	"github.com/valter-silva-au/taskloop/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath  string
	Config    *models.Config
	Driver    *core.Driver
	Inspector core.Inspector
	// Executor is nil when executor.command is not configured.
	Executor core.Executor
	// Rejected lists backlog records quarantined by the last load.
	Rejected func() []storage.RejectedRecord
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)

// withWriteLock runs fn while holding the base directory lock, so only one
// process mutates the backlog, checkpoint and progress log at a time.
func withWriteLock(fn func() error) error {
	if Driver == nil {
		return fmt.Errorf("driver not initialized")
	}
	lock, err := storage.AcquireLock(BasePath)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()
	return fn()
}

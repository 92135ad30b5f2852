package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "taskloop",
	Short: "Taskloop - autonomous work loop over a prioritized backlog",
	Long: `Taskloop drives an autonomous work loop: it picks the highest-priority
eligible task from the backlog, hands it to an external executor, records the
outcome and repeats until nothing is eligible or the circuit breaker trips.

State lives in the base directory (TASKLOOP_HOME, or the nearest directory
containing .taskloop.yaml): backlog.yaml, checkpoint.yaml, PROGRESS.md and
the .taskloop_events.jsonl event log.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "taskloop %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

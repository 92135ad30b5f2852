package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/internal/observability"
)

var (
	runMaxIterations int
	runNotify        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the work loop until nothing is eligible",
	Long: `Run the select, execute, record loop against the backlog.

Each iteration picks the highest-scoring eligible task, runs the configured
executor command on it and records the outcome in the backlog, checkpoint and
PROGRESS.md. The loop stops when no task is eligible, the circuit breaker
trips, --max-iterations is reached, or it is interrupted. An interrupt is
honoured between iterations; the task in flight is allowed to finish.

A task left in progress by a crashed run is returned to pending first.
Use --notify to post a trip report to the configured webhook when the
breaker trips. It names the last good reference, the trip reason, the failure
count and any tasks left starving.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Driver == nil {
			return fmt.Errorf("driver not initialized")
		}
		if Executor == nil {
			return fmt.Errorf("executor not configured (set executor.command in .taskloop.yaml)")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withWriteLock(func() error {
			summary, err := Driver.Run(ctx, core.RunOptions{
				MaxIterations: runMaxIterations,
				OnIteration:   printIteration,
			})
			if summary != nil {
				printRunSummary(summary)
			}
			if errors.Is(err, core.ErrCircuitBreakerTripped) {
				if runNotify {
					if nerr := notifyTrip(); nerr != nil {
						fmt.Fprintf(os.Stderr, "warning: %v\n", nerr)
					}
				}
				return fmt.Errorf("loop stopped: %w (inspect PROGRESS.md, then run 'taskloop reset')", err)
			}
			if err != nil {
				return fmt.Errorf("running loop: %w", err)
			}
			return nil
		})
	},
}

// notifyTrip posts the breaker trip report when a notifier is set.
func notifyTrip() error {
	if Notifier == nil || Inspector == nil || Config == nil {
		return nil
	}
	trip, err := observability.NewTripNotice(Inspector, Config.Breaker.Threshold, time.Now())
	if err != nil {
		return fmt.Errorf("building trip report: %w", err)
	}
	if err := Notifier.NotifyTrip(trip); err != nil {
		return fmt.Errorf("sending trip report: %w", err)
	}
	return nil
}

func printIteration(res *core.IterationResult) {
	outcome := string(res.Outcome)
	switch {
	case res.TimedOut:
		outcome = "timed out"
	case res.ExecError != nil:
		outcome = "executor failed"
	}
	progress := "no progress"
	if res.Progress {
		progress = "progress"
	}
	fmt.Printf("%-10s %-10s %-16s breaker=%s\n", res.TaskID, outcome, progress, res.Breaker.To)

	if len(res.Unblocked) > 0 {
		fmt.Printf("  unblocked: %s\n", strings.Join(res.Unblocked, ", "))
	}
	if len(res.Ingested) > 0 {
		fmt.Printf("  ingested:  %s\n", strings.Join(res.Ingested, ", "))
	}
	if res.Compaction != nil {
		fmt.Printf("  compacted: %d entries folded into %d period(s)\n", res.Compaction.Folded, res.Compaction.Periods)
	}
	for _, p := range res.Problems {
		fmt.Printf("  warning:   %s\n", p)
	}
	for _, w := range res.Starving {
		fmt.Printf("  starving:  %s\n", w.Error())
	}
}

func printRunSummary(s *core.RunSummary) {
	if len(s.Recovered) > 0 {
		fmt.Printf("Recovered interrupted task(s): %s\n", strings.Join(s.Recovered, ", "))
	}
	fmt.Printf("Stopped (%s) after %d iteration(s), %d task(s) completed.\n", s.Reason, s.Iterations, s.Completed)
}

func init() {
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Stop after this many iterations (default: loop.max_iterations)")
	runCmd.Flags().BoolVar(&runNotify, "notify", false, "Post a trip report to the webhook when the breaker trips")
	rootCmd.AddCommand(runCmd)
}

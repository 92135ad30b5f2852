package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/pkg/models"
	"golang.org/x/term"
)

var statusJSON bool

// statusReport is the JSON shape of the status command.
type statusReport struct {
	Breaker    models.BreakerState `json:"breaker"`
	Checkpoint *models.Checkpoint  `json:"checkpoint"`
	Counts     *core.TaskCounts    `json:"counts"`
	Starving   []starvingTask      `json:"starving,omitempty"`
	Rejected   int                 `json:"rejected"`
}

type starvingTask struct {
	TaskID string `json:"task_id"`
	Age    string `json:"age"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show breaker state and task counts",
	Long: `Show the circuit breaker state, the current iteration and the number of
backlog tasks by status and by type.

Tasks waiting longer than loop.starvation_age and backlog records quarantined
as invalid are listed below the counts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Inspector == nil {
			return fmt.Errorf("inspector not initialized")
		}

		cp, err := Inspector.Checkpoint()
		if err != nil {
			return fmt.Errorf("loading checkpoint: %w", err)
		}
		counts, err := Inspector.Counts()
		if err != nil {
			return fmt.Errorf("counting tasks: %w", err)
		}
		starving, err := Inspector.Starving()
		if err != nil {
			return fmt.Errorf("detecting starving tasks: %w", err)
		}

		report := statusReport{
			Breaker:    cp.State(),
			Checkpoint: cp,
			Counts:     counts,
		}
		for _, w := range starving {
			report.Starving = append(report.Starving, starvingTask{TaskID: w.TaskID, Age: w.Age.Round(time.Minute).String()})
		}
		var rejected []string
		if Rejected != nil {
			for _, r := range Rejected() {
				rejected = append(rejected, fmt.Sprintf("%s: %s", r.ID, r.Reason))
			}
		}
		report.Rejected = len(rejected)

		if statusJSON {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting status as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		printStatus(report, rejected, isTerminal())
		return nil
	},
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func printStatus(r statusReport, rejected []string, color bool) {
	render := func(style lipgloss.Style, s string) string {
		if !color {
			return s
		}
		return style.Render(s)
	}

	cp := r.Checkpoint
	fmt.Printf("Breaker:    %s", render(styleForBreaker(r.Breaker), string(r.Breaker)))
	if cp.ConsecutiveFailures > 0 {
		fmt.Printf(" (%d consecutive iteration(s) without progress)", cp.ConsecutiveFailures)
	}
	fmt.Println()
	if cp.TripReason != "" {
		fmt.Printf("Reason:     %s\n", cp.TripReason)
	}
	fmt.Printf("Iteration:  %d\n", cp.Iteration)
	if cp.LastSuccessfulTaskID != "" {
		fmt.Printf("Last good:  %s", cp.LastSuccessfulTaskID)
		if cp.LastGoodReference != "" {
			fmt.Printf(" (%s)", cp.LastGoodReference)
		}
		fmt.Println()
	}
	if cp.InFlightTaskID != "" {
		fmt.Printf("In flight:  %s\n", cp.InFlightTaskID)
	}

	fmt.Printf("\n== TASKS (%d) ==\n", r.Counts.Total)
	for _, status := range models.AllStatuses {
		n := r.Counts.ByStatus[status]
		if n == 0 {
			continue
		}
		label := fmt.Sprintf("  %-14s %d", status, n)
		fmt.Println(render(styleForStatus(string(status)), label))
	}

	if len(r.Counts.ByType) > 0 {
		fmt.Println("\n== BY TYPE ==")
		for _, typ := range models.AllTaskTypes {
			if n := r.Counts.ByType[typ]; n > 0 {
				fmt.Printf("  %-20s %d\n", typ, n)
			}
		}
	}

	if len(r.Starving) > 0 {
		fmt.Printf("\n== STARVING (%d) ==\n", len(r.Starving))
		for _, s := range r.Starving {
			fmt.Printf("  %-12s waiting %s\n", s.TaskID, s.Age)
		}
	}

	if len(rejected) > 0 {
		fmt.Printf("\n== REJECTED (%d) ==\n", len(rejected))
		for _, line := range rejected {
			fmt.Printf("  %s\n", strings.TrimSpace(line))
		}
	}
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
	rootCmd.AddCommand(statusCmd)
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskloop/internal/core"
	"github.com/valter-silva-au/taskloop/pkg/models"
)

var nextRanked int

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the task the loop would pick next",
	Long: `Show the task the next iteration would select, with its current score.

Nothing is written: scores are recomputed in memory with the configured
weights. Use --ranked N to list the top N eligible tasks in selection order
(0 lists all of them).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Inspector == nil {
			return fmt.Errorf("inspector not initialized")
		}

		if cmd.Flags().Changed("ranked") {
			tasks, err := Inspector.Ranked(nextRanked)
			if err != nil {
				return fmt.Errorf("ranking tasks: %w", err)
			}
			if len(tasks) == 0 {
				fmt.Println("No eligible tasks.")
				return nil
			}
			fmt.Printf("  %-4s %-12s %-7s %-9s %-20s %s\n", "#", "ID", "SCORE", "PRIORITY", "TYPE", "TITLE")
			for i, t := range tasks {
				fmt.Printf("  %-4d %-12s %-7d %-9s %-20s %s\n", i+1, t.ID, t.Score, t.Priority, t.Type, t.Title)
			}
			return nil
		}

		task, err := Inspector.NextTask()
		switch {
		case errors.Is(err, core.ErrCircuitBreakerTripped):
			fmt.Println("Circuit breaker is tripped; nothing will be selected until 'taskloop reset'.")
			return nil
		case errors.Is(err, core.ErrNoEligibleTask):
			fmt.Println("No eligible task.")
			return nil
		case err != nil:
			return fmt.Errorf("selecting next task: %w", err)
		}

		printTask(task)
		return nil
	},
}

func printTask(t *models.Task) {
	fmt.Printf("%s  %s\n", t.ID, t.Title)
	fmt.Printf("  %-10s %d\n", "Score:", t.Score)
	fmt.Printf("  %-10s %s\n", "Priority:", t.Priority)
	fmt.Printf("  %-10s %s\n", "Type:", t.Type)
	fmt.Printf("  %-10s %s\n", "Status:", t.Status)
	if t.SequenceKey != "" {
		fmt.Printf("  %-10s %s\n", "Sequence:", t.SequenceKey)
	}
	if t.Description != "" {
		fmt.Printf("\n  %s\n", t.Description)
	}
}

func init() {
	nextCmd.Flags().IntVar(&nextRanked, "ranked", 0, "List the top N eligible tasks instead (0 for all)")
	rootCmd.AddCommand(nextCmd)
}

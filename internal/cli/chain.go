package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var chainCmd = &cobra.Command{
	Use:   "chain <task-id>",
	Short: "Show every task that transitively blocks a task",
	Long: `Show the blocking chain of a task: its direct blockers, their blockers, and
so on, indented by depth. Blockers that are not in the backlog are shown as
missing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Inspector == nil {
			return fmt.Errorf("inspector not initialized")
		}

		id := args[0]
		chain, err := Inspector.BlockingChain(id)
		if err != nil {
			return fmt.Errorf("resolving blockers of %s: %w", id, err)
		}

		if len(chain) == 0 {
			fmt.Printf("%s is not blocked.\n", id)
			return nil
		}

		fmt.Printf("%s is blocked by:\n", id)
		for _, link := range chain {
			status := string(link.Status)
			if status == "" {
				status = "missing"
			}
			indent := strings.Repeat("  ", link.Depth)
			fmt.Printf("%s%s [%s] %s\n", indent, link.TaskID, status, link.Title)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chainCmd)
}

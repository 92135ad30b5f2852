package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear a tripped circuit breaker",
	Long: `Clear the circuit breaker after inspecting why it tripped.

The failure counter and trip reason are cleared so the next 'taskloop run'
selects work again. Task statuses are not changed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWriteLock(func() error {
			transition, err := Driver.Reset()
			if err != nil {
				return fmt.Errorf("resetting breaker: %w", err)
			}
			if !transition.Changed() {
				fmt.Printf("Breaker already %s.\n", transition.To)
				return nil
			}
			fmt.Printf("Breaker reset: %s -> %s\n", transition.From, transition.To)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Fold old PROGRESS.md entries into weekly summaries",
	Long: `Compact the progress log now instead of waiting for a size threshold.

All but the newest compaction.keep_recent entries are folded into per-week
summaries. When the log is still over compaction.max_lines the oldest
summaries are rolled up into months and years. A progress log that cannot be
parsed is left untouched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWriteLock(func() error {
			stats, err := Driver.Compact()
			if err != nil {
				return fmt.Errorf("compacting progress log: %w", err)
			}
			if !stats.Changed() {
				fmt.Println("Nothing to compact.")
				return nil
			}
			fmt.Printf("Folded %d entries into %d period(s); %d recent entries kept.\n", stats.Folded, stats.Periods, stats.Kept)
			if stats.RolledUp > 0 {
				fmt.Printf("Rolled up %d older period summaries to fit compaction.max_lines.\n", stats.RolledUp)
			}
			fmt.Printf("Progress log: %d -> %d lines\n", stats.LinesBefore, stats.LinesAfter)
			if stats.Oversize {
				fmt.Println("warning: progress log is still over compaction.max_lines")
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(compactCmd)
}

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	loopmcp "github.com/valter-silva-au/taskloop/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the taskloop MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the taskloop MCP server on stdio",
	Long: `Start the taskloop MCP server on stdio transport.

The server exposes read-only loop queries as MCP tools that AI coding
assistants can call: next_task, ranked_tasks, task_counts, get_task,
blocking_chain, get_checkpoint, get_metrics, get_alerts. It never writes to
the backlog, so it is safe to run next to 'taskloop run'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Inspector == nil {
			return fmt.Errorf("inspector not initialized")
		}

		srv := loopmcp.NewServer(Inspector, MetricsCalc, AlertEngine, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

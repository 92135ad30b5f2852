package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskloop/internal/storage"
)

var addFile string

var addCmd = &cobra.Command{
	Use:   "add -f <tasks.yaml>",
	Short: "Add tasks to the backlog from a YAML file",
	Long: `Validate and add tasks from a YAML file to the backlog.

The file holds either a list of task records or a document with a 'tasks'
key. Missing type, priority and status default to other, normal and pending;
a task with blockers starts blocked. Records that fail validation, reuse an
existing id, or would create a dependency cycle are reported and skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addFile == "" {
			return fmt.Errorf("--file is required")
		}
		tasks, err := storage.LoadTaskFile(addFile)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks in file.")
			return nil
		}

		return withWriteLock(func() error {
			accepted, err := Driver.Ingest(tasks)
			if len(accepted) > 0 {
				fmt.Printf("Added %d task(s): %s\n", len(accepted), strings.Join(accepted, ", "))
			}
			if err == nil {
				return nil
			}

			var problems []error
			if joined, ok := err.(interface{ Unwrap() []error }); ok {
				problems = joined.Unwrap()
			} else {
				problems = []error{err}
			}
			fmt.Printf("Rejected %d task(s):\n", len(problems))
			for _, p := range problems {
				fmt.Printf("  - %s\n", p)
			}
			return errors.New("some tasks were rejected")
		})
	},
}

func init() {
	addCmd.Flags().StringVarP(&addFile, "file", "f", "", "YAML file of tasks to add")
	rootCmd.AddCommand(addCmd)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task <task-id>",
	Short: "Show the state of a background task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTask,
}

func init() {
	rootCmd.AddCommand(taskCmd)
}

func runTask(cmd *cobra.Command, args []string) error {
	if taskReader == nil {
		return errNotConfigured
	}

	task, err := taskReader.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to read task: %w", err)
	}
	cmd.Printf("Task:     %s\n", task.ID)
	cmd.Printf("Type:     %s\n", task.Type)
	cmd.Printf("Status:   %s\n", task.Status)
	cmd.Printf("Progress: %s\n", formatProgress(task.Progress))
	cmd.Printf("Updated:  %s\n", task.UpdateAt.Format("2006-01-02 15:04:05"))
	return nil
}

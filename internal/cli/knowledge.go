package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"klee-ai/internal/storage"
)

// pollInterval is how often import progress is read.
var pollInterval = 500 * time.Millisecond

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Create and list knowledge bases",
}

var knowledgeCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a knowledge base",
	Long: `Creates a knowledge base. With --folder the folder is imported right away.

Examples:
  kleectl knowledge create "Research papers"
  kleectl knowledge create "Meeting notes" --folder ~/Documents/meetings`,
	Args: cobra.ExactArgs(1),
	RunE: runKnowledgeCreate,
}

var knowledgeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge bases",
	Args:  cobra.NoArgs,
	RunE:  runKnowledgeList,
}

var importCmd = &cobra.Command{
	Use:   "import <knowledge-id> <folder>",
	Short: "Import a folder into a knowledge base",
	Long: `Registers every file below the folder with the knowledge base and builds its
index. Progress is printed until the import task finishes.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <knowledge-id>",
	Short: "Re-sync a knowledge base with its folder",
	Long: `Rescans the folder of a knowledge base. New files are imported, files whose
size changed are re-indexed and files gone from disk are removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefresh,
}

var createFolder string

func init() {
	knowledgeCreateCmd.Flags().StringVarP(&createFolder, "folder", "f", "", "Folder to import after creating")
	knowledgeCmd.AddCommand(knowledgeCreateCmd, knowledgeListCmd)
	rootCmd.AddCommand(knowledgeCmd, importCmd, refreshCmd)
}

func runKnowledgeCreate(cmd *cobra.Command, args []string) error {
	if knowledgeService == nil {
		return errNotConfigured
	}
	ctx := cmd.Context()

	k := &storage.Knowledge{Title: args[0]}
	if err := knowledgeService.Create(ctx, k); err != nil {
		return fmt.Errorf("failed to create knowledge: %w", err)
	}
	cmd.Printf("Created knowledge %s (%s)\n", k.ID, k.Title)

	if createFolder == "" {
		return nil
	}
	return importFolder(ctx, cmd, k.ID, createFolder)
}

func runKnowledgeList(cmd *cobra.Command, _ []string) error {
	if knowledgeService == nil {
		return errNotConfigured
	}

	all, err := knowledgeService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list knowledge: %w", err)
	}
	if len(all) == 0 {
		cmd.Println("No knowledge bases.")
		return nil
	}
	for _, k := range all {
		folder := k.FolderPath
		if folder == "" {
			folder = "-"
		}
		cmd.Printf("%s\t%s\t%s\n", k.ID, k.Title, folder)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	return importFolder(cmd.Context(), cmd, args[0], args[1])
}

func importFolder(ctx context.Context, cmd *cobra.Command, knowledgeID, folder string) error {
	if importer == nil || taskReader == nil {
		return errNotConfigured
	}

	abs, err := filepath.Abs(folder)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", folder, err)
	}

	task, err := importer.StartImport(ctx, knowledgeID, abs)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	cmd.Printf("Importing %s (task %s)\n", abs, task.ID)

	final, err := waitForTask(ctx, cmd, task.ID)
	importer.Wait()
	if err != nil {
		return err
	}
	if final.Status == storage.TaskFailed {
		return fmt.Errorf("import task %s failed", final.ID)
	}
	cmd.Printf("\rImported %s: %s\n", abs, formatProgress(final.Progress))
	return nil
}

// waitForTask polls taskID until it is done or failed.
func waitForTask(ctx context.Context, cmd *cobra.Command, taskID string) (*storage.Task, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	last := -1.0
	for {
		task, err := taskReader.Get(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("failed to read task %s: %w", taskID, err)
		}
		switch task.Status {
		case storage.TaskDone, storage.TaskFailed:
			return task, nil
		}
		if task.Progress > last {
			cmd.Printf("\rImporting... %s", formatProgress(task.Progress))
			last = task.Progress
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func runRefresh(cmd *cobra.Command, args []string) error {
	if importer == nil {
		return errNotConfigured
	}

	res, err := importer.Refresh(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	cmd.Printf("Refreshed %s: %d added, %d updated, %d removed\n",
		args[0], len(res.Added), len(res.Updated), len(res.Removed))
	return nil
}

func formatProgress(p float64) string {
	return fmt.Sprintf("%.0f%%", p*100)
}

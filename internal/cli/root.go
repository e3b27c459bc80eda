// Package cli implements the kleectl commands.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"klee-ai/internal/indexer"
	"klee-ai/internal/storage"
)

// KnowledgeService creates and lists knowledge bases. storage.KnowledgeRepo implements it.
type KnowledgeService interface {
	Create(ctx context.Context, k *storage.Knowledge) error
	List(ctx context.Context) ([]storage.Knowledge, error)
}

// TaskReader reads background tasks. tasks.Service implements it.
type TaskReader interface {
	Get(ctx context.Context, id string) (*storage.Task, error)
}

// Importer imports and refreshes knowledge folders. indexer.Pipeline implements it.
type Importer interface {
	StartImport(ctx context.Context, knowledgeID, folder string) (*storage.Task, error)
	Refresh(ctx context.Context, knowledgeID string) (*indexer.RefreshResult, error)
	Wait()
}

// Services used by the commands. main wires them with Configure before Execute.
var (
	knowledgeService KnowledgeService
	taskReader       TaskReader
	importer         Importer
)

var errNotConfigured = errors.New("kleectl is not configured")

var rootCmd = &cobra.Command{
	Use:   "kleectl",
	Short: "Manage knowledge folders and background tasks",
	Long: `kleectl imports knowledge folders into their indexes, refreshes them
after files change and reports the state of background tasks.`,
	SilenceUsage: true,
}

// Configure sets the services the commands run against.
func Configure(k KnowledgeService, t TaskReader, i Importer) {
	knowledgeService = k
	taskReader = t
	importer = i
}

// Execute runs the root command until ctx is done.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

package handlers

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_knowledge_importer.go -package=mocks klee-ai/internal/handlers KnowledgeImporter

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"klee-ai/internal/contextutil"
	"klee-ai/internal/indexer"
	"klee-ai/internal/service"
	"klee-ai/internal/storage"
)

// KnowledgeImporter imports and refreshes knowledge folders. indexer.Pipeline
// implements it.
type KnowledgeImporter interface {
	StartImport(ctx context.Context, knowledgeID, folder string) (*storage.Task, error)
	Refresh(ctx context.Context, knowledgeID string) (*indexer.RefreshResult, error)
}

// FolderWatcher starts watching an imported folder. indexer.Watcher implements it.
type FolderWatcher interface {
	Add(knowledgeID, folder string) error
}

// KnowledgeHandler serves the knowledge folder endpoints.
type KnowledgeHandler struct {
	importer KnowledgeImporter
	watcher  FolderWatcher
}

// NewKnowledgeHandler creates a new KnowledgeHandler. watcher may be nil.
func NewKnowledgeHandler(importer KnowledgeImporter, watcher FolderWatcher) *KnowledgeHandler {
	return &KnowledgeHandler{importer: importer, watcher: watcher}
}

// ImportRequest is the body of POST /api/knowledge/{id}/import.
//
// swagger:model ImportRequest
type ImportRequest struct {
	// Absolute path of the folder to import
	Folder string `json:"folder"`
}

// Import handles POST /api/knowledge/{id}/import. The import runs in the
// background; the response is the task to poll.
func (h *KnowledgeHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	knowledgeID := chi.URLParam(r, "id")

	var req ImportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	folder := strings.TrimSpace(req.Folder)
	if folder == "" {
		writeServiceError(ctx, w, &service.ValidationError{Field: "folder", Message: "is required"})
		return
	}

	task, err := h.importer.StartImport(ctx, knowledgeID, folder)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if h.watcher != nil {
		if err := h.watcher.Add(knowledgeID, folder); err != nil {
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to watch knowledge folder",
				"knowledge_id", knowledgeID,
				"folder", folder,
				"error", err,
			)
		}
	}
	writeJSON(w, http.StatusAccepted, task)
}

// Refresh handles POST /api/knowledge/{id}/refresh.
func (h *KnowledgeHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.importer.Refresh(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

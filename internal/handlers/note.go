package handlers

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_note_indexer.go -package=mocks klee-ai/internal/handlers NoteIndexer

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"klee-ai/internal/loader"
	"klee-ai/internal/service"
	"klee-ai/internal/storage"
)

// NoteIndexer stores a note and rebuilds its index. indexer.Pipeline implements it.
type NoteIndexer interface {
	UpsertNote(ctx context.Context, note *storage.Note) error
}

// NoteHandler serves PUT /api/notes/{id}.
type NoteHandler struct {
	notes NoteIndexer
}

// NewNoteHandler creates a new NoteHandler.
func NewNoteHandler(notes NoteIndexer) *NoteHandler {
	return &NoteHandler{notes: notes}
}

// NoteRequest is the body of PUT /api/notes/{id}.
//
// swagger:model NoteRequest
type NoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Put handles PUT /api/notes/{id}.
func (h *NoteHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := loader.CheckSourceID(id); err != nil {
		writeServiceError(r.Context(), w, &service.ValidationError{Field: "id", Message: "must be a single path element"})
		return
	}

	note := &storage.Note{ID: id, Title: req.Title, Content: req.Content}
	if err := h.notes.UpsertNote(r.Context(), note); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

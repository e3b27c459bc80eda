package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/mock/gomock"

	"klee-ai/internal/apperr"
	"klee-ai/internal/handlers/mocks"
	"klee-ai/internal/storage"
)

func TestNoteHandler_Put(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		upsertErr  error
		wantStatus int
	}{
		{name: "stored", body: `{"title":"todo","content":"buy milk"}`, wantStatus: http.StatusOK},
		{name: "snapshot unwritable", body: `{"content":"x"}`, upsertErr: apperr.Wrap(apperr.ErrPersistence, "indexer.IndexNote", errors.New("read-only")), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			notes := mocks.NewMockNoteIndexer(ctrl)
			notes.EXPECT().UpsertNote(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, n *storage.Note) error {
					if n.ID != "n1" {
						t.Errorf("note id = %q, want n1", n.ID)
					}
					return tt.upsertErr
				})

			r := chi.NewRouter()
			r.Put("/api/notes/{id}", NewNoteHandler(notes).Put)
			req := httptest.NewRequest(http.MethodPut, "/api/notes/n1", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %q)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestNoteHandler_Put_RejectsPathIDs(t *testing.T) {
	for _, id := range []string{"..", "."} {
		t.Run(id, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			notes := mocks.NewMockNoteIndexer(ctrl)
			notes.EXPECT().UpsertNote(gomock.Any(), gomock.Any()).Times(0)

			r := chi.NewRouter()
			r.Put("/api/notes/{id}", NewNoteHandler(notes).Put)
			req := httptest.NewRequest(http.MethodPut, "/api/notes/"+id, strings.NewReader(`{"content":"x"}`))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d (body %q)", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}

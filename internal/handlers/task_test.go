package handlers

import (
	"encoding/json"
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

func taskRouter(h *TaskHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/tasks", h.Create)
	r.Get("/api/tasks/{id}", h.Get)
	r.Post("/api/tasks/{id}/progress", h.AddProgress)
	return r
}

func TestTaskHandler(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		mockSetup  func(*mocks.MockTaskService)
		wantStatus int
		wantTask   *storage.Task
		wantKind   string
	}{
		{
			name:   "create",
			method: http.MethodPost,
			path:   "/api/tasks",
			body:   `{"type":"parsing_folder","payload":"{}"}`,
			mockSetup: func(m *mocks.MockTaskService) {
				m.EXPECT().Create(gomock.Any(), storage.TaskParsingFolder, "{}").
					Return(&storage.Task{ID: "t1", Type: storage.TaskParsingFolder, Status: storage.TaskCreated}, nil)
			},
			wantStatus: http.StatusCreated,
			wantTask:   &storage.Task{ID: "t1", Type: storage.TaskParsingFolder, Status: storage.TaskCreated},
		},
		{
			name:       "create without type",
			method:     http.MethodPost,
			path:       "/api/tasks",
			body:       `{"payload":"{}"}`,
			mockSetup:  func(m *mocks.MockTaskService) {},
			wantStatus: http.StatusBadRequest,
			wantKind:   "invalid_input",
		},
		{
			name:   "create unknown type",
			method: http.MethodPost,
			path:   "/api/tasks",
			body:   `{"type":"parsing_video"}`,
			mockSetup: func(m *mocks.MockTaskService) {
				m.EXPECT().Create(gomock.Any(), storage.TaskType("parsing_video"), "").
					Return(nil, apperr.New(apperr.ErrConfig, "tasks.Create", "unknown task type"))
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   "config_error",
		},
		{
			name:   "get",
			method: http.MethodGet,
			path:   "/api/tasks/t1",
			mockSetup: func(m *mocks.MockTaskService) {
				m.EXPECT().Get(gomock.Any(), "t1").Return(&storage.Task{ID: "t1", Progress: 0.5}, nil)
			},
			wantStatus: http.StatusOK,
			wantTask:   &storage.Task{ID: "t1", Progress: 0.5},
		},
		{
			name:   "get missing",
			method: http.MethodGet,
			path:   "/api/tasks/nope",
			mockSetup: func(m *mocks.MockTaskService) {
				m.EXPECT().Get(gomock.Any(), "nope").Return(nil, storage.ErrNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantKind:   "not_found",
		},
		{
			name:   "add progress",
			method: http.MethodPost,
			path:   "/api/tasks/t1/progress",
			body:   `{"delta":0.25}`,
			mockSetup: func(m *mocks.MockTaskService) {
				m.EXPECT().AddProgress(gomock.Any(), "t1", 0.25).Return(&storage.Task{ID: "t1", Progress: 0.75}, nil)
			},
			wantStatus: http.StatusOK,
			wantTask:   &storage.Task{ID: "t1", Progress: 0.75},
		},
		{
			name:   "add progress exhausted",
			method: http.MethodPost,
			path:   "/api/tasks/t1/progress",
			body:   `{"delta":0.25}`,
			mockSetup: func(m *mocks.MockTaskService) {
				m.EXPECT().AddProgress(gomock.Any(), "t1", 0.25).
					Return(nil, apperr.New(apperr.ErrConcurrencyExhausted, "tasks.AddProgress", "3 attempts"))
			},
			wantStatus: http.StatusConflict,
			wantKind:   "concurrency_exhausted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			svc := mocks.NewMockTaskService(ctrl)
			tt.mockSetup(svc)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			taskRouter(NewTaskHandler(svc)).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantKind != "" {
				if got := decodeError(t, w).Kind; got != tt.wantKind {
					t.Errorf("kind = %q, want %q", got, tt.wantKind)
				}
				return
			}

			var got storage.Task
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("failed to decode task: %v", err)
			}
			if got.ID != tt.wantTask.ID || got.Status != tt.wantTask.Status || got.Progress != tt.wantTask.Progress {
				t.Errorf("task = %+v, want %+v", got, *tt.wantTask)
			}
		})
	}
}

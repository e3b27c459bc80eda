package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"klee-ai/internal/handlers"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Chat      *handlers.ChatHandler
	Tasks     *handlers.TaskHandler
	Knowledge *handlers.KnowledgeHandler
	Notes     *handlers.NoteHandler
	Health    http.Handler
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/chat/stream", deps.Chat)

		r.Post("/tasks", deps.Tasks.Create)
		r.Get("/tasks/{id}", deps.Tasks.Get)
		r.Post("/tasks/{id}/progress", deps.Tasks.AddProgress)

		r.Post("/knowledge/{id}/import", deps.Knowledge.Import)
		r.Post("/knowledge/{id}/refresh", deps.Knowledge.Refresh)

		r.Put("/notes/{id}", deps.Notes.Put)

		r.Method(http.MethodGet, "/health", deps.Health)
	})

	return r
}

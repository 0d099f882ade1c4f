package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/dagaz/internal/docservice"
	"github.com/starford/dagaz/internal/metadata"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *docservice.Service, engine *metadata.Engine, params metadata.Params, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, engine, params)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Documents CRUD.
	r.Get("/documents", h.ListDocuments)
	r.Post("/documents", h.CreateDocument)
	r.Post("/documents/move", h.MoveDocument)
	r.Get("/documents/*", h.GetDocument)
	r.Put("/documents/*", h.UpdateDocument)
	r.Delete("/documents/*", h.DeleteDocument)

	// Tasks.
	r.Get("/tasks", h.ListTasks)
	r.Post("/tasks", h.CaptureTask)
	r.Get("/tasks/overdue", h.OverdueTasks)

	// Derived metadata.
	r.Get("/tags", h.Tags)
	r.Get("/contexts", h.Contexts)
	r.Get("/calendar/{year}/{month}", h.Calendar)
	r.Post("/index/rebuild", h.RebuildIndex)

	// Time log.
	r.Post("/timelog", h.LogSession)
	r.Get("/timelog/*", h.TaskSessions)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

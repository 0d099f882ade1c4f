package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/docservice"
	"github.com/starford/dagaz/internal/metadata"
	"github.com/starford/dagaz/internal/taskentry"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *docservice.Service
	engine *metadata.Engine
	params metadata.Params
}

// NewHandler creates a new Handler. params is the engine configuration the
// rebuild endpoint re-applies.
func NewHandler(svc *docservice.Service, engine *metadata.Engine, params metadata.Params) *Handler {
	return &Handler{svc: svc, engine: engine, params: params}
}

// docPath extracts the document path from the URL (everything after the
// route prefix). Supports encoded slashes from OpenAPI clients
// (e.g. tasks%2Freport.md).
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List documents in the vault
//	@Tags			documents
//	@Produce		json
//	@Param			dir	query		string	false	"Restrict listing to a vault folder"
//	@Success		200	{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	items, err := h.svc.ListDocuments(r.Context(), dir)
	if err != nil {
		slog.Error("list documents failed", slog.String("dir", dir), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if items == nil {
		items = []DocumentInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": items,
		"total":     len(items),
	})
}

// GetDocument handles GET /api/documents/*.
//
//	@Summary		Get a single document by path
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	DocumentDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.svc.GetDocument(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get document failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// CreateDocument handles POST /api/documents.
//
//	@Summary		Create a new document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateDocumentRequest	true	"Document to create"
//	@Success		201		{object}	DocumentDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	doc, err := h.svc.CreateDocument(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody("document already exists"))
		} else {
			slog.Error("create document failed", slog.String("path", req.Path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// UpdateDocument handles PUT /api/documents/*.
//
//	@Summary		Update a document with optimistic concurrency
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string					true	"Document path"
//	@Param			If-Match	header	string					false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	UpdateDocumentRequest	true	"Updated content"
//	@Success		200		{object}	DocumentDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [put]
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	var req UpdateDocumentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	ifMatch := r.Header.Get("If-Match")
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch = strings.Trim(ifMatch, `"`)

	doc, err := h.svc.UpdateDocument(r.Context(), path, []byte(req.Content), ifMatch)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
		default:
			slog.Error("update document failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/documents/*.
//
//	@Summary		Delete a document
//	@Tags			documents
//	@Param			path	path	string	true	"Document path"
//	@Success		204		"Document deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteDocument(r.Context(), path); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("delete document failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveDocument handles POST /api/documents/move.
//
//	@Summary		Move a document to a new path
//	@Tags			documents
//	@Accept			json
//	@Param			body	body	MoveDocumentRequest	true	"Move request"
//	@Success		204		"Document moved"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/move [post]
func (h *Handler) MoveDocument(w http.ResponseWriter, r *http.Request) {
	var req MoveDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return
	}
	if err := h.svc.MoveDocument(r.Context(), req.From, req.To); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("move document failed", slog.String("from", req.From), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CaptureTask handles POST /api/tasks.
//
//	@Summary		Create a task from a quick-capture line
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CaptureTaskRequest	true	"Capture line"
//	@Success		201		{object}	DocumentDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks [post]
func (h *Handler) CaptureTask(w http.ResponseWriter, r *http.Request) {
	var req CaptureTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("text is required"))
		return
	}
	doc, err := h.svc.CaptureTask(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, taskentry.ErrEmptyTitle) {
			writeJSON(w, http.StatusBadRequest, errorBody("capture line has no title"))
			return
		}
		slog.Error("capture task failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// ListTasks handles GET /api/tasks with one of date, status, or priority.
//
//	@Summary		List tasks by date, status, or priority
//	@Tags			tasks
//	@Produce		json
//	@Param			date		query	string	false	"Date (YYYY-MM-DD)"
//	@Param			status		query	string	false	"Status"
//	@Param			priority	query	string	false	"Priority"
//	@Success		200	{object}	TaskListResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks [get]
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		items []docservice.TaskItem
		err   error
	)
	switch {
	case q.Get("date") != "":
		items, err = h.svc.TasksOnDate(r.Context(), q.Get("date"))
	case q.Get("status") != "":
		items, err = h.svc.TasksByStatus(r.Context(), q.Get("status"))
	case q.Get("priority") != "":
		items, err = h.svc.TasksByPriority(r.Context(), q.Get("priority"))
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("one of date, status, or priority is required"))
		return
	}
	if err != nil {
		slog.Error("list tasks failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, TaskListResponse{Tasks: items})
}

// OverdueTasks handles GET /api/tasks/overdue.
//
//	@Summary		List overdue tasks
//	@Tags			tasks
//	@Produce		json
//	@Success		200	{object}	TaskListResponse
//	@Security		BearerAuth
//	@Router			/tasks/overdue [get]
func (h *Handler) OverdueTasks(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.OverdueTasks(r.Context())
	if err != nil {
		slog.Error("overdue tasks failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, TaskListResponse{Tasks: items})
}

// Tags handles GET /api/tags.
//
//	@Summary		List all known tags
//	@Tags			metadata
//	@Produce		json
//	@Success		200	{object}	ValuesResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	values, err := h.engine.AllTags(r.Context())
	if err != nil {
		slog.Error("list tags failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ValuesResponse{Values: values})
}

// Contexts handles GET /api/contexts.
//
//	@Summary		List all known contexts
//	@Tags			metadata
//	@Produce		json
//	@Success		200	{object}	ValuesResponse
//	@Security		BearerAuth
//	@Router			/contexts [get]
func (h *Handler) Contexts(w http.ResponseWriter, r *http.Request) {
	values, err := h.engine.AllContexts(r.Context())
	if err != nil {
		slog.Error("list contexts failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ValuesResponse{Values: values})
}

// Calendar handles GET /api/calendar/{year}/{month}.
//
//	@Summary		Per-day task and note counts for a month
//	@Tags			metadata
//	@Produce		json
//	@Param			year	path		int	true	"Year"
//	@Param			month	path		int	true	"Month (1-12)"
//	@Success		200		{object}	CalendarResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/calendar/{year}/{month} [get]
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid year"))
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid month"))
		return
	}
	days, err := h.engine.CalendarSummary(r.Context(), year, time.Month(month))
	if err != nil {
		slog.Error("calendar failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, CalendarResponse{Year: year, Month: month, Days: days})
}

// RebuildIndex handles POST /api/index/rebuild.
//
//	@Summary		Clear the indexes and schedule a fresh build
//	@Tags			metadata
//	@Success		202	"Rebuild scheduled"
//	@Security		BearerAuth
//	@Router			/index/rebuild [post]
func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ApplyConfig(r.Context(), h.params); err != nil {
		slog.Error("rebuild failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// LogSession handles POST /api/timelog.
//
//	@Summary		Record a work session against a task
//	@Tags			timelog
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LogSessionRequest	true	"Session to record"
//	@Success		201		{object}	LogSessionResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/timelog [post]
func (h *Handler) LogSession(w http.ResponseWriter, r *http.Request) {
	var req LogSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Seconds <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("path and positive seconds are required"))
		return
	}
	if req.StartedAt.IsZero() {
		req.StartedAt = time.Now()
	}
	id, err := h.svc.LogSession(r.Context(), req.Path, req.StartedAt, req.Seconds, req.Note)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("task not found"))
			return
		}
		slog.Error("log session failed", slog.String("path", req.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, LogSessionResponse{ID: id})
}

// TaskSessions handles GET /api/timelog/*.
//
//	@Summary		List logged sessions for a task
//	@Tags			timelog
//	@Produce		json
//	@Param			path	path		string	true	"Task path"
//	@Success		200		{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/timelog/{path} [get]
func (h *Handler) TaskSessions(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	sessions, total, err := h.svc.SessionsForTask(r.Context(), path)
	if err != nil {
		slog.Error("task sessions failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":      sessions,
		"total_seconds": total,
	})
}

package api

import (
	"time"

	"github.com/starford/dagaz/internal/docservice"
	"github.com/starford/dagaz/internal/metadata"
	"github.com/starford/dagaz/internal/models"
)

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	Path    string `json:"path" example:"tasks/report.md" validate:"required"`
	Content string `json:"content" example:"---\ntags: [task]\n---\n# Report" validate:"required"`
}

// UpdateDocumentRequest is the request body for updating a document.
type UpdateDocumentRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// MoveDocumentRequest is the request body for moving a document.
type MoveDocumentRequest struct {
	From string `json:"from" example:"tasks/report.md" validate:"required"`
	To   string `json:"to" example:"archive/report.md" validate:"required"`
}

// CaptureTaskRequest is the request body for quick task capture.
type CaptureTaskRequest struct {
	Text string `json:"text" example:"Buy milk #errands !high due:tomorrow" validate:"required"`
}

// LogSessionRequest is the request body for logging a work session.
type LogSessionRequest struct {
	Path      string    `json:"path" example:"tasks/report.md" validate:"required"`
	StartedAt time.Time `json:"started_at" validate:"required"`
	Seconds   int       `json:"seconds" example:"1500" validate:"required"`
	Note      string    `json:"note,omitempty" example:"first draft"`
}

// DocumentDetail is the full document response type (aliased from the domain layer).
type DocumentDetail = docservice.DocumentDetail

// DocumentInfo is a lightweight item in a document list response (aliased from the domain layer).
type DocumentInfo = models.DocumentInfo

// DocumentListResponse wraps document listings.
type DocumentListResponse struct {
	Documents []DocumentInfo `json:"documents" validate:"required"`
	Total     int            `json:"total" example:"42" validate:"required"`
}

// TaskItem is a task summary (aliased from the domain layer).
type TaskItem = docservice.TaskItem

// TaskListResponse wraps task listings.
type TaskListResponse struct {
	Tasks []TaskItem `json:"tasks" validate:"required"`
}

// ValuesResponse wraps flat value listings (tags, contexts).
type ValuesResponse struct {
	Values []string `json:"values" validate:"required"`
}

// CalendarResponse wraps a month of per-day summaries.
type CalendarResponse struct {
	Year  int                   `json:"year" example:"2025" validate:"required"`
	Month int                   `json:"month" example:"6" validate:"required"`
	Days  []metadata.DaySummary `json:"days" validate:"required"`
}

// LogSessionResponse is returned after a session is recorded.
type LogSessionResponse struct {
	ID int64 `json:"id" example:"7" validate:"required"`
}

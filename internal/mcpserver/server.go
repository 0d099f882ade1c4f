// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Dagaz tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/dagaz/internal/docservice"
	"github.com/starford/dagaz/internal/metadata"
	"github.com/starford/dagaz/internal/storage"
)

// Server wraps the MCP server with Dagaz tools.
type Server struct {
	mcp    *server.MCPServer
	store  storage.Provider
	svc    *docservice.Service
	engine *metadata.Engine
}

// New creates a new MCP server with all Dagaz tools registered.
func New(store storage.Provider, svc *docservice.Service, engine *metadata.Engine) *Server {
	s := &Server{store: store, svc: svc, engine: engine}

	s.mcp = server.NewMCPServer(
		"Dagaz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("capture_task",
		mcp.WithDescription("Create a task from a one-line quick-capture string. "+
			"Markers: #tag, @context, !priority, due:<date>, on:<date>, every:<interval>. "+
			"Dates accept today, tomorrow, +Nd, or YYYY-MM-DD. Read the contract first "+
			"via the get_task_contract tool or the dagaz://task-format resource."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Quick-capture line, e.g. 'Buy milk #errands due:tomorrow'")),
	), s.captureTask)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the full content of a Markdown document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. tasks/report.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("tasks_on_date",
		mcp.WithDescription("List tasks due or scheduled on a specific date."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date in YYYY-MM-DD form")),
	), s.tasksOnDate)

	s.mcp.AddTool(mcp.NewTool("overdue_tasks",
		mcp.WithDescription("List all tasks that are past their due or scheduled date and not completed."),
	), s.overdueTasks)

	s.mcp.AddTool(mcp.NewTool("tasks_by_status",
		mcp.WithDescription("List tasks in a given workflow status."),
		mcp.WithString("status", mcp.Required(), mcp.Description("Status value, e.g. open, doing, done, cancelled")),
	), s.tasksByStatus)

	s.mcp.AddTool(mcp.NewTool("calendar_month",
		mcp.WithDescription("Per-day task, note, and overdue counts for one month."),
		mcp.WithString("year", mcp.Required(), mcp.Description("Four-digit year")),
		mcp.WithString("month", mcp.Required(), mcp.Description("Month number 1-12")),
	), s.calendarMonth)

	s.mcp.AddTool(mcp.NewTool("log_session",
		mcp.WithDescription("Record a work session (in seconds) against a task document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Task document path")),
		mcp.WithString("seconds", mcp.Required(), mcp.Description("Session duration in seconds")),
		mcp.WithString("note", mcp.Description("Optional session note")),
	), s.logSession)

	s.mcp.AddTool(mcp.NewTool("get_task_contract",
		mcp.WithDescription("Returns the canonical Dagaz task format contract. "+
			"Call this before creating or updating task documents."),
	), s.getTaskContract)

	// Resource: task format contract.
	s.mcp.AddResource(
		mcp.NewResource("dagaz://task-format", "Task Format Contract",
			mcp.WithResourceDescription("Canonical Markdown task format that all task documents must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTaskFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) captureTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.CaptureTask(ctx, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", doc.Path)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.store.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) tasksOnDate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, perr := time.Parse("2006-01-02", date); perr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid date: %s", date)), nil
	}
	items, err := s.svc.TasksOnDate(ctx, date)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return taskListResult(items)
}

func (s *Server) overdueTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.OverdueTasks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return taskListResult(items)
}

func (s *Server) tasksByStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.svc.TasksByStatus(ctx, status)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return taskListResult(items)
}

func (s *Server) calendarMonth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	yearStr, err := req.RequireString("year")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	monthStr, err := req.RequireString("month")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil || year < 1 {
		return mcp.NewToolResultError(fmt.Sprintf("invalid year: %s", yearStr)), nil
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return mcp.NewToolResultError(fmt.Sprintf("invalid month: %s", monthStr)), nil
	}
	days, err := s.engine.CalendarSummary(ctx, year, time.Month(month))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(days, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) logSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	secondsStr, err := req.RequireString("seconds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	seconds, err := strconv.Atoi(secondsStr)
	if err != nil || seconds <= 0 {
		return mcp.NewToolResultError(fmt.Sprintf("invalid seconds: %s", secondsStr)), nil
	}
	note := ""
	if n, nerr := req.RequireString("note"); nerr == nil {
		note = n
	}
	id, err := s.svc.LogSession(ctx, path, time.Now(), seconds, note)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("logged session %d: %ds against %s", id, seconds, path)), nil
}

func (s *Server) getTaskContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(TaskFormatContract), nil
}

func (s *Server) readTaskFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "dagaz://task-format",
			MIMEType: "text/markdown",
			Text:     TaskFormatContract,
		},
	}, nil
}

func taskListResult(items []docservice.TaskItem) (*mcp.CallToolResult, error) {
	if len(items) == 0 {
		return mcp.NewToolResultText("no tasks found"), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

// Package docservice coordinates storage, the metadata engine, and the
// session log for document operations.
package docservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/checksum"
	"github.com/starford/dagaz/internal/metadata"
	"github.com/starford/dagaz/internal/models"
	"github.com/starford/dagaz/internal/parser"
	"github.com/starford/dagaz/internal/storage"
	"github.com/starford/dagaz/internal/taskentry"
	"github.com/starford/dagaz/internal/timelog"
)

// DocumentDetail is the full representation of a document.
type DocumentDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Contexts    []string       `json:"contexts"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Kind        string         `json:"kind"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TaskItem is a task summary in list responses.
type TaskItem struct {
	Path      string   `json:"path"`
	Title     string   `json:"title"`
	Status    string   `json:"status"`
	Priority  string   `json:"priority"`
	Due       string   `json:"due,omitempty"`
	Scheduled string   `json:"scheduled,omitempty"`
	Tags      []string `json:"tags"`
	Contexts  []string `json:"contexts"`
	Overdue   bool     `json:"overdue"`
}

// Service coordinates storage, metadata index, and time log operations.
type Service struct {
	store    storage.Provider
	engine   *metadata.Engine
	sessions timelog.Store
	logger   *slog.Logger

	markerTag     string
	defaultStatus string
	tasksFolder   string
	now           func() time.Time
}

// Options configures a Service.
type Options struct {
	MarkerTag     string
	DefaultStatus string
	TasksFolder   string
	Logger        *slog.Logger
	Now           func() time.Time
}

// NewService creates a new document service. sessions may be nil when the
// time log is disabled.
func NewService(store storage.Provider, engine *metadata.Engine, sessions timelog.Store, opts Options) *Service {
	if opts.MarkerTag == "" {
		opts.MarkerTag = "task"
	}
	if opts.DefaultStatus == "" {
		opts.DefaultStatus = "open"
	}
	if opts.TasksFolder == "" {
		opts.TasksFolder = "tasks"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:         store,
		engine:        engine,
		sessions:      sessions,
		logger:        opts.Logger,
		markerTag:     opts.MarkerTag,
		defaultStatus: opts.DefaultStatus,
		tasksFolder:   opts.TasksFolder,
		now:           opts.Now,
	}
}

// ListDocuments returns metadata for every document under dir; an empty dir
// lists the whole vault.
func (s *Service) ListDocuments(_ context.Context, dir string) ([]models.DocumentInfo, error) {
	return s.store.List(dir)
}

// GetDocument reads a document from storage and classifies it.
func (s *Service) GetDocument(ctx context.Context, docPath string) (*DocumentDetail, error) {
	data, err := s.store.Read(docPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildDetail(ctx, docPath, data)
}

// CreateDocument writes a new document and feeds it into the index.
func (s *Service) CreateDocument(ctx context.Context, docPath string, content []byte) (*DocumentDetail, error) {
	if _, err := s.store.Read(docPath); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(docPath, content); err != nil {
		return nil, err
	}
	s.engine.Changed(docPath)
	return s.buildDetail(ctx, docPath, content)
}

// UpdateDocument writes updated content with optimistic concurrency. A
// non-empty ifMatch must equal the checksum of the stored content.
func (s *Service) UpdateDocument(ctx context.Context, docPath string, content []byte, ifMatch string) (*DocumentDetail, error) {
	existing, err := s.store.Read(docPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(docPath, content); err != nil {
		return nil, err
	}
	s.engine.Changed(docPath)
	return s.buildDetail(ctx, docPath, content)
}

// DeleteDocument removes a document from storage and retracts it from the
// index.
func (s *Service) DeleteDocument(_ context.Context, docPath string) error {
	if err := s.store.Delete(docPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	s.engine.Deleted(docPath)
	return nil
}

// MoveDocument renames a document. Index memberships and logged sessions
// follow the new path.
func (s *Service) MoveDocument(_ context.Context, oldPath, newPath string) error {
	if err := s.store.Move(oldPath, newPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	s.engine.Renamed(oldPath, newPath)
	if s.sessions != nil {
		if err := s.sessions.Rename(oldPath, newPath); err != nil {
			s.logger.Warn("docservice: move session history failed",
				slog.String("from", oldPath),
				slog.String("to", newPath),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// CaptureTask parses a quick-capture line, writes the rendered document into
// the tasks folder, and indexes it.
func (s *Service) CaptureTask(ctx context.Context, line string) (*DocumentDetail, error) {
	entry, err := taskentry.Parse(line, s.now())
	if err != nil {
		return nil, err
	}
	content, err := entry.Document(s.markerTag, s.defaultStatus, s.now())
	if err != nil {
		return nil, err
	}

	docPath := path.Join(s.tasksFolder, entry.Filename())
	// Suffix on collision rather than overwriting an existing task.
	for i := 2; ; i++ {
		if _, err := s.store.Read(docPath); err != nil {
			break
		}
		base := entry.Filename()
		docPath = path.Join(s.tasksFolder, fmt.Sprintf("%s-%d.md", base[:len(base)-3], i))
	}

	if err := s.store.Write(docPath, content); err != nil {
		return nil, err
	}
	s.engine.Changed(docPath)
	return s.buildDetail(ctx, docPath, content)
}

// TasksOnDate resolves the date bucket into full task items.
func (s *Service) TasksOnDate(ctx context.Context, date string) ([]TaskItem, error) {
	paths, err := s.engine.TasksOnDate(ctx, date)
	if err != nil {
		return nil, err
	}
	return s.taskItems(ctx, paths)
}

// TasksByStatus resolves a status bucket into full task items.
func (s *Service) TasksByStatus(ctx context.Context, status string) ([]TaskItem, error) {
	paths, err := s.engine.PathsByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	return s.taskItems(ctx, paths)
}

// TasksByPriority resolves a priority bucket into full task items.
func (s *Service) TasksByPriority(ctx context.Context, priority string) ([]TaskItem, error) {
	paths, err := s.engine.PathsByPriority(ctx, priority)
	if err != nil {
		return nil, err
	}
	return s.taskItems(ctx, paths)
}

// OverdueTasks resolves the overdue set into full task items.
func (s *Service) OverdueTasks(ctx context.Context) ([]TaskItem, error) {
	paths, err := s.engine.OverduePaths(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.taskItems(ctx, paths)
	for i := range items {
		items[i].Overdue = true
	}
	return items, err
}

// taskItems re-derives task records for a set of paths. Documents that fail
// to read or no longer classify as tasks are skipped.
func (s *Service) taskItems(ctx context.Context, paths []string) ([]TaskItem, error) {
	items := make([]TaskItem, 0, len(paths))
	for _, p := range paths {
		cls, err := s.engine.RecordForPath(ctx, p)
		if err != nil || cls.Kind != metadata.KindTask {
			continue
		}
		t := cls.Task
		items = append(items, TaskItem{
			Path:      t.Path,
			Title:     t.Title,
			Status:    t.Status,
			Priority:  t.Priority,
			Due:       t.Due,
			Scheduled: t.Scheduled,
			Tags:      nonNilSlice(t.Tags),
			Contexts:  nonNilSlice(t.Contexts),
		})
	}
	return items, nil
}

// LogSession records a work session against a task document.
func (s *Service) LogSession(_ context.Context, taskPath string, startedAt time.Time, seconds int, note string) (int64, error) {
	if s.sessions == nil {
		return 0, errors.New("docservice: time log disabled")
	}
	if _, err := s.store.Read(taskPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, apperr.ErrNotFound
		}
		return 0, err
	}
	return s.sessions.Add(timelog.Session{
		TaskPath:  taskPath,
		StartedAt: startedAt,
		Seconds:   seconds,
		Note:      note,
	})
}

// SessionsForTask returns the logged sessions and the summed duration for a
// task path.
func (s *Service) SessionsForTask(_ context.Context, taskPath string) ([]timelog.Session, int, error) {
	if s.sessions == nil {
		return nil, 0, errors.New("docservice: time log disabled")
	}
	sessions, err := s.sessions.ForTask(taskPath)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.sessions.TotalSeconds(taskPath)
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// buildDetail constructs a DocumentDetail from raw data without re-reading
// the file.
func (s *Service) buildDetail(ctx context.Context, docPath string, data []byte) (*DocumentDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}

	kind := metadata.KindNone
	if cls, cerr := s.engine.RecordForPath(ctx, docPath); cerr == nil {
		kind = cls.Kind
	}

	// UpdatedAt reflects the file, not the request: a re-read of an old
	// document reports its stored mtime.
	updated := s.now()
	if info, serr := s.store.Stat(docPath); serr == nil {
		updated = info.UpdatedAt
	}

	return &DocumentDetail{
		Path:        docPath,
		Title:       res.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Contexts:    nonNilSlice(res.Contexts),
		Frontmatter: res.Frontmatter,
		Kind:        kind.String(),
		UpdatedAt:   updated,
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

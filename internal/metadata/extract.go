package metadata

import (
	"path"
	"strings"
)

// Params is the configuration snapshot the engine derives records and
// indexes from. Changing any field invalidates all derived state, so new
// params are only ever applied together with a full index clear.
type Params struct {
	// TaskTag marks a document as a task when present among its tags.
	TaskTag string
	// TaskKey/TaskValue is the alternative marker: a header field TaskKey
	// whose value equals TaskValue. Either marker classifies a task.
	TaskKey   string
	TaskValue string
	// IndexNotes enables indexing of non-task documents by created date.
	IndexNotes bool
	// ExcludedFolders are vault-relative folder prefixes to skip entirely.
	ExcludedFolders []string
	// BatchSize is the number of documents processed between cooperative
	// yields during the bulk build. A tuning constant, not a correctness
	// parameter.
	BatchSize int
	// DefaultStatus and DefaultPriority substitute for absent header fields.
	DefaultStatus   string
	DefaultPriority string
	// CompletedStatuses are the statuses that exempt a task from the
	// overdue set.
	CompletedStatuses []string
}

// withDefaults returns a copy with documented defaults filled in.
func (p Params) withDefaults() Params {
	if p.TaskTag == "" && p.TaskKey == "" {
		p.TaskTag = "task"
	}
	if p.DefaultStatus == "" {
		p.DefaultStatus = "open"
	}
	if p.DefaultPriority == "" {
		p.DefaultPriority = "normal"
	}
	if len(p.CompletedStatuses) == 0 {
		p.CompletedStatuses = []string{"done", "cancelled"}
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 50
	}
	return p
}

// excludes reports whether path falls under an excluded folder.
func (p Params) excludes(docPath string) bool {
	for _, folder := range p.ExcludedFolders {
		folder = strings.TrimSuffix(folder, "/")
		if folder == "" {
			continue
		}
		if docPath == folder || strings.HasPrefix(docPath, folder+"/") {
			return true
		}
	}
	return false
}

// Extractor turns parsed document headers into normalized records.
// It is pure: no state beyond the params snapshot, no side effects, and it
// never fails on malformed input — absent or unusable fields get defaults.
type Extractor struct {
	params    Params
	completed map[string]struct{}
}

// NewExtractor creates an extractor for the given params.
func NewExtractor(p Params) *Extractor {
	p = p.withDefaults()
	completed := make(map[string]struct{}, len(p.CompletedStatuses))
	for _, s := range p.CompletedStatuses {
		completed[s] = struct{}{}
	}
	return &Extractor{params: p, completed: completed}
}

// CompletedStatuses returns the set of statuses treated as completed.
func (e *Extractor) CompletedStatuses() map[string]struct{} {
	return e.completed
}

// Classify produces the tagged classification of a document: a task when the
// task marker is present, otherwise a note when note indexing is enabled,
// otherwise none. A nil header always classifies as none.
func (e *Extractor) Classify(docPath string, h *Header, stat FileStat) Classification {
	if h == nil {
		return Classification{Kind: KindNone}
	}
	if e.isTask(h) {
		if t := e.ExtractTask(docPath, h); t != nil {
			return Classification{Kind: KindTask, Task: t}
		}
		return Classification{Kind: KindNone}
	}
	if e.params.IndexNotes {
		if n := e.ExtractNote(docPath, h, stat); n != nil {
			return Classification{Kind: KindNote, Note: n}
		}
	}
	return Classification{Kind: KindNone}
}

// ExtractTask builds a TaskRecord from header fields, or nil when the
// document lacks any identifying title (no header title, no usable filename
// stem). Missing fields get documented defaults.
func (e *Extractor) ExtractTask(docPath string, h *Header) *TaskRecord {
	if h == nil {
		return nil
	}
	title := h.Title
	if title == "" {
		title = stem(docPath)
	}
	if title == "" {
		return nil
	}

	t := &TaskRecord{
		Path:       docPath,
		Title:      title,
		Status:     strField(h.Fields, "status", e.params.DefaultStatus),
		Priority:   strField(h.Fields, "priority", e.params.DefaultPriority),
		Archived:   boolField(h.Fields, "archived"),
		Tags:       h.Tags,
		Contexts:   h.Contexts,
		Recurrence: strField(h.Fields, "repeat", ""),
	}
	if due, ok := DateKey(h.Fields["due"]); ok {
		t.Due = due
	}
	if sched, ok := DateKey(h.Fields["scheduled"]); ok {
		t.Scheduled = sched
	}
	// Completed instance dates only carry meaning for recurring tasks, but
	// they are preserved either way; the overdue predicate ignores them.
	for _, v := range listField(h.Fields, "completed") {
		if d, ok := DateKey(v); ok {
			t.Completed = append(t.Completed, d)
		}
	}
	return t
}

// ExtractNote builds a NoteRecord, or nil when the document lacks any
// identifying title.
func (e *Extractor) ExtractNote(docPath string, h *Header, stat FileStat) *NoteRecord {
	if h == nil {
		return nil
	}
	title := h.Title
	if title == "" {
		title = stem(docPath)
	}
	if title == "" {
		return nil
	}
	n := &NoteRecord{
		Path:     docPath,
		Title:    title,
		Tags:     h.Tags,
		Modified: stat.ModTime,
	}
	if created, ok := DateKey(h.Fields["created"]); ok {
		n.Created = created
	}
	return n
}

// isTask reports whether the header declares the configured task marker.
func (e *Extractor) isTask(h *Header) bool {
	if e.params.TaskTag != "" {
		for _, tag := range h.Tags {
			if tag == e.params.TaskTag {
				return true
			}
		}
	}
	if e.params.TaskKey != "" {
		if v, ok := h.Fields[e.params.TaskKey].(string); ok && v == e.params.TaskValue {
			return true
		}
	}
	return false
}

// stem returns the filename without directory or .md extension.
func stem(docPath string) string {
	base := path.Base(docPath)
	base = strings.TrimSuffix(base, ".md")
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func strField(fields map[string]interface{}, key, fallback string) string {
	if v, ok := fields[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func boolField(fields map[string]interface{}, key string) bool {
	v, _ := fields[key].(bool)
	return v
}

func listField(fields map[string]interface{}, key string) []interface{} {
	switch v := fields[key].(type) {
	case []interface{}:
		return v
	case nil:
		return nil
	default:
		return []interface{}{v}
	}
}

// Package metadata implements the incremental metadata indexing engine:
// it classifies vault documents into task and note records and maintains
// derived indexes (by date, status, priority, overdue, tags, contexts)
// that stay consistent with the document collection without full rescans.
package metadata

import (
	"strings"
	"time"
)

// Kind discriminates the classification of a document.
type Kind int

const (
	// KindNone marks a document that is neither a task nor an indexed note.
	KindNone Kind = iota
	// KindTask marks a document carrying the configured task marker.
	KindTask
	// KindNote marks a plain document indexed by its created date.
	KindNote
)

// String returns the kind name used in API payloads and logs.
func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindNote:
		return "note"
	default:
		return "none"
	}
}

// Classification is the result of classifying a document. Exactly one of
// Task/Note is non-nil when Kind is KindTask/KindNote; both are nil for
// KindNone.
type Classification struct {
	Kind Kind
	Task *TaskRecord
	Note *NoteRecord
}

// TaskRecord is the normalized task view of a document. It is rebuilt
// wholesale whenever the document's header changes; Path is its identity.
type TaskRecord struct {
	Path       string   `json:"path"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	Priority   string   `json:"priority"`
	Due        string   `json:"due,omitempty"`       // date key, "" when absent
	Scheduled  string   `json:"scheduled,omitempty"` // date key, "" when absent
	Archived   bool     `json:"archived,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Contexts   []string `json:"contexts,omitempty"`
	Recurrence string   `json:"recurrence,omitempty"`
	Completed  []string `json:"completed,omitempty"` // completed instance date keys (recurring tasks)
}

// EffectiveDate returns the due date, or the scheduled date when no due date
// is set, or "" when the task is undated.
func (t *TaskRecord) EffectiveDate() string {
	if t.Due != "" {
		return t.Due
	}
	return t.Scheduled
}

// OverdueOn reports whether the task is overdue relative to today (a date
// key). Recurring tasks and tasks whose status is in the completed set are
// never overdue.
func (t *TaskRecord) OverdueOn(today string, completed map[string]struct{}) bool {
	if t.Recurrence != "" {
		return false
	}
	if _, done := completed[t.Status]; done {
		return false
	}
	eff := t.EffectiveDate()
	return eff != "" && eff < today
}

// NoteRecord is the normalized note view of a document.
type NoteRecord struct {
	Path     string    `json:"path"`
	Title    string    `json:"title"`
	Tags     []string  `json:"tags,omitempty"`
	Created  string    `json:"created,omitempty"` // date key, "" when absent
	Modified time.Time `json:"modified"`
}

// DateKey normalizes a header date value to its calendar-date portion in
// YYYY-MM-DD form, so bucket keys order lexicographically by calendar date.
// It accepts ISO date / date-time strings and time.Time values (yaml decodes
// unquoted timestamps into time.Time).
func DateKey(v interface{}) (string, bool) {
	switch d := v.(type) {
	case time.Time:
		return d.Format("2006-01-02"), true
	case string:
		s := strings.TrimSpace(d)
		if len(s) < 10 {
			return "", false
		}
		day := s[:10]
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return "", false
		}
		return day, true
	default:
		return "", false
	}
}

// dayKey returns the date key for a point in time.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

package metadata

import (
	"reflect"
	"testing"
	"time"
)

var noneDone = map[string]struct{}{"done": {}, "cancelled": {}}

func task(path string, mut ...func(*TaskRecord)) *TaskRecord {
	t := &TaskRecord{
		Path:     path,
		Title:    stem(path),
		Status:   "open",
		Priority: "normal",
	}
	for _, m := range mut {
		m(t)
	}
	return t
}

func TestUpsertTask_PopulatesAllIndexes(t *testing.T) {
	s := newIndexStore()
	s.upsertTask(task("a.md", func(r *TaskRecord) {
		r.Due = "2025-01-10"
		r.Scheduled = "2025-01-12"
		r.Priority = "high"
		r.Tags = []string{"work"}
		r.Contexts = []string{"office"}
	}), "2025-06-01", noneDone)

	if got := s.tasksOn("2025-01-10"); !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Errorf("tasksOn(due) = %v", got)
	}
	if got := s.tasksOn("2025-01-12"); !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Errorf("tasksOn(scheduled) = %v", got)
	}
	if got := s.statusPaths("open"); !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Errorf("statusPaths = %v", got)
	}
	if got := s.priorityPaths("high"); !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Errorf("priorityPaths = %v", got)
	}
	if got := s.overduePaths(); !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Errorf("overduePaths = %v", got)
	}
	if got := s.allTags(); !reflect.DeepEqual(got, []string{"work"}) {
		t.Errorf("allTags = %v", got)
	}
	if got := s.allContexts(); !reflect.DeepEqual(got, []string{"office"}) {
		t.Errorf("allContexts = %v", got)
	}
}

func TestUpsertTask_ExactlyOneStatusBucket(t *testing.T) {
	s := newIndexStore()
	s.upsertTask(task("a.md"), "2025-06-01", noneDone)
	s.upsertTask(task("a.md", func(r *TaskRecord) { r.Status = "doing" }), "2025-06-01", noneDone)

	if got := s.statusPaths("open"); len(got) != 0 {
		t.Errorf("old status bucket still holds path: %v", got)
	}
	if got := s.statusPaths("doing"); !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Errorf("statusPaths(doing) = %v", got)
	}
}

func TestUpsertTask_DueEqualsScheduledSingleEntry(t *testing.T) {
	s := newIndexStore()
	s.upsertTask(task("a.md", func(r *TaskRecord) {
		r.Due = "2025-01-10"
		r.Scheduled = "2025-01-10"
	}), "2025-06-01", noneDone)

	if got := s.tasksOn("2025-01-10"); len(got) != 1 {
		t.Errorf("expected one entry, got %v", got)
	}
	if m := s.seen["a.md"]; len(m.dates) != 1 {
		t.Errorf("membership dates = %v, want one key", m.dates)
	}
}

// Retraction completeness: after retract the path is absent from every index.
func TestRetract_Completeness(t *testing.T) {
	s := newIndexStore()
	s.upsertTask(task("a.md", func(r *TaskRecord) {
		r.Due = "2025-01-10"
		r.Scheduled = "2025-01-12"
		r.Priority = "high"
	}), "2025-06-01", noneDone)

	s.retract("a.md")

	if got := s.tasksOn("2025-01-10"); len(got) != 0 {
		t.Errorf("byDate(due) still holds %v", got)
	}
	if got := s.tasksOn("2025-01-12"); len(got) != 0 {
		t.Errorf("byDate(scheduled) still holds %v", got)
	}
	if got := s.statusPaths("open"); len(got) != 0 {
		t.Errorf("byStatus still holds %v", got)
	}
	if got := s.priorityPaths("high"); len(got) != 0 {
		t.Errorf("byPriority still holds %v", got)
	}
	if got := s.overduePaths(); len(got) != 0 {
		t.Errorf("overdue still holds %v", got)
	}
	if len(s.seen) != 0 {
		t.Errorf("seen still holds %v", s.seen)
	}
	// Emptied buckets are removed entirely: no dangling keys.
	if len(s.taskDates) != 0 || len(s.byStatus) != 0 || len(s.byPriority) != 0 {
		t.Error("empty buckets left behind after retract")
	}
}

func TestRetract_Idempotent(t *testing.T) {
	s := newIndexStore()
	s.retract("never-seen.md") // must not panic or mutate
	if len(s.seen) != 0 {
		t.Error("retract of unknown path mutated store")
	}
}

func TestUpsertNote_OnlyNoteDateIndex(t *testing.T) {
	s := newIndexStore()
	s.upsertTask(task("a.md", func(r *TaskRecord) { r.Due = "2025-01-10" }), "2025-06-01", noneDone)
	s.upsertNote(&NoteRecord{Path: "n.md", Title: "n", Created: "2025-01-10", Tags: []string{"journal"}})

	if got := s.notesOn("2025-01-10"); !reflect.DeepEqual(got, []string{"n.md"}) {
		t.Errorf("notesOn = %v", got)
	}
	// The task bucket for the same date key is untouched.
	if got := s.tasksOn("2025-01-10"); !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Errorf("tasksOn = %v", got)
	}
	// Notes never appear in status/priority buckets.
	if got := s.statusPaths("open"); !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Errorf("statusPaths = %v", got)
	}
	// The global tag set is task-only: the note's tag must not surface.
	if got := s.allTags(); len(got) != 0 {
		t.Errorf("allTags = %v, want empty (note tags excluded)", got)
	}
}

func TestReclassification_TaskBecomesNote(t *testing.T) {
	s := newIndexStore()
	s.upsertTask(task("x.md", func(r *TaskRecord) { r.Due = "2025-01-10" }), "2025-06-01", noneDone)
	s.upsertNote(&NoteRecord{Path: "x.md", Title: "x", Created: "2025-02-01"})

	if got := s.tasksOn("2025-01-10"); len(got) != 0 {
		t.Errorf("task date bucket still holds reclassified path: %v", got)
	}
	if got := s.statusPaths("open"); len(got) != 0 {
		t.Errorf("status bucket still holds reclassified path: %v", got)
	}
	if got := s.notesOn("2025-02-01"); !reflect.DeepEqual(got, []string{"x.md"}) {
		t.Errorf("notesOn = %v", got)
	}
}

func TestOverdue_RecurringAndCompletedExcluded(t *testing.T) {
	s := newIndexStore()
	s.upsertTask(task("rec.md", func(r *TaskRecord) {
		r.Due = "2020-01-01"
		r.Recurrence = "every week"
	}), "2025-06-01", noneDone)
	s.upsertTask(task("done.md", func(r *TaskRecord) {
		r.Due = "2020-01-01"
		r.Status = "done"
	}), "2025-06-01", noneDone)
	s.upsertTask(task("late.md", func(r *TaskRecord) {
		r.Scheduled = "2020-01-01" // scheduled counts when no due date
	}), "2025-06-01", noneDone)

	if got := s.overduePaths(); !reflect.DeepEqual(got, []string{"late.md"}) {
		t.Errorf("overduePaths = %v, want [late.md]", got)
	}
}

func TestClear_EmptiesEverything(t *testing.T) {
	s := newIndexStore()
	s.upsertTask(task("a.md", func(r *TaskRecord) {
		r.Due = "2020-01-01"
		r.Tags = []string{"t"}
		r.Contexts = []string{"c"}
	}), "2025-06-01", noneDone)
	s.clear()

	if len(s.seen) != 0 || len(s.taskDates) != 0 || len(s.byStatus) != 0 ||
		len(s.byPriority) != 0 || len(s.overdue) != 0 || len(s.tags) != 0 || len(s.contexts) != 0 {
		t.Error("clear left residual state")
	}
}

func TestCalendar_MonthAggregation(t *testing.T) {
	s := newIndexStore()
	s.upsertTask(task("a.md", func(r *TaskRecord) { r.Due = "2025-01-10" }), "2025-06-01", noneDone)
	s.upsertTask(task("b.md", func(r *TaskRecord) { r.Due = "2025-01-10"; r.Scheduled = "2025-01-15" }), "2025-06-01", noneDone)
	s.upsertNote(&NoteRecord{Path: "n.md", Title: "n", Created: "2025-01-10"})
	s.upsertTask(task("other.md", func(r *TaskRecord) { r.Due = "2025-02-01" }), "2025-06-01", noneDone)

	sums := s.calendar(2025, time.January)
	if len(sums) != 31 {
		t.Fatalf("len = %d, want 31", len(sums))
	}
	day10 := sums[9]
	if day10.Date != "2025-01-10" || day10.Tasks != 2 || day10.Notes != 1 {
		t.Errorf("day10 = %+v", day10)
	}
	if day10.Overdue != 2 {
		t.Errorf("day10 overdue = %d, want 2", day10.Overdue)
	}
	day15 := sums[14]
	if day15.Tasks != 1 || day15.Notes != 0 {
		t.Errorf("day15 = %+v", day15)
	}
	// February's task must not bleed into January.
	for _, d := range sums {
		if d.Date == "2025-02-01" {
			t.Error("february key in january summary")
		}
	}
}

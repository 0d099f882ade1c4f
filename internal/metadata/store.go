package metadata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// membership records exactly which buckets a path currently occupies, so
// retraction touches only those buckets: task-date buckets for task paths,
// note-date buckets for note paths, never both.
type membership struct {
	note      bool
	dates     []string // date bucket keys (due/scheduled for tasks, created for notes)
	status    string
	priority  string
	overdue   bool
	effective string // effective date of an overdue task, for calendar flags
}

// indexStore holds the derived indexes. It is not safe for concurrent use:
// the engine's event loop is its sole owner, which is what keeps the
// retract-then-reinsert sequences atomic without locks.
type indexStore struct {
	taskDates  map[string]map[string]struct{}
	noteDates  map[string]map[string]struct{}
	byStatus   map[string]map[string]struct{}
	byPriority map[string]map[string]struct{}
	overdue    map[string]struct{}

	// tags and contexts grow monotonically (no reference counting);
	// a full clear + rebuild recomputes them from scratch.
	tags     map[string]struct{}
	contexts map[string]struct{}

	seen map[string]membership
}

func newIndexStore() *indexStore {
	s := &indexStore{}
	s.clear()
	return s
}

// clear empties every index.
func (s *indexStore) clear() {
	s.taskDates = make(map[string]map[string]struct{})
	s.noteDates = make(map[string]map[string]struct{})
	s.byStatus = make(map[string]map[string]struct{})
	s.byPriority = make(map[string]map[string]struct{})
	s.overdue = make(map[string]struct{})
	s.tags = make(map[string]struct{})
	s.contexts = make(map[string]struct{})
	s.seen = make(map[string]membership)
}

// retract removes path from every index it occupies. Idempotent: a path
// that was never inserted is a no-op.
func (s *indexStore) retract(path string) {
	m, ok := s.seen[path]
	if !ok {
		return
	}
	buckets := s.taskDates
	if m.note {
		buckets = s.noteDates
	}
	for _, key := range m.dates {
		dropFromBucket(buckets, key, path)
	}
	if !m.note {
		dropFromBucket(s.byStatus, m.status, path)
		dropFromBucket(s.byPriority, m.priority, path)
		delete(s.overdue, path)
	}
	delete(s.seen, path)
}

// upsertTask replaces the task's index memberships wholesale: full retract,
// then insertion under its current status, priority, dates, and — when the
// overdue predicate holds for today — the overdue set. Tags and contexts are
// unioned into the global sets.
func (s *indexStore) upsertTask(t *TaskRecord, today string, completed map[string]struct{}) {
	s.retract(t.Path)

	m := membership{status: t.Status, priority: t.Priority}

	addToBucket(s.byStatus, t.Status, t.Path)
	addToBucket(s.byPriority, t.Priority, t.Path)

	for _, key := range distinctDates(t.Due, t.Scheduled) {
		addToBucket(s.taskDates, key, t.Path)
		m.dates = append(m.dates, key)
	}

	if t.OverdueOn(today, completed) {
		s.overdue[t.Path] = struct{}{}
		m.overdue = true
		m.effective = t.EffectiveDate()
	}

	for _, tag := range t.Tags {
		s.tags[tag] = struct{}{}
	}
	for _, c := range t.Contexts {
		s.contexts[c] = struct{}{}
	}

	s.seen[t.Path] = m
}

// upsertNote replaces the note's index memberships. Notes only occupy the
// note-date index; the retract step cannot touch task buckets because the
// membership record pins down what the path occupied before. Note tags stay
// on the record and never join the global tag set, which is task-only.
func (s *indexStore) upsertNote(n *NoteRecord) {
	s.retract(n.Path)

	m := membership{note: true}
	if n.Created != "" {
		addToBucket(s.noteDates, n.Created, n.Path)
		m.dates = append(m.dates, n.Created)
	}
	s.seen[n.Path] = m
}

// tasksOn returns a sorted snapshot of task paths dated on the given key.
func (s *indexStore) tasksOn(date string) []string {
	return sortedPaths(s.taskDates[date])
}

// notesOn returns a sorted snapshot of note paths created on the given key.
func (s *indexStore) notesOn(date string) []string {
	return sortedPaths(s.noteDates[date])
}

func (s *indexStore) statusPaths(status string) []string {
	return sortedPaths(s.byStatus[status])
}

func (s *indexStore) priorityPaths(priority string) []string {
	return sortedPaths(s.byPriority[priority])
}

func (s *indexStore) overduePaths() []string {
	return sortedPaths(s.overdue)
}

func (s *indexStore) allTags() []string {
	return sortedPaths(s.tags)
}

func (s *indexStore) allContexts() []string {
	return sortedPaths(s.contexts)
}

// indexedPaths returns every path present in any index.
func (s *indexStore) indexedPaths() []string {
	out := make([]string, 0, len(s.seen))
	for p := range s.seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// DaySummary aggregates one calendar day for grid rendering.
type DaySummary struct {
	Date    string `json:"date"`
	Tasks   int    `json:"tasks"`
	Notes   int    `json:"notes"`
	Overdue int    `json:"overdue"`
}

// calendar aggregates per-day counts for an entire month in a single pass
// over the current memberships.
func (s *indexStore) calendar(year int, month time.Month) []DaySummary {
	prefix := fmt.Sprintf("%04d-%02d-", year, int(month))
	days := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()

	sums := make([]DaySummary, days)
	for i := range sums {
		sums[i].Date = fmt.Sprintf("%s%02d", prefix, i+1)
	}
	dayIndex := func(key string) int {
		if !strings.HasPrefix(key, prefix) || len(key) < 10 {
			return -1
		}
		d, err := strconv.Atoi(key[8:10])
		if err != nil || d < 1 || d > days {
			return -1
		}
		return d - 1
	}

	for _, m := range s.seen {
		for _, key := range m.dates {
			i := dayIndex(key)
			if i < 0 {
				continue
			}
			if m.note {
				sums[i].Notes++
			} else {
				sums[i].Tasks++
			}
		}
		if m.overdue {
			if i := dayIndex(m.effective); i >= 0 {
				sums[i].Overdue++
			}
		}
	}
	return sums
}

func addToBucket(buckets map[string]map[string]struct{}, key, path string) {
	if key == "" {
		return
	}
	set, ok := buckets[key]
	if !ok {
		set = make(map[string]struct{})
		buckets[key] = set
	}
	set[path] = struct{}{}
}

// dropFromBucket removes path from a bucket and deletes emptied buckets so
// no key dangles without members.
func dropFromBucket(buckets map[string]map[string]struct{}, key, path string) {
	set, ok := buckets[key]
	if !ok {
		return
	}
	delete(set, path)
	if len(set) == 0 {
		delete(buckets, key)
	}
}

// distinctDates returns the non-empty, deduplicated date keys among due and
// scheduled, so a task dated twice on the same day occupies one bucket slot.
func distinctDates(due, scheduled string) []string {
	var out []string
	if due != "" {
		out = append(out, due)
	}
	if scheduled != "" && scheduled != due {
		out = append(out, scheduled)
	}
	return out
}

func sortedPaths(set map[string]struct{}) []string {
	if len(set) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

package metadata

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/starford/dagaz/internal/parser"
)

// fakeSource is an in-memory document collection.
type fakeSource struct {
	mu   sync.Mutex
	docs map[string]string
	fail map[string]bool
}

func newFakeSource(docs map[string]string) *fakeSource {
	if docs == nil {
		docs = make(map[string]string)
	}
	return &fakeSource{docs: docs, fail: make(map[string]bool)}
}

func (f *fakeSource) put(path, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[path] = raw
}

func (f *fakeSource) remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, path)
}

func (f *fakeSource) failOn(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[path] = true
}

func (f *fakeSource) List() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.docs))
	for p := range f.docs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeSource) Header(path string) (*Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[path] {
		return nil, errors.New("simulated read failure")
	}
	raw, ok := f.docs[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	res, err := parser.Parse([]byte(raw))
	if err != nil {
		return nil, err
	}
	return &Header{
		Fields:   res.Frontmatter,
		Title:    res.Title,
		Tags:     res.Tags,
		Contexts: res.Contexts,
	}, nil
}

func (f *fakeSource) Stat(path string) (FileStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[path]; !ok {
		return FileStat{}, os.ErrNotExist
	}
	return FileStat{ModTime: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}, nil
}

// testClock is an injectable clock tests can move.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func testEngine(t *testing.T, src Source, params Params, opts ...EngineOption) (*Engine, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	base := []EngineOption{
		WithClock(clock.now),
		WithYielder(YielderFunc(func(context.Context) error { return nil })),
	}
	eng := NewEngine(src, params, append(base, opts...)...)
	t.Cleanup(eng.Close)
	return eng, clock
}

const (
	taskA = "---\ntitle: Task A\ntags: [task, home]\ndue: 2025-01-10\nstatus: open\n---\nDo it @errands\n"
	taskB = "---\ntitle: Task B\ntags: [task, work]\ndue: 2099-01-01\nstatus: open\n---\nLater.\n"
	noteC = "---\ntitle: Note C\ncreated: 2025-01-10\n---\nJournal entry.\n"
)

func scenarioSource() *fakeSource {
	return newFakeSource(map[string]string{
		"a.md": taskA,
		"b.md": taskB,
		"c.md": noteC,
	})
}

func TestEngine_BulkBuildScenario(t *testing.T) {
	src := scenarioSource()
	eng, _ := testEngine(t, src, Params{TaskTag: "task", IndexNotes: true})
	ctx := context.Background()

	overdue, err := eng.OverduePaths(ctx)
	if err != nil {
		t.Fatalf("OverduePaths: %v", err)
	}
	if !reflect.DeepEqual(overdue, []string{"a.md"}) {
		t.Errorf("overdue = %v, want [a.md]", overdue)
	}

	onDate, _ := eng.TasksOnDate(ctx, "2025-01-10")
	if !reflect.DeepEqual(onDate, []string{"a.md"}) {
		t.Errorf("tasksOnDate = %v, want [a.md]", onDate)
	}

	notes, _ := eng.NotesOnDate(ctx, "2025-01-10")
	if !reflect.DeepEqual(notes, []string{"c.md"}) {
		t.Errorf("notesOnDate = %v, want [c.md]", notes)
	}

	tags, _ := eng.AllTags(ctx)
	if !reflect.DeepEqual(tags, []string{"home", "task", "work"}) {
		t.Errorf("allTags = %v", tags)
	}

	contexts, _ := eng.AllContexts(ctx)
	if !reflect.DeepEqual(contexts, []string{"errands"}) {
		t.Errorf("allContexts = %v", contexts)
	}

	// Rename a.md into an archive folder: the membership follows the path.
	src.remove("a.md")
	src.put("archive/a.md", taskA)
	eng.Renamed("a.md", "archive/a.md")

	overdue, _ = eng.OverduePaths(ctx)
	if !reflect.DeepEqual(overdue, []string{"archive/a.md"}) {
		t.Errorf("overdue after rename = %v, want [archive/a.md]", overdue)
	}
}

// The tag vocabulary is built from tasks only: a tag that appears on a note
// alone never surfaces through AllTags.
func TestEngine_NoteTagsStayOffTagIndex(t *testing.T) {
	src := scenarioSource()
	src.put("n.md", "---\ntitle: N\ntags: [journal]\ncreated: 2025-03-01\n---\n")
	eng, _ := testEngine(t, src, Params{TaskTag: "task", IndexNotes: true})
	ctx := context.Background()

	tags, _ := eng.AllTags(ctx)
	if !reflect.DeepEqual(tags, []string{"home", "task", "work"}) {
		t.Errorf("allTags = %v, want [home task work]", tags)
	}

	// The tag is still on the record itself.
	cls, err := eng.RecordForPath(ctx, "n.md")
	if err != nil || cls.Kind != KindNote {
		t.Fatalf("cls = %+v, err = %v", cls, err)
	}
	if !reflect.DeepEqual(cls.Note.Tags, []string{"journal"}) {
		t.Errorf("note tags = %v", cls.Note.Tags)
	}
}

func TestEngine_RenamePreservesBucketSize(t *testing.T) {
	src := scenarioSource()
	src.put("d.md", "---\ntitle: Task D\ntags: [task]\ndue: 2025-01-10\n---\n")
	eng, _ := testEngine(t, src, Params{TaskTag: "task", IndexNotes: true})
	ctx := context.Background()

	before, _ := eng.TasksOnDate(ctx, "2025-01-10")
	if len(before) != 2 {
		t.Fatalf("precondition: bucket = %v", before)
	}

	src.remove("a.md")
	src.put("moved/a.md", taskA)
	eng.Renamed("a.md", "moved/a.md")

	after, _ := eng.TasksOnDate(ctx, "2025-01-10")
	if len(after) != len(before) {
		t.Errorf("bucket size changed: %v -> %v", before, after)
	}
	if !reflect.DeepEqual(after, []string{"d.md", "moved/a.md"}) {
		t.Errorf("bucket = %v", after)
	}
}

func TestEngine_DeleteRetractsEverywhere(t *testing.T) {
	src := scenarioSource()
	eng, _ := testEngine(t, src, Params{TaskTag: "task", IndexNotes: true})
	ctx := context.Background()

	if _, err := eng.OverduePaths(ctx); err != nil {
		t.Fatal(err)
	}

	src.remove("a.md")
	eng.Deleted("a.md")

	checks := map[string][]string{}
	checks["byDate"], _ = eng.TasksOnDate(ctx, "2025-01-10")
	checks["byStatus"], _ = eng.PathsByStatus(ctx, "open")
	checks["byPriority"], _ = eng.PathsByPriority(ctx, "normal")
	checks["overdue"], _ = eng.OverduePaths(ctx)
	checks["indexed"], _ = eng.IndexedPaths(ctx)

	for name, paths := range checks {
		for _, p := range paths {
			if p == "a.md" {
				t.Errorf("%s still contains a.md after delete", name)
			}
		}
	}
}

func TestEngine_ChangedReclassifies(t *testing.T) {
	src := scenarioSource()
	eng, _ := testEngine(t, src, Params{TaskTag: "task", IndexNotes: false})
	ctx := context.Background()

	open, _ := eng.PathsByStatus(ctx, "open")
	if len(open) != 2 {
		t.Fatalf("precondition: open = %v", open)
	}

	// Task marker removed: the document no longer classifies at all
	// (note indexing is off) and must vanish from every index.
	src.put("a.md", "---\ntitle: Task A\ndue: 2025-01-10\n---\nNot a task anymore.\n")
	eng.Changed("a.md")

	open, _ = eng.PathsByStatus(ctx, "open")
	if !reflect.DeepEqual(open, []string{"b.md"}) {
		t.Errorf("open = %v, want [b.md]", open)
	}
	indexed, _ := eng.IndexedPaths(ctx)
	if !reflect.DeepEqual(indexed, []string{"b.md"}) {
		t.Errorf("indexed = %v, want [b.md]", indexed)
	}
}

func TestEngine_ParseFailureLeavesAbsence(t *testing.T) {
	src := scenarioSource()
	eng, _ := testEngine(t, src, Params{TaskTag: "task", IndexNotes: true})
	ctx := context.Background()

	if _, err := eng.OverduePaths(ctx); err != nil {
		t.Fatal(err)
	}

	// The next read of a.md fails: the document must be absent from the
	// indexes, never present with stale state.
	src.failOn("a.md")
	eng.Changed("a.md")

	overdue, _ := eng.OverduePaths(ctx)
	if len(overdue) != 0 {
		t.Errorf("overdue = %v, want empty (failed doc treated as absent)", overdue)
	}
	onDate, _ := eng.TasksOnDate(ctx, "2025-01-10")
	if len(onDate) != 0 {
		t.Errorf("byDate = %v, want empty", onDate)
	}
}

func TestEngine_RebuildIsIdempotent(t *testing.T) {
	src := scenarioSource()
	params := Params{TaskTag: "task", IndexNotes: true}
	eng, _ := testEngine(t, src, params)
	ctx := context.Background()

	snapshot := func() map[string][]string {
		m := make(map[string][]string)
		m["date"], _ = eng.TasksOnDate(ctx, "2025-01-10")
		m["status"], _ = eng.PathsByStatus(ctx, "open")
		m["priority"], _ = eng.PathsByPriority(ctx, "normal")
		m["overdue"], _ = eng.OverduePaths(ctx)
		m["tags"], _ = eng.AllTags(ctx)
		m["contexts"], _ = eng.AllContexts(ctx)
		m["notes"], _ = eng.NotesOnDate(ctx, "2025-01-10")
		return m
	}

	before := snapshot()
	if err := eng.ApplyConfig(ctx, params); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	after := snapshot()

	if !reflect.DeepEqual(before, after) {
		t.Errorf("rebuild changed index contents:\nbefore %v\nafter  %v", before, after)
	}
}

func TestEngine_ConfigChangeReclassifies(t *testing.T) {
	src := newFakeSource(map[string]string{
		"x.md": "---\ntitle: X\ntags: [todo]\ndue: 2020-01-01\n---\n",
	})
	eng, _ := testEngine(t, src, Params{TaskTag: "task"})
	ctx := context.Background()

	overdue, _ := eng.OverduePaths(ctx)
	if len(overdue) != 0 {
		t.Fatalf("overdue = %v, want empty under 'task' marker", overdue)
	}

	if err := eng.ApplyConfig(ctx, Params{TaskTag: "todo"}); err != nil {
		t.Fatal(err)
	}
	overdue, _ = eng.OverduePaths(ctx)
	if !reflect.DeepEqual(overdue, []string{"x.md"}) {
		t.Errorf("overdue = %v, want [x.md] after marker change", overdue)
	}
}

func TestEngine_ExcludedFolders(t *testing.T) {
	src := scenarioSource()
	src.put("templates/t.md", "---\ntitle: T\ntags: [task]\ndue: 2020-01-01\n---\n")
	eng, _ := testEngine(t, src, Params{
		TaskTag:         "task",
		ExcludedFolders: []string{"templates"},
	})
	ctx := context.Background()

	overdue, _ := eng.OverduePaths(ctx)
	if !reflect.DeepEqual(overdue, []string{"a.md"}) {
		t.Errorf("overdue = %v, excluded folder leaked into build", overdue)
	}

	// Incremental events for excluded paths are ignored too.
	eng.Changed("templates/t.md")
	overdue, _ = eng.OverduePaths(ctx)
	if !reflect.DeepEqual(overdue, []string{"a.md"}) {
		t.Errorf("overdue = %v, excluded folder leaked via event", overdue)
	}
}

// The overdue set is re-evaluated on writes, not reads: crossing midnight
// changes nothing until the document's next upsert.
func TestEngine_OverdueRollsOverOnNextWrite(t *testing.T) {
	src := newFakeSource(map[string]string{
		"soon.md": "---\ntitle: Soon\ntags: [task]\ndue: 2025-06-02\n---\n",
	})
	eng, clock := testEngine(t, src, Params{TaskTag: "task"})
	ctx := context.Background()

	overdue, _ := eng.OverduePaths(ctx)
	if len(overdue) != 0 {
		t.Fatalf("overdue = %v, want empty on 2025-06-01", overdue)
	}

	// Midnight passes with no events: membership is unchanged.
	clock.set(time.Date(2025, 6, 3, 0, 30, 0, 0, time.UTC))
	overdue, _ = eng.OverduePaths(ctx)
	if len(overdue) != 0 {
		t.Errorf("overdue = %v, reads must not re-evaluate membership", overdue)
	}

	// The next write re-reads "today" and re-evaluates.
	eng.Changed("soon.md")
	overdue, _ = eng.OverduePaths(ctx)
	if !reflect.DeepEqual(overdue, []string{"soon.md"}) {
		t.Errorf("overdue = %v, want [soon.md] after upsert", overdue)
	}
}

func TestEngine_CompletedStatusLeavesOverdue(t *testing.T) {
	src := scenarioSource()
	eng, _ := testEngine(t, src, Params{TaskTag: "task"})
	ctx := context.Background()

	overdue, _ := eng.OverduePaths(ctx)
	if !reflect.DeepEqual(overdue, []string{"a.md"}) {
		t.Fatalf("overdue = %v", overdue)
	}

	src.put("a.md", "---\ntitle: Task A\ntags: [task]\ndue: 2025-01-10\nstatus: done\n---\n")
	eng.Changed("a.md")

	overdue, _ = eng.OverduePaths(ctx)
	if len(overdue) != 0 {
		t.Errorf("overdue = %v, completed task must leave the set", overdue)
	}
	done, _ := eng.PathsByStatus(ctx, "done")
	if !reflect.DeepEqual(done, []string{"a.md"}) {
		t.Errorf("byStatus(done) = %v", done)
	}
	open, _ := eng.PathsByStatus(ctx, "open")
	for _, p := range open {
		if p == "a.md" {
			t.Error("a.md still in old status bucket")
		}
	}
}

func TestEngine_Callbacks(t *testing.T) {
	src := scenarioSource()

	var mu sync.Mutex
	readyCount := 0
	var events []string

	eng, _ := testEngine(t, src, Params{TaskTag: "task", IndexNotes: true},
		WithOnReady(func() {
			mu.Lock()
			readyCount++
			mu.Unlock()
		}),
		WithOnFileIndexed(func(kind, path string) {
			mu.Lock()
			events = append(events, kind+":"+path)
			mu.Unlock()
		}),
	)
	ctx := context.Background()

	_ = eng.EnsureBuilt(ctx)
	_, _ = eng.AllTags(ctx) // second query must not rebuild

	eng.Changed("b.md")
	eng.Deleted("c.md")
	_ = eng.EnsureBuilt(ctx) // settle queued events

	mu.Lock()
	defer mu.Unlock()
	if readyCount != 1 {
		t.Errorf("ready fired %d times, want 1", readyCount)
	}
	want := []string{"indexed:b.md", "deleted:c.md"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestEngine_RecordForPathRederives(t *testing.T) {
	src := scenarioSource()
	eng, _ := testEngine(t, src, Params{TaskTag: "task", IndexNotes: true})
	ctx := context.Background()

	cls, err := eng.RecordForPath(ctx, "a.md")
	if err != nil {
		t.Fatalf("RecordForPath: %v", err)
	}
	if cls.Kind != KindTask || cls.Task.Due != "2025-01-10" {
		t.Errorf("cls = %+v", cls)
	}

	// A direct lookup reflects the document as it is now, even before any
	// Changed event has been processed for it.
	src.put("a.md", "---\ntitle: Task A\ntags: [task]\nstatus: doing\n---\n")
	cls, err = eng.RecordForPath(ctx, "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if cls.Task == nil || cls.Task.Status != "doing" {
		t.Errorf("record is stale: %+v", cls)
	}

	cls, err = eng.RecordForPath(ctx, "c.md")
	if err != nil || cls.Kind != KindNote {
		t.Errorf("cls = %+v, err = %v", cls, err)
	}

	if _, err := eng.RecordForPath(ctx, "missing.md"); err == nil {
		t.Error("expected error for missing document")
	}
}

// Consistency: at a settled point, each indexed path's re-derived record
// matches exactly the buckets it appears in.
func TestEngine_IndexMatchesRecords(t *testing.T) {
	src := scenarioSource()
	src.put("d.md", "---\ntitle: D\ntags: [task]\nstatus: done\npriority: high\nscheduled: 2025-04-01\n---\n")
	eng, _ := testEngine(t, src, Params{TaskTag: "task", IndexNotes: true})
	ctx := context.Background()

	paths, _ := eng.IndexedPaths(ctx)
	for _, p := range paths {
		cls, err := eng.RecordForPath(ctx, p)
		if err != nil {
			t.Fatalf("RecordForPath(%s): %v", p, err)
		}
		switch cls.Kind {
		case KindTask:
			inStatus, _ := eng.PathsByStatus(ctx, cls.Task.Status)
			if !contains(inStatus, p) {
				t.Errorf("%s missing from status bucket %q", p, cls.Task.Status)
			}
			inPriority, _ := eng.PathsByPriority(ctx, cls.Task.Priority)
			if !contains(inPriority, p) {
				t.Errorf("%s missing from priority bucket %q", p, cls.Task.Priority)
			}
			if cls.Task.Due != "" {
				onDate, _ := eng.TasksOnDate(ctx, cls.Task.Due)
				if !contains(onDate, p) {
					t.Errorf("%s missing from date bucket %q", p, cls.Task.Due)
				}
			}
		case KindNote:
			if cls.Note.Created != "" {
				notes, _ := eng.NotesOnDate(ctx, cls.Note.Created)
				if !contains(notes, p) {
					t.Errorf("%s missing from note date bucket %q", p, cls.Note.Created)
				}
			}
		}
	}
}

func TestEngine_CalendarSummary(t *testing.T) {
	src := scenarioSource()
	eng, _ := testEngine(t, src, Params{TaskTag: "task", IndexNotes: true})
	ctx := context.Background()

	sums, err := eng.CalendarSummary(ctx, 2025, time.January)
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 31 {
		t.Fatalf("len = %d, want 31", len(sums))
	}
	day10 := sums[9]
	if day10.Tasks != 1 || day10.Notes != 1 || day10.Overdue != 1 {
		t.Errorf("day10 = %+v", day10)
	}
}

func TestEngine_BuildYieldsBetweenBatches(t *testing.T) {
	docs := make(map[string]string)
	for _, p := range []string{"1.md", "2.md", "3.md", "4.md", "5.md"} {
		docs[p] = "---\ntitle: t\ntags: [task]\n---\n"
	}
	src := newFakeSource(docs)

	var mu sync.Mutex
	yields := 0
	eng := NewEngine(src, Params{TaskTag: "task", BatchSize: 2},
		WithClock(func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }),
		WithYielder(YielderFunc(func(context.Context) error {
			mu.Lock()
			yields++
			mu.Unlock()
			return nil
		})),
	)
	t.Cleanup(eng.Close)

	if err := eng.EnsureBuilt(context.Background()); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if yields != 2 {
		t.Errorf("yields = %d, want 2 for 5 docs in batches of 2", yields)
	}
}

func TestEngine_CloseUnblocksQueries(t *testing.T) {
	src := scenarioSource()
	eng, _ := testEngine(t, src, Params{TaskTag: "task"})
	eng.Close()

	if _, err := eng.OverduePaths(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func contains(paths []string, p string) bool {
	for _, x := range paths {
		if x == p {
			return true
		}
	}
	return false
}

package metadata

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by engine methods after Close.
var ErrClosed = errors.New("metadata: engine closed")

// Yielder is the cooperative-scheduling primitive the bulk builder invokes
// between batches. Tests inject a synchronous no-op to run builds without
// timing dependencies.
type Yielder interface {
	Yield(ctx context.Context) error
}

// YielderFunc adapts a function to the Yielder interface.
type YielderFunc func(ctx context.Context) error

// Yield calls f.
func (f YielderFunc) Yield(ctx context.Context) error { return f(ctx) }

type goschedYielder struct{}

func (goschedYielder) Yield(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runtime.Gosched()
	return nil
}

// EventCallback is invoked after an incremental index mutation is applied.
// kind is "indexed" or "deleted".
type EventCallback func(kind, path string)

type eventKind int

const (
	evChanged eventKind = iota
	evDeleted
	evRenamed
)

type docEvent struct {
	kind    eventKind
	path    string
	newPath string // renames only
}

type execReq struct {
	fn   func(*indexStore)
	done chan struct{}
}

type resetReq struct {
	params Params
	done   chan struct{}
}

// Engine owns the derived metadata indexes for a document collection.
//
// Concurrency model: a single event loop (goroutine) exclusively owns the
// index store. Document lifecycle events, configuration resets, and queries
// all flow through channels, so each handler's retract-then-reinsert sequence
// runs to completion before the next is dispatched — no locks, no torn
// updates. The first query triggers a lazy bulk build that walks the whole
// collection in batches, yielding between batches.
type Engine struct {
	source Source
	logger *slog.Logger
	now    func() time.Time
	yield  Yielder

	onReady   func()
	onIndexed EventCallback

	eventCh chan docEvent
	execCh  chan execReq
	resetCh chan resetReq
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the run loop; never touched from other goroutines.
	st        *indexStore
	params    Params
	extractor *Extractor
	built     bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithClock injects the clock used to evaluate "today" for the overdue
// predicate. The clock is read fresh on every mutation, never cached.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithYielder injects the bulk builder's cooperative yield primitive.
func WithYielder(y Yielder) EngineOption {
	return func(e *Engine) { e.yield = y }
}

// WithOnReady registers a callback fired once when the bulk build completes.
func WithOnReady(fn func()) EngineOption {
	return func(e *Engine) { e.onReady = fn }
}

// WithOnFileIndexed registers a callback fired after each per-document
// incremental update is applied.
func WithOnFileIndexed(cb EventCallback) EngineOption {
	return func(e *Engine) { e.onIndexed = cb }
}

// NewEngine creates an engine over the given document source and starts its
// event loop. The loop does not index anything until the first query arrives.
func NewEngine(source Source, params Params, opts ...EngineOption) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		source:  source,
		logger:  slog.Default(),
		now:     time.Now,
		yield:   goschedYielder{},
		eventCh: make(chan docEvent, 256),
		execCh:  make(chan execReq),
		resetCh: make(chan resetReq),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		st:      newIndexStore(),
		params:  params.withDefaults(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.extractor = NewExtractor(e.params)

	go e.run()
	return e
}

// Close stops the event loop. Pending queries return ErrClosed.
func (e *Engine) Close() {
	if e.closed.CompareAndSwap(false, true) {
		e.cancel()
		close(e.stopCh)
	}
	<-e.stopped
}

func (e *Engine) run() {
	defer close(e.stopped)

	for {
		select {
		case <-e.stopCh:
			return

		case ev := <-e.eventCh:
			e.handleEvent(ev)

		case req := <-e.execCh:
			e.ensureBuilt()
			// Apply events enqueued before the query so callers read
			// their own writes.
			e.drainEvents()
			req.fn(e.st)
			close(req.done)

		case req := <-e.resetCh:
			e.params = req.params.withDefaults()
			e.extractor = NewExtractor(e.params)
			e.st.clear()
			e.built = false
			close(req.done)
		}
	}
}

// ensureBuilt runs the lazy bulk build exactly once per built-flag cycle.
// Documents are applied in batches with a cooperative yield between batches;
// incremental events that arrive during the build are drained at each yield
// point (upserts are idempotent, so double application is harmless).
func (e *Engine) ensureBuilt() {
	if e.built {
		return
	}

	paths, err := e.source.List()
	if err != nil {
		e.logger.Warn("metadata: list documents failed", slog.String("error", err.Error()))
	}

	inBatch := 0
	for _, p := range paths {
		if e.params.excludes(p) {
			continue
		}
		e.applyDocument(p)
		inBatch++
		if inBatch >= e.params.BatchSize {
			inBatch = 0
			if yerr := e.yield.Yield(e.ctx); yerr != nil {
				return
			}
			e.drainEvents()
		}
	}

	e.built = true
	e.logger.Debug("metadata: bulk build complete", slog.Int("indexed", len(e.st.seen)))
	if e.onReady != nil {
		e.onReady()
	}
}

// drainEvents applies any queued document events without blocking.
func (e *Engine) drainEvents() {
	for {
		select {
		case ev := <-e.eventCh:
			e.handleEvent(ev)
		default:
			return
		}
	}
}

func (e *Engine) handleEvent(ev docEvent) {
	switch ev.kind {
	case evDeleted:
		e.st.retract(ev.path)
		e.notify("deleted", ev.path)

	case evChanged:
		e.applyDocument(ev.path)
		e.notify("indexed", ev.path)

	case evRenamed:
		// Retract + reinsert rather than rename-in-place: the bucket
		// memberships are recomputed, which is simpler and still correct.
		e.st.retract(ev.path)
		e.applyDocument(ev.newPath)
		e.notify("indexed", ev.newPath)
	}
}

func (e *Engine) notify(kind, path string) {
	if e.onIndexed != nil {
		e.onIndexed(kind, path)
	}
}

// applyDocument re-derives a single document's records and replaces its index
// memberships. The initial retract runs before the read that might fail, so
// a read or parse failure leaves the document absent from the indexes rather
// than present with stale state.
func (e *Engine) applyDocument(path string) {
	e.st.retract(path)

	if e.params.excludes(path) {
		return
	}

	h, err := e.source.Header(path)
	if err != nil {
		e.logger.Warn("metadata: read header failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	var stat FileStat
	if st, serr := e.source.Stat(path); serr == nil {
		stat = st
	}

	cls := e.extractor.Classify(path, h, stat)
	switch cls.Kind {
	case KindTask:
		e.st.upsertTask(cls.Task, dayKey(e.now()), e.extractor.CompletedStatuses())
	case KindNote:
		e.st.upsertNote(cls.Note)
	case KindNone:
		// Already retracted above; nothing to insert.
	}
}

// Changed notifies the engine that the document at path was created or its
// content changed.
func (e *Engine) Changed(path string) {
	e.send(docEvent{kind: evChanged, path: path})
}

// Deleted notifies the engine that the document at path is gone. The engine
// never attempts to read it.
func (e *Engine) Deleted(path string) {
	e.send(docEvent{kind: evDeleted, path: path})
}

// Renamed notifies the engine that a document moved from oldPath to newPath.
func (e *Engine) Renamed(oldPath, newPath string) {
	e.send(docEvent{kind: evRenamed, path: oldPath, newPath: newPath})
}

func (e *Engine) send(ev docEvent) {
	select {
	case e.eventCh <- ev:
	case <-e.stopped:
	}
}

// exec runs fn inside the event loop after ensuring the bulk build has run.
func (e *Engine) exec(ctx context.Context, fn func(*indexStore)) error {
	req := execReq{fn: fn, done: make(chan struct{})}
	select {
	case e.execCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrClosed
	}
	select {
	case <-req.done:
		return nil
	case <-e.stopped:
		return ErrClosed
	}
}

// EnsureBuilt triggers the lazy bulk build (if it has not run yet) and waits
// for it to complete.
func (e *Engine) EnsureBuilt(ctx context.Context) error {
	return e.exec(ctx, func(*indexStore) {})
}

// TasksOnDate returns the task paths dated (due or scheduled) on the given
// date key, as a sorted snapshot.
func (e *Engine) TasksOnDate(ctx context.Context, date string) ([]string, error) {
	var out []string
	err := e.exec(ctx, func(s *indexStore) { out = s.tasksOn(date) })
	return out, err
}

// NotesOnDate returns the note paths created on the given date key.
func (e *Engine) NotesOnDate(ctx context.Context, date string) ([]string, error) {
	var out []string
	err := e.exec(ctx, func(s *indexStore) { out = s.notesOn(date) })
	return out, err
}

// PathsByStatus returns the task paths currently in the given status bucket.
func (e *Engine) PathsByStatus(ctx context.Context, status string) ([]string, error) {
	var out []string
	err := e.exec(ctx, func(s *indexStore) { out = s.statusPaths(status) })
	return out, err
}

// PathsByPriority returns the task paths in the given priority bucket.
func (e *Engine) PathsByPriority(ctx context.Context, priority string) ([]string, error) {
	var out []string
	err := e.exec(ctx, func(s *indexStore) { out = s.priorityPaths(priority) })
	return out, err
}

// OverduePaths returns the paths of tasks that were overdue as of the last
// index mutation. Membership is re-evaluated on every write, not on reads, so
// a task crossing midnight only moves into the set on its next upsert.
func (e *Engine) OverduePaths(ctx context.Context) ([]string, error) {
	var out []string
	err := e.exec(ctx, func(s *indexStore) { out = s.overduePaths() })
	return out, err
}

// AllTags returns the union of all tags seen across task and note records.
func (e *Engine) AllTags(ctx context.Context) ([]string, error) {
	var out []string
	err := e.exec(ctx, func(s *indexStore) { out = s.allTags() })
	return out, err
}

// AllContexts returns the union of all contexts seen across task records.
func (e *Engine) AllContexts(ctx context.Context) ([]string, error) {
	var out []string
	err := e.exec(ctx, func(s *indexStore) { out = s.allContexts() })
	return out, err
}

// IndexedPaths returns every path present in any index.
func (e *Engine) IndexedPaths(ctx context.Context) ([]string, error) {
	var out []string
	err := e.exec(ctx, func(s *indexStore) { out = s.indexedPaths() })
	return out, err
}

// CalendarSummary aggregates per-day task/note/overdue counts for one month.
func (e *Engine) CalendarSummary(ctx context.Context, year int, month time.Month) ([]DaySummary, error) {
	var out []DaySummary
	err := e.exec(ctx, func(s *indexStore) { out = s.calendar(year, month) })
	return out, err
}

// RecordForPath classifies the document at path by re-reading it, bypassing
// the indexes entirely: a single-document lookup is cheap and must never
// serve stale index state.
func (e *Engine) RecordForPath(ctx context.Context, path string) (Classification, error) {
	var (
		ex       *Extractor
		excluded bool
	)
	if err := e.exec(ctx, func(*indexStore) {
		ex = e.extractor
		excluded = e.params.excludes(path)
	}); err != nil {
		return Classification{}, err
	}
	if excluded {
		return Classification{Kind: KindNone}, nil
	}

	h, err := e.source.Header(path)
	if err != nil {
		return Classification{}, err
	}
	var stat FileStat
	if st, serr := e.source.Stat(path); serr == nil {
		stat = st
	}
	return ex.Classify(path, h, stat), nil
}

// ApplyConfig synchronously clears every index, installs the new params, and
// resets the built flag; the next query triggers a fresh bulk build.
func (e *Engine) ApplyConfig(ctx context.Context, params Params) error {
	req := resetReq{params: params, done: make(chan struct{})}
	select {
	case e.resetCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrClosed
	}
	select {
	case <-req.done:
		return nil
	case <-e.stopped:
		return ErrClosed
	}
}

package router

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/prism/internal/augmenter"
	"github.com/antigravity-dev/prism/internal/board"
	"github.com/antigravity-dev/prism/internal/injector"
	"github.com/antigravity-dev/prism/internal/logging"
	"github.com/antigravity-dev/prism/internal/ranker"
	"github.com/antigravity-dev/prism/internal/store"
)

// defaultJanitorInterval is how often the worker pool's key registry is
// swept for idle locks.
const defaultJanitorInterval = 10 * time.Minute

// Deps bundles everything the Router's handlers need to act on an event.
type Deps struct {
	Store       *store.Store
	Board       board.Client
	Weights     ranker.Weights
	ProjectTags []string
	ProjectRoot string

	PerTaskBudget     int
	CurrentTaskBudget int

	// OnMemoryCaptureRequested fires for the any -> done transition; actual
	// memory-capture handling lives outside the Router's scope.
	OnMemoryCaptureRequested func(projectID, boardTaskID string)
}

// Router wires the webhook listener, the file watcher, and the worker pool
// together and implements the transitions of interest from spec.md §4.6.
type Router struct {
	pool        *Pool
	watcher     *FileWatcher
	deps        Deps
	janitorStop chan struct{}
}

// New builds a Router. Call Handler to mount the webhook, WatchSpecsDir to
// start the file watcher, and Start to launch the worker pool and janitor.
func New(deps Deps, workers, queueCapacity int) *Router {
	rt := &Router{deps: deps, janitorStop: make(chan struct{})}
	rt.pool = NewPool(workers, queueCapacity, rt.dispatch)
	return rt
}

// Handler returns the webhook HTTP handler, ready to mount at the
// configured webhook path.
func (rt *Router) Handler() http.Handler {
	return WebhookHandler(rt.pool)
}

// WatchSpecsDir starts a FileWatcher over dir with the given debounce,
// routing settled paths into the same pool as webhook events — sharing the
// pool means a file path and a board key never collide as the same key, so
// there's no need to distinguish their registries.
func (rt *Router) WatchSpecsDir(dir string, debounce time.Duration) error {
	w, err := NewFileWatcher(dir, debounce, func(path string) {
		seq := rt.pool.NextSequence(path)
		rt.pool.Submit(Event{ID: uuid.NewString(), Key: path, Sequence: seq, FilePath: path})
	})
	if err != nil {
		return err
	}
	rt.watcher = w
	return w.Start()
}

// Start launches the worker pool and the key-registry janitor.
func (rt *Router) Start(ctx context.Context) {
	rt.pool.Start(ctx)
	go rt.runJanitor()
}

// Stop ends the file watcher, the janitor, and drains the worker pool.
func (rt *Router) Stop() {
	close(rt.janitorStop)
	if rt.watcher != nil {
		rt.watcher.Stop()
	}
	rt.pool.Stop()
}

// Submit enqueues an explicit board event, the CLI-invocation path into the
// same pool the webhook and file watcher use (spec.md §4.6's "explicit CLI
// invocation" source).
func (rt *Router) Submit(ev BoardEvent) bool {
	key := eventKey(ev.ProjectID, ev.BoardID)
	seq := rt.pool.NextSequence(key)
	return rt.pool.Submit(Event{ID: uuid.NewString(), Key: key, Sequence: seq, Board: &ev})
}

func (rt *Router) runJanitor() {
	ticker := time.NewTicker(defaultJanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rt.janitorStop:
			return
		case <-ticker.C:
			if n := rt.pool.Janitor(defaultJanitorInterval); n > 0 {
				logging.RouterDebug("router: janitor reclaimed %d idle key locks", n)
			}
		}
	}
}

func (rt *Router) dispatch(ctx context.Context, ev Event) error {
	if ev.FilePath != "" {
		return augmenter.Augment(ctx, rt.deps.Store, ev.FilePath, rt.deps.ProjectTags, rt.deps.Weights, rt.deps.PerTaskBudget, false)
	}
	return rt.dispatchBoardEvent(ctx, ev.Board)
}

func (rt *Router) dispatchBoardEvent(ctx context.Context, ev *BoardEvent) error {
	switch ev.EventType {
	case EventTaskCreated:
		logging.Router("dispatch: task_created for project=%s board=%s, no action required", ev.ProjectID, ev.BoardID)
		return nil
	case EventTaskDeleted:
		logging.Router("dispatch: task_deleted for project=%s board=%s, no action required", ev.ProjectID, ev.BoardID)
		return nil
	}

	switch ev.ToColumn {
	case "in-progress":
		return rt.handleInProgress(ctx, ev)
	case "done":
		if rt.deps.OnMemoryCaptureRequested != nil {
			rt.deps.OnMemoryCaptureRequested(ev.ProjectID, ev.BoardID)
		}
		logging.Router("dispatch: memory-capture requested for project=%s board_task=%s", ev.ProjectID, ev.BoardID)
		return nil
	default:
		logging.RouterDebug("dispatch: ignoring transition to column %q for board_task=%s", ev.ToColumn, ev.BoardID)
		return nil
	}
}

func (rt *Router) handleInProgress(ctx context.Context, ev *BoardEvent) error {
	task, err := rt.deps.Board.GetTask(ctx, ev.BoardID)
	if err != nil {
		return err
	}

	q := ranker.Query{Text: task.Title + "\n" + task.Body, Tags: rt.deps.ProjectTags}
	entries, err := ranker.Rank(ctx, rt.deps.Store, q, rt.deps.Weights)
	if err != nil {
		return err
	}

	budget := rt.deps.CurrentTaskBudget
	if budget <= 0 {
		budget = DefaultCurrentTaskBudget
	}
	packed := injector.Pack(entries, budget)

	content := renderCurrentTask(task, packed)
	path := CurrentTaskPath(rt.deps.ProjectRoot)
	if err := writeCurrentTask(path, content); err != nil {
		return err
	}

	logging.Router("dispatch: wrote %s for board_task=%s (%d skills)", path, ev.BoardID, len(packed))
	return nil
}

package router

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/antigravity-dev/prism/internal/logging"
)

// Pool is the Event Router's worker pool (spec.md §4.6): events submitted
// via Submit are dispatched to a process function by a fixed number of
// workers, serialized per key through a keyRegistry, and superseded by
// sequence number so a burst of events for the same key only actually runs
// the handler for the latest one.
type Pool struct {
	queue    chan Event
	workers  int
	registry *keyRegistry
	process  func(context.Context, Event) error

	seqMu     sync.Mutex
	latestSeq map[string]uint64
	nextSeq   uint64

	group *errgroup.Group
}

// NewPool builds a pool with the given worker count and queue capacity,
// dispatching accepted events to process.
func NewPool(workers, capacity int, process func(context.Context, Event) error) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{
		queue:     make(chan Event, capacity),
		workers:   workers,
		registry:  newKeyRegistry(),
		process:   process,
		latestSeq: make(map[string]uint64),
	}
}

// NextSequence returns a fresh, monotonically increasing sequence number
// for key and records it as the latest seen. Call this when an event is
// accepted (webhook received, file-watcher debounce settled), before
// Submit, so supersession is decided by acceptance order rather than queue
// or processing order.
func (p *Pool) NextSequence(key string) uint64 {
	p.seqMu.Lock()
	defer p.seqMu.Unlock()
	p.nextSeq++
	p.latestSeq[key] = p.nextSeq
	return p.nextSeq
}

// Submit enqueues ev, returning false if the queue is full — the caller
// (typically the webhook handler) surfaces that as backpressure.
func (p *Pool) Submit(ev Event) bool {
	select {
	case p.queue <- ev:
		return true
	default:
		return false
	}
}

// Start launches the worker goroutines. ctx cancellation does not drain the
// queue; call Stop for a graceful shutdown that processes everything
// already queued.
func (p *Pool) Start(ctx context.Context) {
	p.group = new(errgroup.Group)
	for i := 0; i < p.workers; i++ {
		p.group.Go(func() error {
			p.worker(ctx)
			return nil
		})
	}
}

// Stop closes the queue and waits for in-flight and already-queued events
// to finish processing.
func (p *Pool) Stop() {
	close(p.queue)
	if p.group != nil {
		p.group.Wait()
	}
}

// Janitor reclaims idle per-key locks; callers should invoke this
// periodically (e.g. from a time.Ticker).
func (p *Pool) Janitor(ttl time.Duration) int {
	return p.registry.janitor(ttl)
}

func (p *Pool) worker(ctx context.Context) {
	for ev := range p.queue {
		p.handle(ctx, ev)
	}
}

func (p *Pool) handle(ctx context.Context, ev Event) {
	if p.superseded(ev) {
		logging.RouterDebug("pool: event %s (seq %d) for key %s superseded before processing, skipping", ev.ID, ev.Sequence, ev.Key)
		return
	}

	kl := p.registry.acquire(ev.Key)
	defer p.registry.release(ev.Key, kl)

	if p.superseded(ev) {
		logging.RouterDebug("pool: event %s (seq %d) for key %s superseded while waiting for its lock, skipping", ev.ID, ev.Sequence, ev.Key)
		return
	}

	if err := p.process(ctx, ev); err != nil {
		logging.Get(logging.CategoryRouter).Error("pool: handler %s for key %s failed: %v", ev.ID, ev.Key, err)
	}
}

func (p *Pool) superseded(ev Event) bool {
	p.seqMu.Lock()
	defer p.seqMu.Unlock()
	return ev.Sequence < p.latestSeq[ev.Key]
}

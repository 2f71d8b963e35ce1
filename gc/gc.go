// Package gc implements the deferred-delete queue and awake/asleep
// thread registry described in spec.md §5: every goroutine that may
// still be dereferencing an entity obtained from the entity index
// must announce itself "awake" before doing so and "asleep" before it
// next blocks, so a delete request enqueued while it held a reference
// is not completed until it is known to have let go.
//
// Go's runtime already reclaims the entity's memory; what this package
// guarantees is ordering — that a request's callback (closing a
// reader's delivery channel, releasing a GUID back to the allocator,
// running the application's on_data_available side effects one last
// time) never runs concurrently with code still acting on the stale
// reference.
package gc

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Token is a single goroutine's awake/asleep flag, obtained from a
// Registry. The low bit of the packed state is the awake flag; the
// remaining bits are a generation counter bumped on every transition to
// awake, so a goroutine that went asleep and woke again after a
// snapshot was taken is distinguishable from one that never moved.
type Token struct {
	state atomic.Uint64
}

// Awake marks the calling goroutine as holding (or about to take) a raw
// reference obtained from the entity index. Must be paired with Asleep
// before the goroutine next blocks on external I/O.
func (t *Token) Awake() {
	for {
		old := t.state.Load()
		next := old | 1
		if old&1 == 0 {
			next = ((old>>1)+1)<<1 | 1
		}
		if t.state.CompareAndSwap(old, next) {
			return
		}
	}
}

// Asleep marks the calling goroutine as no longer holding any raw
// entity reference.
func (t *Token) Asleep() {
	for {
		old := t.state.Load()
		next := old &^ 1
		if t.state.CompareAndSwap(old, next) {
			return
		}
	}
}

func (t *Token) snapshot() uint64 { return t.state.Load() }

func quiesced(snapshot, current uint64) bool {
	if current&1 == 0 {
		return true
	}
	return current>>1 != snapshot>>1
}

// Registry is the process-wide set of tokens the GC must watch. A
// goroutine that walks the entity index registers one token for its
// lifetime. No goroutine in the participant, matching or reliability
// packages registers a token.
type Registry struct {
	mu     sync.Mutex
	tokens map[*Token]struct{}
}

// NewRegistry returns an empty thread registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[*Token]struct{})}
}

// Register adds a new token to the registry. The caller keeps the
// returned token for the lifetime of the goroutine and calls
// Unregister when it exits.
func (r *Registry) Register() *Token {
	t := &Token{}
	r.mu.Lock()
	r.tokens[t] = struct{}{}
	r.mu.Unlock()
	return t
}

// Unregister removes a token, e.g. when its goroutine is shutting down.
func (r *Registry) Unregister(t *Token) {
	r.mu.Lock()
	delete(r.tokens, t)
	r.mu.Unlock()
}

// snapshotAwake returns the set of currently-awake tokens together with
// their generation at the time of the call — the set a pending delete
// request must wait to see quiesce.
func (r *Registry) snapshotAwake() map[*Token]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := make(map[*Token]uint64, len(r.tokens))
	for t := range r.tokens {
		if s := t.snapshot(); s&1 != 0 {
			snap[t] = s
		}
	}
	return snap
}

// request is one entry of the deferred-delete queue.
type request struct {
	fn   func()
	snap map[*Token]uint64
}

// GC drains deferred-delete requests in FIFO order once every goroutine
// that was awake at enqueue time has become asleep at least once
// (spec.md §5, invariant 6).
type GC struct {
	registry *Registry
	log      *zap.SugaredLogger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []request
	closed  bool
}

// New returns a GC watching registry's tokens. Call Run in its own
// goroutine to start draining requests.
func New(registry *Registry, log *zap.SugaredLogger) *GC {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	g := &GC{registry: registry, log: log}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Enqueue schedules fn to run once every goroutine currently awake has
// gone back to sleep. fn runs on the GC's own goroutine, never
// concurrently with another queued fn, and strictly after every request
// enqueued before it (spec.md §5, "single-thread queue ... FIFO order").
func (g *GC) Enqueue(fn func()) {
	req := request{fn: fn, snap: g.registry.snapshotAwake()}

	g.mu.Lock()
	g.pending = append(g.pending, req)
	g.mu.Unlock()
	g.cond.Signal()
}

// Run drains the queue until ctx is cancelled or Close is called.
// Intended to be run as one goroutine in the participant's errgroup.
func (g *GC) Run(ctx context.Context) error {
	g.log.Info("running gc")
	defer g.log.Info("stopped gc")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			g.Close()
		case <-stop:
		}
	}()

	for {
		g.mu.Lock()
		for len(g.pending) == 0 && !g.closed {
			g.cond.Wait()
		}
		if len(g.pending) == 0 && g.closed {
			g.mu.Unlock()
			return ctx.Err()
		}
		req := g.pending[0]
		g.mu.Unlock()

		if len(req.snap) > 0 {
			g.log.Debugw("awaiting quiescence", zap.Int("watched", len(req.snap)))
			g.awaitQuiescence(req.snap)
		}

		req.fn()

		g.mu.Lock()
		g.pending = g.pending[1:]
		g.mu.Unlock()
	}
}

// awaitQuiescence busy-polls with a cooperative yield until every token
// in snap has quiesced. Requests are rare relative to steady-state
// traffic (entity teardown, not per-sample), so a poll loop is simpler
// and cheap enough to avoid plumbing a condition variable through every
// awake/asleep transition on the hot path.
func (g *GC) awaitQuiescence(snap map[*Token]uint64) {
	remaining := make(map[*Token]uint64, len(snap))
	for t, s := range snap {
		remaining[t] = s
	}
	for len(remaining) > 0 {
		for t, s := range remaining {
			if quiesced(s, t.snapshot()) {
				delete(remaining, t)
			}
		}
		if len(remaining) > 0 {
			runtime.Gosched()
		}
	}
}

// Close stops Run once the queue drains; already-enqueued requests still
// run in order.
func (g *GC) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cond.Broadcast()
}

package guid

import "sync"

// Stride is the increment between successive user entity-id counters
// allocated by a single participant. Spacing allocations by a fixed
// stride, per spec.md §3.1, lets the allocator reclaim a deleted
// entity's identifier range without colliding with an identifier that
// was concurrently handed out from the same free counter.
const Stride = 4

// Allocator hands out EntityId values for user-created writers and readers
// from a per-participant inverse-set: a monotonically increasing counter,
// plus a free list of previously-released counters available for reuse.
//
// It is safe for concurrent use.
type Allocator struct {
	mu      sync.Mutex
	next    uint32
	freed   []uint32
}

// NewAllocator returns an allocator whose first allocation starts at
// counter 1 (0 is reserved for the participant's own entity id).
func NewAllocator() *Allocator {
	return &Allocator{next: 1}
}

// Alloc returns a fresh EntityId of the given kind. Released counters are
// reused before the monotonic counter is advanced, bounding steady-state
// growth of the counter space for long-lived participants that churn
// writers and readers.
func (a *Allocator) Alloc(kind EntityKind) EntityId {
	a.mu.Lock()
	defer a.mu.Unlock()

	var counter uint32
	if n := len(a.freed); n > 0 {
		counter = a.freed[n-1]
		a.freed = a.freed[:n-1]
	} else {
		counter = a.next
		a.next += Stride
	}

	return NewEntityId(counter, kind)
}

// Free releases the counter backing id for reuse by a later Alloc call.
// Callers must not free an id that is still referenced anywhere (match
// trees, in-flight heartbeats); the garbage collector in package gc
// guarantees that by the time Free runs here.
func (a *Allocator) Free(id EntityId) {
	var packed uint32
	for i := 0; i < 3; i++ {
		packed = packed<<8 | uint32(id[i])
	}
	counter := packed

	a.mu.Lock()
	a.freed = append(a.freed, counter)
	a.mu.Unlock()
}

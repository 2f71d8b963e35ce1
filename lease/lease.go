// Package lease implements the expiry-ordered liveliness scheduler
// described in spec.md §3.8/§9: a lease record (expiry, duration, owning
// entity) kept in a heap keyed by expiry, with the current minimum
// republished as an atomically-swappable "representative lease" so a
// background thread can poll it without taking the heap's lock on every
// tick.
package lease

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/godds/core/guid"
)

// Lease is a single expiry-stamped heap entry governing one entity's
// liveliness (spec.md glossary, "Lease"). Renewal pushes Expiry forward.
type Lease struct {
	Entity   guid.GUID
	Duration time.Duration
	Expiry   time.Time

	generation uint64
}

// Queue is one heap of leases — a participant keeps two, one for
// AUTOMATIC liveliness and one for MANUAL_BY_PARTICIPANT (spec.md §3.8:
// "Two lease heaps are maintained per participant"). It is a pairing
// heap ordered by Expiry, with its minimum republished as an
// atomic.Pointer so callers can Peek without locking.
type Queue struct {
	mu   sync.Mutex
	root *pnode
	gen  map[guid.GUID]uint64

	min atomic.Pointer[Lease]
}

// NewQueue returns an empty lease queue.
func NewQueue() *Queue {
	return &Queue{gen: make(map[guid.GUID]uint64)}
}

// Add inserts a fresh lease for entity, expiring duration after now, and
// returns it. If entity already held a lease in this queue, the old one
// is superseded (see Renew).
func (q *Queue) Add(entity guid.GUID, duration time.Duration, now time.Time) *Lease {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.addLocked(entity, duration, now)
}

func (q *Queue) addLocked(entity guid.GUID, duration time.Duration, now time.Time) *Lease {
	q.gen[entity]++
	l := &Lease{Entity: entity, Duration: duration, Expiry: now.Add(duration), generation: q.gen[entity]}
	q.root = merge(q.root, &pnode{lease: l})
	q.publishMinLocked()
	return l
}

// Renew pushes entity's lease forward to expire duration after now. The
// heap node backing the previous deadline is left in place and marked
// stale via the per-entity generation counter rather than updated
// in-place: a pairing heap (like the Fibonacci heap spec.md describes)
// has no efficient increase-key, and renewal always moves Expiry later,
// so lazy invalidation at pop time is cheaper than a real decrease/
// increase-key operation.
func (q *Queue) Renew(entity guid.GUID, duration time.Duration, now time.Time) *Lease {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.addLocked(entity, duration, now)
}

// Cancel invalidates entity's current lease, e.g. on deletion. Its node
// is not unlinked from the heap; it is discarded lazily the next time it
// would otherwise have fired.
func (q *Queue) Cancel(entity guid.GUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gen[entity]++
	q.publishMinLocked()
}

// publishMinLocked must be called with mu held. It discards stale roots
// until it finds the live minimum, or the heap empties, and republishes
// the representative pointer.
func (q *Queue) publishMinLocked() {
	for q.root != nil {
		l := q.root.lease
		if l.generation == q.gen[l.Entity] {
			q.min.Store(l)
			return
		}
		q.root = deleteMin(q.root)
	}
	q.min.Store(nil)
}

// Peek returns the current representative minimum lease, or nil if the
// queue holds no live lease. This is the fast path a lease thread polls
// every tick, touching only the atomic pointer.
func (q *Queue) Peek() *Lease {
	return q.min.Load()
}

// PopExpired removes and returns, in ascending expiry order, every lease
// whose deadline is at or before now. Leases superseded by a later Renew
// or Cancel are silently dropped rather than returned.
func (q *Queue) PopExpired(now time.Time) []*Lease {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expired []*Lease
	for q.root != nil {
		l := q.root.lease
		if l.generation != q.gen[l.Entity] {
			q.root = deleteMin(q.root)
			continue
		}
		if l.Expiry.After(now) {
			break
		}
		q.root = deleteMin(q.root)
		expired = append(expired, l)
	}
	q.publishMinLocked()
	return expired
}

package reliability

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrThrottleTimedOut is returned when a write blocks past its
// RELIABILITY::max_blocking_time deadline without being released
// (spec.md §4.3, "Throttling").
var ErrThrottleTimedOut = errors.New("reliability: write blocked past max_blocking_time")

// ErrWriterDeleted is returned to a throttled write unblocked by the
// writer's deletion (spec.md §5, "Writer deletion unblocks throttled
// writes via INTERRUPT").
var ErrWriterDeleted = errors.New("reliability: writer deleted while write was throttled")

// Throttle implements spec.md §4.3's write-blocking rule: write blocks
// in throttle_writer when unacked_bytes > whc_high, forcing out a
// heartbeat to hasten acks, then waiting until either unacked_bytes
// drops back under the high-water mark, the writer is deleted, or
// max_blocking_time elapses.
type Throttle struct {
	highWater int64

	mu       sync.Mutex
	deleted  bool
	notifyCh chan struct{}
}

// NewThrottle returns a throttle gating writes at highWater unacked
// bytes.
func NewThrottle(highWater int64) *Throttle {
	return &Throttle{highWater: highWater, notifyCh: make(chan struct{})}
}

// Wait blocks the caller while unackedBytes() exceeds the high-water
// mark, invoking forceHeartbeat once on entry (spec.md §4.3: "the
// writer forces out a heartbeat to hasten acks"). It returns nil once
// unblocked normally, ErrWriterDeleted if the writer was deleted while
// waiting, ErrThrottleTimedOut if maxBlockingTime elapses first, or
// ctx.Err() if ctx is cancelled first.
func (t *Throttle) Wait(ctx context.Context, maxBlockingTime time.Duration, unackedBytes func() int64, forceHeartbeat func()) error {
	if t.deletedNow() {
		return ErrWriterDeleted
	}
	if unackedBytes() <= t.highWater {
		return nil
	}

	forceHeartbeat()

	deadline := time.NewTimer(maxBlockingTime)
	defer deadline.Stop()

	for {
		t.mu.Lock()
		ch := t.notifyCh
		deleted := t.deleted
		t.mu.Unlock()

		if deleted {
			return ErrWriterDeleted
		}
		if unackedBytes() <= t.highWater {
			return nil
		}

		select {
		case <-ch:
			// re-check conditions on the next loop iteration
		case <-deadline.C:
			return ErrThrottleTimedOut
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *Throttle) deletedNow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleted
}

// Notify wakes every blocked write to re-check unackedBytes, e.g. after
// processing an acknack that advances the writer's max_drop_seq.
func (t *Throttle) Notify() {
	t.mu.Lock()
	defer t.mu.Unlock()
	close(t.notifyCh)
	t.notifyCh = make(chan struct{})
}

// Delete marks the throttle's writer as deleted, unblocking every
// current and future Wait call with ErrWriterDeleted (spec.md §5,
// "INTERRUPT").
func (t *Throttle) Delete() {
	t.mu.Lock()
	t.deleted = true
	close(t.notifyCh)
	t.notifyCh = make(chan struct{})
	t.mu.Unlock()
}

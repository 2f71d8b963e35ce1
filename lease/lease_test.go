package lease

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godds/core/guid"
)

func entity(n uint32) guid.GUID {
	return guid.GUID{EntityId: guid.NewEntityId(n, guid.KindWriterWithKey)}
}

func TestQueuePeekReflectsEarliestLease(t *testing.T) {
	q := NewQueue()
	base := time.Now()

	q.Add(entity(1), 5*time.Second, base)
	l2 := q.Add(entity(2), time.Second, base)
	q.Add(entity(3), 10*time.Second, base)

	min := q.Peek()
	require.NotNil(t, min)
	assert.Equal(t, l2.Entity, min.Entity)
}

func TestRenewSupersedesEarlierDeadline(t *testing.T) {
	q := NewQueue()
	base := time.Now()

	e := entity(1)
	q.Add(e, time.Second, base)
	q.Add(entity(2), time.Hour, base)

	q.Renew(e, time.Hour, base)

	expired := q.PopExpired(base.Add(2 * time.Second))
	assert.Empty(t, expired, "the stale pre-renewal deadline must not fire")
}

func TestCancelSuppressesFutureExpiry(t *testing.T) {
	q := NewQueue()
	base := time.Now()

	e := entity(1)
	q.Add(e, time.Second, base)
	q.Cancel(e)

	expired := q.PopExpired(base.Add(2 * time.Second))
	assert.Empty(t, expired)
	assert.Nil(t, q.Peek())
}

func TestPopExpiredReturnsAscendingOrder(t *testing.T) {
	q := NewQueue()
	base := time.Now()

	q.Add(entity(1), 3*time.Second, base)
	q.Add(entity(2), time.Second, base)
	q.Add(entity(3), 2*time.Second, base)

	expired := q.PopExpired(base.Add(10 * time.Second))
	require.Len(t, expired, 3)
	assert.Equal(t, entity(2), expired[0].Entity)
	assert.Equal(t, entity(3), expired[1].Entity)
	assert.Equal(t, entity(1), expired[2].Entity)
}

func TestPopExpiredLeavesUnexpiredLeasesQueryable(t *testing.T) {
	q := NewQueue()
	base := time.Now()

	q.Add(entity(1), time.Second, base)
	q.Add(entity(2), time.Hour, base)

	expired := q.PopExpired(base.Add(2 * time.Second))
	require.Len(t, expired, 1)

	min := q.Peek()
	require.NotNil(t, min)
	assert.Equal(t, entity(2), min.Entity)
}

// TestSchedulerFiresInOrder exercises spec.md §8 Scenario 6: a lease
// thread that fires past its deadline delivers exactly one callback per
// expired lease, in expiry order, with no duplicates.
func TestSchedulerFiresInOrder(t *testing.T) {
	automatic := NewQueue()
	manual := NewQueue()
	base := time.Now()

	automatic.Add(entity(1), 20*time.Millisecond, base)
	manual.Add(entity(2), 30*time.Millisecond, base)

	var mu sync.Mutex
	var fired []guid.GUID
	onFire := func(l *Lease) {
		mu.Lock()
		fired = append(fired, l.Entity)
		mu.Unlock()
	}

	sched := NewScheduler(automatic, manual, onFire, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = sched.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fired, 2)
	assert.Equal(t, entity(1), fired[0])
	assert.Equal(t, entity(2), fired[1])
}

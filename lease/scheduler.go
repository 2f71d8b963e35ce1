package lease

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// FireFunc is invoked once per expired lease, on the Scheduler's own
// goroutine, in ascending expiry order (spec.md §3.8, "readers see
// liveliness transitions in the order they were published").
type FireFunc func(*Lease)

type options struct {
	log  *zap.SugaredLogger
	poll time.Duration
}

func newOptions() *options {
	return &options{
		log:  zap.NewNop().Sugar(),
		poll: 10 * time.Millisecond,
	}
}

// Option configures a Scheduler.
type Option func(*options)

// WithLog sets the scheduler's logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) { o.log = log }
}

// WithPollInterval bounds how long the scheduler ever sleeps when
// neither heap holds a lease, so a lease added concurrently is never
// kept waiting longer than this before its own deadline is noticed.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.poll = d }
}

// Scheduler is the background "lease thread" that blocks until the
// representative minimum of either of a participant's two lease heaps
// fires (spec.md §3.8, §9 "the lease thread blocks until the
// representative minimum lease fires").
type Scheduler struct {
	automatic *Queue
	manual    *Queue
	onFire    FireFunc
	opts      *options
}

// NewScheduler returns a Scheduler watching both of a participant's
// lease queues.
func NewScheduler(automatic, manual *Queue, onFire FireFunc, opt ...Option) *Scheduler {
	o := newOptions()
	for _, fn := range opt {
		fn(o)
	}
	return &Scheduler{automatic: automatic, manual: manual, onFire: onFire, opts: o}
}

// Run blocks until ctx is cancelled, firing onFire for each lease as its
// deadline elapses. The participant runs it as one goroutine in its
// errgroup alongside the gc goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	s.opts.log.Info("running lease scheduler")
	defer s.opts.log.Info("stopped lease scheduler")

	timer := time.NewTimer(s.opts.poll)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-timer.C:
			s.fire(s.automatic, now)
			s.fire(s.manual, now)
			timer.Reset(s.nextTick(now))
		}
	}
}

func (s *Scheduler) fire(q *Queue, now time.Time) {
	for _, l := range q.PopExpired(now) {
		s.opts.log.Infow("lease expired", zap.Stringer("entity", l.Entity), zap.Duration("duration", l.Duration))
		s.onFire(l)
	}
}

// nextTick picks the scheduler's next wakeup: the nearer of the two
// heaps' representative minimums, capped at the configured poll
// interval so a freshly added lease on an otherwise-empty heap is never
// missed for longer than that.
func (s *Scheduler) nextTick(now time.Time) time.Duration {
	next := s.opts.poll
	for _, q := range [...]*Queue{s.automatic, s.manual} {
		min := q.Peek()
		if min == nil {
			continue
		}
		if d := min.Expiry.Sub(now); d <= 0 {
			return time.Millisecond
		} else if d < next {
			next = d
		}
	}
	return next
}

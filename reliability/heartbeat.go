// Package reliability implements the heartbeat scheduler, acknack
// processing, retransmission, and write-throttling algorithms of
// spec.md §4.3: given the writer history cache and the per-match ack
// state, decide when to heartbeat, what to retransmit, and when a
// write must block.
package reliability

import (
	"sync"
	"time"
)

// AckDecision is the three-valued "is an ack-requesting heartbeat due?"
// result spec.md §4.3 describes: 0 suppresses it, 1 schedules it for
// the writer's normal heartbeat event, 2 forces it out immediately.
type AckDecision int

const (
	AckSuppress AckDecision = iota
	AckScheduled
	AckForceNow
)

// IntervalConfig carries the heartbeat-interval tunables of spec.md
// §4.3 (mirrors config.HeartbeatConfig, kept independent of the config
// package so this package has no import-time dependency on YAML
// loading).
type IntervalConfig struct {
	Min      time.Duration
	Max      time.Duration
	Sched    time.Duration
	SchedMax time.Duration
}

// WaterMarks carries the WHC high/low water marks the interval and
// ack-required computations scale against.
type WaterMarks struct {
	Low  int64
	High int64
}

// Scheduler tracks one reliable writer's heartbeat timing state: the
// last time a heartbeat was sent, the last time data was written, the
// current scheduled interval, and how many consecutive heartbeats have
// gone by with no intervening write.
type Scheduler struct {
	cfg IntervalConfig
	wm  WaterMarks

	mu                sync.Mutex
	interval          time.Duration
	idleHeartbeats    int
	lastWrite         time.Time
	lastHeartbeat     time.Time
	lastAckHeartbeat  time.Time
	throttled         bool
}

// NewScheduler returns a heartbeat scheduler starting at cfg.Sched.
func NewScheduler(cfg IntervalConfig, wm WaterMarks) *Scheduler {
	return &Scheduler{cfg: cfg, wm: wm, interval: cfg.Sched}
}

// NoteWrite records that a new sample was just written, resetting the
// idle-heartbeat counter (spec.md §4.3: "after more than two heartbeats
// with no intervening write, the interval doubles").
func (s *Scheduler) NoteWrite(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastWrite = now
	s.idleHeartbeats = 0
}

// NoteHeartbeatSent records that a heartbeat was just sent and
// recomputes the interval for the next one: it doubles once more than
// two heartbeats have elapsed with no intervening write, capped at
// SchedMax, and is otherwise held at its current value subject to the
// water-mark and throttle adjustments in effective().
func (s *Scheduler) NoteHeartbeatSent(now time.Time, ackRequested bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = now
	if ackRequested {
		s.lastAckHeartbeat = now
	}
	if s.lastWrite.Before(s.lastHeartbeat) {
		s.idleHeartbeats++
	}
	if s.idleHeartbeats > 2 {
		s.interval *= 2
		if s.interval > s.cfg.SchedMax {
			s.interval = s.cfg.SchedMax
		}
	}
}

// SetThrottled records whether this writer is currently blocked in
// throttle_writer, which halves the effective interval once more
// (spec.md §4.3: "An active throttled writer halves once more").
func (s *Scheduler) SetThrottled(throttled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throttled = throttled
}

// Effective computes the heartbeat interval currently in force given
// unackedBytes, applying the water-mark halving rules and the throttle
// halving, floored at cfg.Min (spec.md §4.3, "Heartbeat interval").
func (s *Scheduler) Effective(unackedBytes int64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveLocked(unackedBytes)
}

func (s *Scheduler) effectiveLocked(unackedBytes int64) time.Duration {
	interval := s.interval

	span := s.wm.High - s.wm.Low
	if span > 0 {
		half := s.wm.Low + span/2
		threeQuarter := s.wm.Low + (span*3)/4
		if unackedBytes >= threeQuarter {
			interval /= 4
		} else if unackedBytes >= half {
			interval /= 2
		}
	}
	if s.throttled {
		interval /= 2
	}
	if interval < s.cfg.Min {
		interval = s.cfg.Min
	}
	return interval
}

// MustHeartbeat reports whether now >= last_hb + interval (spec.md
// §4.3, `"Must send a heartbeat?"`).
func (s *Scheduler) MustHeartbeat(now time.Time, unackedBytes int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !now.Before(s.lastHeartbeat.Add(s.effectiveLocked(unackedBytes)))
}

// AckRequired implements spec.md §4.3's ack-requesting heartbeat
// decision:
//
//	(a) time since the last write exceeds the interval (the piggyback
//	    case) or time since the last heartbeat exceeds it (the event
//	    case), OR
//	(b) unacked_bytes >= low + (high-low)/2 AND time since the last
//	    ack-requesting heartbeat exceeds const_hb_intv_min.
//
// forceNow additionally forces the AckForceNow outcome, e.g. when a
// writer is being deleted and must flush a final ack-requesting
// heartbeat immediately.
func (s *Scheduler) AckRequired(now time.Time, unackedBytes int64, forceNow bool) AckDecision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if forceNow {
		return AckForceNow
	}

	interval := s.effectiveLocked(unackedBytes)
	piggyback := now.After(s.lastWrite.Add(interval))
	event := now.After(s.lastHeartbeat.Add(interval))

	dueByWater := false
	if span := s.wm.High - s.wm.Low; span > 0 {
		half := s.wm.Low + span/2
		if unackedBytes >= half && now.After(s.lastAckHeartbeat.Add(s.cfg.Min)) {
			dueByWater = true
		}
	}

	switch {
	case !piggyback && !event && !dueByWater:
		return AckSuppress
	default:
		return AckScheduled
	}
}

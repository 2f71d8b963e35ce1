package reliability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfg() IntervalConfig {
	return IntervalConfig{Min: 5 * time.Millisecond, Max: 8 * time.Second, Sched: 100 * time.Millisecond, SchedMax: 2 * time.Second}
}

func TestMustHeartbeatHoldsOnceIntervalElapsed(t *testing.T) {
	s := NewScheduler(cfg(), WaterMarks{Low: 500_000, High: 2_000_000})
	base := time.Now()
	s.NoteHeartbeatSent(base, true)

	assert.False(t, s.MustHeartbeat(base.Add(50*time.Millisecond), 0))
	assert.True(t, s.MustHeartbeat(base.Add(150*time.Millisecond), 0))
}

func TestIntervalDoublesAfterIdleHeartbeats(t *testing.T) {
	s := NewScheduler(cfg(), WaterMarks{Low: 500_000, High: 2_000_000})
	base := time.Now()
	s.NoteWrite(base)

	for i := 0; i < 4; i++ {
		s.NoteHeartbeatSent(base.Add(time.Duration(i+1)*time.Second), false)
	}

	got := s.Effective(0)
	assert.Greater(t, got, cfg().Sched, "interval must have doubled after more than two idle heartbeats")
}

func TestEffectiveIntervalHalvesAtWaterMarkThresholds(t *testing.T) {
	s := NewScheduler(cfg(), WaterMarks{Low: 0, High: 1_000_000})

	base := s.Effective(0)
	atHalf := s.Effective(500_000)
	atThreeQuarter := s.Effective(750_000)

	assert.Less(t, atHalf, base)
	assert.Less(t, atThreeQuarter, atHalf)
}

func TestEffectiveIntervalFlooredAtMin(t *testing.T) {
	c := cfg()
	c.Sched = time.Millisecond
	s := NewScheduler(c, WaterMarks{Low: 0, High: 1_000_000})
	assert.Equal(t, c.Min, s.Effective(750_000))
}

func TestThrottledHalvesIntervalAgain(t *testing.T) {
	s := NewScheduler(cfg(), WaterMarks{})
	before := s.Effective(0)
	s.SetThrottled(true)
	after := s.Effective(0)
	assert.Equal(t, before/2, after)
}

func TestAckRequiredForcesImmediatelyWhenRequested(t *testing.T) {
	s := NewScheduler(cfg(), WaterMarks{Low: 500_000, High: 2_000_000})
	got := s.AckRequired(time.Now(), 0, true)
	assert.Equal(t, AckForceNow, got)
}

func TestAckRequiredSuppressedWhenNothingDue(t *testing.T) {
	s := NewScheduler(cfg(), WaterMarks{Low: 500_000, High: 2_000_000})
	base := time.Now()
	s.NoteWrite(base)
	s.NoteHeartbeatSent(base, true)

	got := s.AckRequired(base.Add(10*time.Millisecond), 0, false)
	assert.Equal(t, AckSuppress, got)
}

func TestAckRequiredScheduledPastWriteInterval(t *testing.T) {
	s := NewScheduler(cfg(), WaterMarks{Low: 500_000, High: 2_000_000})
	base := time.Now()
	s.NoteWrite(base)
	s.NoteHeartbeatSent(base, true)

	got := s.AckRequired(base.Add(200*time.Millisecond), 0, false)
	assert.Equal(t, AckScheduled, got)
}

func TestAckRequiredScheduledByWaterMark(t *testing.T) {
	s := NewScheduler(cfg(), WaterMarks{Low: 0, High: 1_000_000})
	base := time.Now()
	s.NoteWrite(base)
	s.NoteHeartbeatSent(base, true)

	// Within the normal interval, but past unacked_bytes's half-water
	// threshold and const_hb_intv_min since the last ack heartbeat.
	got := s.AckRequired(base.Add(10*time.Millisecond), 600_000, false)
	assert.Equal(t, AckScheduled, got)
}

func TestSelectDestinationUnicastsToSingleLaggingReader(t *testing.T) {
	readers := []ReaderProgress{{AckedSeq: 5}, {AckedSeq: 5}, {AckedSeq: 3}}
	mode, idx := SelectDestination(5, readers)
	require.Equal(t, DestUnicastSingle, mode)
	assert.Equal(t, 2, idx)
}

func TestSelectDestinationMulticastsWhenAllCaughtUp(t *testing.T) {
	readers := []ReaderProgress{{AckedSeq: 5}, {AckedSeq: 5}}
	mode, _ := SelectDestination(5, readers)
	assert.Equal(t, DestMulticast, mode)
}

func TestSelectDestinationMulticastsWhenMultipleLag(t *testing.T) {
	readers := []ReaderProgress{{AckedSeq: 2}, {AckedSeq: 3}}
	mode, _ := SelectDestination(5, readers)
	assert.Equal(t, DestMulticast, mode)
}

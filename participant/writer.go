package participant

import (
	"context"
	"fmt"
	"time"

	"github.com/godds/core/entityindex"
	"github.com/godds/core/guid"
	"github.com/godds/core/matching"
	"github.com/godds/core/reliability"
	"github.com/godds/core/tkmap"
	"github.com/godds/core/transport"
	"github.com/godds/core/whc"
	"github.com/godds/core/wire/rtps"
)

// WriterState is the one-way state machine a local data writer moves
// through: OPERATIONAL while live, INTERRUPT the instant a
// delete request unblocks any throttled Write calls, LINGERING while
// unacknowledged data is still owed to matched readers, and DELETING
// once the cache has drained and the writer's identifier can be freed.
type WriterState int

const (
	WriterOperational WriterState = iota
	WriterInterrupt
	WriterLingering
	WriterDeleting
)

// Writer is a local data writer: its entity record, QoS, history
// cache, and the reliability bookkeeping (heartbeat scheduler, write
// throttle, retransmitter) a reliable writer needs.
type Writer struct {
	Handle entityindex.Handle
	GUID   guid.GUID
	Topic  string
	Keyed  bool
	QoS    matching.QoS

	Cache       *whc.WHC
	Heartbeat   *reliability.Scheduler
	Throttle    *reliability.Throttle
	Retransmit  *reliability.Retransmitter

	// TransmitSet and SSMSet are the writer's transmit address set and
	// SSM address set: every locator data for this writer should go out
	// to, and the subset of those reachable via source-specific
	// multicast.
	TransmitSet *AddressSet
	SSMSet      *AddressSet

	instances *tkmap.Map
	seq       rtps.SequenceNumber

	state WriterState
}

func newWriter(g guid.GUID, topic string, keyed bool, qos matching.QoS, cache *whc.WHC, hbCfg reliability.IntervalConfig, wm reliability.WaterMarks, highWater int64, limiter reliability.BurstLimiter, fragmentSize int, locators *LocatorTable) *Writer {
	return &Writer{
		GUID:        g,
		Topic:       topic,
		Keyed:       keyed,
		QoS:         qos,
		Cache:       cache,
		Heartbeat:   reliability.NewScheduler(hbCfg, wm),
		Throttle:    reliability.NewThrottle(highWater),
		Retransmit:  reliability.NewRetransmitter(cache, fragmentSize, limiter),
		TransmitSet: NewAddressSet(locators),
		SSMSet:      NewAddressSet(locators),
		instances:   tkmap.New(),
		state:       WriterOperational,
	}
}

// AddDestination adds l to the writer's transmit address set, and to
// its SSM address set too when ssm is set. Called as matched remote
// readers' owning participants are discovered.
func (w *Writer) AddDestination(l transport.Locator, ssm bool) {
	w.TransmitSet.Add(l)
	if ssm {
		w.SSMSet.Add(l)
	}
}

// ResolveDestinations turns a reliability.SelectDestination verdict
// into the locators a heartbeat or retransmit burst should actually go
// out to: the writer's SSM-eligible locators when any exist (falling
// back to the full transmit set otherwise) for DestMulticast, or just
// the transmit set's rank-0 fallback for DestUnicastSingle.
func (w *Writer) ResolveDestinations(mode reliability.DestinationMode) []transport.Locator {
	if mode == reliability.DestUnicastSingle {
		if l, ok := w.TransmitSet.Primary(); ok {
			return []transport.Locator{l}
		}
		return nil
	}
	if w.SSMSet.Len() > 0 {
		return w.SSMSet.Locators()
	}
	return w.TransmitSet.Locators()
}

// State returns the writer's current lifecycle state.
func (w *Writer) State() WriterState { return w.state }

// BeginDelete transitions the writer out of OPERATIONAL: LINGERING if
// unacknowledged data remains (so matched readers still receive it),
// otherwise straight to DELETING.
// INTERRUPT is observed momentarily by the running throttle (if any
// Write call is currently blocked) via Throttle.Delete, which this
// method calls unconditionally before deciding the writer's resting
// state.
func (w *Writer) BeginDelete(now time.Time) WriterState {
	w.state = WriterInterrupt
	w.Throttle.Delete()

	st := w.Cache.GetState()
	if st.UnackedBytes > 0 {
		w.state = WriterLingering
	} else {
		w.state = WriterDeleting
	}
	return w.state
}

// NoteFullyAcked transitions a LINGERING writer to DELETING once its
// cache has drained of unacknowledged data.
func (w *Writer) NoteFullyAcked() {
	if w.state == WriterLingering && w.Cache.GetState().UnackedBytes == 0 {
		w.state = WriterDeleting
	}
}

// Publish is the application → writer::insert half of the publishing
// data flow: it blocks in the write throttle if the cache is
// over its high-water mark, assigns the next sequence number, inserts
// the sample into the history cache, and notes the write against the
// heartbeat scheduler so a piggybacked or scheduled heartbeat follows.
// maxDropSeq is the writer's matched readers' current low-water mark
// (matching.MatchSet.MaxDropSeq); instance identifies which instance the
// sample belongs to (whatever tkmap.Map.Ref returned for its key hash).
func (w *Writer) Publish(ctx context.Context, maxDropSeq rtps.SequenceNumber, instance tkmap.InstanceHandle, payload []byte, expiry time.Time, now time.Time) (rtps.SequenceNumber, reliability.AckDecision, error) {
	if w.state != WriterOperational {
		return 0, reliability.AckSuppress, fmt.Errorf("participant: writer %s is not operational", w.GUID)
	}

	unackedBytes := func() int64 { return w.Cache.GetState().UnackedBytes }
	if err := w.Throttle.Wait(ctx, w.QoS.Reliability.MaxBlockingTime, unackedBytes, func() { w.Heartbeat.SetThrottled(true) }); err != nil {
		return 0, reliability.AckSuppress, err
	}
	w.Heartbeat.SetThrottled(false)

	seq := w.seq + 1
	if err := w.Cache.Insert(maxDropSeq, seq, expiry, payload, instance, whc.StatusNormal); err != nil {
		return 0, reliability.AckSuppress, err
	}
	w.seq = seq
	w.Heartbeat.NoteWrite(now)

	ack := w.Heartbeat.AckRequired(now, w.Cache.GetState().UnackedBytes, false)
	return seq, ack, nil
}

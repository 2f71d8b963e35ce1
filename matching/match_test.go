package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godds/core/entityindex"
	"github.com/godds/core/guid"
	"github.com/godds/core/wire/rtps"
)

func gid(n uint32) guid.GUID {
	return guid.GUID{EntityId: guid.NewEntityId(n, guid.KindReaderWithKey)}
}

func reliableQoS() QoS {
	return QoS{Reliability: Reliability{Kind: Reliable}}
}

func bestEffortQoS() QoS {
	return QoS{Reliability: Reliability{Kind: BestEffort}}
}

func TestCheckRxOReliabilityBestEffortWriterFailsReliableReader(t *testing.T) {
	reason, policy := CheckRxO(bestEffortQoS(), reliableQoS())
	assert.Equal(t, ReasonIncompatibleQoS, reason)
	assert.Equal(t, PolicyReliability, policy)
}

func TestCheckRxOReliableWriterSatisfiesBestEffortReader(t *testing.T) {
	reason, _ := CheckRxO(reliableQoS(), bestEffortQoS())
	assert.Equal(t, ReasonCompatible, reason)
}

func TestCheckRxODurabilityMismatch(t *testing.T) {
	offered := QoS{Durability: Durability{Kind: Volatile}}
	requested := QoS{Durability: Durability{Kind: TransientLocal}}
	reason, policy := CheckRxO(offered, requested)
	assert.Equal(t, ReasonIncompatibleQoS, reason)
	assert.Equal(t, PolicyDurability, policy)
}

func TestCheckRxODeadlineOfferedMustBeTighter(t *testing.T) {
	offered := QoS{Deadline: Deadline{Period: 500 * time.Millisecond}}
	requested := QoS{Deadline: Deadline{Period: 200 * time.Millisecond}}
	reason, policy := CheckRxO(offered, requested)
	assert.Equal(t, ReasonIncompatibleQoS, reason)
	assert.Equal(t, PolicyDeadline, policy)

	offered.Deadline.Period = 100 * time.Millisecond
	reason, _ = CheckRxO(offered, requested)
	assert.Equal(t, ReasonCompatible, reason)
}

func TestCheckRxOOwnershipMustMatchExactly(t *testing.T) {
	offered := QoS{Ownership: Ownership{Kind: Exclusive}}
	requested := QoS{Ownership: Ownership{Kind: Shared}}
	reason, policy := CheckRxO(offered, requested)
	assert.Equal(t, ReasonIncompatibleQoS, reason)
	assert.Equal(t, PolicyOwnership, policy)
}

func TestTryMatchDifferentTopicsNeverReportIncompatibleQoS(t *testing.T) {
	e := New()
	w := EndpointInfo{GUID: gid(1), Topic: "Square", QoS: bestEffortQoS()}
	r := EndpointInfo{GUID: gid(2), Topic: "Circle", QoS: reliableQoS()}

	out := e.TryMatch(w, r)
	assert.Equal(t, ReasonDifferentTopic, out.Reason)
}

func TestTryMatchSuccessInsertsBothSides(t *testing.T) {
	e := New()
	w := EndpointInfo{Handle: entityindex.Handle{}, GUID: gid(1), Topic: "Square", QoS: reliableQoS()}
	r := EndpointInfo{Handle: entityindex.Handle{}, GUID: gid(2), Topic: "Square", QoS: bestEffortQoS()}

	out := e.TryMatch(w, r)
	require.Equal(t, ReasonCompatible, out.Reason)

	assert.Equal(t, 1, e.WriterMatches(w.GUID).Len())
	assert.Equal(t, 1, e.ReaderMatches(r.GUID).Len())
}

func TestTryMatchSuppressedByIgnoreLocalProcess(t *testing.T) {
	e := New()
	w := EndpointInfo{GUID: gid(1), Topic: "Square", QoS: QoS{IgnoreLocal: IgnoreProcess}}
	r := EndpointInfo{GUID: gid(2), Topic: "Square"}

	out := e.TryMatch(w, r)
	assert.Equal(t, ReasonIgnoredLocal, out.Reason)
}

func TestTryMatchDeferredWhenTypeUnknown(t *testing.T) {
	e := New(WithTypeResolver(stubResolver{known: false}))
	w := EndpointInfo{GUID: gid(1), Topic: "Square"}
	r := EndpointInfo{GUID: gid(2), Topic: "Square"}

	out := e.TryMatch(w, r)
	assert.Equal(t, ReasonTypeMismatchPending, out.Reason)
	assert.True(t, out.Deferred)
}

type stubResolver struct{ known bool }

func (s stubResolver) HasType(string, guid.GUID) bool { return s.known }

func TestMatchSetAggregateTracksMaxDropSeqAndHeartbeatNeed(t *testing.T) {
	s := NewMatchSet()
	m1 := &WriterMatch{GUID: gid(1)}
	m2 := &WriterMatch{GUID: gid(2)}
	s.Insert(m1)
	s.Insert(m2)

	acked := map[guid.GUID]rtps.SequenceNumber{m1.GUID: 5, m2.GUID: 3}
	s.UpdateAggregate(5, func(m *WriterMatch) (rtps.SequenceNumber, bool) {
		return acked[m.GUID], acked[m.GUID] == 5
	})

	assert.Equal(t, rtps.SequenceNumber(3), s.MaxDropSeq())
	assert.True(t, s.NeedsHeartbeat(), "reader m2 has not acked the writer's max sequence")
}

func TestPropagateAliveNotifiesOnlyChangedMatches(t *testing.T) {
	s := NewMatchSet()
	m1 := &WriterMatch{GUID: gid(1)}
	s.Insert(m1)
	m1.SetAlive(true) // already alive before propagation

	var notified []guid.GUID
	PropagateAlive(s, true, func(reader guid.GUID, aliveNow bool, vclock uint64) {
		notified = append(notified, reader)
	})
	assert.Empty(t, notified, "no state change means no notification")

	PropagateAlive(s, false, func(reader guid.GUID, aliveNow bool, vclock uint64) {
		notified = append(notified, reader)
	})
	assert.Equal(t, []guid.GUID{m1.GUID}, notified)
}

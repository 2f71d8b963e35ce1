package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godds/core/entityindex"
	"github.com/godds/core/guid"
	"github.com/godds/core/matching"
)

func participant(n uint32) guid.GUID {
	var p guid.Prefix
	p[0] = byte(n)
	return guid.GUID{Prefix: p, EntityId: guid.NewEntityId(n, guid.KindBuiltinParticipant)}
}

func writerGUID(n uint32) guid.GUID {
	var p guid.Prefix
	p[0] = byte(n)
	return guid.GUID{Prefix: p, EntityId: guid.NewEntityId(n, guid.KindWriterWithKey)}
}

func readerGUID(n uint32) guid.GUID {
	var p guid.Prefix
	p[0] = byte(n)
	return guid.GUID{Prefix: p, EntityId: guid.NewEntityId(n, guid.KindReaderWithKey)}
}

type fakeLocal struct {
	readers []matching.EndpointInfo
	writers []matching.EndpointInfo
}

func (f *fakeLocal) Writers(topic string) []matching.EndpointInfo { return f.writers }
func (f *fakeLocal) Readers(topic string) []matching.EndpointInfo { return f.readers }

func TestOnParticipantDiscoveredInsertsProxyOnce(t *testing.T) {
	idx := entityindex.New()
	eng := New(idx, matching.New(), &fakeLocal{}, nil, time.Second)

	info := ParticipantInfo{GUID: participant(1), LeaseDuration: 5 * time.Second}
	h1, lease1 := eng.OnParticipantDiscovered(info, time.Now())
	assert.Equal(t, 5*time.Second, lease1)
	assert.Equal(t, 1, idx.Len())

	h2, _ := eng.OnParticipantDiscovered(info, time.Now())
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, idx.Len())
}

func TestOnParticipantDiscoveredUsesDefaultLeaseWhenUnset(t *testing.T) {
	idx := entityindex.New()
	eng := New(idx, matching.New(), &fakeLocal{}, nil, 9*time.Second)

	_, lease := eng.OnParticipantDiscovered(ParticipantInfo{GUID: participant(2)}, time.Now())
	assert.Equal(t, 9*time.Second, lease)
}

func TestOnEndpointDiscoveredMatchesCompatibleLocalReader(t *testing.T) {
	idx := entityindex.New()
	matcher := matching.New()
	local := &fakeLocal{readers: []matching.EndpointInfo{
		{GUID: readerGUID(10), Topic: "Sensors", QoS: matching.QoS{}},
	}}
	eng := New(idx, matcher, local, nil, time.Second)

	outcomes := eng.OnEndpointDiscovered(EndpointInfo{
		GUID:  writerGUID(20),
		Topic: "Sensors",
		QoS:   matching.QoS{},
	}, true, time.Now())

	require.Len(t, outcomes, 1)
	assert.Equal(t, matching.ReasonCompatible, outcomes[0].Reason)
	assert.Equal(t, 1, matcher.WriterMatches(writerGUID(20)).Len())
}

func TestOnEndpointDiscoveredSkipsDisjointPartitions(t *testing.T) {
	idx := entityindex.New()
	matcher := matching.New()
	local := &fakeLocal{readers: []matching.EndpointInfo{
		{GUID: readerGUID(11), Topic: "Sensors", QoS: matching.QoS{Partitions: []string{"Zone1"}}},
	}}
	eng := New(idx, matcher, local, nil, time.Second)

	outcomes := eng.OnEndpointDiscovered(EndpointInfo{
		GUID:       writerGUID(21),
		Topic:      "Sensors",
		QoS:        matching.QoS{},
		Partitions: []string{"Zone2"},
	}, true, time.Now())

	assert.Empty(t, outcomes)
	assert.Equal(t, 0, matcher.WriterMatches(writerGUID(21)).Len())
}

func TestOnEndpointLostForgetsMatchState(t *testing.T) {
	idx := entityindex.New()
	matcher := matching.New()
	local := &fakeLocal{readers: []matching.EndpointInfo{
		{GUID: readerGUID(12), Topic: "Sensors"},
	}}
	eng := New(idx, matcher, local, nil, time.Second)

	eng.OnEndpointDiscovered(EndpointInfo{GUID: writerGUID(22), Topic: "Sensors"}, true, time.Now())
	require.Equal(t, 1, matcher.WriterMatches(writerGUID(22)).Len())

	ent, _, ok := idx.LookupGUID(writerGUID(22))
	require.True(t, ok)
	eng.OnEndpointLost(ent)

	assert.Equal(t, 0, matcher.WriterMatches(writerGUID(22)).Len())
	_, _, ok = idx.LookupGUID(writerGUID(22))
	assert.False(t, ok)
}

func TestPublisherPublishesEachSequentialAnnounce(t *testing.T) {
	var calls int
	pub := NewPublisher(func(info EndpointInfo) error {
		calls++
		return nil
	})

	require.NoError(t, pub.Announce(EndpointInfo{GUID: writerGUID(30), Topic: "A"}))
	require.NoError(t, pub.Announce(EndpointInfo{GUID: writerGUID(30), Topic: "B"}))
	assert.Equal(t, 2, calls)
}

func TestPeerTrackerRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	tracker := NewPeerTracker(func(ctx context.Context, info ParticipantInfo) error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	}, nil, 10*time.Second)

	err := tracker.Confirm(context.Background(), ParticipantInfo{GUID: participant(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestPeerTrackerGivesUpAfterMaxElapsed(t *testing.T) {
	tracker := NewPeerTracker(func(ctx context.Context, info ParticipantInfo) error {
		return errors.New("still not ready")
	}, nil, 30*time.Millisecond)

	err := tracker.Confirm(context.Background(), ParticipantInfo{GUID: participant(4)})
	assert.Error(t, err)
}

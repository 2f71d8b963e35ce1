package participant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godds/core/config"
	"github.com/godds/core/discovery"
	"github.com/godds/core/guid"
	"github.com/godds/core/lease"
	"github.com/godds/core/matching"
	"github.com/godds/core/tkmap"
	"github.com/godds/core/whc"
)

func newTestParticipant(t *testing.T) *Participant {
	t.Helper()
	cfg := config.DefaultConfig()
	p, err := New(cfg, nil)
	require.NoError(t, err)
	return p
}

func TestNewAssignsDistinctPrefixesPerParticipant(t *testing.T) {
	a := newTestParticipant(t)
	b := newTestParticipant(t)
	assert.NotEqual(t, a.GUID().Prefix, b.GUID().Prefix)
}

func TestNewWriterAndReaderMatchLocally(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Now()

	w, err := p.NewWriter("Sensors", false, matching.QoS{}, whc.Config{HistoryDepth: 1}, now)
	require.NoError(t, err)
	r, err := p.NewReader("Sensors", false, matching.QoS{}, now)
	require.NoError(t, err)

	writers := p.Writers("Sensors")
	require.Len(t, writers, 1)
	assert.Equal(t, w.GUID, writers[0].GUID)

	readers := p.Readers("Sensors")
	require.Len(t, readers, 1)
	assert.Equal(t, r.GUID, readers[0].GUID)

	assert.Equal(t, 1, p.matcher.WriterMatches(w.GUID).Len())
}

func TestDeleteWriterRemovesItFromLookupsImmediately(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Now()

	w, err := p.NewWriter("Sensors", false, matching.QoS{}, whc.Config{HistoryDepth: 1}, now)
	require.NoError(t, err)

	require.NoError(t, p.DeleteWriter(w.GUID, now))
	assert.Empty(t, p.Writers("Sensors"))

	assert.Error(t, p.DeleteWriter(w.GUID, now), "deleting an already-deleted writer should fail")
}

func TestDeleteReaderRemovesItFromLookupsImmediately(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Now()

	r, err := p.NewReader("Sensors", false, matching.QoS{}, now)
	require.NoError(t, err)

	require.NoError(t, p.DeleteReader(r.GUID))
	assert.Empty(t, p.Readers("Sensors"))
}

func TestOnParticipantDiscoveredArmsAutomaticLease(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Now()

	remote := discovery.ParticipantInfo{GUID: testRemoteGUID(1), LeaseDuration: 5 * time.Second}
	p.OnParticipantDiscovered(remote, now)

	lease := p.leaseQueue.Peek()
	require.NotNil(t, lease)
	assert.Equal(t, remote.GUID, lease.Entity)
}

func TestOnLeaseExpiredDropsMatchingProxies(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Now()

	remote := discovery.ParticipantInfo{GUID: testRemoteGUID(2), LeaseDuration: time.Millisecond}
	handle, _ := p.discover.OnParticipantDiscovered(remote, now)
	require.NotZero(t, handle)

	_, ok := p.index.Lookup(handle)
	require.True(t, ok)

	p.onLeaseExpired(&lease.Lease{Entity: remote.GUID, Duration: time.Millisecond})
	_, ok = p.index.Lookup(handle)
	assert.False(t, ok, "proxy participant should be removed once its lease expires")
}

func TestAssertManualLivelinessRenewsManualQueue(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Now()
	entity := testRemoteGUID(3)

	p.AssertManualLiveliness(entity, time.Second, now)

	l := p.leaseQueueManual.Peek()
	require.NotNil(t, l)
	assert.Equal(t, entity, l.Entity)
}

func TestWriteInsertsIntoCacheAndNotesHeartbeatWrite(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Now()

	w, err := p.NewWriter("Sensors", false, matching.QoS{}, whc.Config{HistoryDepth: 1}, now)
	require.NoError(t, err)

	seq, _, err := p.Write(context.Background(), w.GUID, tkmap.KeyHash{}, []byte("payload"), now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, seq)

	st := w.Cache.GetState()
	assert.EqualValues(t, 1, st.MaxSeq)

	seq2, _, err := p.Write(context.Background(), w.GUID, tkmap.KeyHash{}, []byte("payload2"), now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, seq2, "sequence numbers advance per write")
}

func TestWriteRejectsUnknownWriter(t *testing.T) {
	p := newTestParticipant(t)
	_, _, err := p.Write(context.Background(), testRemoteGUID(9), tkmap.KeyHash{}, []byte("x"), time.Now())
	assert.Error(t, err)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	p := newTestParticipant(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop within 1s of context cancellation")
	}
}

func testRemoteGUID(n byte) guid.GUID {
	var g guid.GUID
	g.Prefix[0] = n
	g.EntityId = guid.NewEntityId(uint32(n), guid.KindBuiltinParticipant)
	return g
}

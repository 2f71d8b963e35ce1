package participant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godds/core/discovery"
	"github.com/godds/core/guid"
	"github.com/godds/core/matching"
	"github.com/godds/core/whc"
)

func TestWireWriterDestinationsPopulatesTransmitSetOnMatch(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Now()

	w, err := p.NewWriter("Sensors", false, matching.QoS{}, whc.Config{HistoryDepth: 1}, now)
	require.NoError(t, err)

	remoteParticipant := discovery.ParticipantInfo{
		GUID:          guid.GUID{Prefix: guid.Prefix{0xAA}},
		UnicastLoc:    []string{"10.0.0.9:7411"},
		MulticastLoc:  []string{"239.255.0.1:7400"},
		LeaseDuration: time.Minute,
	}
	p.OnParticipantDiscovered(remoteParticipant, now)

	remoteReader := discovery.EndpointInfo{
		GUID:  guid.GUID{Prefix: remoteParticipant.GUID.Prefix, EntityId: guid.NewEntityId(1, guid.KindReaderNoKey)},
		Topic: "Sensors",
		QoS:   matching.QoS{},
	}
	outcomes := p.OnEndpointDiscovered(remoteReader, false, time.Minute, now)
	require.Len(t, outcomes, 1)
	require.Equal(t, matching.ReasonCompatible, outcomes[0].Reason)

	assert.Equal(t, 2, w.TransmitSet.Len(), "unicast and multicast locators should both be wired in")
}

func TestWireWriterDestinationsSkipsUnmatchedTopics(t *testing.T) {
	p := newTestParticipant(t)
	now := time.Now()

	w, err := p.NewWriter("Sensors", false, matching.QoS{}, whc.Config{HistoryDepth: 1}, now)
	require.NoError(t, err)

	remoteParticipant := discovery.ParticipantInfo{
		GUID:       guid.GUID{Prefix: guid.Prefix{0xBB}},
		UnicastLoc: []string{"10.0.0.9:7411"},
	}
	p.OnParticipantDiscovered(remoteParticipant, now)

	remoteReader := discovery.EndpointInfo{
		GUID:  guid.GUID{Prefix: remoteParticipant.GUID.Prefix, EntityId: guid.NewEntityId(1, guid.KindReaderNoKey)},
		Topic: "OtherTopic",
	}
	p.OnEndpointDiscovered(remoteReader, false, time.Minute, now)

	assert.Zero(t, w.TransmitSet.Len())
}

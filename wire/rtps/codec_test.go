package rtps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godds/core/guid"
)

func TestSequenceNumberSetTestReflectsMissingEntries(t *testing.T) {
	set := NewSequenceNumberSet(10, []SequenceNumber{10, 12, 40})

	assert.True(t, set.Test(10))
	assert.False(t, set.Test(11))
	assert.True(t, set.Test(12))
	assert.True(t, set.Test(40))
	assert.False(t, set.Test(41))
	assert.False(t, set.Test(9), "a sequence number before the base is never present")
}

func TestHeartbeatEncodeDecodeRoundTrip(t *testing.T) {
	for _, little := range []bool{true, false} {
		hb := Heartbeat{
			ReaderId: guid.NewEntityId(1, guid.KindReaderNoKey),
			WriterId: guid.NewEntityId(2, guid.KindWriterWithKey),
			FirstSN:  1,
			LastSN:   100,
			Count:    7,
			Final:    true,
		}
		buf := EncodeHeartbeat(hb, little)

		flags := FlagEndianness
		if !little {
			flags = 0
		}
		flags |= 1 << 1 // FINAL

		got, err := DecodeHeartbeat(buf, flags)
		require.NoError(t, err)
		assert.Equal(t, hb.ReaderId, got.ReaderId)
		assert.Equal(t, hb.WriterId, got.WriterId)
		assert.Equal(t, hb.FirstSN, got.FirstSN)
		assert.Equal(t, hb.LastSN, got.LastSN)
		assert.Equal(t, hb.Count, got.Count)
		assert.True(t, got.Final)
	}
}

func TestAckNackEncodeDecodeRoundTrip(t *testing.T) {
	an := AckNack{
		ReaderId:      guid.NewEntityId(3, guid.KindReaderWithKey),
		WriterId:      guid.NewEntityId(4, guid.KindWriterNoKey),
		ReaderSNState: NewSequenceNumberSet(5, []SequenceNumber{6, 9}),
		Count:         2,
	}
	buf := EncodeAckNack(an, true)

	got, err := DecodeAckNack(buf, FlagEndianness)
	require.NoError(t, err)
	assert.Equal(t, an.ReaderId, got.ReaderId)
	assert.Equal(t, an.WriterId, got.WriterId)
	assert.Equal(t, an.Count, got.Count)
	assert.Equal(t, an.ReaderSNState.Base, got.ReaderSNState.Base)
	assert.True(t, got.ReaderSNState.Test(6))
	assert.True(t, got.ReaderSNState.Test(9))
}

func TestGapEncodeDecodeRoundTrip(t *testing.T) {
	g := Gap{
		ReaderId: guid.NewEntityId(5, guid.KindReaderNoKey),
		WriterId: guid.NewEntityId(6, guid.KindWriterWithKey),
		GapStart: 20,
		GapList:  NewSequenceNumberSet(20, []SequenceNumber{21, 22}),
	}
	buf := EncodeGap(g, false)

	got, err := DecodeGap(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, g.ReaderId, got.ReaderId)
	assert.Equal(t, g.WriterId, got.WriterId)
	assert.Equal(t, g.GapStart, got.GapStart)
	assert.True(t, got.GapList.Test(21))
}

func TestDataEncodeDecodeRoundTripWithoutInlineQos(t *testing.T) {
	d := Data{
		ReaderId:         guid.NewEntityId(7, guid.KindReaderNoKey),
		WriterId:         guid.NewEntityId(8, guid.KindWriterWithKey),
		WriterSN:         55,
		SerializedPayload: []byte("payload"),
	}
	buf := EncodeData(d, true)

	const flagData = 1 << 2
	got, err := DecodeData(buf, FlagEndianness|flagData)
	require.NoError(t, err)
	assert.Equal(t, d.ReaderId, got.ReaderId)
	assert.Equal(t, d.WriterId, got.WriterId)
	assert.Equal(t, d.WriterSN, got.WriterSN)
	assert.Equal(t, d.SerializedPayload, got.SerializedPayload)
	assert.Nil(t, got.KeyHash)
}

func TestDataDecodeRejectsTruncatedBuffer(t *testing.T) {
	_, err := DecodeData([]byte{0x00, 0x00}, FlagEndianness)
	assert.Error(t, err)
}

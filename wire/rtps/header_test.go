package rtps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godds/core/guid"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	var prefix guid.Prefix
	copy(prefix[:], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})

	h := Header{Version: Version25, Vendor: VendorGodds, GuidPrefix: prefix}
	buf := h.Encode()
	require.Len(t, buf, HeaderSize)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf, []byte("XXXX"))
	_, err := DecodeHeader(buf)
	assert.Error(t, err)
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	assert.Error(t, err)
}

func TestSubmessageHeaderRoundTripPerEndianness(t *testing.T) {
	for _, little := range []bool{true, false} {
		h := SubmessageHeader{Kind: KindHeartbeat, Flags: FlagEndianness, OctetsToNextHeader: 28}
		if !little {
			h.Flags = 0
		}
		buf := EncodeSubmessageHeader(h, little)
		require.Len(t, buf, 4)

		got, err := DecodeSubmessageHeader(buf)
		require.NoError(t, err)
		assert.Equal(t, h, got)
		assert.Equal(t, little, got.Flags.LittleEndian())
	}
}

func TestDecodeSubmessageHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeSubmessageHeader([]byte{0x07})
	assert.Error(t, err)
}

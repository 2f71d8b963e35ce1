package cdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameterListRoundTripPadsValuesToFourBytes(t *testing.T) {
	w := NewWriter(LittleEndian)
	params := []Parameter{
		{Id: PidTopicName, Value: []byte("Sensors")},
		{Id: PidKeyHash, Value: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}},
	}
	WriteParameterList(w, params)

	r := NewReader(w.Bytes(), LittleEndian)
	got, err := ReadParameterList(r)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, PidTopicName, got[0].Id)
	assert.Equal(t, []byte("Sensors\x00"), got[0].Value, "the trailing pad byte is part of the raw parameter value")
	assert.Equal(t, PidKeyHash, got[1].Id)
	assert.Equal(t, params[1].Value, got[1].Value)
	assert.Zero(t, r.Remaining())
}

func TestFindReturnsFalseForMissingParameter(t *testing.T) {
	_, ok := Find([]Parameter{{Id: PidTopicName}}, PidTypeName)
	assert.False(t, ok)
}

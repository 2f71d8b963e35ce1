package guid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStringRoundTrip(t *testing.T) {
	var g GUID
	g.Prefix[0] = 0xab
	g.EntityId = NewEntityId(7, KindWriterWithKey)

	parsed, err := Parse(g.String())
	require.NoError(t, err)
	assert.Equal(t, g, parsed)
}

func TestParseRejectsMalformedInput(t *testing.T) {
	_, err := Parse("not-a-guid")
	assert.Error(t, err)

	_, err = Parse("ab:cd")
	assert.Error(t, err)
}

func TestEntityKindIsBuiltin(t *testing.T) {
	assert.True(t, KindBuiltinParticipant.IsBuiltin())
	assert.False(t, KindWriterWithKey.IsBuiltin())
}

func TestLessOrdersByPrefixThenEntityId(t *testing.T) {
	a := GUID{EntityId: NewEntityId(1, KindWriterWithKey)}
	b := a
	b.Prefix[0] = 1
	assert.True(t, Less(a, b))
	assert.False(t, Less(b, a))
}

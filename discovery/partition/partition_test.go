package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchBothDefaultPartition(t *testing.T) {
	assert.True(t, Match(nil, nil))
}

func TestMatchExactName(t *testing.T) {
	assert.True(t, Match([]string{"Sensors"}, []string{"Sensors"}))
	assert.False(t, Match([]string{"Sensors"}, []string{"Actuators"}))
}

func TestMatchWildcard(t *testing.T) {
	assert.True(t, Match([]string{"Sensors.*"}, []string{"Sensors.Temperature"}))
	assert.True(t, Match([]string{"Sensors.Temperature"}, []string{"Sensors.*"}))
}

func TestMatchAnyOfMultiplePartitions(t *testing.T) {
	assert.True(t, Match([]string{"A", "B"}, []string{"C", "B"}))
	assert.False(t, Match([]string{"A", "B"}, []string{"C", "D"}))
}

func TestMatchQuestionMarkWildcard(t *testing.T) {
	assert.True(t, Match([]string{"Zone?"}, []string{"Zone1"}))
	assert.False(t, Match([]string{"Zone?"}, []string{"Zone10"}))
}

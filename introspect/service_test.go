package introspect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/godds/core/guid"
)

type fakeSource struct {
	participants []ParticipantSummary
	writers      map[guid.GUID]WriterSummary
	matchSets    map[guid.GUID]MatchSetSummary
}

func (f *fakeSource) ListParticipants() []ParticipantSummary { return f.participants }

func (f *fakeSource) GetWriterState(g guid.GUID) (WriterSummary, bool) {
	w, ok := f.writers[g]
	return w, ok
}

func (f *fakeSource) GetMatchSet(g guid.GUID) (MatchSetSummary, bool) {
	m, ok := f.matchSets[g]
	return m, ok
}

func testGUID(n byte) guid.GUID {
	var g guid.GUID
	g.Prefix[0] = n
	g.EntityId = guid.NewEntityId(uint32(n), guid.KindWriterWithKey)
	return g
}

func TestListParticipantsReportsEveryEntry(t *testing.T) {
	src := &fakeSource{participants: []ParticipantSummary{
		{GUID: testGUID(1), IsProxy: false, Created: time.Unix(0, 0)},
		{GUID: testGUID(2), IsProxy: true, Created: time.Unix(0, 0)},
	}}
	svc := NewDomainStatsService(src, nil)

	resp, err := svc.ListParticipants(context.Background(), &structpb.Struct{})
	require.NoError(t, err)

	list := resp.Fields["participants"].GetListValue().Values
	assert.Len(t, list, 2)
}

func TestGetWriterStateReturnsNotFoundForUnknownGUID(t *testing.T) {
	src := &fakeSource{writers: map[guid.GUID]WriterSummary{}}
	svc := NewDomainStatsService(src, nil)

	req, err := structpb.NewStruct(map[string]any{"guid": testGUID(9).String()})
	require.NoError(t, err)

	_, err = svc.GetWriterState(context.Background(), req)
	assert.Error(t, err)
}

func TestGetWriterStateReportsKnownWriter(t *testing.T) {
	g := testGUID(3)
	src := &fakeSource{writers: map[guid.GUID]WriterSummary{
		g: {GUID: g, Topic: "Sensors", MinSeq: 1, MaxSeq: 10, UnackedBytes: 512, MatchCount: 2},
	}}
	svc := NewDomainStatsService(src, nil)

	req, err := structpb.NewStruct(map[string]any{"guid": g.String()})
	require.NoError(t, err)

	resp, err := svc.GetWriterState(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Sensors", resp.Fields["topic"].GetStringValue())
	assert.Equal(t, float64(10), resp.Fields["max_seq"].GetNumberValue())
}

func TestGetMatchSetReportsReaders(t *testing.T) {
	writer := testGUID(4)
	reader := testGUID(5)
	src := &fakeSource{matchSets: map[guid.GUID]MatchSetSummary{
		writer: {Writer: writer, Readers: []ReaderMatchSummary{{Reader: reader, Alive: true}}},
	}}
	svc := NewDomainStatsService(src, nil)

	req, err := structpb.NewStruct(map[string]any{"guid": writer.String()})
	require.NoError(t, err)

	resp, err := svc.GetMatchSet(context.Background(), req)
	require.NoError(t, err)
	readers := resp.Fields["readers"].GetListValue().Values
	require.Len(t, readers, 1)
	assert.True(t, readers[0].GetStructValue().Fields["alive"].GetBoolValue())
}

func TestGetWriterStateRequiresGUIDField(t *testing.T) {
	svc := NewDomainStatsService(&fakeSource{}, nil)
	_, err := svc.GetWriterState(context.Background(), &structpb.Struct{})
	assert.Error(t, err)
}

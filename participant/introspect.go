package participant

import (
	"github.com/godds/core/entityindex"
	"github.com/godds/core/guid"
	"github.com/godds/core/introspect"
	"github.com/godds/core/matching"
)

// ListParticipants implements introspect.Source: every local and proxy
// participant entity currently in the index.
func (p *Participant) ListParticipants() []introspect.ParticipantSummary {
	var out []introspect.ParticipantSummary
	for _, kind := range [...]entityindex.Kind{entityindex.KindParticipant, entityindex.KindProxyParticipant} {
		p.index.Range(kind, func(e entityindex.Entity) bool {
			out = append(out, introspect.ParticipantSummary{
				GUID:    e.GUID(),
				IsProxy: kind == entityindex.KindProxyParticipant,
				Created: e.Base().Created(),
			})
			return true
		})
	}
	return out
}

// GetWriterState implements introspect.Source: a point-in-time snapshot
// of one local writer's history cache and match count.
func (p *Participant) GetWriterState(g guid.GUID) (introspect.WriterSummary, bool) {
	p.mu.RLock()
	w, ok := p.writers[g]
	p.mu.RUnlock()
	if !ok {
		return introspect.WriterSummary{}, false
	}

	st := w.Cache.GetState()
	return introspect.WriterSummary{
		GUID:         g,
		Topic:        w.Topic,
		MinSeq:       int64(st.MinSeq),
		MaxSeq:       int64(st.MaxSeq),
		UnackedBytes: st.UnackedBytes,
		MatchCount:   p.matcher.WriterMatches(g).Len(),
	}, true
}

// GetMatchSet implements introspect.Source: every reader currently
// matched to the named writer, with each match's liveliness flag.
func (p *Participant) GetMatchSet(g guid.GUID) (introspect.MatchSetSummary, bool) {
	p.mu.RLock()
	_, ok := p.writers[g]
	p.mu.RUnlock()
	if !ok {
		return introspect.MatchSetSummary{}, false
	}

	summary := introspect.MatchSetSummary{Writer: g}
	p.matcher.WriterMatches(g).Range(func(m *matching.WriterMatch) bool {
		summary.Readers = append(summary.Readers, introspect.ReaderMatchSummary{Reader: m.GUID, Alive: m.Alive()})
		return true
	})
	return summary, true
}

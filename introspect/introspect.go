// Package introspect exposes a read-only diagnostic surface over a
// running participant's entity index, match sets, and per-writer WHC
// state, modeled on the shape of a registry service that lists and
// inspects live objects by name (ListModules/GetModule) applied here to
// DDS entities instead of dataplane modules. spec.md §1 scopes the CLI
// and packaging surface out of the core; this package is the thin
// interface point the core exposes for that outer surface to use,
// nothing more.
package introspect

import (
	"time"

	"github.com/godds/core/guid"
)

// ParticipantSummary is one row of ListParticipants' result.
type ParticipantSummary struct {
	GUID    guid.GUID
	IsProxy bool
	Created time.Time
}

// WriterSummary is GetWriterState's result: a writer's WHC window and
// heartbeat/throttle bookkeeping, enough to diagnose a stalled reliable
// writer without touching production traffic.
type WriterSummary struct {
	GUID         guid.GUID
	Topic        string
	MinSeq       int64
	MaxSeq       int64
	UnackedBytes int64
	MatchCount   int
}

// MatchSetSummary is GetMatchSet's result: every reader a writer is
// currently matched with, and whether each is considered alive.
type MatchSetSummary struct {
	Writer  guid.GUID
	Readers []ReaderMatchSummary
}

// ReaderMatchSummary is one entry of a MatchSetSummary.
type ReaderMatchSummary struct {
	Reader guid.GUID
	Alive  bool
}

// Source is implemented by the participant package, which owns the
// entity index, matching engine, and WHC instances this package reports
// on. Keeping introspect's dependency on participant state behind this
// interface, rather than importing entityindex/matching/whc directly,
// means an introspection client (tests included) can supply a fake
// without standing up a whole participant.
type Source interface {
	ListParticipants() []ParticipantSummary
	GetWriterState(g guid.GUID) (WriterSummary, bool)
	GetMatchSet(g guid.GUID) (MatchSetSummary, bool)
}

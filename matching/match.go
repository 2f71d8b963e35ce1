package matching

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/godds/core/entityindex"
	"github.com/godds/core/guid"
	"github.com/godds/core/wire/rtps"
)

// VClock is a per-match monotonic version counter used to order
// concurrently-delivered liveliness notifications to one reader
// (spec.md §4.2, "Liveliness propagation"; glossary "Vclock").
type VClock struct{ v atomic.Uint64 }

// Next bumps and returns the new version.
func (c *VClock) Next() uint64 { return c.v.Add(1) }

// Current returns the version without bumping it.
func (c *VClock) Current() uint64 { return c.v.Load() }

// WriterMatch is the per-matched-reader record a writer keeps (the
// source's wr_prd_match/wr_rd_match).
type WriterMatch struct {
	Reader entityindex.Handle
	GUID   guid.GUID

	mu     sync.Mutex
	alive  bool
	vclock VClock
}

// SetAlive updates this match's alive flag and bumps its vclock,
// returning the new version so the caller can deliver it to the reader
// outside any writer-held lock.
func (m *WriterMatch) SetAlive(alive bool) (changed bool, version uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.alive == alive {
		return false, m.vclock.Current()
	}
	m.alive = alive
	return true, m.vclock.Next()
}

// Alive reports the match's current alive flag.
func (m *WriterMatch) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

// ReaderMatch is the per-matched-writer record a reader keeps (the
// source's prd_wr_match/rd_wr_match). Readers never originate
// liveliness state of their own — it always flows from the writer side
// (spec.md §4.2, "Liveliness propagation") — so unlike WriterMatch this
// carries no alive flag or vclock.
type ReaderMatch struct {
	Writer entityindex.Handle
	GUID   guid.GUID
}

// ReaderMatchSet is a reader's ordered set of matched writers, the
// mirror image of MatchSet without the writer-side aggregate or
// liveliness bookkeeping.
type ReaderMatchSet struct {
	mu      sync.Mutex
	entries []*ReaderMatch
}

// NewReaderMatchSet returns an empty reader match set.
func NewReaderMatchSet() *ReaderMatchSet { return &ReaderMatchSet{} }

// Insert adds a match for writer, keeping entries sorted by GUID.
func (s *ReaderMatchSet) Insert(m *ReaderMatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.entries), func(i int) bool { return !guid.Less(s.entries[i].GUID, m.GUID) })
	s.entries = append(s.entries, nil)
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = m
}

// Remove drops the match for writer, if present.
func (s *ReaderMatchSet) Remove(writer guid.GUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.entries {
		if m.GUID == writer {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of matched writers.
func (s *ReaderMatchSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// aggregate is the per-writer summary spec.md §3.3 requires be
// recomputed on every rotation of the match tree so that
// writer_max_drop_seq and "need heartbeat?" stay O(log n): the minimum
// and maximum sequence number any matched reliable reader still needs,
// whether any reliable reader's last-seen sequence equals the writer's
// maximum, whether at least one unacked reader exists, and whether
// every matched reader has replied to the most recent heartbeat.
type aggregate struct {
	minSeq                rtps.SequenceNumber
	maxSeq                rtps.SequenceNumber
	numReliableAtMax      int
	arbitraryUnackedReader bool
	allRepliedToHB        bool
}

// MatchSet is a writer's ordered set of matched readers (spec.md §3.3,
// "ordered tree of per-matched-reader match records"), kept as a
// GUID-sorted slice rather than a balanced tree: real match-set sizes
// are small (tens, not millions) so an O(n) insert/remove is cheaper in
// practice than maintaining tree-balance invariants in Go, and the
// aggregate below still updates in O(log n) searches + O(n) rebuild.
type MatchSet struct {
	mu      sync.Mutex
	entries []*WriterMatch
	agg     aggregate
}

// NewMatchSet returns an empty writer match set.
func NewMatchSet() *MatchSet { return &MatchSet{} }

// Insert adds a match for reader, keeping entries sorted by GUID.
func (s *MatchSet) Insert(m *WriterMatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.entries), func(i int) bool { return !guid.Less(s.entries[i].GUID, m.GUID) })
	s.entries = append(s.entries, nil)
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = m
}

// Remove drops the match for reader, if present.
func (s *MatchSet) Remove(reader guid.GUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.entries {
		if m.GUID == reader {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of matched readers.
func (s *MatchSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Range calls fn for each match in ascending GUID order, stopping early
// if fn returns false. The lock is released between calls so fn may
// itself call back into SetAlive without deadlocking — the behavior
// spec.md §4.2's liveliness walk requires.
func (s *MatchSet) Range(fn func(*WriterMatch) bool) {
	s.mu.Lock()
	snapshot := append([]*WriterMatch(nil), s.entries...)
	s.mu.Unlock()

	for _, m := range snapshot {
		if !fn(m) {
			return
		}
	}
}

// UpdateAggregate recomputes the writer's (min_seq, max_seq,
// num_reliable_readers_where_seq_equals_max, arbitrary_unacked_reader,
// all_have_replied_to_hb) summary from each match's reported
// last-acked sequence number and ack/heartbeat-reply state.
func (s *MatchSet) UpdateAggregate(maxSeq rtps.SequenceNumber, readerState func(*WriterMatch) (acked rtps.SequenceNumber, repliedToHB bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg := aggregate{maxSeq: maxSeq, allRepliedToHB: true}
	first := true
	for _, m := range s.entries {
		acked, repliedToHB := readerState(m)
		if first {
			agg.minSeq = acked
			first = false
		} else if acked < agg.minSeq {
			agg.minSeq = acked
		}
		if acked == maxSeq {
			agg.numReliableAtMax++
		}
		if acked < maxSeq {
			agg.arbitraryUnackedReader = true
		}
		if !repliedToHB {
			agg.allRepliedToHB = false
		}
	}
	s.agg = agg
}

// MaxDropSeq returns the sequence number below which every matched
// reliable reader has acknowledged — the writer_max_drop_seq value
// spec.md §3.3 calls out as O(log n) via the aggregate.
func (s *MatchSet) MaxDropSeq() rtps.SequenceNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.minSeq
}

// NeedsHeartbeat reports whether any matched reader still has
// unacknowledged data or has not replied to the last heartbeat.
func (s *MatchSet) NeedsHeartbeat() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.arbitraryUnackedReader || !s.agg.allRepliedToHB
}

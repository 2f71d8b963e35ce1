// Package whc implements the per-writer Writer History Cache described
// in spec.md §3.6 and §4.1: a store of published samples cross-indexed by
// sequence number (for retransmission) and by instance (for keep-last and
// transient-local semantics), grounded on Cyclone DDS's dds_whc.c.
//
// Sequence administration is kept as a doubly linked list of nodes
// partitioned into contiguous, non-overlapping intervals. The original
// implementation keys those intervals in an AVL tree; this port keeps
// them in a slice ordered by ascending minimum and gives every node a
// direct back-pointer to its owning interval, which removes the need to
// re-derive predecessor/successor intervals on every delete (see
// DESIGN.md for the tradeoff).
package whc

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/godds/core/ddserr"
	"github.com/godds/core/tkmap"
	"github.com/godds/core/wire/rtps"
)

// StatusKind classifies the sample being inserted, mirroring the
// DDSI_STATUSINFO bits carried by PID_STATUS_INFO (spec.md §4.1).
type StatusKind int

const (
	// StatusNormal is an ordinary application write.
	StatusNormal StatusKind = iota
	// StatusUnregister retires the sample's instance.
	StatusUnregister
	// StatusEmpty marks a sample with no payload (SDK_EMPTY) that is
	// placed in the sequence administration only, never in the
	// per-instance index.
	StatusEmpty
)

const maxFreelistSize = 8192

// node is one entry in the sequence administration.
type node struct {
	seq            rtps.SequenceNumber
	size           int
	totalBytes     int64 // cumulative whc.totalBytes as of this node's insertion
	unacked        bool
	borrowed       bool
	lastRexmitTime time.Time
	rexmitCount    uint32
	payload        []byte
	expiry         time.Time
	hasExpiry      bool
	lifespanIdx    int // position in the lifespan heap, -1 if not present

	idx    *idxnode
	idxPos int

	prevSeq, nextSeq *node
	intv             *interval
}

// interval is a maximal run of contiguous sequence numbers currently
// present in the WHC.
type interval struct {
	min, maxp1 rtps.SequenceNumber
	first, last *node
}

func (iv *interval) empty() bool { return iv.first == nil }

// idxnode is the per-instance circular history used for keep-last and
// transient-local bookkeeping.
type idxnode struct {
	instance tkmap.InstanceHandle
	pruneSeq rtps.SequenceNumber
	headidx  int
	hist     []*node
}

// Sample is the caller-facing view of a WHC entry: a snapshot of the
// fields relevant to retransmission and historical delivery, decoupled
// from the internal node so the WHC may freely recycle its storage.
type Sample struct {
	Seq            rtps.SequenceNumber
	Payload        []byte
	Unacked        bool
	RexmitCount    uint32
	LastRexmitTime time.Time

	src *node // set only by RemoveAckedMessages, consumed by FreeDeferredFreeList
}

// State is the WHC's externally observable summary (spec.md §4.1
// get_state).
type State struct {
	MinSeq       rtps.SequenceNumber
	MaxSeq       rtps.SequenceNumber
	UnackedBytes int64
}

// Config describes the fixed, QoS-derived parameters of a WHC, set once
// at construction (spec.md §3.6).
type Config struct {
	// HistoryDepth is KEEP_LAST's depth, or 0 for KEEP_ALL.
	HistoryDepth uint32
	// TransientLocalDepth is durability_service.history.depth, or 0 for
	// KEEP_ALL / not transient-local.
	TransientLocalDepth uint32
	// IsTransientLocal marks a writer with TRANSIENT_LOCAL durability.
	IsTransientLocal bool
	// HasDeadline disables the no-index fast path in
	// RemoveAckedMessages, since deadline tracking needs per-instance
	// bookkeeping even for KEEP_ALL writers.
	HasDeadline bool
	// FragmentSize and SampleOverhead drive the per-sample size
	// estimate used for unacked_bytes accounting (spec.md §4.3).
	FragmentSize   int
	SampleOverhead int
}

// WHC is the per-writer history cache (spec.md §3.6).
type WHC struct {
	mu  sync.Mutex
	cfg Config

	idxDepth uint32

	seqHash map[rtps.SequenceNumber]*node
	idxHash map[tkmap.InstanceHandle]*idxnode

	intervals []*interval
	openIntv  *interval
	maxSeqNode *node

	seqSize      uint32
	maxDropSeq   rtps.SequenceNumber
	totalBytes   int64
	unackedBytes int64

	freelist []*node

	lifespan lifespanHeap
}

// New constructs an empty WHC for a writer with the given configuration.
func New(cfg Config) *WHC {
	if cfg.FragmentSize <= 0 {
		cfg.FragmentSize = 1344
	}
	if cfg.SampleOverhead <= 0 {
		cfg.SampleOverhead = 80
	}
	idxDepth := cfg.HistoryDepth
	if cfg.TransientLocalDepth > idxDepth {
		idxDepth = cfg.TransientLocalDepth
	}

	openIntv := &interval{min: 1, maxp1: 1}
	w := &WHC{
		cfg:       cfg,
		idxDepth:  idxDepth,
		seqHash:   make(map[rtps.SequenceNumber]*node),
		idxHash:   make(map[tkmap.InstanceHandle]*idxnode),
		intervals: []*interval{openIntv},
		openIntv:  openIntv,
	}
	heap.Init(&w.lifespan)
	return w
}

func (w *WHC) intervalIndex(iv *interval) int {
	for i, cand := range w.intervals {
		if cand == iv {
			return i
		}
	}
	return -1
}

func (w *WHC) computeSize(payload []byte) int {
	sz := len(payload)
	frags := (sz + w.cfg.FragmentSize - 1) / w.cfg.FragmentSize
	if frags == 0 {
		frags = 1
	}
	return sz + frags*w.cfg.SampleOverhead
}

func (w *WHC) allocNode() *node {
	if n := len(w.freelist); n > 0 {
		fn := w.freelist[n-1]
		w.freelist = w.freelist[:n-1]
		*fn = node{lifespanIdx: -1}
		return fn
	}
	return &node{lifespanIdx: -1}
}

func (w *WHC) recycleNode(n *node) {
	*n = node{lifespanIdx: -1}
	if len(w.freelist) < maxFreelistSize {
		w.freelist = append(w.freelist, n)
	}
}

// insertSeq unconditionally places a node into the sequence
// administration, mirroring whc_default_insert_seq.
func (w *WHC) insertSeq(maxDropSeq, seq rtps.SequenceNumber, payload []byte) *node {
	n := w.allocNode()
	n.seq = seq
	n.unacked = seq > maxDropSeq
	n.payload = payload
	n.size = w.computeSize(payload)
	n.prevSeq = w.maxSeqNode
	if n.prevSeq != nil {
		n.prevSeq.nextSeq = n
	}
	w.maxSeqNode = n

	w.totalBytes += int64(n.size)
	n.totalBytes = w.totalBytes
	if n.unacked {
		w.unackedBytes += int64(n.size)
	}

	w.seqHash[seq] = n

	switch {
	case w.openIntv.empty():
		w.openIntv.min = seq
		w.openIntv.maxp1 = seq + 1
		w.openIntv.first, w.openIntv.last = n, n
		n.intv = w.openIntv
	case w.openIntv.maxp1 == seq:
		w.openIntv.last = n
		w.openIntv.maxp1++
		n.intv = w.openIntv
	default:
		fresh := &interval{min: seq, maxp1: seq + 1, first: n, last: n}
		w.intervals = append(w.intervals, fresh)
		w.openIntv = fresh
		n.intv = fresh
	}

	w.seqSize++
	return n
}

// whcnInTlidx reports whether n still falls within the transient-local
// retention window of its instance (spec.md §4.1 whcn_in_tlidx).
func (w *WHC) whcnInTlidx(n *node) bool {
	idxn := n.idx
	if idxn == nil {
		return false
	}
	d := idxn.headidx - n.idxPos
	if n.idxPos > idxn.headidx {
		d += int(w.idxDepth)
	}
	return uint32(d) < w.cfg.TransientLocalDepth
}

// unlinkFromAdmin removes n from the idx index, the unacked-bytes
// accounting, and the sequence-hash index, and repairs the interval it
// belonged to (splitting or shrinking as needed). It does not touch n's
// position in the global doubly linked sequence list or the freelist —
// callers are responsible for both, since batch removal defers them.
func (w *WHC) unlinkFromAdmin(n *node) {
	if n.idx != nil {
		n.idx.hist[n.idxPos] = nil
		n.idx = nil
	}
	if n.unacked {
		w.unackedBytes -= int64(n.size)
		n.unacked = false
	}
	if n.hasExpiry {
		heap.Remove(&w.lifespan, n.lifespanIdx)
	}
	delete(w.seqHash, n.seq)

	iv := n.intv
	switch {
	case n == iv.first && n == iv.last && iv != w.openIntv:
		idx := w.intervalIndex(iv)
		w.intervals = append(w.intervals[:idx], w.intervals[idx+1:]...)
	case n == iv.first:
		iv.first = n.nextSeq
		iv.min++
	case n == iv.last:
		iv.last = n.prevSeq
		iv.maxp1--
	default:
		fresh := &interval{min: n.seq + 1, maxp1: iv.maxp1, first: n.nextSeq, last: iv.last}
		iv.last = n.prevSeq
		iv.maxp1 = n.seq
		for cur := fresh.first; cur != nil; cur = cur.nextSeq {
			cur.intv = fresh
			if cur == fresh.last {
				break
			}
		}
		idx := w.intervalIndex(iv)
		w.intervals = append(w.intervals, nil)
		copy(w.intervals[idx+2:], w.intervals[idx+1:])
		w.intervals[idx+1] = fresh
		if iv == w.openIntv {
			w.openIntv = fresh
		}
	}
	n.intv = nil
}

// deleteOneImmediate fully removes n — from the admin structures, the
// global sequence list, and the node count — and recycles its storage.
// Used for single-node prunes triggered during Insert.
func (w *WHC) deleteOneImmediate(n *node) {
	w.unlinkFromAdmin(n)
	if n.prevSeq != nil {
		n.prevSeq.nextSeq = n.nextSeq
	}
	if n.nextSeq != nil {
		n.nextSeq.prevSeq = n.prevSeq
	}
	n.nextSeq = nil
	w.seqSize--
	w.recycleNode(n)
}

func (w *WHC) deleteInstanceFromIdx(maxDropSeq rtps.SequenceNumber, idxn *idxnode) {
	delete(w.idxHash, idxn.instance)
	for i := range idxn.hist {
		oldn := idxn.hist[i]
		if oldn == nil {
			continue
		}
		oldn.idx = nil
		if oldn.seq <= maxDropSeq {
			w.deleteOneImmediate(oldn)
		}
	}
}

// findNextSeq returns the first node with sequence number greater than
// seq, or nil if none exists.
func (w *WHC) findNextSeq(seq rtps.SequenceNumber) *node {
	if n, ok := w.seqHash[seq]; ok {
		return n.nextSeq
	}
	for _, iv := range w.intervals {
		if iv.min > seq && !iv.empty() {
			return iv.first
		}
	}
	return nil
}

func (w *WHC) findMaxProcedurally() *node {
	if w.seqSize == 0 {
		return nil
	}
	if !w.openIntv.empty() {
		return w.openIntv.last
	}
	idx := w.intervalIndex(w.openIntv)
	if idx <= 0 {
		return nil
	}
	return w.intervals[idx-1].last
}

// Insert places a newly published sample into the WHC (spec.md §4.1).
// seq must exceed every previously inserted sequence number and
// maxDropSeq must not decrease across calls.
func (w *WHC) Insert(maxDropSeq, seq rtps.SequenceNumber, expiry time.Time, payload []byte, instance tkmap.InstanceHandle, status StatusKind) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxSeqNode != nil && seq <= w.maxSeqNode.seq {
		return fmt.Errorf("whc: seq %d does not exceed last inserted seq %d: %w", seq, w.maxSeqNode.seq, ddserr.ErrPreconditionNotMet)
	}
	if maxDropSeq < w.maxDropSeq {
		return fmt.Errorf("whc: max_drop_seq %d regressed below %d: %w", maxDropSeq, w.maxDropSeq, ddserr.ErrPreconditionNotMet)
	}

	n := w.insertSeq(maxDropSeq, seq, payload)
	if !expiry.IsZero() {
		n.expiry = expiry
		n.hasExpiry = true
		heap.Push(&w.lifespan, n)
	}

	if status == StatusEmpty {
		return nil
	}

	idxn, exists := w.idxHash[instance]
	switch {
	case exists && status == StatusUnregister:
		w.deleteInstanceFromIdx(maxDropSeq, idxn)
		if n.seq <= maxDropSeq {
			prev := n.prevSeq
			w.deleteOneImmediate(n)
			w.maxSeqNode = prev
		}

	case exists:
		if w.idxDepth > 0 {
			idxn.headidx = (idxn.headidx + 1) % int(w.idxDepth)
			oldn := idxn.hist[idxn.headidx]
			if oldn != nil {
				oldn.idx = nil
			}
			idxn.hist[idxn.headidx] = n
			n.idx = idxn
			n.idxPos = idxn.headidx

			if oldn != nil &&
				(w.cfg.HistoryDepth > 0 || oldn.seq <= maxDropSeq) &&
				(!w.cfg.IsTransientLocal || w.cfg.TransientLocalDepth > 0) {
				w.deleteOneImmediate(oldn)
			}

			if seq <= maxDropSeq && w.cfg.TransientLocalDepth > 0 && w.idxDepth > w.cfg.TransientLocalDepth {
				pos := (idxn.headidx + int(w.idxDepth) - int(w.cfg.TransientLocalDepth)) % int(w.idxDepth)
				if oldn2 := idxn.hist[pos]; oldn2 != nil {
					w.deleteOneImmediate(oldn2)
				}
			}
		}

	case status != StatusUnregister:
		idxn = &idxnode{instance: instance, hist: make([]*node, w.idxDepth)}
		if w.idxDepth > 0 {
			idxn.hist[0] = n
			n.idx = idxn
			n.idxPos = 0
		}
		w.idxHash[instance] = idxn

	default: // !exists && status == StatusUnregister
		if n.seq <= maxDropSeq {
			prev := n.prevSeq
			w.deleteOneImmediate(n)
			w.maxSeqNode = prev
		}
	}

	return nil
}

// RemoveAckedMessages advances the acknowledgment boundary, dropping
// samples no longer needed for retransmission or transient-local replay
// (spec.md §4.1). It returns the dropped samples — which the caller must
// eventually hand to FreeDeferredFreeList — and the new WHC state.
func (w *WHC) RemoveAckedMessages(maxDropSeq rtps.SequenceNumber) ([]Sample, State) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var dropped []*node
	var count uint32

	// The no-index fast path assumes the sequence administration is a
	// single contiguous interval, which insert-time pruning preserves
	// except for the rare case of an unregister sample that arrives
	// already fully acknowledged (spec.md §9, "pretend everything
	// acked"); fall back to the general path when that has left a gap.
	if w.idxDepth == 0 && !w.cfg.HasDeadline && !w.cfg.IsTransientLocal && len(w.intervals) == 1 {
		dropped, count = w.removeAckedNoIdx(maxDropSeq)
	} else {
		dropped, count = w.removeAckedFull(maxDropSeq)
	}
	_ = count

	samples := make([]Sample, len(dropped))
	for i, n := range dropped {
		samples[i] = Sample{
			Seq:            n.seq,
			Payload:        n.payload,
			Unacked:        n.unacked,
			RexmitCount:    n.rexmitCount,
			LastRexmitTime: n.lastRexmitTime,
			src:            n,
		}
	}
	return samples, w.stateLocked()
}

func (w *WHC) removeAckedNoIdx(maxDropSeq rtps.SequenceNumber) ([]*node, uint32) {
	if maxDropSeq <= w.maxDropSeq || w.maxSeqNode == nil {
		if maxDropSeq > w.maxDropSeq {
			w.maxDropSeq = maxDropSeq
		}
		return nil, 0
	}

	intv := w.openIntv
	cutNode, ok := w.seqHash[maxDropSeq]
	if !ok {
		if maxDropSeq < intv.min {
			w.maxDropSeq = maxDropSeq
			return nil, 0
		}
		cutNode = w.maxSeqNode
	}

	first := intv.first
	ndropped := uint32(cutNode.seq-intv.min) + 1

	intv.first = cutNode.nextSeq
	intv.min = maxDropSeq + 1
	if cutNode.nextSeq == nil {
		w.maxSeqNode = nil
		intv.maxp1 = intv.min
	} else {
		cutNode.nextSeq.prevSeq = nil
	}
	cutNode.nextSeq = nil

	w.unackedBytes -= cutNode.totalBytes - first.totalBytes + int64(first.size)

	var list []*node
	for cur := first; cur != nil; {
		next := cur.nextSeq
		delete(w.seqHash, cur.seq)
		if cur.hasExpiry {
			heap.Remove(&w.lifespan, cur.lifespanIdx)
		}
		cur.unacked = false
		cur.intv = nil
		list = append(list, cur)
		cur = next
	}

	w.seqSize -= ndropped
	w.maxDropSeq = maxDropSeq
	return list, ndropped
}

func (w *WHC) removeAckedFull(maxDropSeq rtps.SequenceNumber) ([]*node, uint32) {
	cur := w.findNextSeq(w.maxDropSeq)

	if w.cfg.IsTransientLocal && w.cfg.TransientLocalDepth == 0 {
		for c := cur; c != nil && c.seq <= maxDropSeq; c = c.nextSeq {
			if c.unacked {
				w.unackedBytes -= int64(c.size)
				c.unacked = false
			}
		}
		w.maxDropSeq = maxDropSeq
		return nil, 0
	}

	var deferred []*node
	var ndropped uint32
	var prevSeq *node
	if cur != nil {
		prevSeq = cur.prevSeq
	}

	for cur != nil && cur.seq <= maxDropSeq {
		if w.whcnInTlidx(cur) {
			if cur.unacked {
				w.unackedBytes -= int64(cur.size)
				cur.unacked = false
			}
			if prevSeq != nil {
				prevSeq.nextSeq = cur
			}
			cur.prevSeq = prevSeq
			prevSeq = cur
			cur = cur.nextSeq
		} else {
			next := cur.nextSeq
			w.unlinkFromAdmin(cur)
			deferred = append(deferred, cur)
			ndropped++
			cur = next
		}
	}
	if prevSeq != nil {
		prevSeq.nextSeq = cur
	}
	if cur != nil {
		cur.prevSeq = prevSeq
	}
	w.seqSize -= ndropped

	if w.cfg.TransientLocalDepth > 0 && w.idxDepth > w.cfg.TransientLocalDepth {
		cur2 := w.findNextSeq(w.maxDropSeq)
		for cur2 != nil && cur2.seq <= maxDropSeq {
			next2 := cur2.nextSeq
			idxn := cur2.idx
			if idxn != nil && idxn.pruneSeq != maxDropSeq {
				idxn.pruneSeq = maxDropSeq
				idx := idxn.headidx
				cnt := int(w.idxDepth - w.cfg.TransientLocalDepth)
				for ; cnt > 0; cnt-- {
					idx = (idx + 1) % int(w.idxDepth)
					if oldn := idxn.hist[idx]; oldn != nil {
						w.deleteOneImmediate(oldn)
					}
				}
			}
			cur2 = next2
		}
	}

	w.maxSeqNode = w.findMaxProcedurally()
	w.maxDropSeq = maxDropSeq
	return deferred, ndropped
}

// FreeDeferredFreeList releases samples previously returned by
// RemoveAckedMessages, recycling their backing storage for reuse by a
// later Insert (spec.md §4.1).
func (w *WHC) FreeDeferredFreeList(samples []Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, s := range samples {
		if s.src != nil {
			w.recycleNode(s.src)
		}
	}
}

func (w *WHC) stateLocked() State {
	if w.seqSize == 0 {
		return State{}
	}
	return State{
		MinSeq:       w.intervals[0].min,
		MaxSeq:       w.maxSeqNode.seq,
		UnackedBytes: w.unackedBytes,
	}
}

// GetState returns the WHC's current {min_seq, max_seq, unacked_bytes}
// summary (spec.md §4.1).
func (w *WHC) GetState() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

// BorrowSample looks up seq for retransmission, marking it borrowed so a
// concurrent retransmit attempt coalesces instead of double-sending
// (spec.md §4.1, §4.3 "Retransmission"): a sample that is already
// borrowed is reported as unavailable until ReturnSample releases it.
func (w *WHC) BorrowSample(seq rtps.SequenceNumber) (Sample, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, ok := w.seqHash[seq]
	if !ok || n.borrowed {
		return Sample{}, false
	}
	n.borrowed = true
	return Sample{Seq: n.seq, Payload: n.payload, Unacked: n.unacked, RexmitCount: n.rexmitCount, LastRexmitTime: n.lastRexmitTime}, true
}

// BorrowSampleByInstance returns the most recent sample of the given
// instance, for by-key retransmission lookups (spec.md §4.1
// borrow_sample_key, simplified to look up by the already-resolved
// instance handle rather than by re-serializing the key). It reports
// false for a writer that keeps no per-instance history (KEEP_ALL and
// not transient-local).
func (w *WHC) BorrowSampleByInstance(instance tkmap.InstanceHandle) (Sample, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	idxn, ok := w.idxHash[instance]
	if !ok || len(idxn.hist) == 0 {
		return Sample{}, false
	}
	n := idxn.hist[idxn.headidx]
	if n == nil {
		return Sample{}, false
	}
	n.borrowed = true
	return Sample{Seq: n.seq, Payload: n.payload, Unacked: n.unacked, RexmitCount: n.rexmitCount, LastRexmitTime: n.lastRexmitTime}, true
}

// ReturnSample releases a sample borrowed via BorrowSample,
// BorrowSampleByInstance, or a SampleIterator, optionally updating its
// retransmit bookkeeping.
func (w *WHC) ReturnSample(sample Sample, updateRetransmitInfo bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, ok := w.seqHash[sample.Seq]
	if !ok {
		return
	}
	n.borrowed = false
	if updateRetransmitInfo {
		n.rexmitCount = sample.RexmitCount
		n.lastRexmitTime = sample.LastRexmitTime
	}
}

// SampleIterator drives historical-data delivery to a newly matched
// transient-local reader, yielding samples in sequence order (spec.md
// §4.1 sample_iter_init / sample_iter_borrow_next).
type SampleIterator struct {
	w     *WHC
	first bool
	cur   rtps.SequenceNumber
}

// NewSampleIterator returns an iterator starting before the first
// sample in the WHC.
func (w *WHC) NewSampleIterator() *SampleIterator {
	return &SampleIterator{w: w, first: true}
}

// BorrowNext returns the next sample in sequence order, implicitly
// returning the previously yielded one (without updating its retransmit
// info, matching the source's sample_iter_borrow_next).
func (it *SampleIterator) BorrowNext() (Sample, bool) {
	it.w.mu.Lock()
	defer it.w.mu.Unlock()

	var seq rtps.SequenceNumber
	if !it.first {
		seq = it.cur
		if n, ok := it.w.seqHash[seq]; ok {
			n.borrowed = false
		}
	} else {
		it.first = false
		seq = 0
	}

	n := it.w.findNextSeq(seq)
	if n == nil {
		return Sample{}, false
	}
	n.borrowed = true
	it.cur = n.seq
	return Sample{Seq: n.seq, Payload: n.payload, Unacked: n.unacked, RexmitCount: n.rexmitCount, LastRexmitTime: n.lastRexmitTime}, true
}

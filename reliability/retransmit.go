package reliability

import (
	"sync"
	"time"

	"github.com/godds/core/whc"
	"github.com/godds/core/wire/rtps"
)

// Fragment is one piece of an oversize sample, split for retransmission
// at FragmentSize boundaries (spec.md §4.3, "Retransmission").
type Fragment struct {
	Seq   rtps.SequenceNumber
	Index int
	Total int
	Data  []byte
}

// BurstLimiter caps the total bytes retransmitted in one acknack
// response, per spec.md §4.3: the burst size is
// min(min_receive_buffer_size*2/3, max_rexmit_burst_size), scaled up by
// init_transmit_extra_pct for a sample never transmitted before.
type BurstLimiter struct {
	MinReceiveBufferSize int64
	MaxBurstSize         int64
	InitExtraPct         int
}

// Limit returns the byte budget for one retransmission burst. forInit
// selects the "never transmitted before" scaling.
func (b BurstLimiter) Limit(forInit bool) int64 {
	limit := b.MinReceiveBufferSize * 2 / 3
	if b.MaxBurstSize > 0 && b.MaxBurstSize < limit {
		limit = b.MaxBurstSize
	}
	if forInit && b.InitExtraPct > 0 {
		limit += limit * int64(b.InitExtraPct) / 100
	}
	return limit
}

// Retransmitter processes incoming NACKs against one writer's WHC,
// coalescing in-flight retransmissions and respecting a burst byte
// budget (spec.md §4.3, "Retransmission").
type Retransmitter struct {
	whc          *whc.WHC
	fragmentSize int
	limiter      BurstLimiter

	mu        sync.Mutex
	inFlight  map[rtps.SequenceNumber]bool
}

// NewRetransmitter returns a retransmitter driving cache against fragmentSize
// fragmentation and limiter's burst budget.
func NewRetransmitter(cache *whc.WHC, fragmentSize int, limiter BurstLimiter) *Retransmitter {
	return &Retransmitter{whc: cache, fragmentSize: fragmentSize, limiter: limiter, inFlight: make(map[rtps.SequenceNumber]bool)}
}

// HandleNack processes one reader's negative acknowledgment of the
// given sequence numbers, returning the fragments to retransmit for
// each one not already in flight, capped at the burst byte budget. Each
// returned sample's retransmit count is incremented and its
// last-retransmission timestamp updated before borrowing completes.
func (r *Retransmitter) HandleNack(now time.Time, seqs []rtps.SequenceNumber, neverSentBefore map[rtps.SequenceNumber]bool) []Fragment {
	var out []Fragment
	var budget int64 = -1 // computed lazily on first newly-transmitted sample

	for _, seq := range seqs {
		r.mu.Lock()
		if r.inFlight[seq] {
			r.mu.Unlock()
			continue // another retransmit is already in flight; coalesce
		}
		r.mu.Unlock()

		sample, ok := r.whc.BorrowSample(seq)
		if !ok {
			continue
		}

		if budget < 0 {
			budget = r.limiter.Limit(neverSentBefore[seq])
		}
		if int64(len(sample.Payload)) > budget && len(out) > 0 {
			r.whc.ReturnSample(sample, false)
			break
		}
		budget -= int64(len(sample.Payload))

		r.mu.Lock()
		r.inFlight[seq] = true
		r.mu.Unlock()

		sample.RexmitCount++
		sample.LastRexmitTime = now
		r.whc.ReturnSample(sample, true)

		out = append(out, fragmentSample(seq, sample.Payload, r.fragmentSize)...)

		r.mu.Lock()
		delete(r.inFlight, seq)
		r.mu.Unlock()
	}
	return out
}

func fragmentSample(seq rtps.SequenceNumber, payload []byte, fragmentSize int) []Fragment {
	if fragmentSize <= 0 || len(payload) <= fragmentSize {
		return []Fragment{{Seq: seq, Index: 0, Total: 1, Data: payload}}
	}

	total := (len(payload) + fragmentSize - 1) / fragmentSize
	frags := make([]Fragment, 0, total)
	for i := 0; i < total; i++ {
		start := i * fragmentSize
		end := start + fragmentSize
		if end > len(payload) {
			end = len(payload)
		}
		frags = append(frags, Fragment{Seq: seq, Index: i, Total: total, Data: payload[start:end]})
	}
	return frags
}

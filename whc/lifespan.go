package whc

import "time"

// lifespanHeap orders nodes with a lifespan QoS deadline by ascending
// expiry, giving Insert/RemoveAckedMessages's admin structures an
// efficient way to find expired samples without a linear scan. This
// plays the role the source's fibonacci-heap lifespan handle plays,
// traded here for container/heap's simpler binary heap since the WHC
// never needs the decrease-key operation a fibonacci heap buys.
type lifespanHeap []*node

func (h lifespanHeap) Len() int { return len(h) }

func (h lifespanHeap) Less(i, j int) bool {
	return h[i].expiry.Before(h[j].expiry)
}

func (h lifespanHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].lifespanIdx = i
	h[j].lifespanIdx = j
}

func (h *lifespanHeap) Push(x any) {
	n := x.(*node)
	n.lifespanIdx = len(*h)
	*h = append(*h, n)
}

func (h *lifespanHeap) Pop() any {
	old := *h
	n := len(old)
	n0 := old[n-1]
	old[n-1] = nil
	n0.lifespanIdx = -1
	*h = old[:n-1]
	return n0
}

// PurgeExpired removes and returns, in ascending expiry order, every
// sample whose lifespan has elapsed by now (spec.md §4.1 "Lifespan
// expiry"). Expired samples are dropped outright; unlike
// RemoveAckedMessages, callers do not need to hand them back via
// FreeDeferredFreeList since lifespan expiry always fully recycles.
func (w *WHC) PurgeExpired(now time.Time) []Sample {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []Sample
	for len(w.lifespan) > 0 {
		n := w.lifespan[0]
		if !n.hasExpiry || now.Before(n.expiry) {
			break
		}
		out = append(out, Sample{Seq: n.seq, Payload: n.payload, Unacked: n.unacked})
		w.deleteOneImmediate(n)
	}
	return out
}

package participant

import (
	"iter"
	"sync"

	"github.com/godds/core/internal/bitset"
	"github.com/godds/core/internal/xiter"
	"github.com/godds/core/transport"
)

// LocatorTable assigns small integer indices to transport locators,
// shared across every writer a participant owns, so each writer's
// transmit and SSM address sets can be kept as compact bitsets rather
// than a growing, possibly duplicate-laden slice per writer.
type LocatorTable struct {
	mu      sync.Mutex
	byIndex []transport.Locator
	indexOf map[transport.Locator]uint32
}

// NewLocatorTable returns an empty locator table.
func NewLocatorTable() *LocatorTable {
	return &LocatorTable{indexOf: make(map[transport.Locator]uint32)}
}

// Index returns l's slot in the table, assigning it one on first use.
func (t *LocatorTable) Index(l transport.Locator) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if idx, ok := t.indexOf[l]; ok {
		return idx
	}
	idx := uint32(len(t.byIndex))
	t.byIndex = append(t.byIndex, l)
	t.indexOf[l] = idx
	return idx
}

func (t *LocatorTable) locator(idx uint32) (transport.Locator, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(idx) >= len(t.byIndex) {
		return transport.Locator{}, false
	}
	return t.byIndex[idx], true
}

// AddressSet is a writer's transmit address set or SSM address set:
// the locators it sends to, kept as a bitset over the participant's
// shared LocatorTable so two readers sharing a multicast group
// collapse to one bit instead of two slice entries.
type AddressSet struct {
	table *LocatorTable
	bits  bitset.TinyBitset
}

// NewAddressSet returns an empty address set backed by table.
func NewAddressSet(table *LocatorTable) *AddressSet {
	return &AddressSet{table: table}
}

// Add inserts l into the set.
func (a *AddressSet) Add(l transport.Locator) {
	a.bits.Insert(a.table.Index(l))
}

// Len reports how many distinct locators are in the set.
func (a *AddressSet) Len() int {
	return int(a.bits.Count())
}

func (a *AddressSet) locatorSeq() iter.Seq[transport.Locator] {
	return func(yield func(transport.Locator) bool) {
		for idx := range a.bits.Iter() {
			l, ok := a.table.locator(idx)
			if !ok {
				continue
			}
			if !yield(l) {
				return
			}
		}
	}
}

// Enumerate yields the set's locators paired with a stable rank in
// ascending locator-table index order. Rank 0 is the set's preferred
// single-destination fallback (see Primary).
func (a *AddressSet) Enumerate() iter.Seq2[int, transport.Locator] {
	return xiter.Enumerate(a.locatorSeq())
}

// Primary returns the set's rank-0 locator, the one a writer falls
// back to when a reliability destination decision calls for a single
// unicast destination rather than the whole set.
func (a *AddressSet) Primary() (transport.Locator, bool) {
	for _, l := range a.Enumerate() {
		return l, true
	}
	return transport.Locator{}, false
}

// Locators returns every locator currently in the set, in rank order.
func (a *AddressSet) Locators() []transport.Locator {
	out := make([]transport.Locator, 0, a.bits.Count())
	for _, l := range a.Enumerate() {
		out = append(out, l)
	}
	return out
}

package entityindex

// Handle is a generation-checked reference to an entity living in a
// slotMap, the replacement spec.md §9 calls for in place of the
// source's raw entity pointers: a writer's match record stores a
// Handle to its matched proxy-reader rather than a *ProxyReader, and
// every dereference revalidates the generation before use, so a handle
// captured before deletion fails safely instead of reading freed state.
type Handle struct {
	idx uint32
	gen uint32
}

// Valid reports whether h was ever issued by a slotMap. The zero Handle
// is never issued (slot 0 starts at generation 1 on first use), so it
// doubles as a "no entity" sentinel.
func (h Handle) Valid() bool { return h.gen != 0 }

type slot struct {
	entity Entity
	gen    uint32
}

// slotMap is an arena of entity slots addressed by Handle. Deleting an
// entry bumps its slot's generation and pushes the index onto a
// freelist for reuse, so the arena only grows when every existing slot
// is occupied.
type slotMap struct {
	slots []slot
	free  []uint32
}

func newSlotMap() *slotMap {
	return &slotMap{}
}

// insert stores e in a free (or new) slot and returns its handle.
func (m *slotMap) insert(e Entity) Handle {
	if n := len(m.free); n > 0 {
		idx := m.free[n-1]
		m.free = m.free[:n-1]
		m.slots[idx].entity = e
		return Handle{idx: idx, gen: m.slots[idx].gen}
	}
	idx := uint32(len(m.slots))
	m.slots = append(m.slots, slot{entity: e, gen: 1})
	return Handle{idx: idx, gen: 1}
}

// lookup returns the entity h refers to, or (nil, false) if h's
// generation no longer matches the slot's current occupant.
func (m *slotMap) lookup(h Handle) (Entity, bool) {
	if int(h.idx) >= len(m.slots) {
		return nil, false
	}
	s := &m.slots[h.idx]
	if s.gen != h.gen || s.entity == nil {
		return nil, false
	}
	return s.entity, true
}

// remove evicts the entity at h, bumping the slot's generation so every
// outstanding copy of h fails lookup from this point on.
func (m *slotMap) remove(h Handle) bool {
	if int(h.idx) >= len(m.slots) {
		return false
	}
	s := &m.slots[h.idx]
	if s.gen != h.gen || s.entity == nil {
		return false
	}
	s.entity = nil
	s.gen++
	m.free = append(m.free, h.idx)
	return true
}

package entityindex

import (
	"sort"
	"sync"

	"github.com/godds/core/guid"
)

// Index is the process-wide entity directory (spec.md §3.2): a
// many-reader/single-writer map from GUID to entity, backed by the slot
// map above, plus a topic-ordered enumeration index the matching engine
// walks when a newly discovered endpoint needs candidate peers.
//
// "Many-reader/single-writer per bucket" in spec.md §9 describes a
// sharded reader-writer lock tuned for the source's lock-free
// awake/asleep reader discipline; this port uses one sync.RWMutex for
// the whole index instead; see DESIGN.md for why per-bucket sharding
// was not worth porting.
type Index struct {
	mu     sync.RWMutex
	slots  *slotMap
	byGUID map[guid.GUID]Handle

	// byTopic holds, per topic name, the handles of every writer,
	// reader, proxy-writer, and proxy-reader attached to it, kept
	// sorted by GUID (guid.Less) so enumeration order is stable and
	// independent of map iteration order.
	byTopic map[string][]Handle
}

// New returns an empty entity index.
func New() *Index {
	return &Index{
		slots:   newSlotMap(),
		byGUID:  make(map[guid.GUID]Handle),
		byTopic: make(map[string][]Handle),
	}
}

// Insert adds e to the index and returns its handle. Inserting an
// entity whose GUID is already present replaces the previous entry,
// invalidating any handle held to it.
func (idx *Index) Insert(e Entity) Handle {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.byGUID[e.GUID()]; ok {
		idx.removeLocked(old)
	}

	h := idx.slots.insert(e)
	idx.byGUID[e.GUID()] = h
	if topic := topicOf(e); topic != "" {
		idx.insertTopicLocked(topic, h)
	}
	return h
}

func (idx *Index) insertTopicLocked(topic string, h Handle) {
	list := idx.byTopic[topic]
	i := sort.Search(len(list), func(i int) bool {
		ei, _ := idx.slots.lookup(list[i])
		return !guid.Less(ei.GUID(), entityGUIDFor(idx, h))
	})
	list = append(list, Handle{})
	copy(list[i+1:], list[i:])
	list[i] = h
	idx.byTopic[topic] = list
}

func entityGUIDFor(idx *Index, h Handle) guid.GUID {
	e, _ := idx.slots.lookup(h)
	return e.GUID()
}

// Lookup resolves h to its entity, failing if h has since been removed
// or superseded.
func (idx *Index) Lookup(h Handle) (Entity, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.slots.lookup(h)
}

// LookupGUID resolves a GUID directly, without needing a Handle on
// hand — the path discovery and wire decode use when a submessage
// carries only a GUID.
func (idx *Index) LookupGUID(g guid.GUID) (Entity, Handle, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	h, ok := idx.byGUID[g]
	if !ok {
		return nil, Handle{}, false
	}
	e, ok := idx.slots.lookup(h)
	return e, h, ok
}

// Remove evicts the entity at h.
func (idx *Index) Remove(h Handle) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.removeLocked(h)
}

func (idx *Index) removeLocked(h Handle) bool {
	e, ok := idx.slots.lookup(h)
	if !ok {
		return false
	}
	delete(idx.byGUID, e.GUID())
	if topic := topicOf(e); topic != "" {
		idx.removeTopicLocked(topic, h)
	}
	return idx.slots.remove(h)
}

func (idx *Index) removeTopicLocked(topic string, h Handle) {
	list := idx.byTopic[topic]
	for i, other := range list {
		if other == h {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(idx.byTopic, topic)
		return
	}
	idx.byTopic[topic] = list
}

// ByTopic returns every entity currently attached to topic, in
// ascending GUID order, skipping any handle that failed to resolve
// (should not happen under the index's own lock, but lookup stays
// defensive since matching may hold a handle captured earlier).
func (idx *Index) ByTopic(topic string) []Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	handles := idx.byTopic[topic]
	out := make([]Entity, 0, len(handles))
	for _, h := range handles {
		if e, ok := idx.slots.lookup(h); ok {
			out = append(out, e)
		}
	}
	return out
}

// Range calls fn for every entity of the given kind currently in the
// index, in unspecified order. Range stops early if fn returns false.
func (idx *Index) Range(kind Kind, fn func(Entity) bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for _, h := range idx.byGUID {
		e, ok := idx.slots.lookup(h)
		if !ok || e.Kind() != kind {
			continue
		}
		if !fn(e) {
			return
		}
	}
}

// Len returns the number of entities currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byGUID)
}

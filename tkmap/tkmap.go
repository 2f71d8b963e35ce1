// Package tkmap implements the key-instance map (TKMap): a shared,
// reference-counted mapping from a serialized key hash to the 64-bit
// instance handle used throughout the WHC and matching engine
// (spec.md §2, §3.2 "tk handle").
package tkmap

import (
	"encoding/binary"
	"sync"
)

// KeyHash is the 128-bit MD5 hash of a sample's serialized key fields,
// the value carried on the wire in PID_KEY_HASH.
type KeyHash [16]byte

// InstanceHandle is the 64-bit identifier assigned to all samples sharing
// a key value (spec.md §3.2, glossary "Instance").
type InstanceHandle uint64

type entry struct {
	handle InstanceHandle
	refc   int32
}

// Map is a key-instance map; the mapping from KeyHash to InstanceHandle
// is stable for the lifetime of any reference held to it. The
// participant package gives each local writer and reader its own Map,
// so handles are not shared across endpoints.
type Map struct {
	mu      sync.Mutex
	byHash  map[KeyHash]*entry
	next    uint64
}

// New returns an empty key-instance map.
func New() *Map {
	return &Map{byHash: make(map[KeyHash]*entry), next: 1}
}

// Ref returns the instance handle for hash, allocating a fresh one and
// setting its reference count to 1 if this is the first reference, or
// incrementing the existing entry's reference count otherwise. Every Ref
// must be matched by exactly one Unref.
func (m *Map) Ref(hash KeyHash) InstanceHandle {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byHash[hash]
	if !ok {
		e = &entry{handle: InstanceHandle(m.next)}
		m.next++
		m.byHash[hash] = e
	}
	e.refc++
	return e.handle
}

// Unref drops a reference previously obtained via Ref. When the last
// reference is dropped, the hash is evicted so a future Ref for the same
// key value allocates a fresh instance handle — matching Cyclone DDS's
// tkmap behavior where unregistering the last writer/reader reference to
// an instance frees its tk entry.
func (m *Map) Unref(hash KeyHash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byHash[hash]
	if !ok {
		return
	}
	e.refc--
	if e.refc <= 0 {
		delete(m.byHash, hash)
	}
}

// Lookup returns the instance handle currently assigned to hash, without
// taking a reference.
func (m *Map) Lookup(hash KeyHash) (InstanceHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byHash[hash]
	if !ok {
		return 0, false
	}
	return e.handle, true
}

// Len returns the number of distinct instances currently tracked.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

// Bytes renders a handle in its 8-byte big-endian wire form, as used when
// an instance handle needs to be carried as an opaque key in a builtin
// topic sample.
func (h InstanceHandle) Bytes() [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(h))
	return b
}

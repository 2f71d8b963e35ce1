// Package guid implements the RTPS globally unique identifier and the
// per-participant entity identifier allocator.
package guid

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// PrefixSize is the length in bytes of the participant-scoped GUID prefix.
const PrefixSize = 12

// EntityIdSize is the length in bytes of the entity identifier.
const EntityIdSize = 4

// Prefix identifies a participant; all entities owned by that participant
// share it as the first 12 bytes of their GUID.
type Prefix [PrefixSize]byte

func (p Prefix) String() string {
	return fmt.Sprintf("%x", [PrefixSize]byte(p))
}

// EntityKind is the low byte of an EntityId, tagging the kind of entity
// and whether it is a builtin (discovery) entity.
type EntityKind byte

const (
	KindUnknown EntityKind = 0x00

	KindParticipant       EntityKind = 0xc1
	KindWriterWithKey      EntityKind = 0x02
	KindWriterNoKey        EntityKind = 0x03
	KindReaderNoKey        EntityKind = 0x04
	KindReaderWithKey      EntityKind = 0x07
	KindWriterGroup        EntityKind = 0x08
	KindReaderGroup        EntityKind = 0x09

	// Builtin entity kinds carry the 0xc0 high-bit pattern per RTPS 2.5 §9.3.1.2.
	KindBuiltinParticipant    EntityKind = 0xc1
	KindBuiltinWriterWithKey  EntityKind = 0xc2
	KindBuiltinWriterNoKey    EntityKind = 0xc3
	KindBuiltinReaderNoKey    EntityKind = 0xc4
	KindBuiltinReaderWithKey  EntityKind = 0xc7
)

// IsBuiltin reports whether the entity identifier is reserved for a
// built-in (discovery, participant-message, type-lookup) entity, per
// spec.md §3.1: "Entity identifiers in the high-byte-kind range are
// reserved for builtin entities."
func (k EntityKind) IsBuiltin() bool {
	return k&0xc0 == 0xc0
}

// EntityId is the 4-byte suffix of a GUID, unique within a participant.
type EntityId [EntityIdSize]byte

// Kind returns the entity kind tag carried in the low byte of the id.
func (e EntityId) Kind() EntityKind {
	return EntityKind(e[3])
}

func (e EntityId) String() string {
	return fmt.Sprintf("%x", [EntityIdSize]byte(e))
}

// NewEntityId packs a 24-bit counter and an entity kind into an EntityId,
// matching RTPS's big-endian {counter[3]; kind} layout.
func NewEntityId(counter uint32, kind EntityKind) EntityId {
	var e EntityId
	binary.BigEndian.PutUint32(e[:], counter<<8)
	e[3] = byte(kind)
	return e
}

// GUID is the 16-byte identifier of a participant, writer, reader, topic,
// or proxy counterpart (spec.md §3.1).
type GUID struct {
	Prefix   Prefix
	EntityId EntityId
}

func (g GUID) String() string {
	return g.Prefix.String() + ":" + g.EntityId.String()
}

// Kind returns the entity kind encoded in the GUID's entity identifier.
func (g GUID) Kind() EntityKind {
	return g.EntityId.Kind()
}

// IsBuiltin reports whether this GUID names a builtin entity.
func (g GUID) IsBuiltin() bool {
	return g.Kind().IsBuiltin()
}

// Unknown is the all-zero GUID, used as a "no entity" sentinel — RTPS
// reserves it and no real entity may ever be allocated it.
var Unknown = GUID{}

// Parse reverses String, accepting "<prefix-hex>:<entityid-hex>".
func Parse(s string) (GUID, error) {
	prefixHex, idHex, ok := strings.Cut(s, ":")
	if !ok {
		return GUID{}, fmt.Errorf("guid: missing ':' separator in %q", s)
	}

	prefixBytes, err := hex.DecodeString(prefixHex)
	if err != nil || len(prefixBytes) != PrefixSize {
		return GUID{}, fmt.Errorf("guid: bad prefix %q", prefixHex)
	}
	idBytes, err := hex.DecodeString(idHex)
	if err != nil || len(idBytes) != EntityIdSize {
		return GUID{}, fmt.Errorf("guid: bad entity id %q", idHex)
	}

	var g GUID
	copy(g.Prefix[:], prefixBytes)
	copy(g.EntityId[:], idBytes)
	return g, nil
}

// Less provides a total order over GUIDs, used to key ordered match trees
// (spec.md §3.3 "ordered tree of per-matched-reader match records") and to
// break lock-ordering ties (spec.md §5, "order is by address" generalizes
// to "order by GUID" in a GC'd runtime where no entity has a stable
// address).
func Less(a, b GUID) bool {
	for i := 0; i < PrefixSize; i++ {
		if a.Prefix[i] != b.Prefix[i] {
			return a.Prefix[i] < b.Prefix[i]
		}
	}
	for i := 0; i < EntityIdSize; i++ {
		if a.EntityId[i] != b.EntityId[i] {
			return a.EntityId[i] < b.EntityId[i]
		}
	}
	return false
}

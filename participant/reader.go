package participant

import (
	"github.com/godds/core/entityindex"
	"github.com/godds/core/guid"
	"github.com/godds/core/matching"
	"github.com/godds/core/tkmap"
)

// Reader is a local data reader: its entity record, QoS, and the
// key-instance map used to reassemble keyed samples delivered out of
// order (spec.md §3.4). Sample storage/ordering itself (the Reader
// History Cache, "rhc" in spec.md §4.2's constructor signature) is an
// external collaborator per spec.md §1; this record carries only the
// identity and QoS half of a reader's state the matching and discovery
// packages need.
type Reader struct {
	Handle entityindex.Handle
	GUID   guid.GUID
	Topic  string
	Keyed  bool
	QoS    matching.QoS

	instances *tkmap.Map
}

func newReader(g guid.GUID, topic string, keyed bool, qos matching.QoS) *Reader {
	return &Reader{GUID: g, Topic: topic, Keyed: keyed, QoS: qos, instances: tkmap.New()}
}

package rtps

import (
	"fmt"

	"github.com/godds/core/guid"
)

// SequenceNumberSet is the bitmap representation used by AckNack and Gap
// submessages to enumerate a range of sequence numbers relative to a
// base (spec.md §6.1).
type SequenceNumberSet struct {
	Base   SequenceNumber
	Bitmap []uint32 // one bit per sequence number, Base..Base+N-1, MSB-first per 32-bit word
	NumBits uint32
}

// Test reports whether seq is present in the set.
func (s SequenceNumberSet) Test(seq SequenceNumber) bool {
	if seq < s.Base {
		return false
	}
	idx := uint32(seq - s.Base)
	if idx >= s.NumBits {
		return false
	}
	word := idx / 32
	bit := idx % 32
	if int(word) >= len(s.Bitmap) {
		return false
	}
	return s.Bitmap[word]&(1<<(31-bit)) != 0
}

// NewSequenceNumberSet builds a set from an explicit list of missing
// sequence numbers, as produced when an AckNack is assembled from a
// reorder buffer's gap list.
func NewSequenceNumberSet(base SequenceNumber, missing []SequenceNumber) SequenceNumberSet {
	maxIdx := uint32(0)
	for _, m := range missing {
		if m < base {
			continue
		}
		idx := uint32(m-base) + 1
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	s := SequenceNumberSet{Base: base, NumBits: maxIdx, Bitmap: make([]uint32, (maxIdx+31)/32)}
	for _, m := range missing {
		if m < base {
			continue
		}
		idx := uint32(m - base)
		word := idx / 32
		bit := idx % 32
		s.Bitmap[word] |= 1 << (31 - bit)
	}
	return s
}

// EntityId identifies a writer or reader within a submessage without
// repeating the full GUID prefix (which is carried once in the message
// header or an INFO_DST submessage).
type EntityId = guid.EntityId

// Data carries an application sample, a key-only unregister/dispose, or
// an empty (SDK_EMPTY) marker sample (spec.md §6.1).
type Data struct {
	ReaderId        EntityId
	WriterId        EntityId
	WriterSN        SequenceNumber
	InlineQosPresent bool
	InlineQos       []byte // raw PL_CDR parameter list bytes, if present
	SerializedPayload []byte
	KeyHash         *EntityKey // present when PID_KEY_HASH was attached
	StatusInfo      *StatusInfo
}

// StatusInfo decodes the PID_STATUS_INFO inline QoS parameter, signalling
// an unregister and/or dispose on the sample's instance.
type StatusInfo struct {
	Disposed   bool
	Unregistered bool
}

// DataFrag carries one fragment of an oversize sample, split per
// spec.md §4.3 "Retransmission" at fragment_size boundaries.
type DataFrag struct {
	ReaderId       EntityId
	WriterId       EntityId
	WriterSN       SequenceNumber
	FragmentStartingNum uint32
	FragmentsInSubmessage uint16
	FragmentSize   uint16
	SampleSize     uint32
	InlineQos      []byte
	SerializedPayload []byte
}

// Heartbeat advertises a writer's available sequence-number range
// (spec.md §3.7, §6.1).
type Heartbeat struct {
	ReaderId   EntityId
	WriterId   EntityId
	FirstSN    SequenceNumber
	LastSN     SequenceNumber
	Count      int32
	Final      bool // FINAL flag: suppresses a required ack
	Liveliness bool // LIVELINESS flag: renews AUTOMATIC liveliness
}

// HeartbeatFrag is advisory: it announces the highest fragment number
// transmitted so far for a sample still being sent in pieces.
type HeartbeatFrag struct {
	ReaderId       EntityId
	WriterId       EntityId
	WriterSN       SequenceNumber
	LastFragmentNum uint32
	Count          int32
}

// AckNack carries the reader's acknowledgment state and the bitmap of
// sequence numbers it is still missing (spec.md §6.1).
type AckNack struct {
	ReaderId  EntityId
	WriterId  EntityId
	ReaderSNState SequenceNumberSet
	Count     int32
	Final     bool
}

// NackFrag requests retransmission of specific fragments of one sample
// still in flight.
type NackFrag struct {
	ReaderId  EntityId
	WriterId  EntityId
	WriterSN  SequenceNumber
	FragmentNumberState SequenceNumberSet
	Count     int32
}

// Gap announces sequence numbers the writer will never send, so readers
// do not wait on them (spec.md §6.1).
type Gap struct {
	ReaderId EntityId
	WriterId EntityId
	GapStart SequenceNumber
	GapList  SequenceNumberSet
}

// InfoTS carries a timestamp qualifying subsequent submessages.
type InfoTS struct {
	Invalidate bool
	Seconds    int32
	Fraction   uint32
}

// InfoDst sets the destination GUID prefix for subsequent submessages.
type InfoDst struct {
	GuidPrefix guid.Prefix
}

// InfoSrc sets the source GUID prefix and protocol version/vendor for
// subsequent submessages, used when relaying on behalf of another
// participant.
type InfoSrc struct {
	GuidPrefix guid.Prefix
	Version    ProtocolVersion
	Vendor     VendorId
}

// InfoReply redirects replies (acknacks, heartbeats) to an alternate
// locator set.
type InfoReply struct {
	UnicastLocators   []Locator
	MulticastLocators []Locator
}

// Locator is a transport address as carried on the wire (spec.md §6.2).
type Locator struct {
	Kind    int32
	Port    uint32
	Address [16]byte
}

func (l Locator) String() string {
	return fmt.Sprintf("locator{kind=%d port=%d addr=%x}", l.Kind, l.Port, l.Address)
}

// Locator kinds, per RTPS 2.5 §9.3.2.
const (
	LocatorKindInvalid  int32 = -1
	LocatorKindReserved int32 = 0
	LocatorKindUDPv4    int32 = 1
	LocatorKindUDPv6    int32 = 2
)

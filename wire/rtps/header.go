// Package rtps implements the RTPS 2.5 message header and submessage
// types consumed and produced by the core (spec.md §6.1).
package rtps

import (
	"encoding/binary"
	"fmt"

	"github.com/godds/core/guid"
)

// HeaderSize is the fixed size of the RTPS message header.
const HeaderSize = 20

// ProtocolMagic is the 4-byte literal every RTPS message starts with.
var ProtocolMagic = [4]byte{'R', 'T', 'P', 'S'}

// ProtocolVersion is the RTPS wire version this package implements.
type ProtocolVersion struct {
	Major uint8
	Minor uint8
}

// Version25 is RTPS 2.5, the version this core targets (spec.md §6.1).
var Version25 = ProtocolVersion{Major: 2, Minor: 5}

// VendorId identifies the implementation that produced a message.
type VendorId [2]byte

// VendorUnknown is the RTPS-reserved "vendor not specified" id.
var VendorUnknown = VendorId{0x00, 0x00}

// VendorGodds is this implementation's self-assigned vendor id, chosen
// outside the OMG-assigned range reserved for registered vendors.
var VendorGodds = VendorId{0x01, 0xff}

// Header is the fixed 20-byte RTPS message header (spec.md §6.1).
type Header struct {
	Version    ProtocolVersion
	Vendor     VendorId
	GuidPrefix guid.Prefix
}

// Encode writes the header to a 20-byte buffer.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], ProtocolMagic[:])
	buf[4] = h.Version.Major
	buf[5] = h.Version.Minor
	buf[6] = h.Vendor[0]
	buf[7] = h.Vendor[1]
	copy(buf[8:20], h.GuidPrefix[:])
	return buf
}

// DecodeHeader parses the fixed message header from buf, which must be
// at least HeaderSize bytes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("rtps: short message header: %d bytes", len(buf))
	}
	if buf[0] != ProtocolMagic[0] || buf[1] != ProtocolMagic[1] || buf[2] != ProtocolMagic[2] || buf[3] != ProtocolMagic[3] {
		return Header{}, fmt.Errorf("rtps: bad protocol magic %q", buf[0:4])
	}
	var h Header
	h.Version = ProtocolVersion{Major: buf[4], Minor: buf[5]}
	h.Vendor = VendorId{buf[6], buf[7]}
	copy(h.GuidPrefix[:], buf[8:20])
	return h, nil
}

// SubmessageKind tags the kind of an RTPS submessage header.
type SubmessageKind uint8

const (
	KindPad           SubmessageKind = 0x01
	KindAckNack       SubmessageKind = 0x06
	KindHeartbeat     SubmessageKind = 0x07
	KindGap           SubmessageKind = 0x08
	KindInfoTS        SubmessageKind = 0x09
	KindInfoSrc       SubmessageKind = 0x0c
	KindInfoReply     SubmessageKind = 0x0d
	KindInfoDst       SubmessageKind = 0x0e
	KindNackFrag      SubmessageKind = 0x12
	KindHeartbeatFrag SubmessageKind = 0x13
	KindData          SubmessageKind = 0x15
	KindDataFrag      SubmessageKind = 0x16
)

// SubmessageFlags are the per-kind flag bits carried in a submessage
// header's second byte. Bit 0 (FLAG_ENDIANNESS) is universal; the rest
// are kind-specific.
type SubmessageFlags uint8

const (
	FlagEndianness SubmessageFlags = 1 << 0
)

func (f SubmessageFlags) LittleEndian() bool { return f&FlagEndianness != 0 }

// SubmessageHeader precedes every submessage.
type SubmessageHeader struct {
	Kind           SubmessageKind
	Flags          SubmessageFlags
	OctetsToNextHeader uint16
}

// EncodeSubmessageHeader writes a 4-byte submessage header using the
// given byte order.
func EncodeSubmessageHeader(h SubmessageHeader, little bool) []byte {
	buf := make([]byte, 4)
	buf[0] = byte(h.Kind)
	buf[1] = byte(h.Flags)
	order := submessageOrder(little)
	order.PutUint16(buf[2:], h.OctetsToNextHeader)
	return buf
}

func submessageOrder(little bool) binaryOrder {
	if little {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// binaryOrder narrows the standard library interface to the subset used
// here, allowing it to be swapped in tests without importing encoding/binary
// in every call site.
type binaryOrder interface {
	PutUint16([]byte, uint16)
	Uint16([]byte) uint16
}

// DecodeSubmessageHeader parses a 4-byte submessage header.
func DecodeSubmessageHeader(buf []byte) (SubmessageHeader, error) {
	if len(buf) < 4 {
		return SubmessageHeader{}, fmt.Errorf("rtps: short submessage header")
	}
	flags := SubmessageFlags(buf[1])
	order := submessageOrder(flags.LittleEndian())
	return SubmessageHeader{
		Kind:               SubmessageKind(buf[0]),
		Flags:              flags,
		OctetsToNextHeader: order.Uint16(buf[2:4]),
	}, nil
}

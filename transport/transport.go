// Package transport defines the locator-addressed packet transport the
// core sends and receives RTPS messages over (spec.md §6), independent
// of whether the underlying medium is UDP multicast/unicast or an
// in-process loopback used by tests.
package transport

import (
	"context"
	"fmt"
	"net/netip"
)

// Locator names a destination on some transport: a UDPv4/UDPv6 address
// for transport/udp, or a synthetic 127.0.0.1 address for transport/loopback.
// RTPS locators also carry a "kind" discriminant on the wire; this port
// only distinguishes UDPv4 multicast vs unicast, the two kinds the core
// actually produces.
type Locator struct {
	Kind LocatorKind
	Addr netip.AddrPort
}

// LocatorKind discriminates how a Locator's address should be
// interpreted.
type LocatorKind int

const (
	LocatorUnicast LocatorKind = iota
	LocatorMulticast
)

func (l Locator) String() string {
	kind := "unicast"
	if l.Kind == LocatorMulticast {
		kind = "multicast"
	}
	return fmt.Sprintf("%s(%s)", kind, l.Addr)
}

// Packet is one received datagram and the locator it arrived from.
type Packet struct {
	Data []byte
	From Locator
}

// Conn is a bidirectional packet endpoint: one multicast/unicast socket
// pair for transport/udp, or one named channel-pair for
// transport/loopback. Receive blocks until a packet arrives or ctx is
// done; Send is safe for concurrent use by multiple goroutines.
type Conn interface {
	Send(ctx context.Context, to Locator, data []byte) error
	Receive(ctx context.Context) (Packet, error)
	LocalLocators() []Locator
	Close() error
}

// Factory opens Conns bound to a domain's discovery ports, the
// replaceable seam between the core and its wire medium (spec.md §1
// scopes transport selection outside the core proper).
type Factory interface {
	Dial(ctx context.Context, domainID uint32, participantID uint32) (Conn, error)
}

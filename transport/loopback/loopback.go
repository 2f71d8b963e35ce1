// Package loopback implements transport.Factory as an in-process
// channel fabric, used by tests that need multiple participants to
// exchange RTPS messages without opening real sockets (spec.md §6.2
// scopes transport implementations out of the core; this one exists
// purely as the "fourth reference implementation" test double SPEC_FULL.md
// calls for).
package loopback

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/godds/core/transport"
)

// Network is a shared in-process medium: every Conn dialed against the
// same Network can address every other by locator.
type Network struct {
	mu    sync.Mutex
	conns map[netip.AddrPort]*conn

	nextPort uint16
}

// NewNetwork returns an empty loopback network.
func NewNetwork() *Network {
	return &Network{conns: make(map[netip.AddrPort]*conn), nextPort: 1}
}

// Dial implements transport.Factory, handing out a fresh synthetic
// loopback address on every call; domainID and participantID are not
// used.
func (n *Network) Dial(ctx context.Context, domainID, participantID uint32) (transport.Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	port := n.nextPort
	n.nextPort++
	addr := netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), port)

	c := &conn{
		net:   n,
		local: transport.Locator{Kind: transport.LocatorUnicast, Addr: addr},
		inbox: make(chan transport.Packet, 64),
		done:  make(chan struct{}),
	}
	n.conns[addr] = c
	return c, nil
}

// conn implements transport.Conn as a channel endpoint registered in
// its owning Network's address table.
type conn struct {
	net   *Network
	local transport.Locator
	inbox chan transport.Packet

	closeOnce sync.Once
	done      chan struct{}
}

// Send delivers data to the Conn registered at to's address, or drops
// it silently if no such Conn exists — the loopback equivalent of a
// packet vanishing on an unreachable network.
func (c *conn) Send(ctx context.Context, to transport.Locator, data []byte) error {
	c.net.mu.Lock()
	dst, ok := c.net.conns[to.Addr]
	c.net.mu.Unlock()
	if !ok {
		return nil
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	pkt := transport.Packet{Data: cp, From: c.local}

	select {
	case dst.inbox <- pkt:
		return nil
	case <-dst.done:
		return fmt.Errorf("loopback: destination %s closed", to)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) Receive(ctx context.Context) (transport.Packet, error) {
	select {
	case pkt := <-c.inbox:
		return pkt, nil
	case <-c.done:
		return transport.Packet{}, fmt.Errorf("loopback: conn closed")
	case <-ctx.Done():
		return transport.Packet{}, ctx.Err()
	}
}

func (c *conn) LocalLocators() []transport.Locator {
	return []transport.Locator{c.local}
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.net.mu.Lock()
		delete(c.net.conns, c.local.Addr)
		c.net.mu.Unlock()
		close(c.done)
	})
	return nil
}

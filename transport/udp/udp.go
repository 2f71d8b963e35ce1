// Package udp implements transport.Factory over net.ListenUDP, the
// reference transport plug-in spec.md §6.2 describes as external to the
// core proper. Multicast-capable interface discovery is done via
// netlink queries rather than walking net.Interfaces by hand, mirroring
// the pattern the pack's route-discovery link monitor uses for the same
// kind of "what interfaces does this host have" query.
package udp

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/vishvananda/netlink"
	"go.uber.org/zap"

	"github.com/godds/core/transport"
)

// Config configures a udp.Factory.
type Config struct {
	// SPDPMulticastAddr is the well-known SPDP multicast group, e.g.
	// 239.255.0.1:7400.
	SPDPMulticastAddr netip.AddrPort
	// Interface restricts multicast join/send to one named interface;
	// empty means the first up, multicast-capable interface (spec.md §6.2's
	// allowMulticast applies at a higher layer — this just enumerates
	// candidates).
	Interface string
}

// Factory opens UDP sockets for one participant: a unicast socket and,
// when the configuration asks for it, a multicast socket joined on the
// first multicast-capable interface found. Other interfaces are not
// joined.
type Factory struct {
	cfg Config
	log *zap.SugaredLogger
}

// NewFactory returns a udp transport factory.
func NewFactory(cfg Config, log *zap.SugaredLogger) *Factory {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Factory{cfg: cfg, log: log}
}

// Dial opens the unicast and multicast sockets for one participant. The
// unicast port follows the RTPS formula PB + DG*domainID + PG*participantID + 1
// (spec.md §6.1's port assignment, not itself detailed in the distilled
// spec but standard RTPS practice, reused here as a concrete choice).
func (f *Factory) Dial(ctx context.Context, domainID, participantID uint32) (transport.Conn, error) {
	const (
		portBase       = 7400
		domainGain     = 250
		participantGain = 2
	)
	unicastPort := portBase + domainGain*int(domainID) + participantGain*int(participantID) + 1

	ucConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: unicastPort})
	if err != nil {
		return nil, fmt.Errorf("udp: listen unicast: %w", err)
	}

	var mcConn *net.UDPConn
	if f.cfg.SPDPMulticastAddr.IsValid() {
		mcConn, err = f.joinMulticast(domainID)
		if err != nil {
			ucConn.Close()
			return nil, err
		}
	}

	return newConn(ucConn, mcConn, f.cfg.SPDPMulticastAddr, f.log), nil
}

func (f *Factory) joinMulticast(domainID uint32) (*net.UDPConn, error) {
	mcPort := 7400 + 250*int(domainID)
	addr := &net.UDPAddr{IP: f.cfg.SPDPMulticastAddr.Addr().AsSlice(), Port: mcPort}

	ifaces, err := f.multicastInterfaces()
	if err != nil {
		return nil, fmt.Errorf("udp: enumerate multicast interfaces: %w", err)
	}
	if len(ifaces) == 0 {
		return nil, fmt.Errorf("udp: no multicast-capable interface found")
	}

	conn, err := net.ListenMulticastUDP("udp", &ifaces[0], addr)
	if err != nil {
		return nil, fmt.Errorf("udp: join multicast %s: %w", addr, err)
	}
	return conn, nil
}

// multicastInterfaces returns every up, multicast-capable network
// interface on the host, queried via netlink rather than net.Interfaces
// so link flags are read directly from the kernel's link attributes.
func (f *Factory) multicastInterfaces() ([]net.Interface, error) {
	if f.cfg.Interface != "" {
		iface, err := net.InterfaceByName(f.cfg.Interface)
		if err != nil {
			return nil, err
		}
		return []net.Interface{*iface}, nil
	}

	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("netlink link list: %w", err)
	}

	var out []net.Interface
	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Flags&net.FlagUp == 0 || attrs.Flags&net.FlagMulticast == 0 {
			continue
		}
		iface, err := net.InterfaceByIndex(attrs.Index)
		if err != nil {
			f.log.Debugw("skipping interface unreadable via net package", "index", attrs.Index, "error", err)
			continue
		}
		out = append(out, *iface)
	}
	return out, nil
}

// conn implements transport.Conn over a unicast and (optional) multicast
// *net.UDPConn pair, fanning both sockets' reads into one inbox so
// Receive never has to choose which socket to poll.
type conn struct {
	uc, mc *net.UDPConn
	mcAddr netip.AddrPort
	log    *zap.SugaredLogger

	inbox chan readResult

	closeOnce sync.Once
	closed    chan struct{}
}

type readResult struct {
	pkt transport.Packet
	err error
}

func newConn(uc, mc *net.UDPConn, mcAddr netip.AddrPort, log *zap.SugaredLogger) *conn {
	c := &conn{uc: uc, mc: mc, mcAddr: mcAddr, log: log, inbox: make(chan readResult, 16), closed: make(chan struct{})}
	go c.readLoop(uc, transport.LocatorUnicast)
	if mc != nil {
		go c.readLoop(mc, transport.LocatorMulticast)
	}
	return c
}

func (c *conn) readLoop(sock *net.UDPConn, kind transport.LocatorKind) {
	buf := make([]byte, 65536)
	for {
		n, from, err := sock.ReadFromUDP(buf)
		if err != nil {
			select {
			case c.inbox <- readResult{err: err}:
			case <-c.closed:
			}
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case c.inbox <- readResult{pkt: packetFrom(data, from, kind)}:
		case <-c.closed:
			return
		}
	}
}

func (c *conn) Send(ctx context.Context, to transport.Locator, data []byte) error {
	dst := &net.UDPAddr{IP: to.Addr.Addr().AsSlice(), Port: int(to.Addr.Port())}
	_, err := c.uc.WriteToUDP(data, dst)
	return err
}

func (c *conn) Receive(ctx context.Context) (transport.Packet, error) {
	select {
	case <-ctx.Done():
		return transport.Packet{}, ctx.Err()
	case r := <-c.inbox:
		return r.pkt, r.err
	}
}

func packetFrom(data []byte, from *net.UDPAddr, kind transport.LocatorKind) transport.Packet {
	addr, _ := netip.AddrFromSlice(from.IP)
	return transport.Packet{
		Data: data,
		From: transport.Locator{Kind: kind, Addr: netip.AddrPortFrom(addr, uint16(from.Port))},
	}
}

func (c *conn) LocalLocators() []transport.Locator {
	var out []transport.Locator
	if addr, ok := c.uc.LocalAddr().(*net.UDPAddr); ok {
		ip, _ := netip.AddrFromSlice(addr.IP)
		out = append(out, transport.Locator{Kind: transport.LocatorUnicast, Addr: netip.AddrPortFrom(ip, uint16(addr.Port))})
	}
	if c.mc != nil {
		out = append(out, transport.Locator{Kind: transport.LocatorMulticast, Addr: c.mcAddr})
	}
	return out
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.uc.Close()
		if c.mc != nil {
			if merr := c.mc.Close(); merr != nil && err == nil {
				err = merr
			}
		}
	})
	return err
}

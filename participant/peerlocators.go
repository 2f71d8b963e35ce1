package participant

import (
	"net"
	"net/netip"

	"github.com/godds/core/discovery"
	"github.com/godds/core/guid"
	"github.com/godds/core/internal/xnetip"
	"github.com/godds/core/matching"
	"github.com/godds/core/transport"
)

// peerLocator is one locator advertised by a remote participant's SPDP
// announcement, tagged with whether it falls inside this participant's
// configured source-specific-multicast range.
type peerLocator struct {
	loc transport.Locator
	ssm bool
}

// ssmRange is the administratively-scoped multicast address range
// eligible for source-specific-multicast delivery, derived from
// cfg.DefaultMulticastAddress and gated by cfg.AllowMulticast.SSM.
type ssmRange struct {
	prefix netip.Prefix
	mask   net.IPMask
	top    netip.Addr
}

// newSSMRange parses addr as the base of a /24 administratively-scoped
// multicast range (the conventional SSM allocation granularity RTPS
// vendors use for a single domain). It returns nil — disabling SSM
// classification entirely — when allowed is false or addr doesn't
// parse as an IPv4 address.
func newSSMRange(addr string, allowed bool) *ssmRange {
	if !allowed {
		return nil
	}
	a, err := netip.ParseAddr(addr)
	if err != nil || !a.Is4() {
		return nil
	}
	prefix := netip.PrefixFrom(a, 24).Masked()
	return &ssmRange{
		prefix: prefix,
		mask:   xnetip.Mask(prefix),
		top:    xnetip.LastAddr(prefix),
	}
}

// contains reports whether addr falls within the SSM range.
func (r *ssmRange) contains(addr netip.Addr) bool {
	if r == nil || !addr.Is4() {
		return false
	}
	ipnet := net.IPNet{IP: net.IP(r.prefix.Addr().AsSlice()), Mask: r.mask}
	return ipnet.Contains(net.IP(addr.AsSlice()))
}

// recordPeerLocators parses a newly (re-)discovered remote participant's
// SPDP unicast/multicast locator strings and remembers them by GUID
// prefix, classifying each multicast locator as SSM-eligible against
// this participant's configured range. A writer's transmit and SSM
// address sets are populated from exactly this information once a
// reader under that prefix is matched.
func (p *Participant) recordPeerLocators(info discovery.ParticipantInfo) {
	var locs []peerLocator
	for _, s := range info.UnicastLoc {
		if ap, err := netip.ParseAddrPort(s); err == nil {
			locs = append(locs, peerLocator{loc: transport.Locator{Kind: transport.LocatorUnicast, Addr: ap}})
		}
	}
	for _, s := range info.MulticastLoc {
		ap, err := netip.ParseAddrPort(s)
		if err != nil {
			continue
		}
		ssm := p.ssm.contains(ap.Addr())
		locs = append(locs, peerLocator{loc: transport.Locator{Kind: transport.LocatorMulticast, Addr: ap}, ssm: ssm})
	}
	if len(locs) == 0 {
		return
	}

	if p.ssm != nil {
		p.log.Debugw("recorded peer locators", "participant", info.GUID.String(),
			"ssm_range", p.ssm.prefix.String(), "ssm_range_top", p.ssm.top.String())
	}

	p.peerMu.Lock()
	p.peerLocators[info.GUID.Prefix] = locs
	p.peerMu.Unlock()
}

// wireWriterDestinations adds a newly matched remote reader's owning
// participant's locators to the transmit address set (and, for
// multicast locators inside the SSM range, the SSM address set) of
// every local writer on the reader's topic that the matching engine
// has just connected it to.
func (p *Participant) wireWriterDestinations(reader discovery.EndpointInfo) {
	p.peerMu.RLock()
	locs := p.peerLocators[reader.GUID.Prefix]
	p.peerMu.RUnlock()
	if len(locs) == 0 {
		return
	}

	p.mu.RLock()
	var writers []*Writer
	for _, w := range p.writers {
		if w.Topic == reader.Topic {
			writers = append(writers, w)
		}
	}
	p.mu.RUnlock()

	for _, w := range writers {
		if !p.writerMatchedReader(w.GUID, reader.GUID) {
			continue
		}
		for _, l := range locs {
			w.AddDestination(l.loc, l.ssm)
		}
	}
}

func (p *Participant) writerMatchedReader(writer, reader guid.GUID) bool {
	matched := false
	p.matcher.WriterMatches(writer).Range(func(m *matching.WriterMatch) bool {
		if m.GUID == reader {
			matched = true
			return false
		}
		return true
	})
	return matched
}

package discovery

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/godds/core/guid"
)

// PublishFunc sends one SEDP announcement for a local endpoint.
type PublishFunc func(EndpointInfo) error

// Publisher coalesces repeated SEDP re-announcements of the same local
// endpoint (e.g. triggered once by a QoS update and again moments
// later by a topic-level change) into a single wire publication, using
// singleflight the way the teacher's errgroup-adjacent concurrency
// primitives are used elsewhere in the pack for duplicate-suppression.
type Publisher struct {
	publish PublishFunc

	group singleflight.Group

	mu      sync.Mutex
	pending map[guid.GUID]EndpointInfo
}

// NewPublisher returns a coalescing SEDP publisher calling publish for
// each distinct announcement actually sent.
func NewPublisher(publish PublishFunc) *Publisher {
	return &Publisher{publish: publish, pending: make(map[guid.GUID]EndpointInfo)}
}

// Announce schedules info's endpoint for (re-)publication. Concurrent
// Announce calls for the same GUID collapse into one outgoing
// publication of whichever info value was current when the in-flight
// call started.
func (p *Publisher) Announce(info EndpointInfo) error {
	p.mu.Lock()
	p.pending[info.GUID] = info
	p.mu.Unlock()

	_, err, _ := p.group.Do(info.GUID.String(), func() (any, error) {
		p.mu.Lock()
		latest := p.pending[info.GUID]
		delete(p.pending, info.GUID)
		p.mu.Unlock()
		return nil, p.publish(latest)
	})
	return err
}

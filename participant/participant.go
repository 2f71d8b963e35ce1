// Package participant ties the entity index, matching engine,
// reliability scheduling, writer history caches, garbage collector,
// and lease scheduler into the public lifecycle operations spec.md
// §4.2 names: new_participant, new_writer_guid, new_reader_guid, and
// the delete primitives, run as one errgroup per participant process
// the way coordinator.Run drives its own subsystems.
package participant

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/godds/core/config"
	"github.com/godds/core/discovery"
	"github.com/godds/core/entityindex"
	"github.com/godds/core/gc"
	"github.com/godds/core/guid"
	"github.com/godds/core/lease"
	"github.com/godds/core/matching"
	"github.com/godds/core/reliability"
	"github.com/godds/core/tkmap"
	"github.com/godds/core/whc"
	"github.com/godds/core/wire/rtps"
)

// Participant is one local DDS domain participant: the entity index
// and matching engine it shares with every local writer/reader, plus
// the garbage collector and lease scheduler that reclaim deleted
// entities and detect lost remote peers.
type Participant struct {
	cfg *config.Config
	log *zap.SugaredLogger

	guid     guid.GUID
	alloc    *guid.Allocator
	index    *entityindex.Index
	matcher  *matching.Engine
	discover *discovery.Engine

	gcRegistry *gc.Registry
	collector  *gc.GC

	leaseQueue       *lease.Queue
	leaseQueueManual *lease.Queue
	leaseSched       *lease.Scheduler

	mu      sync.RWMutex
	writers map[guid.GUID]*Writer
	readers map[guid.GUID]*Reader

	hbConfig reliability.IntervalConfig
	hbWM     reliability.WaterMarks
	limiter  reliability.BurstLimiter

	locators *LocatorTable
	ssm      *ssmRange

	peerMu       sync.RWMutex
	peerLocators map[guid.Prefix][]peerLocator
}

// New constructs a participant entity, allocates its entity-id space,
// and wires the matching/discovery/gc/lease subsystems together, but
// does not yet start any background loop — call Run for that.
func New(cfg *config.Config, log *zap.SugaredLogger) (*Participant, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	now := time.Now()
	index := entityindex.New()

	prefix, err := newPrefix(cfg.DomainId)
	if err != nil {
		return nil, fmt.Errorf("participant: allocate guid prefix: %w", err)
	}
	ppEntityID := guid.NewEntityId(0, guid.KindBuiltinParticipant)
	pGUID := guid.GUID{Prefix: prefix, EntityId: ppEntityID}

	pp := entityindex.NewParticipant(pGUID, cfg.DomainId, now)
	index.Insert(pp)

	p := &Participant{
		cfg:     cfg,
		log:     log,
		guid:    pGUID,
		alloc:   guid.NewAllocator(),
		index:   index,
		matcher: matching.New(matching.WithLog(log)),

		gcRegistry: gc.NewRegistry(),

		writers: make(map[guid.GUID]*Writer),
		readers: make(map[guid.GUID]*Reader),

		locators:     NewLocatorTable(),
		peerLocators: make(map[guid.Prefix][]peerLocator),
		ssm:          newSSMRange(cfg.DefaultMulticastAddress, cfg.AllowMulticast.SSM),

		hbConfig: reliability.IntervalConfig{
			Min:      cfg.Heartbeat.Min,
			Max:      cfg.Heartbeat.Max,
			Sched:    cfg.Heartbeat.Sched,
			SchedMax: cfg.Heartbeat.SchedMax,
		},
		hbWM: reliability.WaterMarks{
			Low:  int64(cfg.WHC.LowWaterMark.Bytes()),
			High: int64(cfg.WHC.HighWaterMark.Bytes()),
		},
		limiter: reliability.BurstLimiter{
			MinReceiveBufferSize: int64(cfg.Reliability.MaxQueuedRexmitBytes.Bytes()),
			MaxBurstSize:         int64(cfg.Reliability.MaxRexmitBurstSize.Bytes()),
			InitExtraPct:         cfg.Reliability.InitTransmitExtraPct,
		},
	}

	p.collector = gc.New(p.gcRegistry, log)
	p.leaseQueue = lease.NewQueue()
	p.leaseQueueManual = lease.NewQueue()
	p.leaseSched = lease.NewScheduler(p.leaseQueue, p.leaseQueueManual, p.onLeaseExpired, lease.WithLog(log))
	p.discover = discovery.New(index, p.matcher, p, log, cfg.Discovery.LeaseDuration)

	log.Infow("created participant", "guid", pGUID.String(), "domain", cfg.DomainId)
	return p, nil
}

// GUID returns this participant's own identity.
func (p *Participant) GUID() guid.GUID { return p.guid }

// Index exposes the shared entity index, e.g. for introspection.
func (p *Participant) Index() *entityindex.Index { return p.index }

// NewWriter implements spec.md §4.2's new_writer_guid: allocates a
// writer entity id, registers its entity record, installs a WHC sized
// per qos, and starts its reliability bookkeeping.
func (p *Participant) NewWriter(topic string, keyed bool, qos matching.QoS, whcCfg whc.Config, now time.Time) (*Writer, error) {
	id := p.alloc.Alloc(writerEntityKind(keyed))
	g := guid.GUID{Prefix: p.guidPrefix(), EntityId: id}

	cache := whc.New(whcCfg)
	w := newWriter(g, topic, keyed, qos, cache, p.hbConfig, p.hbWM, int64(p.cfg.WHC.HighWaterMark.Bytes()), p.limiter, int(p.cfg.Reliability.FragmentSize.Bytes()), p.locators)

	ent := entityindex.NewWriter(g, topic, 0, now)
	w.Handle = p.index.Insert(ent)

	p.mu.Lock()
	p.writers[g] = w
	p.mu.Unlock()

	p.matchTopic(topic, now)

	p.log.Infow("created writer", "guid", g.String(), "topic", topic)
	return w, nil
}

// NewReader implements spec.md §4.2's new_reader_guid.
func (p *Participant) NewReader(topic string, keyed bool, qos matching.QoS, now time.Time) (*Reader, error) {
	kind := guid.KindReaderNoKey
	if keyed {
		kind = guid.KindReaderWithKey
	}
	id := p.alloc.Alloc(kind)
	g := guid.GUID{Prefix: p.guidPrefix(), EntityId: id}

	r := newReader(g, topic, keyed, qos)
	ent := entityindex.NewReader(g, topic, 0, now)
	r.Handle = p.index.Insert(ent)

	p.mu.Lock()
	p.readers[g] = r
	p.mu.Unlock()

	p.matchTopic(topic, now)

	p.log.Infow("created reader", "guid", g.String(), "topic", topic)
	return r, nil
}

// DeleteWriter implements spec.md §4.2's delete_writer: transitions
// the writer to LINGERING or DELETING, then defers the actual entity
// removal and id reclamation to the garbage collector so any in-flight
// match-set walk holding the old entity reference finishes first
// (spec.md §9, "deferred-free via epoch/generation quiescence").
func (p *Participant) DeleteWriter(g guid.GUID, now time.Time) error {
	p.mu.Lock()
	w, ok := p.writers[g]
	if ok {
		delete(p.writers, g)
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("participant: unknown writer %s", g)
	}

	w.BeginDelete(now)
	p.matcher.Forget(g)

	p.collector.Enqueue(func() {
		p.index.Remove(w.Handle)
		p.alloc.Free(g.EntityId)
		p.log.Debugw("reclaimed deleted writer", "guid", g.String())
	})
	return nil
}

// DeleteReader is the symmetric reader-side deletion primitive.
func (p *Participant) DeleteReader(g guid.GUID) error {
	p.mu.Lock()
	r, ok := p.readers[g]
	if ok {
		delete(p.readers, g)
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("participant: unknown reader %s", g)
	}

	p.matcher.Forget(g)
	p.collector.Enqueue(func() {
		p.index.Remove(r.Handle)
		p.alloc.Free(g.EntityId)
		p.log.Debugw("reclaimed deleted reader", "guid", g.String())
	})
	return nil
}

// Write drives the publishing data flow — application → writer::insert
// → WHC → reliability scheduler — for a sample on an already-created
// local writer. instanceKey is the zero KeyHash for
// unkeyed topics; ack reports whether the caller should piggyback,
// schedule, or suppress a heartbeat as a result of this write.
func (p *Participant) Write(ctx context.Context, g guid.GUID, instanceKey tkmap.KeyHash, payload []byte, now time.Time) (rtps.SequenceNumber, reliability.AckDecision, error) {
	p.mu.RLock()
	w, ok := p.writers[g]
	p.mu.RUnlock()
	if !ok {
		return 0, reliability.AckSuppress, fmt.Errorf("participant: unknown writer %s", g)
	}

	instance := w.instances.Ref(instanceKey)
	maxDropSeq := p.matcher.WriterMatches(g).MaxDropSeq()
	return w.Publish(ctx, maxDropSeq, instance, payload, time.Time{}, now)
}

// Writers implements discovery.LocalLookup: every local writer on topic.
func (p *Participant) Writers(topic string) []matching.EndpointInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []matching.EndpointInfo
	for _, w := range p.writers {
		if w.Topic != topic {
			continue
		}
		out = append(out, matching.EndpointInfo{
			Handle:        w.Handle,
			GUID:          w.GUID,
			Topic:         w.Topic,
			Keyed:         w.Keyed,
			QoS:           w.QoS,
			HasUnackedWHC: w.Cache.GetState().UnackedBytes > 0,
		})
	}
	return out
}

// Readers implements discovery.LocalLookup: every local reader on topic.
func (p *Participant) Readers(topic string) []matching.EndpointInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []matching.EndpointInfo
	for _, r := range p.readers {
		if r.Topic != topic {
			continue
		}
		out = append(out, matching.EndpointInfo{Handle: r.Handle, GUID: r.GUID, Topic: r.Topic, Keyed: r.Keyed, QoS: r.QoS})
	}
	return out
}

// matchTopic runs discovery's local-to-local matching pass for topic:
// every local writer against every local reader, exactly the
// "IGNORE_LOCAL" path spec.md §4.2 step 2 exists to suppress when the
// deployment doesn't want same-process loopback delivery.
func (p *Participant) matchTopic(topic string, now time.Time) {
	p.mu.RLock()
	var writers, readers []matching.EndpointInfo
	for _, w := range p.writers {
		if w.Topic == topic {
			writers = append(writers, matching.EndpointInfo{Handle: w.Handle, GUID: w.GUID, Topic: w.Topic, Keyed: w.Keyed, QoS: w.QoS, HasUnackedWHC: w.Cache.GetState().UnackedBytes > 0})
		}
	}
	for _, r := range p.readers {
		if r.Topic == topic {
			readers = append(readers, matching.EndpointInfo{Handle: r.Handle, GUID: r.GUID, Topic: r.Topic, Keyed: r.Keyed, QoS: r.QoS})
		}
	}
	p.mu.RUnlock()

	for _, w := range writers {
		for _, r := range readers {
			p.matcher.TryMatch(w, r)
		}
	}
}

func (p *Participant) guidPrefix() guid.Prefix { return p.guid.Prefix }

// newPrefix allocates a GUID prefix unique to this process: the low 4
// bytes carry the domain id (so prefixes from different domains never
// collide even over a shared wire), the high 8 bytes are process-random,
// mirroring how RTPS vendors commonly derive a participant's prefix from
// a host/process identifier rather than a central allocator.
func newPrefix(domainID uint32) (guid.Prefix, error) {
	var p guid.Prefix
	if _, err := rand.Read(p[:8]); err != nil {
		return p, err
	}
	binary.BigEndian.PutUint32(p[8:12], domainID)
	return p, nil
}

func writerEntityKind(keyed bool) guid.EntityKind {
	if keyed {
		return guid.KindWriterWithKey
	}
	return guid.KindWriterNoKey
}

// OnParticipantDiscovered records a remote participant (from an
// incoming SPDP announcement) in the entity index and arms its
// AUTOMATIC liveliness lease on the automatic heap, renewing it in
// place if the participant was already known.
func (p *Participant) OnParticipantDiscovered(info discovery.ParticipantInfo, now time.Time) entityindex.Handle {
	handle, leaseDuration := p.discover.OnParticipantDiscovered(info, now)
	p.leaseQueue.Renew(info.GUID, leaseDuration, now)
	p.recordPeerLocators(info)
	return handle
}

// OnEndpointDiscovered records a remote writer or reader (from an
// incoming SEDP announcement), runs the discovery engine's partition
// and QoS-compatibility matching pass against this participant's local
// endpoints, and renews the owning participant's lease to reflect that
// its prefix is still live on the network.
func (p *Participant) OnEndpointDiscovered(info discovery.EndpointInfo, remoteIsWriter bool, leaseDuration time.Duration, now time.Time) []matching.Outcome {
	outcomes := p.discover.OnEndpointDiscovered(info, remoteIsWriter, now)
	p.leaseQueue.Renew(guid.GUID{Prefix: info.GUID.Prefix, EntityId: guid.NewEntityId(0, guid.KindBuiltinParticipant)}, leaseDuration, now)
	if !remoteIsWriter {
		p.wireWriterDestinations(info)
	}
	return outcomes
}

// AssertManualLiveliness renews entity's MANUAL_BY_PARTICIPANT lease on
// the manual heap, e.g. in response to an explicit application-level
// liveliness assert call rather than one driven by discovery traffic.
func (p *Participant) AssertManualLiveliness(entity guid.GUID, duration time.Duration, now time.Time) {
	p.leaseQueueManual.Renew(entity, duration, now)
}

// onLeaseExpired is the lease.FireFunc invoked when a remote
// participant's lease expires: every proxy entity sharing its GUID
// prefix is dropped.
func (p *Participant) onLeaseExpired(l *lease.Lease) {
	dead := l.Entity
	p.log.Infow("lease expired", "entity", dead.String())
	p.discover.OnParticipantLost(func(candidate entityindex.Entity) bool {
		return candidate.GUID().Prefix == dead.Prefix
	})
}

// Run drives the participant's background subsystems — the garbage
// collector and the lease scheduler — until ctx is cancelled, mirroring
// coordinator.Run's errgroup.WithContext composition of independent
// subsystem loops.
func (p *Participant) Run(ctx context.Context) error {
	p.log.Info("running participant")
	defer p.log.Info("stopped participant")

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error { return p.collector.Run(ctx) })
	wg.Go(func() error { return p.leaseSched.Run(ctx) })
	return wg.Wait()
}

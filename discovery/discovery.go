package discovery

import (
	"time"

	"go.uber.org/zap"

	"github.com/godds/core/discovery/partition"
	"github.com/godds/core/entityindex"
	"github.com/godds/core/matching"
)

// LocalLookup answers what the discovery engine needs to know about a
// local endpoint already held in the entity index, without the engine
// needing to understand writer/reader QoS storage directly.
type LocalLookup interface {
	// Writers returns every local writer currently attached to topic.
	Writers(topic string) []matching.EndpointInfo
	// Readers returns every local reader currently attached to topic.
	Readers(topic string) []matching.EndpointInfo
}

// Engine turns SPDP/SEDP announcements into entity-index proxy entities
// and, for endpoints, candidate pairs fed through the matching engine,
// gated by PARTITION QoS (spec.md §4.2, §6).
type Engine struct {
	index   *entityindex.Index
	matcher *matching.Engine
	local   LocalLookup
	log     *zap.SugaredLogger

	defaultLeaseDuration time.Duration
}

// New returns a discovery engine wiring index, matcher, and local as the
// sources of truth for, respectively, discovered entities, match state,
// and this participant's own endpoints.
func New(index *entityindex.Index, matcher *matching.Engine, local LocalLookup, log *zap.SugaredLogger, defaultLeaseDuration time.Duration) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{index: index, matcher: matcher, local: local, log: log, defaultLeaseDuration: defaultLeaseDuration}
}

// OnParticipantDiscovered records a newly announced remote participant
// as a proxy-participant entity, returning its lease GUID/duration for
// the caller to register with the lease scheduler (spec.md §8 Scenario
// 6 ties participant liveliness loss to writer/reader deletion).
func (e *Engine) OnParticipantDiscovered(info ParticipantInfo, now time.Time) (entityindex.Handle, time.Duration) {
	if existing, h, ok := e.index.LookupGUID(info.GUID); ok {
		if pp, ok := entityindex.AsParticipant(existing); ok {
			pp.Touch(now)
		}
		_, leaseDur := Lease(info, e.defaultLeaseDuration)
		return h, leaseDur
	}

	pp := entityindex.NewProxyParticipant(info.GUID, now)
	h := e.index.Insert(pp)
	_, leaseDur := Lease(info, e.defaultLeaseDuration)
	e.log.Infow("discovered participant", "guid", info.GUID.String(), "lease", leaseDur)
	return h, leaseDur
}

// OnParticipantLost removes a remote participant and every proxy
// endpoint it owned from the index, mirroring spec.md §8 Scenario 6's
// "lease expiry deletes a remote participant and everything under it".
func (e *Engine) OnParticipantLost(guidPrefix func(candidate entityindex.Entity) bool) {
	var dead []entityindex.Entity
	for _, kind := range []entityindex.Kind{
		entityindex.KindProxyParticipant,
		entityindex.KindProxyWriter,
		entityindex.KindProxyReader,
	} {
		e.index.Range(kind, func(ent entityindex.Entity) bool {
			if guidPrefix(ent) {
				dead = append(dead, ent)
			}
			return true
		})
	}
	for _, ent := range dead {
		_, h, ok := e.index.LookupGUID(ent.GUID())
		if !ok {
			continue
		}
		e.index.Remove(h)
		e.matcher.Forget(ent.GUID())
	}
}

// OnEndpointDiscovered records a remote writer or reader as a proxy
// entity and attempts to match it against every compatible local
// endpoint on the same topic, gated by PARTITION QoS before the RxO/
// security checks matching.Engine.TryMatch performs.
func (e *Engine) OnEndpointDiscovered(info EndpointInfo, remoteIsWriter bool, now time.Time) []matching.Outcome {
	h := e.indexEndpoint(info, remoteIsWriter, now)

	remote := matching.EndpointInfo{
		Handle: h,
		GUID:   info.GUID,
		Topic:  info.Topic,
		Keyed:  info.Keyed,
		QoS:    info.QoS,
	}

	var candidates []matching.EndpointInfo
	if remoteIsWriter {
		candidates = e.local.Readers(info.Topic)
	} else {
		candidates = e.local.Writers(info.Topic)
	}

	outcomes := make([]matching.Outcome, 0, len(candidates))
	for _, local := range candidates {
		if !partition.Match(info.Partitions, local.QoS.Partitions) {
			continue
		}

		var outcome matching.Outcome
		if remoteIsWriter {
			outcome = e.matcher.TryMatch(remote, local)
		} else {
			outcome = e.matcher.TryMatch(local, remote)
		}
		outcomes = append(outcomes, outcome)

		if outcome.Reason == matching.ReasonCompatible {
			e.log.Debugw("matched endpoints", "topic", info.Topic, "remote", info.GUID.String())
		}
	}
	return outcomes
}

func (e *Engine) indexEndpoint(info EndpointInfo, remoteIsWriter bool, now time.Time) entityindex.Handle {
	if _, h, ok := e.index.LookupGUID(info.GUID); ok {
		return h
	}

	var ent entityindex.Entity
	if remoteIsWriter {
		ent = entityindex.NewProxyWriter(info.GUID, info.Topic, now)
	} else {
		ent = entityindex.NewProxyReader(info.GUID, info.Topic, now)
	}
	return e.index.Insert(ent)
}

// OnEndpointLost removes a remote endpoint from the index and drops its
// match state.
func (e *Engine) OnEndpointLost(g entityindex.Entity) {
	_, h, ok := e.index.LookupGUID(g.GUID())
	if !ok {
		return
	}
	e.index.Remove(h)
	e.matcher.Forget(g.GUID())
}

package matching

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/godds/core/entityindex"
	"github.com/godds/core/guid"
)

// EndpointInfo is what the matching engine needs to know about one
// candidate endpoint, independent of whether it is local or a proxy:
// its identity, topic, QoS, and (for writers) whether it currently
// holds unacknowledged data that would warrant an immediate heartbeat
// reschedule on match (spec.md §4.2 step 5).
type EndpointInfo struct {
	Handle       entityindex.Handle
	GUID         guid.GUID
	Topic        string
	Keyed        bool
	QoS          QoS
	HasUnackedWHC bool
}

// TypeResolver reports whether the local side already has type
// information for a remote endpoint's topic (spec.md §4.2 step 3); when
// it does not, matching defers the pair rather than rejecting it.
type TypeResolver interface {
	HasType(topic string, remote guid.GUID) bool
}

// SecurityChecker gates a candidate pair on permissions when security
// is enabled (spec.md §4.2 step 4).
type SecurityChecker interface {
	Allowed(writer, reader EndpointInfo) bool
}

type options struct {
	log      *zap.SugaredLogger
	types    TypeResolver
	security SecurityChecker
}

func newOptions() *options { return &options{log: zap.NewNop().Sugar()} }

// Option configures an Engine.
type Option func(*options)

// WithLog sets the engine's logger.
func WithLog(log *zap.SugaredLogger) Option { return func(o *options) { o.log = log } }

// WithTypeResolver installs a dynamic-type-discovery check (spec.md
// §4.2 step 3); omitted, every pair is treated as type-compatible.
func WithTypeResolver(r TypeResolver) Option { return func(o *options) { o.types = r } }

// WithSecurityChecker installs a permission check (spec.md §4.2 step
// 4); omitted, every pair is allowed, matching the "allow-all" default
// security plug-in (spec.md §9).
func WithSecurityChecker(c SecurityChecker) Option { return func(o *options) { o.security = c } }

// Outcome is the result of attempting to match one writer/reader pair.
type Outcome struct {
	Reason             Reason
	IncompatiblePolicy IncompatiblePolicy
	Deferred           bool // type information not yet available
}

// Engine runs the matching algorithm of spec.md §4.2: topic check, QoS
// RxO comparison, type-compatibility gating, security gating, and
// connection insertion, plus liveliness propagation across a writer's
// match set.
type Engine struct {
	opts *options

	mu      sync.Mutex
	writers map[guid.GUID]*MatchSet
	readers map[guid.GUID]*ReaderMatchSet
}

// New returns a matching engine with empty match-set tables.
func New(opt ...Option) *Engine {
	o := newOptions()
	for _, fn := range opt {
		fn(o)
	}
	return &Engine{opts: o, writers: make(map[guid.GUID]*MatchSet), readers: make(map[guid.GUID]*ReaderMatchSet)}
}

// WriterMatches returns (creating if necessary) the match set a writer
// keeps of its matched readers.
func (e *Engine) WriterMatches(writer guid.GUID) *MatchSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.writers[writer]
	if !ok {
		s = NewMatchSet()
		e.writers[writer] = s
	}
	return s
}

// ReaderMatches returns (creating if necessary) the match set a reader
// keeps of its matched writers.
func (e *Engine) ReaderMatches(reader guid.GUID) *ReaderMatchSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.readers[reader]
	if !ok {
		s = NewReaderMatchSet()
		e.readers[reader] = s
	}
	return s
}

// Forget drops an endpoint's match set entirely, e.g. on deletion.
func (e *Engine) Forget(ep guid.GUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.writers, ep)
	delete(e.readers, ep)
}

// TryMatch evaluates one candidate writer/reader pair through every
// step of spec.md §4.2's matching algorithm, in order, short-circuiting
// on the first failure, and on success inserts the connection into both
// sides' match sets.
func (e *Engine) TryMatch(writer, reader EndpointInfo) Outcome {
	if writer.Topic != reader.Topic || writer.Keyed != reader.Keyed {
		return Outcome{Reason: ReasonDifferentTopic}
	}

	reason, policy := CheckRxO(writer.QoS, reader.QoS)
	if reason != ReasonCompatible {
		return Outcome{Reason: reason, IncompatiblePolicy: policy}
	}

	if suppressed(writer, reader) {
		return Outcome{Reason: ReasonIgnoredLocal}
	}

	if e.opts.types != nil && !e.opts.types.HasType(writer.Topic, reader.GUID) {
		return Outcome{Reason: ReasonTypeMismatchPending, Deferred: true}
	}

	if e.opts.security != nil && !e.opts.security.Allowed(writer, reader) {
		return Outcome{Reason: ReasonSecurityDenied}
	}

	e.connect(writer, reader)

	// A new match of a reliable writer holding unacknowledged data is only
	// logged; TryMatch does not schedule a heartbeat.
	if writer.HasUnackedWHC && writer.QoS.Reliability.Kind == Reliable {
		e.opts.log.Debugw("new match for reliable writer with unacknowledged data",
			zap.Stringer("writer", writer.GUID), zap.Stringer("reader", reader.GUID))
	}

	return Outcome{Reason: ReasonCompatible}
}

// suppressed implements the IGNORE_LOCAL rule from spec.md §4.2 step 2:
// a PARTICIPANT-scoped ignore suppresses pairs sharing a GUID prefix; a
// PROCESS-scoped ignore suppresses every local pair unconditionally
// (this module runs one participant per process, so "process" and
// "participant" coincide, but the two kinds are kept distinct since a
// future multi-participant-per-process deployment would not collapse them).
func suppressed(writer, reader EndpointInfo) bool {
	check := func(kind IgnoreLocalKind) bool {
		switch kind {
		case IgnoreProcess:
			return true
		case IgnoreParticipant:
			return writer.GUID.Prefix == reader.GUID.Prefix
		default:
			return false
		}
	}
	return check(writer.QoS.IgnoreLocal) || check(reader.QoS.IgnoreLocal)
}

func (e *Engine) connect(writer, reader EndpointInfo) {
	wm := &WriterMatch{Reader: reader.Handle, GUID: reader.GUID}
	rm := &ReaderMatch{Writer: writer.Handle, GUID: writer.GUID}

	e.WriterMatches(writer.GUID).Insert(wm)
	e.ReaderMatches(reader.GUID).Insert(rm)
}

// PropagateAlive updates every one of a writer's matches to the given
// alive state and invokes notify for each one whose state actually
// changed, passing the version SetAlive returned. No match-set or
// per-match lock is held while notify runs. The vclock is not
// re-checked after notify returns.
func PropagateAlive(matches *MatchSet, alive bool, notify func(reader guid.GUID, aliveNow bool, vclock uint64)) {
	matches.Range(func(m *WriterMatch) bool {
		if changed, version := m.SetAlive(alive); changed {
			notify(m.GUID, alive, version)
		}
		return true
	})
}

// LeaseDurationOrDefault returns qos's liveliness lease duration, or
// def if it is unset (zero), matching the DDS convention that an
// unset lease duration means "infinite" is represented by the
// participant's configured default instead.
func LeaseDurationOrDefault(qos QoS, def time.Duration) time.Duration {
	if qos.Liveliness.LeaseDuration <= 0 {
		return def
	}
	return qos.Liveliness.LeaseDuration
}

// Package matching implements the discovery-driven matching engine
// described in spec.md §4.2: endpoint lifecycle, QoS request-versus-offered
// (RxO) compatibility, connection insertion/removal, and liveliness
// propagation with per-match vclocks.
package matching

import "time"

// ReliabilityKind orders BEST_EFFORT below RELIABLE so RxO compatibility
// reduces to a single integer comparison.
type ReliabilityKind int

const (
	BestEffort ReliabilityKind = iota
	Reliable
)

// Reliability is the RELIABILITY QoS policy.
type Reliability struct {
	Kind            ReliabilityKind
	MaxBlockingTime time.Duration
}

// DurabilityKind orders the four standard durability levels so RxO
// compatibility reduces to offered >= requested.
type DurabilityKind int

const (
	Volatile DurabilityKind = iota
	TransientLocal
	Transient
	Persistent
)

// Durability is the DURABILITY QoS policy.
type Durability struct {
	Kind DurabilityKind
}

// PresentationScope orders COHERENT_ACCESS/ORDERED_ACCESS's enclosing
// access_scope.
type PresentationScope int

const (
	InstanceScope PresentationScope = iota
	TopicScope
	GroupScope
)

// Presentation is the PRESENTATION QoS policy.
type Presentation struct {
	AccessScope     PresentationScope
	CoherentAccess  bool
	OrderedAccess   bool
}

// OwnershipKind selects whether an instance may have multiple writers.
type OwnershipKind int

const (
	Shared OwnershipKind = iota
	Exclusive
)

// Ownership is the OWNERSHIP QoS policy.
type Ownership struct {
	Kind OwnershipKind
}

// LivelinessKind orders the three liveliness assertion mechanisms so RxO
// compatibility reduces to offered >= requested.
type LivelinessKind int

const (
	Automatic LivelinessKind = iota
	ManualByParticipant
	ManualByTopic
)

// Liveliness is the LIVELINESS QoS policy.
type Liveliness struct {
	Kind          LivelinessKind
	LeaseDuration time.Duration
}

// Deadline is the DEADLINE QoS policy: the maximum period between
// successive samples of one instance.
type Deadline struct {
	Period time.Duration
}

// LatencyBudget is the LATENCY_BUDGET QoS policy: a duration hint, but
// one still subject to RxO comparison like DEADLINE — a reader may not
// request a tighter budget than its writer offers.
type LatencyBudget struct {
	Duration time.Duration
}

// DestinationOrderKind orders BY_RECEPTION_TIMESTAMP below
// BY_SOURCE_TIMESTAMP so RxO compatibility reduces to offered >= requested.
type DestinationOrderKind int

const (
	ByReceptionTimestamp DestinationOrderKind = iota
	BySourceTimestamp
)

// DestinationOrder is the DESTINATION_ORDER QoS policy.
type DestinationOrder struct {
	Kind DestinationOrderKind
}

// IgnoreLocalKind selects whether an endpoint refuses to match peers
// from its own process or its own participant.
type IgnoreLocalKind int

const (
	IgnoreNone IgnoreLocalKind = iota
	IgnoreParticipant
	IgnoreProcess
)

// QoS bundles the policies spec.md §4.2 names as subject to RxO
// comparison, plus PARTITION (matched by discovery/partition, not here)
// and IGNORE_LOCAL.
type QoS struct {
	Reliability      Reliability
	Durability       Durability
	Presentation     Presentation
	Ownership        Ownership
	Liveliness       Liveliness
	Deadline         Deadline
	LatencyBudget    LatencyBudget
	DestinationOrder DestinationOrder
	IgnoreLocal      IgnoreLocalKind
	Partitions       []string
}

// Reason names why a candidate writer/reader pair failed to match.
type Reason int

const (
	ReasonCompatible Reason = iota
	ReasonDifferentTopic
	ReasonIncompatibleQoS
	ReasonIgnoredLocal
	ReasonTypeMismatchPending
	ReasonSecurityDenied
)

// IncompatiblePolicy names the first RxO policy found incompatible, for
// diagnostic reporting (DDS's REQUESTED_INCOMPATIBLE_QOS status carries
// exactly one "last policy" per the standard).
type IncompatiblePolicy int

const (
	PolicyNone IncompatiblePolicy = iota
	PolicyReliability
	PolicyDurability
	PolicyPresentation
	PolicyOwnership
	PolicyLiveliness
	PolicyDeadline
	PolicyLatencyBudget
	PolicyDestinationOrder
)

// CheckRxO compares a writer's offered QoS against a reader's requested
// QoS over every policy spec.md §4.2 step 2 names, returning the first
// incompatibility found (DDS evaluates and reports only one at a time).
func CheckRxO(offered, requested QoS) (Reason, IncompatiblePolicy) {
	if offered.Reliability.Kind < requested.Reliability.Kind {
		return ReasonIncompatibleQoS, PolicyReliability
	}
	if offered.Durability.Kind < requested.Durability.Kind {
		return ReasonIncompatibleQoS, PolicyDurability
	}
	if offered.Presentation.AccessScope < requested.Presentation.AccessScope {
		return ReasonIncompatibleQoS, PolicyPresentation
	}
	if requested.Presentation.CoherentAccess && !offered.Presentation.CoherentAccess {
		return ReasonIncompatibleQoS, PolicyPresentation
	}
	if requested.Presentation.OrderedAccess && !offered.Presentation.OrderedAccess {
		return ReasonIncompatibleQoS, PolicyPresentation
	}
	if offered.Ownership.Kind != requested.Ownership.Kind {
		return ReasonIncompatibleQoS, PolicyOwnership
	}
	if offered.Liveliness.Kind < requested.Liveliness.Kind {
		return ReasonIncompatibleQoS, PolicyLiveliness
	}
	if requested.Liveliness.LeaseDuration > 0 && offered.Liveliness.LeaseDuration > requested.Liveliness.LeaseDuration {
		return ReasonIncompatibleQoS, PolicyLiveliness
	}
	if requested.Deadline.Period > 0 && (offered.Deadline.Period == 0 || offered.Deadline.Period > requested.Deadline.Period) {
		return ReasonIncompatibleQoS, PolicyDeadline
	}
	if requested.LatencyBudget.Duration > 0 && offered.LatencyBudget.Duration > requested.LatencyBudget.Duration {
		return ReasonIncompatibleQoS, PolicyLatencyBudget
	}
	if offered.DestinationOrder.Kind < requested.DestinationOrder.Kind {
		return ReasonIncompatibleQoS, PolicyDestinationOrder
	}
	return ReasonCompatible, PolicyNone
}

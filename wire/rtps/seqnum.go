package rtps

// SequenceNumber is a writer-assigned, strictly increasing 64-bit sample
// sequence number (spec.md §3.3).
type SequenceNumber int64

// SeqUnknown is the RTPS sentinel for "no sequence number".
const SeqUnknown SequenceNumber = 0

// SeqMax is the RTPS sentinel historically used to mean "treat this
// match as fully acknowledged" (spec.md §9, "pretend_everything_acked").
// Per the spec's own caution, prefer an explicit optional over comparing
// against this constant in new code; it is retained only for wire
// encoding compatibility.
const SeqMax SequenceNumber = (1 << 63) - 1

// EntityKey is the 128-bit key hash carried in PID_KEY_HASH, identifying
// the instance a sample belongs to.
type EntityKey [16]byte

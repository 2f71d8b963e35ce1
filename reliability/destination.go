package reliability

import (
	"github.com/godds/core/wire/rtps"
)

// DestinationMode selects whether a heartbeat or retransmitted data
// packet is sent to the writer's whole address set or to a single
// lagging reader (spec.md §4.3, "Destination selection").
type DestinationMode int

const (
	DestMulticast DestinationMode = iota
	DestUnicastSingle
)

// ReaderProgress is the minimum a writer needs to know about one
// matched reliable reader to pick a destination: its last-acked
// sequence number.
type ReaderProgress struct {
	AckedSeq rtps.SequenceNumber
}

// SelectDestination implements spec.md §4.3's destination rule:
// multicast whenever every reliable reader is equally caught up
// (whether or not they lead the writer), unicast to the single reader
// that lags when exactly one does, and multicast again when more than
// one lags (a single multicast catches every straggler up at once,
// cheaper than one unicast per straggler).
func SelectDestination(writerSeq rtps.SequenceNumber, readers []ReaderProgress) (DestinationMode, int) {
	if len(readers) == 0 {
		return DestMulticast, -1
	}

	laggingIdx := -1
	laggingCount := 0
	for i, r := range readers {
		if r.AckedSeq != writerSeq {
			laggingCount++
			laggingIdx = i
		}
	}

	if laggingCount == 1 {
		return DestUnicastSingle, laggingIdx
	}
	return DestMulticast, -1
}

package discovery

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/godds/core/guid"
)

// ProbeFunc attempts one round of contact with a remote participant at
// the locators discovered via SPDP, returning an error if the peer did
// not respond so the caller can back off and retry.
type ProbeFunc func(ctx context.Context, info ParticipantInfo) error

// PeerTracker drives the initial-contact retry loop for a newly
// discovered remote participant: SPDP announcements arrive periodically
// over multicast, but establishing the unicast side of the conversation
// (e.g. exchanging the first heartbeat) may need several attempts if the
// peer is still starting up. Retries back off exponentially rather than
// hammering the network, mirroring how the pack's other reconnect paths
// use cenkalti/backoff.
type PeerTracker struct {
	probe ProbeFunc
	log   *zap.SugaredLogger

	maxElapsed time.Duration
}

// NewPeerTracker returns a tracker calling probe to confirm a newly
// discovered peer, retrying with exponential backoff for up to
// maxElapsed before giving up.
func NewPeerTracker(probe ProbeFunc, log *zap.SugaredLogger, maxElapsed time.Duration) *PeerTracker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &PeerTracker{probe: probe, log: log, maxElapsed: maxElapsed}
}

// Confirm runs probe against info until it succeeds, ctx is cancelled,
// or maxElapsed passes, whichever comes first.
func (t *PeerTracker) Confirm(ctx context.Context, info ParticipantInfo) error {
	bo := backoff.NewExponentialBackOff()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if perr := t.probe(ctx, info); perr != nil {
			t.log.Debugw("peer probe failed, retrying", "peer", info.GUID.String(), "error", perr)
			return struct{}{}, perr
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(t.maxElapsed))
	return err
}

// Lease derives the GC/lease queue entry for a discovered participant,
// using its advertised lease duration or def when the peer advertised
// zero (meaning "use the domain default").
func Lease(info ParticipantInfo, def time.Duration) (guid.GUID, time.Duration) {
	d := info.LeaseDuration
	if d <= 0 {
		d = def
	}
	return info.GUID, d
}

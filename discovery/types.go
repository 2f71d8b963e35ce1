// Package discovery implements the SPDP/SEDP participant- and
// endpoint-discovery glue described in spec.md §4.2/§6: turning a
// discovered remote participant or endpoint announcement into proxy
// entities in the entity index and candidate pairs for the matching
// engine, gated by PARTITION QoS.
package discovery

import (
	"time"

	"github.com/godds/core/guid"
	"github.com/godds/core/matching"
)

// ParticipantInfo is what an SPDP announcement tells the local
// participant about a remote one: its identity, the unicast/multicast
// locators to reach it, and its lease duration.
type ParticipantInfo struct {
	GUID          guid.GUID
	UnicastLoc    []string
	MulticastLoc  []string
	LeaseDuration time.Duration
}

// EndpointInfo is what an SEDP publication/subscription announcement
// tells the local participant about a remote writer or reader.
type EndpointInfo struct {
	GUID       guid.GUID
	Topic      string
	TypeName   string
	Keyed      bool
	QoS        matching.QoS
	Partitions []string
}

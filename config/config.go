// Package config defines the participant configuration surface
// (spec.md §6.3) and loads it from YAML the way the teacher's
// coordinator.LoadConfig does.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/godds/core/logging"
)

// ManySocketsMode selects how unicast sockets are allocated across
// participants sharing a host (spec.md §6.3).
type ManySocketsMode string

const (
	SingleUnicast ManySocketsMode = "SINGLE_UNICAST"
	ManyUnicast   ManySocketsMode = "MANY_UNICAST"
	NoUnicast     ManySocketsMode = "NO_UNICAST"
)

// MulticastMask selects which subsystems are allowed to use multicast.
type MulticastMask struct {
	SPDP bool `yaml:"spdp"`
	ASM  bool `yaml:"asm"`
	SSM  bool `yaml:"ssm"`
}

// WHCConfig carries the writer-history-cache water marks and adaptive
// behavior (spec.md §3.6, §4.3 "throttling").
type WHCConfig struct {
	LowWaterMark      datasize.ByteSize `yaml:"whc_lowwater_mark"`
	HighWaterMark     datasize.ByteSize `yaml:"whc_highwater_mark"`
	InitHighWaterMark datasize.ByteSize `yaml:"whc_init_highwater_mark"`
	Adaptive          bool              `yaml:"whc_adaptive"`
}

// HeartbeatConfig carries the scheduling constants of spec.md §4.3.
type HeartbeatConfig struct {
	Min      time.Duration `yaml:"const_hb_intv_min"`
	Max      time.Duration `yaml:"const_hb_intv_max"`
	Sched    time.Duration `yaml:"const_hb_intv_sched"`
	SchedMax time.Duration `yaml:"const_hb_intv_sched_max"`
}

// ReliabilityConfig carries retransmission and throttling tunables
// (spec.md §4.3).
type ReliabilityConfig struct {
	FragmentSize         datasize.ByteSize `yaml:"fragment_size"`
	MaxQueuedRexmitBytes datasize.ByteSize `yaml:"max_queued_rexmit_bytes"`
	MaxRexmitBurstSize   datasize.ByteSize `yaml:"max_rexmit_burst_size"`
	InitTransmitExtraPct int               `yaml:"init_transmit_extra_pct"`
	MaxBlockingTime      time.Duration     `yaml:"max_blocking_time"`
	PreemptiveAckDelay   time.Duration     `yaml:"preemptive_ack_delay"`
	NackDelay            time.Duration     `yaml:"nack_delay"`
}

// DiscoveryConfig carries discovery-cycle tunables (spec.md §6.3, §6.5).
type DiscoveryConfig struct {
	Peers                   []string      `yaml:"peers"`
	PeersGroup              []string      `yaml:"peers_group"`
	LeaseDuration           time.Duration `yaml:"lease_duration"`
	PruneDeletedParticipant time.Duration `yaml:"prune_deleted_ppant_delay"`
}

// Config is the root configuration for a godds participant process.
type Config struct {
	DomainId                 uint32            `yaml:"domain_id"`
	ExtDomainId              uint32            `yaml:"ext_domain_id"`
	ParticipantIndex         string            `yaml:"participant_index"`
	MaxAutoParticipantIndex  uint32            `yaml:"max_auto_participant_index"`
	MaxParticipants          uint32            `yaml:"max_participants"`
	ManySocketsMode          ManySocketsMode   `yaml:"many_sockets_mode"`
	AllowMulticast           MulticastMask     `yaml:"allow_multicast"`
	SPDPMulticastAddress     string            `yaml:"spdp_multicast_address"`
	DefaultMulticastAddress  string            `yaml:"default_multicast_address"`
	Endpoint                 string            `yaml:"endpoint"`

	WHC          WHCConfig         `yaml:"whc"`
	Heartbeat    HeartbeatConfig   `yaml:"heartbeat"`
	Reliability  ReliabilityConfig `yaml:"reliability"`
	Discovery    DiscoveryConfig   `yaml:"discovery"`
	Logging      logging.Config    `yaml:"logging"`
	Introspect   IntrospectConfig  `yaml:"introspect"`
}

// IntrospectConfig configures the read-only diagnostic gRPC service
// (SPEC_FULL.md §8, package introspect).
type IntrospectConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfig returns the configuration used when no file value is
// given, following the defaults Cyclone DDS ships for an unconfigured
// domain participant.
func DefaultConfig() *Config {
	return &Config{
		DomainId:                0,
		ParticipantIndex:        "AUTO",
		MaxAutoParticipantIndex: 9,
		MaxParticipants:         0,
		ManySocketsMode:         ManyUnicast,
		AllowMulticast:          MulticastMask{SPDP: true, ASM: true},
		SPDPMulticastAddress:    "239.255.0.1",
		Endpoint:                "[::]:0",
		WHC: WHCConfig{
			LowWaterMark:      500 * datasize.KB,
			HighWaterMark:     2 * datasize.MB,
			InitHighWaterMark: 1 * datasize.MB,
			Adaptive:          true,
		},
		Heartbeat: HeartbeatConfig{
			Min:      5 * time.Millisecond,
			Max:      8 * time.Second,
			Sched:    100 * time.Millisecond,
			SchedMax: 2 * time.Second,
		},
		Reliability: ReliabilityConfig{
			FragmentSize:         1344,
			MaxQueuedRexmitBytes: 512 * datasize.KB,
			MaxRexmitBurstSize:   128 * datasize.KB,
			InitTransmitExtraPct: 25,
			MaxBlockingTime:      100 * time.Millisecond,
			PreemptiveAckDelay:   10 * time.Millisecond,
			NackDelay:            100 * time.Millisecond,
		},
		Discovery: DiscoveryConfig{
			LeaseDuration:           10 * time.Second,
			PruneDeletedParticipant: 30 * time.Second,
		},
		Logging: logging.Default(),
	}
}

// LoadConfig reads and parses a YAML configuration file, overlaying it
// on top of DefaultConfig, mirroring coordinator.LoadConfig in the
// teacher repository.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	return cfg, nil
}

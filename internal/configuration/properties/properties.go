package properties

import (
	"fmt"
	"net"
	"path/filepath"
	"time"
)

type ApplicationConfigProperties struct {
	Profile  string `yaml:"profile"`
	LogLevel string `yaml:"log-level"`
}

type TransportConfigProperties struct {
	Network              string `yaml:"network"`
	Address              string `yaml:"address"`
	ClientPort           string `yaml:"client-port"`
	RaftPort             string `yaml:"raft-port"`
	Timeout              uint64 `yaml:"timeout"`
	MaxConcurrentStreams uint32 `yaml:"max-concurrent-streams"`
}

type MetricsConfigProperties struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type WriteAheadLogProperties struct {
	NoSync bool `yaml:"no-sync"`
}

// Durations in this section are milliseconds.
type RaftConfigProperties struct {
	NodeID            uint64                  `yaml:"node-id"`
	Peers             map[uint64]string       `yaml:"peers"`
	StorageDir        string                  `yaml:"storage-dir"`
	TickInterval      uint64                  `yaml:"tick-interval"`
	ElectionTimeout   uint64                  `yaml:"election-timeout"`
	ElectionJitter    uint64                  `yaml:"election-jitter"`
	HeartbeatInterval uint64                  `yaml:"heartbeat-interval"`
	RPCTimeout        uint64                  `yaml:"rpc-timeout"`
	SnapCount         uint64                  `yaml:"snap-count"`
	SnapshotChunkSize int                     `yaml:"snapshot-chunk-size"`
	MaxAppendEntries  int                     `yaml:"max-append-entries"`
	BatchAppend       bool                    `yaml:"batch-append"`
	Wal               WriteAheadLogProperties `yaml:"wal"`
}

type ValidatorProperties struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
	Stake   uint64 `yaml:"stake"`
}

type ChainConfigProperties struct {
	NetworkID        string                `yaml:"network-id"`
	GenesisTimestamp int64                 `yaml:"genesis-timestamp"`
	GasLimit         uint64                `yaml:"gas-limit"`
	GenesisFile      string                `yaml:"genesis-file"`
	Validators       []ValidatorProperties `yaml:"validators"`
}

type StreamConfigProperties struct {
	PollInterval uint64 `yaml:"poll-interval"`
}

type Config struct {
	Application ApplicationConfigProperties `yaml:"app"`
	Transport   TransportConfigProperties   `yaml:"transport"`
	Metrics     MetricsConfigProperties     `yaml:"metrics"`
	Raft        RaftConfigProperties        `yaml:"raft"`
	Chain       ChainConfigProperties       `yaml:"chain"`
	Stream      StreamConfigProperties      `yaml:"stream"`
}

func (c *TransportConfigProperties) RaftAddr() string {
	return net.JoinHostPort(c.Address, c.RaftPort)
}

func (c *TransportConfigProperties) ClientAddr() string {
	return net.JoinHostPort(c.Address, c.ClientPort)
}

func (c *TransportConfigProperties) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

func (c *RaftConfigProperties) NodeDir() string {
	return filepath.Join(c.StorageDir, fmt.Sprintf("node-%d", c.NodeID))
}

func (c *RaftConfigProperties) TickDuration() time.Duration {
	return time.Duration(c.TickInterval) * time.Millisecond
}

func (c *RaftConfigProperties) ElectionTimeoutDuration() time.Duration {
	return time.Duration(c.ElectionTimeout) * time.Millisecond
}

func (c *RaftConfigProperties) ElectionJitterDuration() time.Duration {
	return time.Duration(c.ElectionJitter) * time.Millisecond
}

func (c *RaftConfigProperties) HeartbeatDuration() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Millisecond
}

func (c *RaftConfigProperties) RPCTimeoutDuration() time.Duration {
	return time.Duration(c.RPCTimeout) * time.Millisecond
}

func (c *StreamConfigProperties) PollDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Millisecond
}

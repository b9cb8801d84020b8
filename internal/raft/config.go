package raft

import (
	"fmt"
	"hyperraft/internal/raft/ops"
	"strings"
	"time"
)

const (
	defaultTickInterval      = 50 * time.Millisecond
	defaultElectionTimeout   = 1500 * time.Millisecond
	defaultElectionJitter    = 1500 * time.Millisecond
	defaultHeartbeatInterval = 500 * time.Millisecond
	defaultRPCTimeout        = time.Second
	defaultChunkSize         = 64 * 1024
	defaultMaxAppendEntries  = 256
)

type Config struct {
	ID uint64
	// Peers maps every voter id, this node included, to its consensus address.
	Peers map[uint64]string

	TickInterval      time.Duration
	ElectionTimeout   time.Duration
	ElectionJitter    time.Duration
	HeartbeatInterval time.Duration
	RPCTimeout        time.Duration

	SnapCount         uint64
	SnapshotChunkSize int
	MaxAppendEntries  int
	BatchAppend       bool
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.ElectionTimeout <= 0 {
		c.ElectionTimeout = defaultElectionTimeout
	}
	switch {
	case c.ElectionJitter == 0:
		c.ElectionJitter = defaultElectionJitter
	case c.ElectionJitter < 0:
		c.ElectionJitter = 0
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = defaultRPCTimeout
	}
	if c.SnapshotChunkSize <= 0 {
		c.SnapshotChunkSize = defaultChunkSize
	}
	if c.MaxAppendEntries <= 0 {
		c.MaxAppendEntries = defaultMaxAppendEntries
	}
	if c.Peers == nil {
		c.Peers = map[uint64]string{}
	}
	return c
}

func (c Config) validate() error {
	if c.ID == 0 {
		return fmt.Errorf("node id must be non-zero")
	}
	if _, ok := c.Peers[c.ID]; !ok && len(c.Peers) > 0 {
		return fmt.Errorf("node %d is not listed in peers %s", c.ID, formatPeers(c.Peers))
	}
	if c.HeartbeatInterval >= c.ElectionTimeout {
		return fmt.Errorf("heartbeat interval %s must be below election timeout %s",
			c.HeartbeatInterval, c.ElectionTimeout)
	}
	return nil
}

func formatPeers(peers map[uint64]string) string {
	strs := make([]string, 0, len(peers))
	for _, id := range ops.Voters(peers) {
		strs = append(strs, fmt.Sprintf("%d=%s", id, peers[id]))
	}
	return strings.Join(strs, ",")
}

package raft

import (
	"context"
	"encoding/json"
	"errors"
	"hyperraft/internal/raft/ports"
	"hyperraft/internal/types"
	"slices"
	"sync"
	"testing"
	"time"
)

// recordingSM keeps the payload of every applied block proposal.
type recordingSM struct {
	mu      sync.Mutex
	blocks  []string
	indexes []uint64
}

func (s *recordingSM) Apply(e types.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes = append(s.indexes, e.Index)
	if e.CommandType == types.CommandBlockProposal {
		s.blocks = append(s.blocks, string(e.Command))
	}
	return nil
}

func (s *recordingSM) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(s.blocks)
}

func (s *recordingSM) Restore(data []byte) error {
	var blocks []string
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	s.mu.Lock()
	s.blocks = blocks
	s.mu.Unlock()
	return nil
}

func (s *recordingSM) Blocks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.blocks)
}

func (s *recordingSM) Indexes() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.indexes)
}

func (s *recordingSM) Has(block string) bool {
	return slices.Contains(s.Blocks(), block)
}

type unreachableTransport struct{}

var errUnreachable = errors.New("unreachable")

func (unreachableTransport) RequestVote(context.Context, uint64, *types.RequestVoteRequest) (*types.RequestVoteResponse, error) {
	return nil, errUnreachable
}

func (unreachableTransport) AppendEntries(context.Context, uint64, *types.AppendEntriesRequest) (*types.AppendEntriesResponse, error) {
	return nil, errUnreachable
}

func (unreachableTransport) InstallSnapshot(context.Context, uint64, *types.InstallSnapshotRequest) (*types.InstallSnapshotResponse, error) {
	return nil, errUnreachable
}

func testConfig(id uint64, peers map[uint64]string) Config {
	return Config{
		ID:                id,
		Peers:             peers,
		TickInterval:      10 * time.Millisecond,
		ElectionTimeout:   150 * time.Millisecond,
		ElectionJitter:    150 * time.Millisecond,
		HeartbeatInterval: 30 * time.Millisecond,
		RPCTimeout:        100 * time.Millisecond,
	}
}

func threePeers() map[uint64]string {
	return map[uint64]string{1: "n1", 2: "n2", 3: "n3"}
}

type testNode struct {
	engine  *Engine
	storage *WALStorage
	sm      *recordingSM
	dir     string
}

func newTestNode(t *testing.T, cfg Config, transport ports.Transport) *testNode {
	t.Helper()
	dir := t.TempDir()
	return openTestNode(t, cfg, transport, dir)
}

func openTestNode(t *testing.T, cfg Config, transport ports.Transport, dir string) *testNode {
	t.Helper()
	storage := openTestStorage(t, dir)
	sm := &recordingSM{}
	e, err := New(cfg, storage, transport, sm)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	n := &testNode{engine: e, storage: storage, sm: sm, dir: dir}
	t.Cleanup(n.close)
	return n
}

func (n *testNode) close() {
	n.engine.Stop()
	n.storage.Close()
}

package raft

import (
	"bytes"
	"fmt"
	"hyperraft/internal/domain"
	"hyperraft/internal/metrics"
	"hyperraft/internal/raft/ops"
	"hyperraft/internal/types"
	"log/slog"
	"sync"
	"time"
)

// SnapshotManager produces snapshots of the state machine and reassembles
// snapshots streamed in by the leader.
type SnapshotManager struct {
	sm        domain.StateMachine
	snapCount uint64
	chunkSize int

	mu      sync.Mutex
	pending *pendingSnapshot
}

type pendingSnapshot struct {
	leaderTerm uint64
	index      uint64
	term       uint64
	buf        bytes.Buffer
}

func NewSnapshotManager(sm domain.StateMachine, snapCount uint64, chunkSize int) *SnapshotManager {
	return &SnapshotManager{
		sm:        sm,
		snapCount: snapCount,
		chunkSize: chunkSize,
	}
}

// ShouldSnapshot reports whether enough entries were applied since the last
// snapshot. A zero snap count disables local snapshots.
func (m *SnapshotManager) ShouldSnapshot(applied, snapIndex uint64) bool {
	if m.snapCount == 0 || applied <= snapIndex {
		return false
	}
	return applied-snapIndex >= m.snapCount
}

func (m *SnapshotManager) Create(index, term uint64, voters []uint64) (types.SnapshotMeta, []byte, error) {
	meta := types.SnapshotMeta{
		LastIncludedIndex: index,
		LastIncludedTerm:  term,
		Voters:            voters,
	}
	if err := ops.ValidateSnapshot(meta); err != nil {
		return types.SnapshotMeta{}, nil, err
	}

	start := time.Now()
	data, err := m.sm.Snapshot()
	if err != nil {
		return types.SnapshotMeta{}, nil, fmt.Errorf("state machine snapshot at %d: %w", index, err)
	}
	metrics.RaftSnapshotDuration.Observe(time.Since(start).Seconds())

	slog.Debug("created snapshot", "index", index, "term", term, "bytes", len(data))
	return meta, data, nil
}

func (m *SnapshotManager) Chunks(data []byte) [][]byte {
	return ops.SplitChunks(data, m.chunkSize)
}

// Receive appends one InstallSnapshot chunk. It returns the full snapshot once
// the chunk marked done arrives. Chunks must arrive in offset order; a chunk at
// offset 0 always starts a new transfer.
func (m *SnapshotManager) Receive(req *types.InstallSnapshotRequest) (bool, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.Offset == 0 {
		m.pending = &pendingSnapshot{
			leaderTerm: req.Term,
			index:      req.LastIncludedIndex,
			term:       req.LastIncludedTerm,
		}
	}

	p := m.pending
	if p == nil || p.leaderTerm != req.Term || p.index != req.LastIncludedIndex || p.term != req.LastIncludedTerm {
		return false, nil, fmt.Errorf("chunk for snapshot %d without a started transfer: %w",
			req.LastIncludedIndex, ErrSnapshotTransferIncomplete)
	}

	have := uint64(p.buf.Len())
	switch {
	case req.Offset == have:
		p.buf.Write(req.Data)
	case req.Offset+uint64(len(req.Data)) <= have && !req.Done:
		// retransmitted chunk already held
		return false, nil, nil
	default:
		return false, nil, fmt.Errorf("chunk offset %d, have %d bytes: %w",
			req.Offset, have, ErrSnapshotTransferIncomplete)
	}

	if !req.Done {
		return false, nil, nil
	}

	data := bytes.Clone(p.buf.Bytes())
	m.pending = nil
	return true, data, nil
}

// Abort drops any partially received snapshot.
func (m *SnapshotManager) Abort() {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
}

package raft

import (
	"context"
	"fmt"
	"hyperraft/internal/metrics"
	"hyperraft/internal/types"
	"log/slog"
	"time"
)

// NotLeaderError is returned by ProposeBlock on a follower or candidate and
// carries the leader this node currently knows about, if any.
type NotLeaderError struct {
	LeaderID uint64
}

func (e *NotLeaderError) Error() string {
	if e.LeaderID == 0 {
		return "not leader, leader unknown"
	}
	return fmt.Sprintf("not leader, leader is %d", e.LeaderID)
}

func (e *NotLeaderError) Is(target error) bool {
	return target == ErrNotLeader
}

// LeaderBarrier returns the index a leader must have applied before it builds
// on local state machine contents: its no-op entry, or the commit index when
// that is higher.
func (e *Engine) LeaderBarrier() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return 0, ErrStopped
	}
	if e.role != types.Leader {
		return 0, &NotLeaderError{LeaderID: e.leaderID}
	}
	return max(e.leaderStart, e.commitIndex), nil
}

// ProposeBlock appends a block proposal to the leader's log and wakes the
// replicators. The entry is not committed when this returns.
func (e *Engine) ProposeBlock(_ context.Context, req *types.ProposeBlockRequest) (*types.ProposeBlockResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil, ErrStopped
	}
	if e.role != types.Leader {
		metrics.RaftProposalsFailed.Inc()
		return nil, &NotLeaderError{LeaderID: e.leaderID}
	}

	entry := types.LogEntry{
		Index:       e.log.LastIndex() + 1,
		Term:        e.term,
		Command:     req.BlockPayload,
		CommandType: types.CommandBlockProposal,
		Timestamp:   time.Now().UnixMilli(),
	}
	if err := e.storage.Append([]types.LogEntry{entry}); err != nil {
		metrics.RaftProposalsFailed.Inc()
		return nil, fmt.Errorf("persist proposal for block %d: %w", req.BlockNumber, err)
	}
	e.log.Append(entry)
	metrics.RaftProposalsTotal.Inc()

	slog.Debug("block proposal appended",
		"node_id", e.id,
		"block", req.BlockNumber,
		"proposer", req.ProposerID,
		"index", entry.Index,
		"term", entry.Term,
		"txs", len(req.TxIDs),
	)

	e.advanceCommitLocked()
	e.broadcastLocked()

	return &types.ProposeBlockResponse{
		Accepted:    true,
		BlockNumber: req.BlockNumber,
		Index:       entry.Index,
		Term:        entry.Term,
		LeaderID:    e.id,
		Message:     "block proposal accepted",
	}, nil
}

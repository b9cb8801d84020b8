package raft

import (
	"context"
	"fmt"
	"hyperraft/internal/metrics"
	"hyperraft/internal/raft/ops"
	"hyperraft/internal/types"
	"log/slog"
	"strconv"
	"time"
)

// AppendEntries handles log replication and heartbeats from the leader.
func (e *Engine) AppendEntries(_ context.Context, req *types.AppendEntriesRequest) (*types.AppendEntriesResponse, error) {
	metrics.RaftMessagesTotal.WithLabelValues("in", "append_entries").Inc()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil, ErrStopped
	}

	resp := &types.AppendEntriesResponse{Term: e.term, FollowerID: e.id}
	if req.Term < e.term {
		return resp, nil
	}
	if err := e.acceptLeaderLocked(req.Term, req.LeaderID); err != nil {
		return nil, err
	}
	resp.Term = e.term

	if len(req.Entries) == 0 {
		resp.Success = true
		if e.log.CheckConsistency(req.PrevLogIndex, req.PrevLogTerm) {
			resp.MatchIndex = req.PrevLogIndex
			e.commitToLocked(min(req.LeaderCommit, req.PrevLogIndex))
		}
		return resp, nil
	}

	if !e.log.CheckConsistency(req.PrevLogIndex, req.PrevLogTerm) {
		resp.MatchIndex = e.log.LastIndex()
		slog.Debug("log inconsistency",
			"node_id", e.id,
			"prev_index", req.PrevLogIndex,
			"prev_term", req.PrevLogTerm,
			"last_index", e.log.LastIndex(),
		)
		return resp, nil
	}

	for i, entry := range req.Entries {
		if entry.Index != req.PrevLogIndex+uint64(i)+1 {
			return nil, fmt.Errorf("entry %d has index %d after prev %d: %w",
				i, entry.Index, req.PrevLogIndex, ErrLogInconsistency)
		}
	}

	k, err := e.log.Divergence(req.PrevLogIndex, req.Entries, e.commitIndex)
	if err != nil {
		return nil, err
	}
	if k < len(req.Entries) {
		if err := e.storage.Append(req.Entries[k:]); err != nil {
			return nil, fmt.Errorf("persist entries: %w", err)
		}
	}

	reconcile := e.log.Reconcile
	if req.BatchAppend {
		reconcile = e.log.ReconcileBatch
	}
	if _, err := reconcile(req.PrevLogIndex, req.Entries, e.commitIndex); err != nil {
		return nil, err
	}

	match := req.PrevLogIndex + uint64(len(req.Entries))
	resp.Success = true
	resp.MatchIndex = match
	e.commitToLocked(min(req.LeaderCommit, match))
	return resp, nil
}

// acceptLeaderLocked records a valid message from the leader of term.
func (e *Engine) acceptLeaderLocked(term, leaderID uint64) error {
	if term > e.term {
		if err := e.stepDownLocked(term); err != nil {
			return err
		}
	} else if e.role != types.Follower {
		if e.role == types.Leader {
			slog.Error("second leader observed in the same term",
				"node_id", e.id,
				"term", term,
				"other", leaderID,
			)
		}
		e.becomeFollowerLocked()
	}
	if e.leaderID != leaderID {
		slog.Info("following leader", "node_id", e.id, "leader", leaderID, "term", term)
	}
	e.leaderID = leaderID
	e.resetElectionTimerLocked()
	return nil
}

// InstallSnapshot receives one chunk of a snapshot from the leader. The log and
// state machine change only when the final chunk arrives.
func (e *Engine) InstallSnapshot(_ context.Context, req *types.InstallSnapshotRequest) (*types.InstallSnapshotResponse, error) {
	metrics.RaftMessagesTotal.WithLabelValues("in", "install_snapshot").Inc()

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil, ErrStopped
	}

	resp := &types.InstallSnapshotResponse{Term: e.term}
	if req.Term < e.term {
		e.mu.Unlock()
		return resp, nil
	}
	if err := e.acceptLeaderLocked(req.Term, req.LeaderID); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	resp.Term = e.term

	if req.LastIncludedIndex <= e.lastApplied {
		e.mu.Unlock()
		resp.Success = true
		return resp, nil
	}

	complete, data, err := e.snapshots.Receive(req)
	e.mu.Unlock()
	if err != nil {
		slog.Warn("rejecting snapshot chunk", "node_id", e.id, "offset", req.Offset, "error", err)
		return resp, nil
	}
	if !complete {
		resp.Success = true
		return resp, nil
	}

	if err := e.installSnapshot(req, data); err != nil {
		return nil, err
	}
	resp.Success = true
	return resp, nil
}

func (e *Engine) installSnapshot(req *types.InstallSnapshotRequest, data []byte) error {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.LastIncludedIndex <= e.lastApplied {
		return nil
	}

	meta := types.SnapshotMeta{
		LastIncludedIndex: req.LastIncludedIndex,
		LastIncludedTerm:  req.LastIncludedTerm,
		Voters:            req.Voters,
	}
	if err := ops.ValidateSnapshot(meta); err != nil {
		return err
	}
	if err := e.storage.SaveSnapshot(meta, data); err != nil {
		return fmt.Errorf("persist snapshot %d: %w", meta.LastIncludedIndex, err)
	}
	if err := e.sm.Restore(data); err != nil {
		return fmt.Errorf("restore snapshot %d: %w", meta.LastIncludedIndex, err)
	}

	e.log.InstallSnapshot(meta.LastIncludedIndex, meta.LastIncludedTerm)
	e.lastApplied = meta.LastIncludedIndex
	e.commitToLocked(max(e.commitIndex, meta.LastIncludedIndex))
	e.notifyAppliedLocked()
	metrics.RaftSnapshotsTotal.WithLabelValues("leader").Inc()

	slog.Info("installed snapshot from leader",
		"node_id", e.id,
		"leader", req.LeaderID,
		"index", meta.LastIncludedIndex,
		"term", meta.LastIncludedTerm,
		"bytes", len(data),
	)
	return nil
}

// replicate keeps one follower up to date for as long as this node leads in
// term. It wakes on new entries and on every heartbeat interval.
func (e *Engine) replicate(ctx context.Context, p *peer, term uint64) {
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		for e.sendAppend(ctx, p, term) {
			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-p.notify:
		case <-ticker.C:
		}
	}
}

func (e *Engine) broadcastLocked() {
	for _, p := range e.peers {
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}
}

// sendAppend sends one AppendEntries (or a snapshot when the follower is
// behind the compacted log). It returns true while the follower still lags.
func (e *Engine) sendAppend(ctx context.Context, p *peer, term uint64) bool {
	e.mu.Lock()
	if e.role != types.Leader || e.term != term {
		e.mu.Unlock()
		return false
	}
	if p.nextIndex <= e.log.SnapshotIndex() {
		e.mu.Unlock()
		return e.sendSnapshot(ctx, p, term)
	}

	prevIndex := p.nextIndex - 1
	prevTerm, _ := e.log.Term(prevIndex)
	entries, err := e.log.EntriesFrom(p.nextIndex, e.cfg.MaxAppendEntries)
	if err != nil {
		e.mu.Unlock()
		slog.Error("failed to read entries", "node_id", e.id, "peer", p.id, "error", err)
		return false
	}
	req := &types.AppendEntriesRequest{
		Term:         term,
		LeaderID:     e.id,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: e.commitIndex,
		BatchAppend:  e.cfg.BatchAppend,
	}
	e.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, e.cfg.RPCTimeout)
	metrics.RaftMessagesTotal.WithLabelValues("out", "append_entries").Inc()
	resp, err := e.transport.AppendEntries(rctx, p.id, req)
	cancel()
	if err != nil {
		metrics.RaftMessageErrors.WithLabelValues(strconv.FormatUint(p.id, 10)).Inc()
		slog.Debug("append entries failed", "node_id", e.id, "peer", p.id, "error", err)
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if resp.Term > e.term {
		if err := e.stepDownLocked(resp.Term); err != nil {
			slog.Error("failed to step down", "node_id", e.id, "error", err)
		}
		return false
	}
	if e.role != types.Leader || e.term != term {
		return false
	}

	if resp.Success {
		match := req.PrevLogIndex + uint64(len(req.Entries))
		if len(req.Entries) == 0 && resp.MatchIndex != req.PrevLogIndex {
			// heartbeat accepted but the follower does not hold prev
			if req.PrevLogIndex == 0 {
				return false
			}
			p.nextIndex = max(p.nextIndex-1, 1)
			return true
		}
		if match > p.matchIndex {
			p.matchIndex = match
		}
		if match+1 > p.nextIndex {
			p.nextIndex = match + 1
		}
		e.advanceCommitLocked()
		return p.nextIndex <= e.log.LastIndex()
	}

	next := p.nextIndex - 1
	if resp.MatchIndex+1 < next {
		next = resp.MatchIndex + 1
	}
	p.nextIndex = max(next, 1)
	slog.Debug("follower rejected entries, backing off",
		"node_id", e.id,
		"peer", p.id,
		"next_index", p.nextIndex,
	)
	return true
}

// sendSnapshot streams the latest persisted snapshot to a follower in chunks.
func (e *Engine) sendSnapshot(ctx context.Context, p *peer, term uint64) bool {
	meta, data := e.storage.Snapshot()
	if ops.IsEmptySnapshot(meta) {
		return false
	}

	var offset uint64
	chunks := e.snapshots.Chunks(data)
	for i, chunk := range chunks {
		req := &types.InstallSnapshotRequest{
			Term:              term,
			LeaderID:          e.id,
			LastIncludedIndex: meta.LastIncludedIndex,
			LastIncludedTerm:  meta.LastIncludedTerm,
			Voters:            meta.Voters,
			Offset:            offset,
			Data:              chunk,
			Done:              i == len(chunks)-1,
		}

		rctx, cancel := context.WithTimeout(ctx, e.cfg.RPCTimeout)
		metrics.RaftMessagesTotal.WithLabelValues("out", "install_snapshot").Inc()
		resp, err := e.transport.InstallSnapshot(rctx, p.id, req)
		cancel()
		if err != nil {
			metrics.RaftMessageErrors.WithLabelValues(strconv.FormatUint(p.id, 10)).Inc()
			slog.Debug("install snapshot failed", "node_id", e.id, "peer", p.id, "error", err)
			return false
		}

		e.mu.Lock()
		if resp.Term > e.term {
			if err := e.stepDownLocked(resp.Term); err != nil {
				slog.Error("failed to step down", "node_id", e.id, "error", err)
			}
			e.mu.Unlock()
			return false
		}
		stillLeader := e.role == types.Leader && e.term == term
		e.mu.Unlock()
		if !stillLeader || !resp.Success {
			return false
		}
		offset += uint64(len(chunk))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if meta.LastIncludedIndex > p.matchIndex {
		p.matchIndex = meta.LastIncludedIndex
	}
	p.nextIndex = p.matchIndex + 1
	e.advanceCommitLocked()

	slog.Info("sent snapshot to follower",
		"node_id", e.id,
		"peer", p.id,
		"index", meta.LastIncludedIndex,
		"chunks", len(chunks),
	)
	return p.nextIndex <= e.log.LastIndex()
}

// advanceCommitLocked applies the leader commit rule: the highest index held
// by a quorum becomes committed once it belongs to the current term.
func (e *Engine) advanceCommitLocked() {
	if e.role != types.Leader {
		return
	}

	matches := make([]uint64, 0, len(e.peers)+1)
	matches = append(matches, e.log.LastIndex())
	for _, p := range e.peers {
		matches = append(matches, p.matchIndex)
	}

	n := ops.QuorumMatchIndex(matches)
	if n <= e.commitIndex {
		return
	}
	if t, ok := e.log.Term(n); !ok || t != e.term {
		return
	}
	e.commitToLocked(n)
}

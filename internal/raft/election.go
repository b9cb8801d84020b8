package raft

import (
	"context"
	"fmt"
	"hyperraft/internal/metrics"
	"hyperraft/internal/types"
	"log/slog"
	"strconv"
	"time"
)

// RequestVote handles a vote request from a candidate.
func (e *Engine) RequestVote(_ context.Context, req *types.RequestVoteRequest) (*types.RequestVoteResponse, error) {
	metrics.RaftMessagesTotal.WithLabelValues("in", "request_vote").Inc()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil, ErrStopped
	}

	resp := &types.RequestVoteResponse{Term: e.term, VoterID: e.id}
	if req.Term < e.term {
		slog.Debug("rejecting vote for stale term",
			"node_id", e.id,
			"candidate", req.CandidateID,
			"req_term", req.Term,
			"term", e.term,
		)
		return resp, nil
	}

	if req.Term > e.term {
		if err := e.stepDownLocked(req.Term); err != nil {
			return nil, err
		}
		resp.Term = e.term
	}

	canVote := e.votedFor == 0 || e.votedFor == req.CandidateID
	if !canVote || !e.log.IsUpToDate(req.LastLogIndex, req.LastLogTerm) {
		metrics.RaftVotesTotal.WithLabelValues("false").Inc()
		return resp, nil
	}

	if e.votedFor == 0 {
		hs := types.HardState{Term: e.term, VotedFor: req.CandidateID, Commit: e.commitIndex}
		if err := e.storage.SaveHardState(hs); err != nil {
			return nil, fmt.Errorf("persist vote for %d: %w", req.CandidateID, err)
		}
		e.votedFor = req.CandidateID
		e.resetElectionTimerLocked()
		metrics.RaftVotesTotal.WithLabelValues("true").Inc()
		slog.Info("granted vote",
			"node_id", e.id,
			"candidate", req.CandidateID,
			"term", e.term,
		)
	}

	resp.VoteGranted = true
	return resp, nil
}

// StartElection runs one election round and reports whether this node won.
// A lost or split round leaves the node a candidate; the next randomized
// timeout starts a new round in a higher term.
func (e *Engine) StartElection(ctx context.Context) bool {
	e.mu.Lock()
	if e.stopped || e.role == types.Leader {
		e.mu.Unlock()
		return false
	}

	term := e.term + 1
	if err := e.storage.SaveHardState(types.HardState{Term: term, VotedFor: e.id, Commit: e.commitIndex}); err != nil {
		e.mu.Unlock()
		slog.Error("failed to persist candidacy", "node_id", e.id, "term", term, "error", err)
		return false
	}
	e.term = term
	e.votedFor = e.id
	e.role = types.Candidate
	e.leaderID = 0
	e.resetElectionTimerLocked()
	timeout := e.electionTimeout

	slog.Info("starting election",
		"node_id", e.id,
		"term", term,
		"last_index", e.log.LastIndex(),
		"last_term", e.log.LastTerm(),
	)

	quorum := e.quorum()
	if quorum <= 1 {
		e.becomeLeaderLocked()
		e.mu.Unlock()
		metrics.RaftElectionsTotal.WithLabelValues("won").Inc()
		return true
	}

	req := &types.RequestVoteRequest{
		Term:         term,
		CandidateID:  e.id,
		LastLogIndex: e.log.LastIndex(),
		LastLogTerm:  e.log.LastTerm(),
	}
	peerIDs := make([]uint64, 0, len(e.peers))
	for id := range e.peers {
		peerIDs = append(peerIDs, id)
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan *types.RequestVoteResponse, len(peerIDs))
	for _, id := range peerIDs {
		go func(id uint64) {
			results <- e.sendRequestVote(ctx, id, req)
		}(id)
	}

	granted := map[uint64]bool{e.id: true}
	for range peerIDs {
		var resp *types.RequestVoteResponse
		select {
		case resp = <-results:
		case <-ctx.Done():
			metrics.RaftElectionsTotal.WithLabelValues("timeout").Inc()
			return false
		}
		if resp == nil {
			continue
		}

		won, done := e.countVote(term, resp, granted, quorum)
		if done {
			if won {
				metrics.RaftElectionsTotal.WithLabelValues("won").Inc()
			} else {
				metrics.RaftElectionsTotal.WithLabelValues("lost").Inc()
			}
			return won
		}
	}

	metrics.RaftElectionsTotal.WithLabelValues("lost").Inc()
	return false
}

func (e *Engine) sendRequestVote(ctx context.Context, id uint64, req *types.RequestVoteRequest) *types.RequestVoteResponse {
	rctx, cancel := context.WithTimeout(ctx, e.cfg.RPCTimeout)
	defer cancel()

	metrics.RaftMessagesTotal.WithLabelValues("out", "request_vote").Inc()
	resp, err := e.transport.RequestVote(rctx, id, req)
	if err != nil {
		metrics.RaftMessageErrors.WithLabelValues(strconv.FormatUint(id, 10)).Inc()
		slog.Debug("request vote failed", "node_id", e.id, "peer", id, "error", err)
		return nil
	}
	return resp
}

// countVote records one vote response. done is set once the round is decided.
func (e *Engine) countVote(term uint64, resp *types.RequestVoteResponse, granted map[uint64]bool, quorum int) (won, done bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if resp.Term > e.term {
		if err := e.stepDownLocked(resp.Term); err != nil {
			slog.Error("failed to step down", "node_id", e.id, "error", err)
		}
		return false, true
	}
	if e.term != term || e.role != types.Candidate {
		return e.term == term && e.role == types.Leader, true
	}
	if !resp.VoteGranted {
		return false, false
	}

	granted[resp.VoterID] = true
	if len(granted) < quorum {
		return false, false
	}

	e.becomeLeaderLocked()
	return true, true
}

// becomeLeaderLocked takes leadership for the current term, resets peer
// progress and appends a no-op entry so entries from earlier terms commit.
func (e *Engine) becomeLeaderLocked() {
	if e.stopped {
		return
	}

	e.role = types.Leader
	e.leaderID = e.id
	e.snapshots.Abort()

	last := e.log.LastIndex()
	for _, p := range e.peers {
		p.nextIndex = last + 1
		p.matchIndex = 0
	}

	noop := types.LogEntry{
		Index:       last + 1,
		Term:        e.term,
		CommandType: types.CommandNoop,
		Timestamp:   time.Now().UnixMilli(),
	}
	if err := e.storage.Append([]types.LogEntry{noop}); err != nil {
		slog.Error("failed to persist leader no-op", "node_id", e.id, "term", e.term, "error", err)
	} else {
		e.log.Append(noop)
	}
	e.leaderStart = e.log.LastIndex()

	ctx, cancel := context.WithCancel(context.Background())
	e.leaderCancel = cancel
	for _, p := range e.peers {
		e.stoppedWg.Add(1)
		go func(p *peer, term uint64) {
			defer e.stoppedWg.Done()
			e.replicate(ctx, p, term)
		}(p, e.term)
	}

	e.advanceCommitLocked()
	metrics.SetLeader(true)

	slog.Info("became leader",
		"node_id", e.id,
		"term", e.term,
		"last_index", e.log.LastIndex(),
		"peers", len(e.peers),
	)
}

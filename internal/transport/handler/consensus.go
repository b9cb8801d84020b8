package handler

import (
	"context"
	"hyperraft/internal/raft"
	"hyperraft/internal/transport/rpc"
	"hyperraft/internal/types"
)

// ConsensusHandler serves peer RPCs from the raft listener.
type ConsensusHandler struct {
	engine raft.Handler
}

var _ rpc.ConsensusServer = (*ConsensusHandler)(nil)

func NewConsensusHandler(engine raft.Handler) *ConsensusHandler {
	return &ConsensusHandler{engine: engine}
}

func (h *ConsensusHandler) RequestVote(ctx context.Context, req *types.RequestVoteRequest) (*types.RequestVoteResponse, error) {
	resp, err := h.engine.RequestVote(ctx, req)
	return resp, toStatus(err)
}

func (h *ConsensusHandler) AppendEntries(ctx context.Context, req *types.AppendEntriesRequest) (*types.AppendEntriesResponse, error) {
	resp, err := h.engine.AppendEntries(ctx, req)
	return resp, toStatus(err)
}

func (h *ConsensusHandler) InstallSnapshot(ctx context.Context, req *types.InstallSnapshotRequest) (*types.InstallSnapshotResponse, error) {
	resp, err := h.engine.InstallSnapshot(ctx, req)
	return resp, toStatus(err)
}

package handler

import (
	"context"
	"hyperraft/internal/chain"
	"hyperraft/internal/stream"
	"hyperraft/internal/transport/rpc"
	"hyperraft/internal/types"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type NodeHandler struct {
	chain *chain.Service
	feed  *stream.Feed
}

var _ rpc.NodeServer = (*NodeHandler)(nil)

func NewNodeHandler(c *chain.Service, feed *stream.Feed) *NodeHandler {
	return &NodeHandler{chain: c, feed: feed}
}

func (h *NodeHandler) ProposeBlock(ctx context.Context, req *types.ProposeBlockRequest) (*types.ProposeBlockResponse, error) {
	if len(req.BlockPayload) == 0 {
		return nil, status.Error(codes.InvalidArgument, "block payload is empty")
	}
	resp, err := h.chain.ProposeBlock(ctx, req)
	if err != nil {
		slog.Debug("proposal refused", "block", req.BlockNumber, "error", err)
		return nil, toStatus(err)
	}
	return resp, nil
}

func (h *NodeHandler) ProduceBlock(ctx context.Context, req *rpc.ProduceBlockRequest) (*types.Block, error) {
	b, err := h.chain.ProduceBlock(ctx, req.Transactions, req.Proposer)
	if err != nil {
		slog.Error("block production failed",
			"txs", len(req.Transactions),
			"proposer", req.Proposer,
			"error", err,
		)
		return nil, toStatus(err)
	}
	return b, nil
}

func (h *NodeHandler) GetState(context.Context, *rpc.GetStateRequest) (*types.NodeState, error) {
	s := h.chain.State()
	return &s, nil
}

func (h *NodeHandler) StreamEvents(_ *rpc.StreamEventsRequest, ss grpc.ServerStreamingServer[types.ConsensusEvent]) error {
	return toStatus(h.feed.Events(ss.Context(), ss.Send))
}

package handler

import (
	"context"
	"hyperraft/internal/chain"
	"hyperraft/internal/stream"
	"hyperraft/internal/transport/rpc"
	"hyperraft/internal/types"

	"google.golang.org/grpc"
)

type BlockchainHandler struct {
	chain *chain.Service
	feed  *stream.Feed
}

var _ rpc.BlockchainServer = (*BlockchainHandler)(nil)

func NewBlockchainHandler(c *chain.Service, feed *stream.Feed) *BlockchainHandler {
	return &BlockchainHandler{chain: c, feed: feed}
}

func (h *BlockchainHandler) GetBlock(_ context.Context, req *rpc.GetBlockRequest) (*types.Block, error) {
	var (
		b   *types.Block
		err error
	)
	if req.Hash != "" {
		b, err = h.chain.BlockByHash(req.Hash)
	} else {
		b, err = h.chain.Block(req.Number)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	if !req.IncludeTransactions {
		b = b.Copy(false)
	}
	return b, nil
}

func (h *BlockchainHandler) GetLatestBlock(_ context.Context, req *rpc.GetLatestBlockRequest) (*types.Block, error) {
	return h.chain.LatestBlock(req.IncludeTransactions), nil
}

func (h *BlockchainHandler) GetBlockRange(_ context.Context, req *rpc.GetBlockRangeRequest) (*types.BlockRange, error) {
	r, err := h.chain.BlockRange(req.Start, req.End, req.MaxResults, req.IncludeTransactions)
	if err != nil {
		return nil, toStatus(err)
	}
	return r, nil
}

func (h *BlockchainHandler) GetBlockchainInfo(context.Context, *rpc.GetBlockchainInfoRequest) (*types.BlockchainInfo, error) {
	info := h.chain.Info()
	return &info, nil
}

func (h *BlockchainHandler) GetChainStats(_ context.Context, req *rpc.GetChainStatsRequest) (*types.ChainStats, error) {
	st, err := h.chain.Stats(req.From, req.To)
	if err != nil {
		return nil, toStatus(err)
	}
	return &st, nil
}

func (h *BlockchainHandler) StreamBlocks(req *rpc.StreamBlocksRequest, ss grpc.ServerStreamingServer[types.Block]) error {
	return toStatus(h.feed.Blocks(ss.Context(), req.StartFrom, req.IncludeTransactions, ss.Send))
}

package rpc

import (
	"context"
	"hyperraft/internal/types"

	"google.golang.org/grpc"
)

const BlockchainServiceName = "hyperraft.v1.Blockchain"

const (
	BlockchainGetBlockMethod          = "/" + BlockchainServiceName + "/GetBlock"
	BlockchainGetLatestBlockMethod    = "/" + BlockchainServiceName + "/GetLatestBlock"
	BlockchainGetBlockRangeMethod     = "/" + BlockchainServiceName + "/GetBlockRange"
	BlockchainGetBlockchainInfoMethod = "/" + BlockchainServiceName + "/GetBlockchainInfo"
	BlockchainGetChainStatsMethod     = "/" + BlockchainServiceName + "/GetChainStats"
	BlockchainStreamBlocksMethod      = "/" + BlockchainServiceName + "/StreamBlocks"
)

// GetBlockRequest looks a block up by Hash when set, by Number otherwise.
type GetBlockRequest struct {
	Number              uint64 `json:"number"`
	Hash                string `json:"hash,omitempty"`
	IncludeTransactions bool   `json:"includeTransactions"`
}

type GetLatestBlockRequest struct {
	IncludeTransactions bool `json:"includeTransactions"`
}

type GetBlockRangeRequest struct {
	Start               uint64 `json:"start"`
	End                 uint64 `json:"end"`
	MaxResults          int    `json:"maxResults"`
	IncludeTransactions bool   `json:"includeTransactions"`
}

type GetBlockchainInfoRequest struct{}

// GetChainStatsRequest covers From..To inclusive; To 0 means the head.
type GetChainStatsRequest struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

type StreamBlocksRequest struct {
	StartFrom           uint64 `json:"startFrom"`
	IncludeTransactions bool   `json:"includeTransactions"`
}

type BlockchainServer interface {
	GetBlock(context.Context, *GetBlockRequest) (*types.Block, error)
	GetLatestBlock(context.Context, *GetLatestBlockRequest) (*types.Block, error)
	GetBlockRange(context.Context, *GetBlockRangeRequest) (*types.BlockRange, error)
	GetBlockchainInfo(context.Context, *GetBlockchainInfoRequest) (*types.BlockchainInfo, error)
	GetChainStats(context.Context, *GetChainStatsRequest) (*types.ChainStats, error)
	StreamBlocks(*StreamBlocksRequest, grpc.ServerStreamingServer[types.Block]) error
}

var BlockchainServiceDesc = grpc.ServiceDesc{
	ServiceName: BlockchainServiceName,
	HandlerType: (*BlockchainServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(BlockchainServiceName, "GetBlock", BlockchainServer.GetBlock),
		unary(BlockchainServiceName, "GetLatestBlock", BlockchainServer.GetLatestBlock),
		unary(BlockchainServiceName, "GetBlockRange", BlockchainServer.GetBlockRange),
		unary(BlockchainServiceName, "GetBlockchainInfo", BlockchainServer.GetBlockchainInfo),
		unary(BlockchainServiceName, "GetChainStats", BlockchainServer.GetChainStats),
	},
	Streams: []grpc.StreamDesc{
		serverStream("StreamBlocks", BlockchainServer.StreamBlocks),
	},
	Metadata: "hyperraft/v1/blockchain",
}

func RegisterBlockchainServer(s grpc.ServiceRegistrar, srv BlockchainServer) {
	s.RegisterService(&BlockchainServiceDesc, srv)
}

type BlockchainClient struct {
	cc grpc.ClientConnInterface
}

func NewBlockchainClient(cc grpc.ClientConnInterface) *BlockchainClient {
	return &BlockchainClient{cc: cc}
}

func (c *BlockchainClient) GetBlock(ctx context.Context, in *GetBlockRequest, opts ...grpc.CallOption) (*types.Block, error) {
	return invoke[types.Block](ctx, c.cc, BlockchainGetBlockMethod, in, opts)
}

func (c *BlockchainClient) GetLatestBlock(ctx context.Context, in *GetLatestBlockRequest, opts ...grpc.CallOption) (*types.Block, error) {
	return invoke[types.Block](ctx, c.cc, BlockchainGetLatestBlockMethod, in, opts)
}

func (c *BlockchainClient) GetBlockRange(ctx context.Context, in *GetBlockRangeRequest, opts ...grpc.CallOption) (*types.BlockRange, error) {
	return invoke[types.BlockRange](ctx, c.cc, BlockchainGetBlockRangeMethod, in, opts)
}

func (c *BlockchainClient) GetBlockchainInfo(ctx context.Context, in *GetBlockchainInfoRequest, opts ...grpc.CallOption) (*types.BlockchainInfo, error) {
	return invoke[types.BlockchainInfo](ctx, c.cc, BlockchainGetBlockchainInfoMethod, in, opts)
}

func (c *BlockchainClient) GetChainStats(ctx context.Context, in *GetChainStatsRequest, opts ...grpc.CallOption) (*types.ChainStats, error) {
	return invoke[types.ChainStats](ctx, c.cc, BlockchainGetChainStatsMethod, in, opts)
}

func (c *BlockchainClient) StreamBlocks(ctx context.Context, in *StreamBlocksRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[types.Block], error) {
	return openStream[StreamBlocksRequest, types.Block](ctx, c.cc, &BlockchainServiceDesc.Streams[0], BlockchainStreamBlocksMethod, in, opts)
}

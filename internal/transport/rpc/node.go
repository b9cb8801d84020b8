package rpc

import (
	"context"
	"hyperraft/internal/types"

	"google.golang.org/grpc"
)

const NodeServiceName = "hyperraft.v1.Node"

const (
	NodeProposeBlockMethod = "/" + NodeServiceName + "/ProposeBlock"
	NodeProduceBlockMethod = "/" + NodeServiceName + "/ProduceBlock"
	NodeGetStateMethod     = "/" + NodeServiceName + "/GetState"
	NodeStreamEventsMethod = "/" + NodeServiceName + "/StreamEvents"
)

type ProduceBlockRequest struct {
	Transactions []types.Transaction `json:"transactions"`
	Proposer     string              `json:"proposer"`
}

type GetStateRequest struct{}

type StreamEventsRequest struct{}

type NodeServer interface {
	ProposeBlock(context.Context, *types.ProposeBlockRequest) (*types.ProposeBlockResponse, error)
	ProduceBlock(context.Context, *ProduceBlockRequest) (*types.Block, error)
	GetState(context.Context, *GetStateRequest) (*types.NodeState, error)
	StreamEvents(*StreamEventsRequest, grpc.ServerStreamingServer[types.ConsensusEvent]) error
}

var NodeServiceDesc = grpc.ServiceDesc{
	ServiceName: NodeServiceName,
	HandlerType: (*NodeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(NodeServiceName, "ProposeBlock", NodeServer.ProposeBlock),
		unary(NodeServiceName, "ProduceBlock", NodeServer.ProduceBlock),
		unary(NodeServiceName, "GetState", NodeServer.GetState),
	},
	Streams: []grpc.StreamDesc{
		serverStream("StreamEvents", NodeServer.StreamEvents),
	},
	Metadata: "hyperraft/v1/node",
}

func RegisterNodeServer(s grpc.ServiceRegistrar, srv NodeServer) {
	s.RegisterService(&NodeServiceDesc, srv)
}

type NodeClient struct {
	cc grpc.ClientConnInterface
}

func NewNodeClient(cc grpc.ClientConnInterface) *NodeClient {
	return &NodeClient{cc: cc}
}

func (c *NodeClient) ProposeBlock(ctx context.Context, in *types.ProposeBlockRequest, opts ...grpc.CallOption) (*types.ProposeBlockResponse, error) {
	return invoke[types.ProposeBlockResponse](ctx, c.cc, NodeProposeBlockMethod, in, opts)
}

func (c *NodeClient) ProduceBlock(ctx context.Context, in *ProduceBlockRequest, opts ...grpc.CallOption) (*types.Block, error) {
	return invoke[types.Block](ctx, c.cc, NodeProduceBlockMethod, in, opts)
}

func (c *NodeClient) GetState(ctx context.Context, in *GetStateRequest, opts ...grpc.CallOption) (*types.NodeState, error) {
	return invoke[types.NodeState](ctx, c.cc, NodeGetStateMethod, in, opts)
}

func (c *NodeClient) StreamEvents(ctx context.Context, in *StreamEventsRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[types.ConsensusEvent], error) {
	return openStream[StreamEventsRequest, types.ConsensusEvent](ctx, c.cc, &NodeServiceDesc.Streams[0], NodeStreamEventsMethod, in, opts)
}

package rpc

import (
	"context"
	"hyperraft/internal/types"

	"google.golang.org/grpc"
)

const ConsensusServiceName = "hyperraft.v1.Consensus"

const (
	ConsensusRequestVoteMethod     = "/" + ConsensusServiceName + "/RequestVote"
	ConsensusAppendEntriesMethod   = "/" + ConsensusServiceName + "/AppendEntries"
	ConsensusInstallSnapshotMethod = "/" + ConsensusServiceName + "/InstallSnapshot"
)

// ConsensusServer is the peer port served on the raft listener.
type ConsensusServer interface {
	RequestVote(context.Context, *types.RequestVoteRequest) (*types.RequestVoteResponse, error)
	AppendEntries(context.Context, *types.AppendEntriesRequest) (*types.AppendEntriesResponse, error)
	InstallSnapshot(context.Context, *types.InstallSnapshotRequest) (*types.InstallSnapshotResponse, error)
}

var ConsensusServiceDesc = grpc.ServiceDesc{
	ServiceName: ConsensusServiceName,
	HandlerType: (*ConsensusServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ConsensusServiceName, "RequestVote", ConsensusServer.RequestVote),
		unary(ConsensusServiceName, "AppendEntries", ConsensusServer.AppendEntries),
		unary(ConsensusServiceName, "InstallSnapshot", ConsensusServer.InstallSnapshot),
	},
	Metadata: "hyperraft/v1/consensus",
}

func RegisterConsensusServer(s grpc.ServiceRegistrar, srv ConsensusServer) {
	s.RegisterService(&ConsensusServiceDesc, srv)
}

type ConsensusClient struct {
	cc grpc.ClientConnInterface
}

func NewConsensusClient(cc grpc.ClientConnInterface) *ConsensusClient {
	return &ConsensusClient{cc: cc}
}

func (c *ConsensusClient) RequestVote(ctx context.Context, in *types.RequestVoteRequest, opts ...grpc.CallOption) (*types.RequestVoteResponse, error) {
	return invoke[types.RequestVoteResponse](ctx, c.cc, ConsensusRequestVoteMethod, in, opts)
}

func (c *ConsensusClient) AppendEntries(ctx context.Context, in *types.AppendEntriesRequest, opts ...grpc.CallOption) (*types.AppendEntriesResponse, error) {
	return invoke[types.AppendEntriesResponse](ctx, c.cc, ConsensusAppendEntriesMethod, in, opts)
}

func (c *ConsensusClient) InstallSnapshot(ctx context.Context, in *types.InstallSnapshotRequest, opts ...grpc.CallOption) (*types.InstallSnapshotResponse, error) {
	return invoke[types.InstallSnapshotResponse](ctx, c.cc, ConsensusInstallSnapshotMethod, in, opts)
}

package transport

import (
	"context"
	"hyperraft/internal/chain"
	"hyperraft/internal/configuration/properties"
	"hyperraft/internal/ledger"
	"hyperraft/internal/raft"
	"hyperraft/internal/stats"
	"hyperraft/internal/stream"
	"hyperraft/internal/transport/handler"
	"hyperraft/internal/transport/rpc"
	"hyperraft/internal/types"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type testNode struct {
	engine     *raft.Engine
	ledger     *ledger.Store
	clientAddr string
}

func startNode(t *testing.T, id uint64, peers map[uint64]string) *testNode {
	t.Helper()
	return startNodeOnRaftPort(t, id, peers, "0")
}

// startNodeOnRaftPort runs a full node on loopback with the given raft peers.
func startNodeOnRaftPort(t *testing.T, id uint64, peers map[uint64]string, raftPort string) *testNode {
	t.Helper()

	store := ledger.New(ledger.Config{NetworkID: "transport-test", GenesisTimestamp: 1_700_000_000_000})
	storage, err := raft.OpenStorage(t.TempDir(), true)
	require.NoError(t, err)

	peerTransport := NewPeerTransport(id, peers)
	engine, err := raft.New(raft.Config{
		ID:                id,
		Peers:             peers,
		TickInterval:      10 * time.Millisecond,
		ElectionTimeout:   200 * time.Millisecond,
		ElectionJitter:    200 * time.Millisecond,
		HeartbeatInterval: 50 * time.Millisecond,
		RPCTimeout:        200 * time.Millisecond,
	}, storage, peerTransport, ledger.NewApplier(store))
	require.NoError(t, err)

	svc := chain.NewService(engine, store, stats.New(store))
	feed := stream.NewFeed(store, engine, 10*time.Millisecond)

	ts := NewTransportService(&properties.TransportConfigProperties{
		Network:    "tcp",
		Address:    "127.0.0.1",
		RaftPort:   raftPort,
		ClientPort: "0",
		Timeout:    3000,
	}, handler.NewConsensusHandler(engine), handler.NewNodeHandler(svc, feed), handler.NewBlockchainHandler(svc, feed))

	_, err = ts.StartRaftServer()
	require.NoError(t, err)
	clientLis, err := ts.StartClientServer()
	require.NoError(t, err)

	t.Cleanup(func() {
		ts.Stop()
		engine.Stop()
		peerTransport.Close()
		storage.Close()
	})

	return &testNode{
		engine:     engine,
		ledger:     store,
		clientAddr: clientLis.Addr().String(),
	}
}

func dialClient(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	conn, err := Dial(addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestClientPort_SingleNode(t *testing.T) {
	n := startNode(t, 1, nil)
	require.True(t, n.engine.StartElection(context.Background()))
	n.engine.Start()

	conn := dialClient(t, n.clientAddr)
	node := rpc.NewNodeClient(conn)
	bc := rpc.NewBlockchainClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	blocks, err := bc.StreamBlocks(ctx, &rpc.StreamBlocksRequest{StartFrom: 1, IncludeTransactions: true})
	require.NoError(t, err)

	produced, err := node.ProduceBlock(ctx, &rpc.ProduceBlockRequest{
		Transactions: []types.Transaction{{Hash: "0x1", From: "0xa", To: "0xb", Value: "1", Gas: 21000}},
		Proposer:     "validator-1",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), produced.Number)

	streamed, err := blocks.Recv()
	require.NoError(t, err)
	assert.Equal(t, produced.Hash, streamed.Hash)
	assert.Len(t, streamed.Transactions, 1)

	got, err := bc.GetBlock(ctx, &rpc.GetBlockRequest{Hash: produced.Hash})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Number)
	assert.Empty(t, got.Transactions)

	latest, err := bc.GetLatestBlock(ctx, &rpc.GetLatestBlockRequest{IncludeTransactions: true})
	require.NoError(t, err)
	assert.Equal(t, produced, latest)

	r, err := bc.GetBlockRange(ctx, &rpc.GetBlockRangeRequest{Start: 0, End: 10})
	require.NoError(t, err)
	assert.Len(t, r.Blocks, 2)
	assert.False(t, r.HasMore)

	info, err := bc.GetBlockchainInfo(ctx, &rpc.GetBlockchainInfoRequest{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.LatestBlockNumber)
	assert.Equal(t, ledger.ConsensusAlgorithm, info.ConsensusAlgorithm)

	st, err := bc.GetChainStats(ctx, &rpc.GetChainStatsRequest{})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.TotalBlocks)

	state, err := node.GetState(ctx, &rpc.GetStateRequest{})
	require.NoError(t, err)
	assert.Equal(t, types.Leader, state.Role)
	assert.Equal(t, uint64(1), state.LeaderID)
}

func TestClientPort_ErrorCodes(t *testing.T) {
	n := startNode(t, 1, nil)
	require.True(t, n.engine.StartElection(context.Background()))
	n.engine.Start()

	bc := rpc.NewBlockchainClient(dialClient(t, n.clientAddr))
	node := rpc.NewNodeClient(dialClient(t, n.clientAddr))
	ctx := context.Background()

	_, err := bc.GetBlock(ctx, &rpc.GetBlockRequest{Number: 99})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = bc.GetBlockRange(ctx, &rpc.GetBlockRangeRequest{Start: 5, End: 1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = bc.GetChainStats(ctx, &rpc.GetChainStatsRequest{From: 3, To: 1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = node.ProposeBlock(ctx, &types.ProposeBlockRequest{BlockNumber: 1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestClientPort_FollowerRejectsProposals(t *testing.T) {
	peers := map[uint64]string{1: "127.0.0.1:1", 2: "127.0.0.1:2", 3: "127.0.0.1:3"}
	n := startNode(t, 1, peers)

	node := rpc.NewNodeClient(dialClient(t, n.clientAddr))
	_, err := node.ProduceBlock(context.Background(), &rpc.ProduceBlockRequest{Proposer: "validator-1"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Equal(t, uint64(0), n.ledger.Head())
}

func TestPeerTransport_ThreeNodeCluster(t *testing.T) {
	// Reserve loopback ports first so every node knows its peers up front.
	peers := make(map[uint64]string, 3)
	for id := uint64(1); id <= 3; id++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		peers[id] = l.Addr().String()
		require.NoError(t, l.Close())
	}

	nodes := make(map[uint64]*testNode, 3)
	for id := uint64(1); id <= 3; id++ {
		_, port, err := net.SplitHostPort(peers[id])
		require.NoError(t, err)
		nodes[id] = startNodeOnRaftPort(t, id, peers, port)
	}
	for _, n := range nodes {
		n.engine.Start()
	}

	var leader *testNode
	require.Eventually(t, func() bool {
		for _, n := range nodes {
			if n.engine.IsLeader() {
				leader = n
				return true
			}
		}
		return false
	}, 10*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := rpc.NewNodeClient(dialClient(t, leader.clientAddr)).ProduceBlock(ctx, &rpc.ProduceBlockRequest{Proposer: "validator-1"})
	require.NoError(t, err)

	for id, n := range nodes {
		require.Eventually(t, func() bool {
			got, err := n.ledger.BlockByNumber(1)
			return err == nil && got.Hash == b.Hash
		}, 5*time.Second, 20*time.Millisecond, "node %d", id)
	}
}

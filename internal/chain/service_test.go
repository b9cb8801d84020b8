package chain

import (
	"context"
	"errors"
	"fmt"
	"hyperraft/internal/ledger"
	"hyperraft/internal/raft"
	"hyperraft/internal/stats"
	"hyperraft/internal/types"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger() *ledger.Store {
	return ledger.New(ledger.Config{
		NetworkID:        "chain-test",
		GenesisTimestamp: 1_700_000_000_000,
		Validators:       []types.Validator{{ID: "validator-1", Online: true}},
	})
}

// singleNode runs a one-voter engine that has already won its election.
func singleNode(t *testing.T, store *ledger.Store) *raft.Engine {
	t.Helper()
	storage, err := raft.OpenStorage(t.TempDir(), true)
	require.NoError(t, err)

	e, err := raft.New(raft.Config{ID: 1}, storage, raft.NewLocalNetwork().Transport(1), ledger.NewApplier(store))
	require.NoError(t, err)
	t.Cleanup(func() {
		e.Stop()
		storage.Close()
	})

	require.True(t, e.StartElection(context.Background()))
	e.Start()
	return e
}

func testTxs() []types.Transaction {
	return []types.Transaction{
		{Hash: "0x1", From: "0xa", To: "0xb", Value: "10", Gas: 21000},
		{Hash: "0x2", From: "0xb", To: "0xc", Value: "5", Gas: 21000},
	}
}

func TestProduceBlock(t *testing.T) {
	store := newLedger()
	svc := NewService(singleNode(t, store), store, stats.New(store))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	first, err := svc.ProduceBlock(ctx, testTxs(), "validator-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Number)
	assert.Equal(t, uint64(1), first.Confirmations)
	assert.Len(t, first.Transactions, 2)

	second, err := svc.ProduceBlock(ctx, nil, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Number)
	assert.Equal(t, first.Hash, second.PreviousHash)
	assert.Equal(t, "node-1", second.Proposer)

	got, err := svc.BlockByHash(second.Hash)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	info := svc.Info()
	assert.Equal(t, uint64(2), info.LatestBlockNumber)
	assert.Equal(t, uint64(2), info.TotalTransactions)
	assert.Equal(t, 2, info.ValidatorCount, "unknown proposer is registered")

	st, err := svc.Stats(1, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.TotalBlocks)
	assert.Equal(t, 3, st.UniqueAddresses)
	assert.Equal(t, 2, st.ActiveValidators)
}

func TestProduceBlock_NotLeader(t *testing.T) {
	store := newLedger()
	storage, err := raft.OpenStorage(t.TempDir(), true)
	require.NoError(t, err)
	peers := map[uint64]string{1: "n1", 2: "n2", 3: "n3"}
	e, err := raft.New(raft.Config{ID: 1, Peers: peers}, storage, raft.NewLocalNetwork().Transport(1), ledger.NewApplier(store))
	require.NoError(t, err)
	t.Cleanup(func() {
		e.Stop()
		storage.Close()
	})

	svc := NewService(e, store, stats.New(store))
	_, err = svc.ProduceBlock(context.Background(), testTxs(), "validator-1")
	assert.ErrorIs(t, err, raft.ErrNotLeader)
	assert.Equal(t, uint64(0), store.Head())
}

type rejectingNode struct {
	store *ledger.Store
}

func (rejectingNode) ID() uint64             { return 9 }
func (rejectingNode) State() types.NodeState { return types.NodeState{NodeID: 9} }

func (rejectingNode) LeaderBarrier() (uint64, error) { return 0, nil }

func (n rejectingNode) ProposeBlock(_ context.Context, req *types.ProposeBlockRequest) (*types.ProposeBlockResponse, error) {
	// Another block wins the height before ours is applied.
	head := n.store.LatestBlock(false)
	other := n.store.CreateProposal(nil, "validator-1", head.Timestamp+1)
	if err := n.store.AddBlock(other); err != nil {
		return nil, err
	}
	return &types.ProposeBlockResponse{Accepted: true, BlockNumber: req.BlockNumber, Index: 5, Term: 1}, nil
}

func (rejectingNode) WaitApplied(context.Context, uint64) error { return nil }

func TestProduceBlock_DetectsRejectedBlock(t *testing.T) {
	store := newLedger()
	svc := NewService(rejectingNode{store: store}, store, stats.New(store))
	svc.now = func() time.Time { return time.UnixMilli(1_700_000_500_000) }

	_, err := svc.ProduceBlock(context.Background(), testTxs(), "validator-1")
	assert.ErrorIs(t, err, ErrBlockRejected)
}

// openNode opens a one-voter engine over the WAL in dir without starting it.
func openNode(t *testing.T, dir string, store *ledger.Store) (*raft.Engine, func()) {
	t.Helper()
	storage, err := raft.OpenStorage(dir, true)
	require.NoError(t, err)

	e, err := raft.New(raft.Config{ID: 1}, storage, raft.NewLocalNetwork().Transport(1), ledger.NewApplier(store))
	require.NoError(t, err)
	return e, func() {
		e.Stop()
		storage.Close()
	}
}

func TestProduceBlock_AfterRestartWaitsForReplay(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store := newLedger()
	e, closeNode := openNode(t, dir, store)
	require.True(t, e.StartElection(ctx))
	e.Start()
	first, err := NewService(e, store, stats.New(store)).ProduceBlock(ctx, testTxs(), "validator-1")
	require.NoError(t, err)
	closeNode()

	store = newLedger()
	e, closeNode = openNode(t, dir, store)
	t.Cleanup(closeNode)
	require.True(t, e.StartElection(ctx))
	assert.Equal(t, uint64(0), store.Head(), "committed block not replayed before start")

	svc := NewService(e, store, stats.New(store))
	type result struct {
		block *types.Block
		err   error
	}
	done := make(chan result, 1)
	go func() {
		b, err := svc.ProduceBlock(ctx, nil, "validator-1")
		done <- result{b, err}
	}()
	e.Start()

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, uint64(2), r.block.Number)
	assert.Equal(t, first.Hash, r.block.PreviousHash)
	assert.Equal(t, uint64(2), store.Head())
}

type clusterNode struct {
	engine *raft.Engine
	store  *ledger.Store
	svc    *Service
}

func newCluster(t *testing.T, size int) (*raft.LocalNetwork, map[uint64]*clusterNode) {
	t.Helper()
	peers := make(map[uint64]string, size)
	for id := uint64(1); id <= uint64(size); id++ {
		peers[id] = fmt.Sprintf("n%d", id)
	}

	net := raft.NewLocalNetwork()
	nodes := make(map[uint64]*clusterNode, size)
	for id := range peers {
		storage, err := raft.OpenStorage(t.TempDir(), true)
		require.NoError(t, err)
		store := newLedger()
		e, err := raft.New(raft.Config{
			ID:                id,
			Peers:             peers,
			TickInterval:      10 * time.Millisecond,
			ElectionTimeout:   150 * time.Millisecond,
			ElectionJitter:    150 * time.Millisecond,
			HeartbeatInterval: 30 * time.Millisecond,
			RPCTimeout:        100 * time.Millisecond,
		}, storage, net.Transport(id), ledger.NewApplier(store))
		require.NoError(t, err)
		t.Cleanup(func() {
			e.Stop()
			storage.Close()
		})
		net.Register(id, e)
		nodes[id] = &clusterNode{engine: e, store: store, svc: NewService(e, store, stats.New(store))}
	}
	for _, n := range nodes {
		n.engine.Start()
	}
	return net, nodes
}

// produce retries on leadership changes until a leader outside exclude
// finalizes a block.
func produce(t *testing.T, nodes map[uint64]*clusterNode, exclude uint64) (uint64, *types.Block) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for id, n := range nodes {
			if id == exclude || !n.engine.IsLeader() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			b, err := n.svc.ProduceBlock(ctx, testTxs(), "")
			cancel()
			if errors.Is(err, raft.ErrNotLeader) {
				continue
			}
			require.NoError(t, err, "node %d", id)
			return id, b
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no leader produced a block")
	return 0, nil
}

func TestProduceBlock_NewLeaderBuildsOnCommittedBlocks(t *testing.T) {
	net, nodes := newCluster(t, 3)

	oldLeader, first := produce(t, nodes, 0)
	net.Disconnect(oldLeader)

	newLeader, second := produce(t, nodes, oldLeader)
	assert.NotEqual(t, oldLeader, newLeader)
	assert.Equal(t, first.Number+1, second.Number)
	assert.Equal(t, first.Hash, second.PreviousHash)

	for id, n := range nodes {
		if id == oldLeader {
			continue
		}
		require.Eventually(t, func() bool {
			return n.store.Head() == second.Number
		}, 3*time.Second, 10*time.Millisecond, "node %d", id)
		got, err := n.store.BlockByNumber(first.Number)
		require.NoError(t, err)
		assert.Equal(t, first.Hash, got.Hash, "node %d", id)
	}
}

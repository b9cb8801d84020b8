package raft

import (
	"context"
	"fmt"
	"hyperraft/internal/types"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCluster struct {
	t     *testing.T
	net   *LocalNetwork
	nodes map[uint64]*testNode
}

func newTestCluster(t *testing.T, size int, tweak func(*Config)) *testCluster {
	t.Helper()

	peers := make(map[uint64]string, size)
	for id := uint64(1); id <= uint64(size); id++ {
		peers[id] = fmt.Sprintf("n%d", id)
	}

	c := &testCluster{t: t, net: NewLocalNetwork(), nodes: make(map[uint64]*testNode, size)}
	for id := range peers {
		cfg := testConfig(id, peers)
		if tweak != nil {
			tweak(&cfg)
		}
		n := newTestNode(t, cfg, c.net.Transport(id))
		c.net.Register(id, n.engine)
		c.nodes[id] = n
	}
	for _, n := range c.nodes {
		n.engine.Start()
	}
	return c
}

// leader waits until exactly one connected node leads in the highest term.
func (c *testCluster) leader(exclude ...uint64) *testNode {
	c.t.Helper()

	var found *testNode
	ok := assert.Eventually(c.t, func() bool {
		found = nil
		var best uint64
		for id, n := range c.nodes {
			if slices.Contains(exclude, id) {
				continue
			}
			s := n.engine.State()
			if s.Role == types.Leader && s.Term >= best {
				if s.Term == best && found != nil {
					return false
				}
				best = s.Term
				found = n
			}
		}
		return found != nil
	}, 5*time.Second, 10*time.Millisecond)
	if !ok {
		c.t.Fatalf("no leader elected")
	}
	return found
}

// propose retries until the payload is applied on the leader that accepted it.
func (c *testCluster) propose(number uint64, payload string, exclude ...uint64) uint64 {
	c.t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		l := c.leader(exclude...)
		resp, err := l.engine.ProposeBlock(context.Background(), proposal(number, payload))
		if err != nil {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = l.engine.WaitApplied(ctx, resp.Index)
		cancel()
		if err == nil && l.sm.Has(payload) {
			return resp.Index
		}
	}
	c.t.Fatalf("block %q was never committed", payload)
	return 0
}

func TestCluster_ElectsSingleLeader(t *testing.T) {
	c := newTestCluster(t, 3, nil)

	l := c.leader()
	leaderID := l.engine.ID()
	term := l.engine.State().Term

	require.Eventually(t, func() bool {
		for _, n := range c.nodes {
			s := n.engine.State()
			if s.LeaderID != leaderID || s.Term != term {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond)

	leaders := 0
	for _, n := range c.nodes {
		if n.engine.IsLeader() {
			leaders++
		}
	}
	assert.Equal(t, 1, leaders)
}

func TestCluster_ReplicatesBlockToAllNodes(t *testing.T) {
	c := newTestCluster(t, 3, nil)

	index := c.propose(1, "block-1")

	for id, n := range c.nodes {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		require.NoError(t, n.engine.WaitApplied(ctx, index), "node %d", id)
		cancel()
		assert.Equal(t, []string{"block-1"}, n.sm.Blocks(), "node %d", id)
	}
}

func TestCluster_LeaderFailover(t *testing.T) {
	c := newTestCluster(t, 3, nil)

	old := c.leader()
	oldID := old.engine.ID()
	oldTerm := old.engine.State().Term
	c.propose(1, "block-1")

	c.net.Disconnect(oldID)

	next := c.leader(oldID)
	assert.NotEqual(t, oldID, next.engine.ID())
	assert.Greater(t, next.engine.State().Term, oldTerm)

	c.propose(2, "block-2", oldID)

	c.net.Reconnect(oldID)
	require.Eventually(t, func() bool {
		return old.sm.Has("block-2") && !old.engine.IsLeader()
	}, 5*time.Second, 20*time.Millisecond)

	for id, n := range c.nodes {
		require.Eventually(t, func() bool {
			return len(n.sm.Blocks()) == 2
		}, 5*time.Second, 20*time.Millisecond, "node %d", id)
		assert.Equal(t, []string{"block-1", "block-2"}, n.sm.Blocks(), "node %d", id)
	}
}

func TestCluster_LaggingFollowerCatchesUpFromSnapshot(t *testing.T) {
	c := newTestCluster(t, 3, func(cfg *Config) {
		cfg.SnapCount = 3
		cfg.SnapshotChunkSize = 8
	})

	l := c.leader()
	var lagging uint64
	for id := range c.nodes {
		if id != l.engine.ID() {
			lagging = id
			break
		}
	}
	c.net.Disconnect(lagging)

	want := make([]string, 0, 6)
	for i := uint64(1); i <= 6; i++ {
		payload := fmt.Sprintf("block-%d", i)
		c.propose(i, payload, lagging)
		want = append(want, payload)
	}

	require.Eventually(t, func() bool {
		return l.engine.State().SnapshotIndex > 0
	}, 3*time.Second, 10*time.Millisecond)

	c.net.Reconnect(lagging)
	f := c.nodes[lagging]
	require.Eventually(t, func() bool {
		return len(f.sm.Blocks()) == len(want)
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, want, f.sm.Blocks())
	assert.Positive(t, f.engine.State().SnapshotIndex)
}

package raft

import (
	"context"
	"fmt"
	"hyperraft/internal/types"
	"sync"
)

// Handler is the receiving side of the consensus RPCs. *Engine implements it.
type Handler interface {
	RequestVote(ctx context.Context, req *types.RequestVoteRequest) (*types.RequestVoteResponse, error)
	AppendEntries(ctx context.Context, req *types.AppendEntriesRequest) (*types.AppendEntriesResponse, error)
	InstallSnapshot(ctx context.Context, req *types.InstallSnapshotRequest) (*types.InstallSnapshotResponse, error)
}

// LocalNetwork connects engines in one process. Nodes can be cut off and
// reconnected to simulate partitions.
type LocalNetwork struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	down     map[uint64]bool
}

func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{
		handlers: make(map[uint64]Handler),
		down:     make(map[uint64]bool),
	}
}

func (n *LocalNetwork) Register(id uint64, h Handler) {
	n.mu.Lock()
	n.handlers[id] = h
	n.mu.Unlock()
}

// Disconnect drops all traffic to and from id.
func (n *LocalNetwork) Disconnect(id uint64) {
	n.mu.Lock()
	n.down[id] = true
	n.mu.Unlock()
}

func (n *LocalNetwork) Reconnect(id uint64) {
	n.mu.Lock()
	delete(n.down, id)
	n.mu.Unlock()
}

// Transport returns the ports.Transport used by node from.
func (n *LocalNetwork) Transport(from uint64) *LocalTransport {
	return &LocalTransport{net: n, from: from}
}

func (n *LocalNetwork) route(from, to uint64) (Handler, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.down[from] || n.down[to] {
		return nil, fmt.Errorf("node %d unreachable from %d", to, from)
	}
	h, ok := n.handlers[to]
	if !ok {
		return nil, fmt.Errorf("unknown node %d", to)
	}
	return h, nil
}

type LocalTransport struct {
	net  *LocalNetwork
	from uint64
}

func (t *LocalTransport) RequestVote(ctx context.Context, to uint64, req *types.RequestVoteRequest) (*types.RequestVoteResponse, error) {
	h, err := t.net.route(t.from, to)
	if err != nil {
		return nil, err
	}
	return h.RequestVote(ctx, req)
}

func (t *LocalTransport) AppendEntries(ctx context.Context, to uint64, req *types.AppendEntriesRequest) (*types.AppendEntriesResponse, error) {
	h, err := t.net.route(t.from, to)
	if err != nil {
		return nil, err
	}
	return h.AppendEntries(ctx, cloneAppend(req))
}

func (t *LocalTransport) InstallSnapshot(ctx context.Context, to uint64, req *types.InstallSnapshotRequest) (*types.InstallSnapshotResponse, error) {
	h, err := t.net.route(t.from, to)
	if err != nil {
		return nil, err
	}
	return h.InstallSnapshot(ctx, req)
}

// cloneAppend gives the receiver its own entry slice, as a real wire would.
func cloneAppend(req *types.AppendEntriesRequest) *types.AppendEntriesRequest {
	c := *req
	c.Entries = append([]types.LogEntry(nil), req.Entries...)
	return &c
}

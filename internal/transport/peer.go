package transport

import (
	"context"
	"fmt"
	"hyperraft/internal/raft/ports"
	"hyperraft/internal/transport/rpc"
	"hyperraft/internal/types"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// PeerTransport sends consensus RPCs to the other voters over gRPC.
// Connections are created lazily and kept for the life of the transport.
type PeerTransport struct {
	self  uint64
	peers map[uint64]string

	mu      sync.Mutex
	conns   map[uint64]*grpc.ClientConn
	clients map[uint64]*rpc.ConsensusClient
}

var _ ports.Transport = (*PeerTransport)(nil)

func NewPeerTransport(self uint64, peers map[uint64]string) *PeerTransport {
	return &PeerTransport{
		self:    self,
		peers:   peers,
		conns:   make(map[uint64]*grpc.ClientConn),
		clients: make(map[uint64]*rpc.ConsensusClient),
	}
}

func (t *PeerTransport) client(id uint64) (*rpc.ConsensusClient, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[id]; ok {
		return c, nil
	}
	addr, ok := t.peers[id]
	if !ok || id == t.self {
		return nil, fmt.Errorf("no raft address for peer %d", id)
	}

	conn, err := Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial peer %d at %s: %w", id, addr, err)
	}
	c := rpc.NewConsensusClient(conn)
	t.conns[id] = conn
	t.clients[id] = c
	slog.Debug("raft peer client created", "peer", id, "addr", addr)
	return c, nil
}

func (t *PeerTransport) RequestVote(ctx context.Context, peerID uint64, req *types.RequestVoteRequest) (*types.RequestVoteResponse, error) {
	c, err := t.client(peerID)
	if err != nil {
		return nil, err
	}
	return c.RequestVote(ctx, req)
}

func (t *PeerTransport) AppendEntries(ctx context.Context, peerID uint64, req *types.AppendEntriesRequest) (*types.AppendEntriesResponse, error) {
	c, err := t.client(peerID)
	if err != nil {
		return nil, err
	}
	return c.AppendEntries(ctx, req)
}

func (t *PeerTransport) InstallSnapshot(ctx context.Context, peerID uint64, req *types.InstallSnapshotRequest) (*types.InstallSnapshotResponse, error) {
	c, err := t.client(peerID)
	if err != nil {
		return nil, err
	}
	return c.InstallSnapshot(ctx, req)
}

func (t *PeerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for id, conn := range t.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close peer %d: %w", id, err)
		}
	}
	clear(t.conns)
	clear(t.clients)
	return firstErr
}

// Dial opens a lazily connecting client to a node's raft or client port.
func Dial(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
}

package ports

import (
	"context"
	"hyperraft/internal/types"
)

// Transport delivers consensus RPCs to a peer.
type Transport interface {
	RequestVote(ctx context.Context, peerID uint64, req *types.RequestVoteRequest) (*types.RequestVoteResponse, error)
	AppendEntries(ctx context.Context, peerID uint64, req *types.AppendEntriesRequest) (*types.AppendEntriesResponse, error)
	InstallSnapshot(ctx context.Context, peerID uint64, req *types.InstallSnapshotRequest) (*types.InstallSnapshotResponse, error)
}

// Storage persists the hard state, log entries and snapshots of a node.
type Storage interface {
	HardState() types.HardState
	Entries() []types.LogEntry
	Snapshot() (types.SnapshotMeta, []byte)

	SaveHardState(hs types.HardState) error
	Append(entries []types.LogEntry) error
	// SaveSnapshot persists a snapshot and drops log records it covers.
	SaveSnapshot(meta types.SnapshotMeta, data []byte) error
	Close() error
}

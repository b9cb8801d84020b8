package raft

import "errors"

var (
	ErrStaleTerm = errors.New("stale term")

	ErrLogInconsistency = errors.New("log inconsistency")

	ErrNotLeader = errors.New("not leader")

	ErrSnapshotTransferIncomplete = errors.New("snapshot transfer incomplete")

	// ErrCommittedConflict is returned when a leader asks to overwrite a committed entry.
	ErrCommittedConflict = errors.New("conflict with committed entry")

	ErrCompacted = errors.New("requested index is compacted")

	ErrStopped = errors.New("engine stopped")
)

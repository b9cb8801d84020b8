package domain

import "hyperraft/internal/types"

// StateMachine is the commit-notification side of consensus. Entries are
// delivered once each, in log order, only after they are committed.
type StateMachine interface {
	Apply(entry types.LogEntry) error
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}

// ChainReader is the read-only view of the ledger.
type ChainReader interface {
	Head() uint64
	BlockByNumber(number uint64) (*types.Block, error)
	UniqueAddresses() int
	Validators() []types.Validator
}

package ledger

import (
	"errors"
	"hyperraft/internal/metrics"
	"hyperraft/internal/types"
	"log/slog"
)

// Applier feeds committed log entries into a Store. It is the state machine
// the consensus engine drives.
type Applier struct {
	store *Store
}

func NewApplier(store *Store) *Applier {
	return &Applier{store: store}
}

// Apply adds the block carried by a BLOCK_PROPOSAL entry. A block the ledger
// rejects is logged and skipped.
func (a *Applier) Apply(entry types.LogEntry) error {
	switch entry.CommandType {
	case types.CommandNoop:
		return nil
	case types.CommandBlockProposal:
	default:
		slog.Warn("ignoring entry with unknown command type",
			"index", entry.Index,
			"type", entry.CommandType,
		)
		return nil
	}

	b, err := DecodeBlock(entry.Command)
	if err != nil {
		metrics.LedgerBlocksRejected.Inc()
		slog.Error("undecodable block proposal", "index", entry.Index, "error", err)
		return nil
	}

	if err := a.store.AddBlock(b); err != nil {
		metrics.LedgerBlocksRejected.Inc()
		if errors.Is(err, ErrInvalidBlock) {
			slog.Warn("rejected committed block",
				"index", entry.Index,
				"block", b.Number,
				"error", err,
			)
			return nil
		}
		return err
	}

	slog.Debug("block finalized",
		"index", entry.Index,
		"term", entry.Term,
		"block", b.Number,
		"hash", b.Hash,
		"txs", b.TransactionCount,
	)
	return nil
}

func (a *Applier) Snapshot() ([]byte, error) {
	return a.store.Snapshot()
}

func (a *Applier) Restore(data []byte) error {
	return a.store.Restore(data)
}

package raft

import (
	"context"
	"hyperraft/internal/metrics"
	"hyperraft/internal/types"
	"log/slog"
)

// applyLoop hands committed entries to the state machine in index order.
func (e *Engine) applyLoop() {
	for {
		select {
		case <-e.stopCh:
			return
		case <-e.applyCh:
			e.applyCommitted()
		}
	}
}

func (e *Engine) applyCommitted() {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	e.mu.Lock()
	from := e.lastApplied + 1
	to := e.commitIndex
	var entries []types.LogEntry
	if from <= to {
		ents, err := e.log.EntriesFrom(from, int(to-from+1))
		if err != nil {
			e.mu.Unlock()
			slog.Error("failed to read committed entries", "node_id", e.id, "from", from, "error", err)
			return
		}
		entries = ents
	}
	e.mu.Unlock()

	if len(entries) == 0 {
		return
	}

	for _, ent := range entries {
		if err := e.sm.Apply(ent); err != nil {
			slog.Error("state machine rejected entry",
				"node_id", e.id,
				"index", ent.Index,
				"term", ent.Term,
				"type", ent.CommandType,
				"error", err,
			)
		}

		e.mu.Lock()
		if ent.Index == e.lastApplied+1 {
			e.lastApplied = ent.Index
		}
		e.notifyAppliedLocked()
		e.mu.Unlock()
	}

	slog.Debug("applied committed entries",
		"node_id", e.id,
		"from", entries[0].Index,
		"to", entries[len(entries)-1].Index,
	)

	e.maybeSnapshot()

	e.mu.Lock()
	more := e.commitIndex > e.lastApplied
	e.mu.Unlock()
	if more {
		e.signalApply()
	}
}

// maybeSnapshot compacts the log once enough entries were applied. Callers
// hold applyMu.
func (e *Engine) maybeSnapshot() {
	e.mu.Lock()
	applied := e.lastApplied
	if !e.snapshots.ShouldSnapshot(applied, e.log.SnapshotIndex()) {
		e.mu.Unlock()
		return
	}
	term, ok := e.log.Term(applied)
	voters := e.votersLocked()
	e.mu.Unlock()
	if !ok {
		return
	}

	meta, data, err := e.snapshots.Create(applied, term, voters)
	if err != nil {
		slog.Error("failed to create snapshot", "node_id", e.id, "index", applied, "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.storage.SaveSnapshot(meta, data); err != nil {
		slog.Error("failed to persist snapshot", "node_id", e.id, "index", applied, "error", err)
		return
	}
	e.log.Compact(meta.LastIncludedIndex, meta.LastIncludedTerm)
	metrics.RaftSnapshotsTotal.WithLabelValues("local").Inc()

	slog.Info("log compacted",
		"node_id", e.id,
		"snapshot_index", meta.LastIncludedIndex,
		"snapshot_term", meta.LastIncludedTerm,
		"bytes", len(data),
	)
}

func (e *Engine) notifyAppliedLocked() {
	close(e.appliedCh)
	e.appliedCh = make(chan struct{})
}

// WaitApplied blocks until the entry at index has been applied locally.
func (e *Engine) WaitApplied(ctx context.Context, index uint64) error {
	for {
		e.mu.Lock()
		if e.lastApplied >= index {
			e.mu.Unlock()
			return nil
		}
		if e.stopped {
			e.mu.Unlock()
			return ErrStopped
		}
		ch := e.appliedCh
		e.mu.Unlock()

		select {
		case <-ch:
		case <-e.stopCh:
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

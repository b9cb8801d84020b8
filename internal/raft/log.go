package raft

import (
	"fmt"
	"hyperraft/internal/types"
)

// Log is the replicated command log. Indexes are 1-based; entries at or below
// snapshotIndex have been compacted away.
type Log struct {
	entries       []types.LogEntry
	snapshotIndex uint64
	snapshotTerm  uint64
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) restore(snapIndex, snapTerm uint64, entries []types.LogEntry) {
	l.snapshotIndex = snapIndex
	l.snapshotTerm = snapTerm
	l.entries = append([]types.LogEntry(nil), entries...)
}

func (l *Log) SnapshotIndex() uint64 { return l.snapshotIndex }
func (l *Log) SnapshotTerm() uint64  { return l.snapshotTerm }

func (l *Log) LastIndex() uint64 {
	return l.snapshotIndex + uint64(len(l.entries))
}

func (l *Log) LastTerm() uint64 {
	if len(l.entries) == 0 {
		return l.snapshotTerm
	}
	return l.entries[len(l.entries)-1].Term
}

// Term returns the term of the entry at index i. Index 0 has term 0.
func (l *Log) Term(i uint64) (uint64, bool) {
	switch {
	case i == 0:
		return 0, true
	case i == l.snapshotIndex:
		return l.snapshotTerm, true
	case i < l.snapshotIndex || i > l.LastIndex():
		return 0, false
	}
	return l.entries[i-l.snapshotIndex-1].Term, true
}

func (l *Log) Entry(i uint64) (types.LogEntry, bool) {
	if i <= l.snapshotIndex || i > l.LastIndex() {
		return types.LogEntry{}, false
	}
	return l.entries[i-l.snapshotIndex-1], true
}

// EntriesFrom returns a copy of at most max entries starting at index from.
func (l *Log) EntriesFrom(from uint64, max int) ([]types.LogEntry, error) {
	if from <= l.snapshotIndex {
		return nil, fmt.Errorf("entries from %d: %w", from, ErrCompacted)
	}
	if from > l.LastIndex() {
		return nil, nil
	}
	start := from - l.snapshotIndex - 1
	end := uint64(len(l.entries))
	if max > 0 && end-start > uint64(max) {
		end = start + uint64(max)
	}
	out := make([]types.LogEntry, end-start)
	copy(out, l.entries[start:end])
	return out, nil
}

func (l *Log) Append(entries ...types.LogEntry) {
	l.entries = append(l.entries, entries...)
}

// IsUpToDate reports whether a candidate whose log ends at (lastIndex, lastTerm)
// is at least as up-to-date as this log.
func (l *Log) IsUpToDate(lastIndex, lastTerm uint64) bool {
	if l.LastIndex() == 0 {
		return true
	}
	own := l.LastTerm()
	if lastTerm != own {
		return lastTerm > own
	}
	return lastIndex >= l.LastIndex()
}

// CheckConsistency reports whether this log holds an entry at prevIndex with
// prevTerm. Indexes below the snapshot are committed and therefore match.
func (l *Log) CheckConsistency(prevIndex, prevTerm uint64) bool {
	if prevIndex == 0 || prevIndex < l.snapshotIndex {
		return true
	}
	t, ok := l.Term(prevIndex)
	return ok && t == prevTerm
}

// Reconcile merges entries that follow prevIndex one at a time, truncating
// only at the first term mismatch. It returns the entries that were written.
func (l *Log) Reconcile(prevIndex uint64, entries []types.LogEntry, commitIndex uint64) ([]types.LogEntry, error) {
	var written []types.LogEntry
	for i, e := range entries {
		idx := prevIndex + uint64(i) + 1
		if idx <= l.snapshotIndex {
			continue
		}
		if idx <= l.LastIndex() {
			if t, _ := l.Term(idx); t == e.Term {
				continue
			}
			if idx <= commitIndex {
				return nil, fmt.Errorf("index %d: %w", idx, ErrCommittedConflict)
			}
			l.truncateFrom(idx)
		}
		l.entries = append(l.entries, e)
		written = append(written, e)
	}
	return written, nil
}

// Divergence returns the position in entries of the first entry this log does
// not already hold. It does not modify the log.
func (l *Log) Divergence(prevIndex uint64, entries []types.LogEntry, commitIndex uint64) (int, error) {
	for i, e := range entries {
		idx := prevIndex + uint64(i) + 1
		if idx <= l.snapshotIndex {
			continue
		}
		if idx > l.LastIndex() {
			return i, nil
		}
		if t, _ := l.Term(idx); t != e.Term {
			if idx <= commitIndex {
				return 0, fmt.Errorf("index %d: %w", idx, ErrCommittedConflict)
			}
			return i, nil
		}
	}
	return len(entries), nil
}

// ReconcileBatch locates the first divergence in one pass, then truncates once
// and appends the remaining suffix. The resulting log is identical to Reconcile.
func (l *Log) ReconcileBatch(prevIndex uint64, entries []types.LogEntry, commitIndex uint64) ([]types.LogEntry, error) {
	k, err := l.Divergence(prevIndex, entries, commitIndex)
	if err != nil {
		return nil, err
	}
	if k == len(entries) {
		return nil, nil
	}

	l.truncateFrom(prevIndex + uint64(k) + 1)
	suffix := append([]types.LogEntry(nil), entries[k:]...)
	l.entries = append(l.entries, suffix...)
	return suffix, nil
}

// truncateFrom drops the entry at index i and everything after it.
func (l *Log) truncateFrom(i uint64) {
	if i <= l.snapshotIndex {
		l.entries = l.entries[:0]
		return
	}
	if i > l.LastIndex() {
		return
	}
	l.entries = l.entries[:i-l.snapshotIndex-1]
}

// Compact discards entries up to and including index, which becomes the new
// snapshot boundary.
func (l *Log) Compact(index, term uint64) {
	if index <= l.snapshotIndex {
		return
	}
	if index >= l.LastIndex() {
		l.entries = nil
	} else {
		rest := l.entries[index-l.snapshotIndex:]
		l.entries = append([]types.LogEntry(nil), rest...)
	}
	l.snapshotIndex = index
	l.snapshotTerm = term
}

// InstallSnapshot moves the log onto a snapshot received from the leader. A
// suffix that agrees with the snapshot boundary is retained.
func (l *Log) InstallSnapshot(index, term uint64) {
	if t, ok := l.Term(index); ok && t == term && index > l.snapshotIndex {
		l.Compact(index, term)
		return
	}
	l.entries = nil
	l.snapshotIndex = index
	l.snapshotTerm = term
}

package raft

import (
	"errors"
	"hyperraft/internal/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ents(start uint64, terms ...uint64) []types.LogEntry {
	out := make([]types.LogEntry, len(terms))
	for i, t := range terms {
		out[i] = types.LogEntry{Index: start + uint64(i), Term: t, CommandType: types.CommandNoop}
	}
	return out
}

func logWith(terms ...uint64) *Log {
	l := NewLog()
	l.Append(ents(1, terms...)...)
	return l
}

func TestLog_TermAndBounds(t *testing.T) {
	l := logWith(1, 1, 2)

	assert.Equal(t, uint64(3), l.LastIndex())
	assert.Equal(t, uint64(2), l.LastTerm())

	term, ok := l.Term(0)
	assert.True(t, ok)
	assert.Zero(t, term)

	term, ok = l.Term(3)
	assert.True(t, ok)
	assert.Equal(t, uint64(2), term)

	_, ok = l.Term(4)
	assert.False(t, ok)
}

func TestLog_EntriesFrom(t *testing.T) {
	l := logWith(1, 1, 2, 3)

	got, err := l.EntriesFrom(2, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Index)
	assert.Equal(t, uint64(3), got[1].Index)

	got, err = l.EntriesFrom(5, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	l.Compact(2, 1)
	_, err = l.EntriesFrom(2, 10)
	assert.ErrorIs(t, err, ErrCompacted)
}

func TestLog_IsUpToDate(t *testing.T) {
	l := logWith(1, 2, 2)

	tests := []struct {
		name      string
		lastIndex uint64
		lastTerm  uint64
		want      bool
	}{
		{"higher term shorter log", 1, 3, true},
		{"same term longer log", 4, 2, true},
		{"same term same length", 3, 2, true},
		{"same term shorter log", 2, 2, false},
		{"lower term longer log", 10, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.IsUpToDate(tt.lastIndex, tt.lastTerm))
		})
	}

	assert.True(t, NewLog().IsUpToDate(0, 0))
}

func TestLog_CheckConsistency(t *testing.T) {
	l := logWith(1, 1, 2)

	assert.True(t, l.CheckConsistency(0, 0))
	assert.True(t, l.CheckConsistency(3, 2))
	assert.False(t, l.CheckConsistency(3, 1))
	assert.False(t, l.CheckConsistency(4, 2))

	l.Compact(2, 1)
	assert.True(t, l.CheckConsistency(1, 9), "indexes inside the snapshot are committed")
	assert.True(t, l.CheckConsistency(2, 1))
	assert.False(t, l.CheckConsistency(2, 5))
}

func TestLog_ReconcileTruncatesAtFirstConflict(t *testing.T) {
	l := logWith(1, 1, 1, 1)

	written, err := l.Reconcile(1, ents(2, 1, 2, 2), 1)
	require.NoError(t, err)

	assert.Len(t, written, 2)
	assert.Equal(t, uint64(4), l.LastIndex())
	for i, want := range []uint64{1, 1, 2, 2} {
		term, _ := l.Term(uint64(i + 1))
		assert.Equal(t, want, term, "index %d", i+1)
	}
}

func TestLog_ReconcileKeepsLongerMatchingSuffix(t *testing.T) {
	l := logWith(1, 1, 1, 1, 1)

	written, err := l.Reconcile(1, ents(2, 1), 1)
	require.NoError(t, err)
	assert.Empty(t, written)
	assert.Equal(t, uint64(5), l.LastIndex(), "a stale shorter append must not truncate")
}

func TestLog_ReconcileRejectsCommittedConflict(t *testing.T) {
	l := logWith(1, 1, 1)

	_, err := l.Reconcile(1, ents(2, 2), 2)
	assert.True(t, errors.Is(err, ErrCommittedConflict))
	assert.Equal(t, uint64(3), l.LastIndex())

	_, err = l.ReconcileBatch(1, ents(2, 2), 2)
	assert.ErrorIs(t, err, ErrCommittedConflict)
	assert.Equal(t, uint64(3), l.LastIndex())
}

func TestLog_ReconcileBatchMatchesReconcile(t *testing.T) {
	cases := []struct {
		name    string
		initial []uint64
		prev    uint64
		entries []types.LogEntry
	}{
		{"append to empty", nil, 0, ents(1, 1, 1)},
		{"pure extension", []uint64{1, 1}, 2, ents(3, 1, 2)},
		{"overlap then conflict", []uint64{1, 1, 1, 1}, 1, ents(2, 1, 3)},
		{"fully contained", []uint64{1, 2, 2}, 0, ents(1, 1, 2)},
		{"conflict at first", []uint64{1, 1, 1}, 0, ents(1, 2)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := logWith(tc.initial...)
			b := logWith(tc.initial...)

			_, errA := a.Reconcile(tc.prev, tc.entries, 0)
			_, errB := b.ReconcileBatch(tc.prev, tc.entries, 0)
			require.NoError(t, errA)
			require.NoError(t, errB)

			gotA, _ := a.EntriesFrom(1, 0)
			gotB, _ := b.EntriesFrom(1, 0)
			assert.Equal(t, gotA, gotB)
		})
	}
}

func TestLog_Divergence(t *testing.T) {
	l := logWith(1, 1, 2)

	k, err := l.Divergence(0, ents(1, 1, 1, 2, 2), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, k)

	k, err = l.Divergence(1, ents(2, 3), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, k)
	assert.Equal(t, uint64(3), l.LastIndex(), "divergence must not modify the log")
}

func TestLog_Compact(t *testing.T) {
	l := logWith(1, 1, 2, 2, 3)

	l.Compact(3, 2)
	assert.Equal(t, uint64(3), l.SnapshotIndex())
	assert.Equal(t, uint64(2), l.SnapshotTerm())
	assert.Equal(t, uint64(5), l.LastIndex())

	_, ok := l.Entry(3)
	assert.False(t, ok)
	e, ok := l.Entry(4)
	require.True(t, ok)
	assert.Equal(t, uint64(2), e.Term)

	l.Compact(2, 1)
	assert.Equal(t, uint64(3), l.SnapshotIndex(), "compaction never moves backwards")
}

func TestLog_InstallSnapshot(t *testing.T) {
	t.Run("matching suffix retained", func(t *testing.T) {
		l := logWith(1, 1, 2, 2)
		l.InstallSnapshot(2, 1)
		assert.Equal(t, uint64(2), l.SnapshotIndex())
		assert.Equal(t, uint64(4), l.LastIndex())
	})

	t.Run("conflicting log discarded", func(t *testing.T) {
		l := logWith(1, 1, 1)
		l.InstallSnapshot(2, 5)
		assert.Equal(t, uint64(2), l.SnapshotIndex())
		assert.Equal(t, uint64(2), l.LastIndex())
		assert.Equal(t, uint64(5), l.LastTerm())
	})

	t.Run("snapshot beyond log", func(t *testing.T) {
		l := logWith(1)
		l.InstallSnapshot(10, 3)
		assert.Equal(t, uint64(10), l.LastIndex())
		assert.Equal(t, uint64(3), l.LastTerm())
	})
}

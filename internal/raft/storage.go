package raft

import (
	"fmt"
	"hyperraft/internal/metrics"
	"hyperraft/internal/types"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/wal"
	"go.etcd.io/etcd/pkg/v3/pbutil"
	etcdraft "go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
)

const (
	RecordTypeEntry     byte = 1
	RecordTypeHardState byte = 2
	RecordTypeSnapshot  byte = 3
)

const (
	snapshotFolder = "snapshot"
	walFolder      = "wal"
)

// WALStorage keeps the durable state of a node in a tidwall/wal append-only
// log. Snapshot payloads live in separate files under snapshot/.
type WALStorage struct {
	mu sync.Mutex

	dir string
	log *wal.Log

	hs       raftpb.HardState
	snapMeta raftpb.SnapshotMetadata
	snapData []byte
	entries  []types.LogEntry

	nextWALIdx  uint64
	snapWALIdx  uint64
	entryWALIdx map[uint64]uint64
}

func OpenStorage(dir string, noSync bool) (*WALStorage, error) {
	if err := os.MkdirAll(filepath.Join(dir, snapshotFolder), 0o750); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	opts := *wal.DefaultOptions
	opts.NoSync = noSync
	log, err := wal.Open(filepath.Join(dir, walFolder), &opts)
	if err != nil {
		return nil, fmt.Errorf("wal.Open: %w", err)
	}

	s := &WALStorage{
		dir:         dir,
		log:         log,
		nextWALIdx:  1,
		entryWALIdx: make(map[uint64]uint64),
	}

	if err := s.replay(); err != nil {
		log.Close()
		return nil, err
	}

	return s, nil
}

func (s *WALStorage) replay() error {
	empty, err := s.log.IsEmpty()
	if err != nil {
		return fmt.Errorf("wal.IsEmpty: %w", err)
	}
	if empty {
		return nil
	}

	first, err := s.log.FirstIndex()
	if err != nil {
		return fmt.Errorf("wal.FirstIndex: %w", err)
	}
	last, err := s.log.LastIndex()
	if err != nil {
		return fmt.Errorf("wal.LastIndex: %w", err)
	}

	for idx := first; idx <= last; idx++ {
		data, err := s.log.Read(idx)
		if err != nil {
			return fmt.Errorf("wal.Read(%d): %w", idx, err)
		}

		recType, payload, err := unmarshalRecord(data)
		if err != nil {
			return fmt.Errorf("unmarshal record %d: %w", idx, err)
		}

		switch recType {
		case RecordTypeEntry:
			var pb raftpb.Entry
			if !pbutil.MaybeUnmarshal(&pb, payload) {
				return fmt.Errorf("record %d: malformed entry", idx)
			}
			e, err := entryFromPB(pb)
			if err != nil {
				return err
			}
			s.putEntryLocked(e)
			s.entryWALIdx[e.Index] = idx

		case RecordTypeHardState:
			var hs raftpb.HardState
			if !pbutil.MaybeUnmarshal(&hs, payload) {
				return fmt.Errorf("record %d: malformed hard state", idx)
			}
			s.hs = hs

		case RecordTypeSnapshot:
			var meta raftpb.SnapshotMetadata
			if !pbutil.MaybeUnmarshal(&meta, payload) {
				return fmt.Errorf("record %d: malformed snapshot metadata", idx)
			}
			data, err := s.loadSnapshotData(meta.Index)
			if err != nil {
				slog.Warn("snapshot data file missing, skipping",
					"index", meta.Index,
					"error", err,
				)
				break
			}
			s.snapMeta = meta
			s.snapData = data
			s.snapWALIdx = idx
		}

		s.nextWALIdx = idx + 1
	}

	s.dropCoveredEntriesLocked()

	slog.Info("replayed WAL",
		"wal_first", first,
		"wal_last", last,
		"entries", len(s.entries),
		"snap_index", s.snapMeta.Index,
		"term", s.hs.Term,
		"vote", s.hs.Vote,
		"commit", s.hs.Commit,
	)

	return nil
}

// putEntryLocked places e at its index, discarding any entries at or after it.
func (s *WALStorage) putEntryLocked(e types.LogEntry) {
	if len(s.entries) == 0 {
		s.entries = append(s.entries, e)
		return
	}
	first := s.entries[0].Index
	switch {
	case e.Index < first:
		s.entries = append(s.entries[:0], e)
	case e.Index <= first+uint64(len(s.entries)):
		s.entries = append(s.entries[:e.Index-first], e)
	default:
		slog.Warn("gap in WAL entries, restarting sequence",
			"expected", first+uint64(len(s.entries)),
			"got", e.Index,
		)
		s.entries = append(s.entries[:0], e)
	}
}

// dropCoveredEntriesLocked removes entries the snapshot covers. If the entry at
// the snapshot boundary disagrees with the snapshot term the whole tail goes.
func (s *WALStorage) dropCoveredEntriesLocked() {
	snapIndex := s.snapMeta.Index
	if snapIndex == 0 || len(s.entries) == 0 {
		return
	}

	first := s.entries[0].Index
	last := s.entries[len(s.entries)-1].Index
	switch {
	case first > snapIndex+1:
		slog.Warn("entries do not follow snapshot, discarding",
			"snap_index", snapIndex,
			"first_entry", first,
		)
		s.entries = nil
	case last <= snapIndex:
		s.entries = nil
	case first <= snapIndex:
		if s.entries[snapIndex-first].Term != s.snapMeta.Term {
			s.entries = nil
		} else {
			s.entries = append([]types.LogEntry(nil), s.entries[snapIndex-first+1:]...)
		}
	}

	for ri := range s.entryWALIdx {
		if ri <= snapIndex {
			delete(s.entryWALIdx, ri)
		}
	}
	if len(s.entries) == 0 {
		clear(s.entryWALIdx)
	}
}

func (s *WALStorage) HardState() types.HardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.HardState{Term: s.hs.Term, VotedFor: s.hs.Vote, Commit: s.hs.Commit}
}

func (s *WALStorage) Entries() []types.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.LogEntry(nil), s.entries...)
}

func (s *WALStorage) Snapshot() (types.SnapshotMeta, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := types.SnapshotMeta{
		LastIncludedIndex: s.snapMeta.Index,
		LastIncludedTerm:  s.snapMeta.Term,
		Voters:            append([]uint64(nil), s.snapMeta.ConfState.Voters...),
	}
	return meta, s.snapData
}

func (s *WALStorage) SaveHardState(hs types.HardState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pb := raftpb.HardState{Term: hs.Term, Vote: hs.VotedFor, Commit: hs.Commit}
	if pb.Term == s.hs.Term && pb.Vote == s.hs.Vote && pb.Commit == s.hs.Commit {
		return nil
	}
	if _, err := s.appendRecordLocked(RecordTypeHardState, &pb); err != nil {
		return err
	}
	s.hs = pb
	return nil
}

// Append writes entries in a single WAL batch. An entry whose index is already
// present replaces it and everything after it.
func (s *WALStorage) Append(entries []types.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	batch := new(wal.Batch)
	walIdx := s.nextWALIdx
	for _, e := range entries {
		pb := entryToPB(e)
		batch.Write(walIdx, marshalRecord(RecordTypeEntry, pbutil.MustMarshal(&pb)))
		walIdx++
	}
	if err := s.log.WriteBatch(batch); err != nil {
		return fmt.Errorf("wal.WriteBatch(%d): %w", s.nextWALIdx, err)
	}
	metrics.WALWritesTotal.Add(float64(len(entries)))
	metrics.WALWriteDuration.Observe(time.Since(start).Seconds())

	for _, e := range entries {
		if last, ok := s.lastEntryIndexLocked(); ok && e.Index <= last {
			for ri := range s.entryWALIdx {
				if ri >= e.Index {
					delete(s.entryWALIdx, ri)
				}
			}
		}
		s.putEntryLocked(e)
		s.entryWALIdx[e.Index] = s.nextWALIdx
		s.nextWALIdx++
	}
	return nil
}

func (s *WALStorage) lastEntryIndexLocked() (uint64, bool) {
	if len(s.entries) == 0 {
		return 0, false
	}
	return s.entries[len(s.entries)-1].Index, true
}

// SaveSnapshot writes the snapshot data file and its metadata record, then
// compacts the WAL so no record the snapshot covers is replayed again.
func (s *WALStorage) SaveSnapshot(meta types.SnapshotMeta, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if meta.LastIncludedIndex <= s.snapMeta.Index {
		return nil
	}

	if err := s.saveSnapshotData(meta.LastIncludedIndex, data); err != nil {
		return fmt.Errorf("save snapshot data: %w", err)
	}

	pb := raftpb.SnapshotMetadata{
		Index:     meta.LastIncludedIndex,
		Term:      meta.LastIncludedTerm,
		ConfState: raftpb.ConfState{Voters: append([]uint64(nil), meta.Voters...)},
	}
	walIdx, err := s.appendRecordLocked(RecordTypeSnapshot, &pb)
	if err != nil {
		return fmt.Errorf("append snapshot record: %w", err)
	}

	s.snapMeta = pb
	s.snapData = data
	s.snapWALIdx = walIdx
	s.dropCoveredEntriesLocked()

	if err := s.compactLocked(); err != nil {
		return err
	}

	slog.Info("saved snapshot",
		"index", meta.LastIncludedIndex,
		"term", meta.LastIncludedTerm,
		"retained_entries", len(s.entries),
	)
	return nil
}

// compactLocked rewrites the hard state at the tail and truncates every WAL
// record older than the first one still needed.
func (s *WALStorage) compactLocked() error {
	if !etcdraft.IsEmptyHardState(s.hs) {
		if _, err := s.appendRecordLocked(RecordTypeHardState, &s.hs); err != nil {
			return err
		}
	}

	keepFrom := s.snapWALIdx
	for _, wi := range s.entryWALIdx {
		if wi < keepFrom {
			keepFrom = wi
		}
	}

	first, err := s.log.FirstIndex()
	if err != nil {
		return fmt.Errorf("wal.FirstIndex: %w", err)
	}
	if keepFrom > first {
		if err := s.log.TruncateFront(keepFrom); err != nil {
			return fmt.Errorf("wal.TruncateFront(%d): %w", keepFrom, err)
		}
	}

	s.cleanupOldSnapshots()
	return nil
}

func (s *WALStorage) appendRecordLocked(recType byte, msg interface{ Marshal() ([]byte, error) }) (uint64, error) {
	payload, err := msg.Marshal()
	if err != nil {
		return 0, fmt.Errorf("marshal record: %w", err)
	}

	start := time.Now()
	idx := s.nextWALIdx
	if err := s.log.Write(idx, marshalRecord(recType, payload)); err != nil {
		return 0, fmt.Errorf("wal.Write(%d): %w", idx, err)
	}
	metrics.WALWritesTotal.Inc()
	metrics.WALWriteDuration.Observe(time.Since(start).Seconds())

	s.nextWALIdx++
	return idx, nil
}

func (s *WALStorage) saveSnapshotData(index uint64, data []byte) error {
	f, err := os.Create(s.snapshotPath(index))
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}

	start := time.Now()
	err = f.Sync()
	metrics.WALSyncDuration.Observe(time.Since(start).Seconds())
	return err
}

func (s *WALStorage) loadSnapshotData(index uint64) ([]byte, error) {
	return os.ReadFile(s.snapshotPath(index))
}

func (s *WALStorage) snapshotPath(index uint64) string {
	return filepath.Join(s.dir, snapshotFolder, fmt.Sprintf("%016x", index))
}

func (s *WALStorage) cleanupOldSnapshots() {
	snapDir := filepath.Join(s.dir, snapshotFolder)
	files, err := os.ReadDir(snapDir)
	if err != nil {
		return
	}

	for _, f := range files {
		if f.IsDir() {
			continue
		}
		var idx uint64
		if _, err := fmt.Sscanf(f.Name(), "%016x", &idx); err != nil {
			continue
		}
		if idx < s.snapMeta.Index {
			path := filepath.Join(snapDir, f.Name())
			if err := os.Remove(path); err != nil {
				slog.Warn("failed to remove old snapshot", "path", path, "error", err)
			}
		}
	}
}

func (s *WALStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log != nil {
		return s.log.Close()
	}
	return nil
}

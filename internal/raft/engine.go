package raft

import (
	"cmp"
	"context"
	"fmt"
	"hyperraft/internal/domain"
	"hyperraft/internal/metrics"
	"hyperraft/internal/raft/ops"
	"hyperraft/internal/raft/ports"
	"hyperraft/internal/types"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"time"
)

type peer struct {
	id         uint64
	addr       string
	nextIndex  uint64
	matchIndex uint64
	notify     chan struct{}
}

// Engine is one consensus node. Every field below mu is guarded by it.
type Engine struct {
	id        uint64
	cfg       Config
	transport ports.Transport
	storage   ports.Storage
	sm        domain.StateMachine
	snapshots *SnapshotManager

	// applyMu serializes state machine access between the apply loop and
	// snapshot installation. It is always taken before mu.
	applyMu sync.Mutex

	mu              sync.Mutex
	role            types.Role
	term            uint64
	votedFor        uint64
	leaderID        uint64
	log             *Log
	commitIndex     uint64
	lastApplied     uint64
	peers           map[uint64]*peer
	lastHeartbeat   time.Time
	electionTimeout time.Duration
	leaderCancel    context.CancelFunc
	leaderStart     uint64
	appliedCh       chan struct{}
	started         bool
	stopped         bool

	applyCh   chan struct{}
	stopCh    chan struct{}
	stoppedWg sync.WaitGroup
}

// New restores a node from storage. The state machine is brought to the
// latest snapshot; committed entries after it are replayed once Start runs.
func New(cfg Config, storage ports.Storage, transport ports.Transport, sm domain.StateMachine) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid raft config: %w", err)
	}

	e := &Engine{
		id:        cfg.ID,
		cfg:       cfg,
		transport: transport,
		storage:   storage,
		sm:        sm,
		snapshots: NewSnapshotManager(sm, cfg.SnapCount, cfg.SnapshotChunkSize),
		role:      types.Follower,
		log:       NewLog(),
		peers:     make(map[uint64]*peer),
		appliedCh: make(chan struct{}),
		applyCh:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}

	for id, addr := range cfg.Peers {
		if id == cfg.ID {
			continue
		}
		e.peers[id] = &peer{id: id, addr: addr, notify: make(chan struct{}, 1)}
	}

	hs := storage.HardState()
	meta, data := storage.Snapshot()
	e.log.restore(meta.LastIncludedIndex, meta.LastIncludedTerm, storage.Entries())

	if !ops.IsEmptySnapshot(meta) {
		if err := sm.Restore(data); err != nil {
			return nil, fmt.Errorf("restore snapshot %d: %w", meta.LastIncludedIndex, err)
		}
		e.lastApplied = meta.LastIncludedIndex
	}

	e.term = hs.Term
	e.votedFor = hs.VotedFor
	e.commitIndex = min(max(hs.Commit, meta.LastIncludedIndex), e.log.LastIndex())
	e.resetElectionTimerLocked()

	slog.Info("raft engine restored",
		"node_id", e.id,
		"term", e.term,
		"voted_for", e.votedFor,
		"commit", e.commitIndex,
		"applied", e.lastApplied,
		"last_index", e.log.LastIndex(),
		"snapshot_index", e.log.SnapshotIndex(),
		"peers", formatPeers(cfg.Peers),
	)

	metrics.RaftPeersTotal.Set(float64(len(e.peers)))
	return e, nil
}

func (e *Engine) ID() uint64 { return e.id }

func (e *Engine) Start() {
	e.mu.Lock()
	if e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.started = true
	pending := e.commitIndex > e.lastApplied
	e.mu.Unlock()

	e.stoppedWg.Add(3)
	go func() {
		defer e.stoppedWg.Done()
		e.runLoop()
	}()
	go func() {
		defer e.stoppedWg.Done()
		e.applyLoop()
	}()
	go func() {
		defer e.stoppedWg.Done()
		e.collectMetrics()
	}()

	if pending {
		e.signalApply()
	}
	slog.Info("raft engine started", "node_id", e.id)
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	if e.leaderCancel != nil {
		e.leaderCancel()
		e.leaderCancel = nil
	}
	e.mu.Unlock()

	close(e.stopCh)
	e.stoppedWg.Wait()
	slog.Info("raft engine stopped", "node_id", e.id)
}

// runLoop drives election timeouts. Heartbeats are sent by the per-peer
// replicators while this node leads.
func (e *Engine) runLoop() {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-e.stopCh
		cancel()
	}()

	for {
		select {
		case <-e.stopCh:
			slog.Debug("raft loop stopping", "node_id", e.id)
			return
		case <-ticker.C:
			if e.ElectionTimeoutElapsed() {
				e.StartElection(ctx)
			}
		}
	}
}

func (e *Engine) collectMetrics() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			s := e.State()
			metrics.SetLeader(s.Role == types.Leader)
			metrics.RaftTerm.Set(float64(s.Term))
			metrics.RaftCommitIndex.Set(float64(s.CommitIndex))
			metrics.RaftAppliedIndex.Set(float64(s.LastApplied))
			metrics.RaftSnapshotIndex.Set(float64(s.SnapshotIndex))
		}
	}
}

// State returns a consistent copy of the node state.
func (e *Engine) State() types.NodeState {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := types.NodeState{
		NodeID:        e.id,
		Role:          e.role,
		Term:          e.term,
		VotedFor:      e.votedFor,
		CommitIndex:   e.commitIndex,
		LastApplied:   e.lastApplied,
		LeaderID:      e.leaderID,
		LogSize:       e.log.LastIndex(),
		SnapshotIndex: e.log.SnapshotIndex(),
		Peers:         make([]types.PeerState, 0, len(e.peers)),
	}
	for _, p := range e.peers {
		s.Peers = append(s.Peers, types.PeerState{
			ID:         p.id,
			Address:    p.addr,
			NextIndex:  p.nextIndex,
			MatchIndex: p.matchIndex,
		})
	}
	slices.SortFunc(s.Peers, func(a, b types.PeerState) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return s
}

func (e *Engine) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.role == types.Leader
}

func (e *Engine) LeaderID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leaderID
}

// PeerAddr returns the consensus address of a voter, if known.
func (e *Engine) PeerAddr(id uint64) string {
	return e.cfg.Peers[id]
}

// ElectionTimeoutElapsed reports whether a follower or candidate has gone a
// full randomized election timeout without hearing from a leader.
func (e *Engine) ElectionTimeoutElapsed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.role == types.Leader || e.stopped {
		return false
	}
	return time.Since(e.lastHeartbeat) > e.electionTimeout
}

func (e *Engine) resetElectionTimerLocked() {
	e.lastHeartbeat = time.Now()
	e.electionTimeout = e.cfg.ElectionTimeout
	if e.cfg.ElectionJitter > 0 {
		e.electionTimeout += time.Duration(rand.Int63n(int64(e.cfg.ElectionJitter)))
	}
}

func (e *Engine) quorum() int {
	return ops.Quorum(len(e.peers) + 1)
}

func (e *Engine) votersLocked() []uint64 {
	if len(e.cfg.Peers) == 0 {
		return []uint64{e.id}
	}
	return ops.Voters(e.cfg.Peers)
}

func (e *Engine) hardStateLocked() types.HardState {
	return types.HardState{Term: e.term, VotedFor: e.votedFor, Commit: e.commitIndex}
}

// stepDownLocked moves to follower, adopting term when it is newer. The new
// term is persisted before any in-memory state changes.
func (e *Engine) stepDownLocked(term uint64) error {
	if term > e.term {
		hs := types.HardState{Term: term, VotedFor: 0, Commit: e.commitIndex}
		if err := e.storage.SaveHardState(hs); err != nil {
			return fmt.Errorf("persist term %d: %w", term, err)
		}
		slog.Info("observed higher term",
			"node_id", e.id,
			"old_term", e.term,
			"new_term", term,
		)
		e.term = term
		e.votedFor = 0
		e.leaderID = 0
	}
	e.becomeFollowerLocked()
	return nil
}

func (e *Engine) becomeFollowerLocked() {
	if e.role == types.Leader {
		if e.leaderCancel != nil {
			e.leaderCancel()
			e.leaderCancel = nil
		}
		slog.Info("stepping down", "node_id", e.id, "term", e.term)
	}
	e.role = types.Follower
}

func (e *Engine) signalApply() {
	select {
	case e.applyCh <- struct{}{}:
	default:
	}
}

// commitToLocked advances the commit index to n, never past the last entry.
func (e *Engine) commitToLocked(n uint64) {
	n = min(n, e.log.LastIndex())
	if n <= e.commitIndex {
		return
	}
	e.commitIndex = n
	if err := e.storage.SaveHardState(e.hardStateLocked()); err != nil {
		slog.Warn("failed to persist commit index", "node_id", e.id, "commit", n, "error", err)
	}
	e.signalApply()
}

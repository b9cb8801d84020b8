// Package stream turns ledger and consensus state into push feeds by polling.
package stream

import (
	"context"
	"hyperraft/internal/domain"
	"hyperraft/internal/metrics"
	"hyperraft/internal/types"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const DefaultPollInterval = time.Second

// NodeStateReader is satisfied by the consensus engine.
type NodeStateReader interface {
	State() types.NodeState
}

type Feed struct {
	chain    domain.ChainReader
	node     NodeStateReader
	interval time.Duration
}

func NewFeed(chain domain.ChainReader, node NodeStateReader, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Feed{chain: chain, node: node, interval: interval}
}

func subscribe(feed string) (string, func()) {
	id := uuid.NewString()
	g := metrics.StreamSubscribers.WithLabelValues(feed)
	g.Inc()
	slog.Debug("stream subscription opened", "feed", feed, "subscription", id)
	return id, func() {
		g.Dec()
		slog.Debug("stream subscription closed", "feed", feed, "subscription", id)
	}
}

// Blocks sends every block from startFrom onward, each exactly once, until ctx
// ends or send fails. startFrom 0 means blocks added after the call.
func (f *Feed) Blocks(ctx context.Context, startFrom uint64, includeTransactions bool, send func(*types.Block) error) error {
	_, done := subscribe("blocks")
	defer done()

	next := startFrom
	if next == 0 {
		next = f.chain.Head() + 1
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		head := f.chain.Head()
		for ; next <= head; next++ {
			b, err := f.chain.BlockByNumber(next)
			if err != nil {
				return err
			}
			if !includeTransactions {
				b = b.Copy(false)
			}
			if err := send(b); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Events sends a consensus event for every change observed between polls.
// The state at subscription time is the baseline and produces no events.
func (f *Feed) Events(ctx context.Context, send func(*types.ConsensusEvent) error) error {
	_, done := subscribe("events")
	defer done()

	prev := f.node.State()
	prevHead := f.chain.Head()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		cur := f.node.State()
		head := f.chain.Head()
		for _, ev := range diff(prev, cur, prevHead, head, time.Now().UnixMilli()) {
			if err := send(ev); err != nil {
				return err
			}
		}
		prev, prevHead = cur, head
	}
}

func diff(prev, cur types.NodeState, prevHead, head uint64, now int64) []*types.ConsensusEvent {
	var out []*types.ConsensusEvent
	emit := func(t types.EventType, block uint64) {
		out = append(out, &types.ConsensusEvent{
			EventID:     uuid.NewString(),
			Type:        t,
			NodeID:      cur.NodeID,
			Term:        cur.Term,
			Role:        cur.Role.String(),
			LeaderID:    cur.LeaderID,
			CommitIndex: cur.CommitIndex,
			BlockNumber: block,
			Timestamp:   now,
		})
	}

	if cur.Term != prev.Term {
		emit(types.EventTermChanged, 0)
	}
	if cur.Role != prev.Role {
		emit(types.EventRoleChanged, 0)
	}
	if cur.LeaderID != prev.LeaderID {
		emit(types.EventLeaderChanged, 0)
	}
	if cur.CommitIndex > prev.CommitIndex {
		emit(types.EventCommitAdvanced, 0)
	}
	for n := prevHead + 1; n <= head; n++ {
		emit(types.EventBlockFinalized, n)
	}
	return out
}

// Package chain is the node-facing facade that joins consensus, the ledger and
// statistics behind the client RPC surface.
package chain

import (
	"context"
	"errors"
	"fmt"
	"hyperraft/internal/ledger"
	"hyperraft/internal/stats"
	"hyperraft/internal/types"
	"log/slog"
	"sync"
	"time"
)

var ErrBlockRejected = errors.New("block rejected by ledger")

// Consensus is the part of the raft engine the service drives.
type Consensus interface {
	ID() uint64
	State() types.NodeState
	LeaderBarrier() (uint64, error)
	ProposeBlock(ctx context.Context, req *types.ProposeBlockRequest) (*types.ProposeBlockResponse, error)
	WaitApplied(ctx context.Context, index uint64) error
}

type Service struct {
	node   Consensus
	ledger *ledger.Store
	stats  *stats.Engine
	now    func() time.Time

	// proposeMu keeps locally produced blocks from building on the same head.
	proposeMu sync.Mutex
}

func NewService(node Consensus, store *ledger.Store, st *stats.Engine) *Service {
	return &Service{node: node, ledger: store, stats: st, now: time.Now}
}

func (s *Service) NodeID() uint64 { return s.node.ID() }

func (s *Service) State() types.NodeState { return s.node.State() }

// ProposeBlock forwards a client-built proposal to consensus.
func (s *Service) ProposeBlock(ctx context.Context, req *types.ProposeBlockRequest) (*types.ProposeBlockResponse, error) {
	return s.node.ProposeBlock(ctx, req)
}

// ProduceBlock builds the next block from txs, commits it through consensus
// and returns it as finalized by the local ledger.
func (s *Service) ProduceBlock(ctx context.Context, txs []types.Transaction, proposer string) (*types.Block, error) {
	s.proposeMu.Lock()
	defer s.proposeMu.Unlock()

	if proposer == "" {
		proposer = fmt.Sprintf("node-%d", s.node.ID())
	}

	barrier, err := s.node.LeaderBarrier()
	if err != nil {
		return nil, err
	}
	if err := s.node.WaitApplied(ctx, barrier); err != nil {
		return nil, fmt.Errorf("wait for index %d before proposing: %w", barrier, err)
	}

	b := s.ledger.CreateProposal(txs, proposer, s.now().UnixMilli())
	payload, err := ledger.EncodeBlock(b)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.Hash
	}
	resp, err := s.node.ProposeBlock(ctx, &types.ProposeBlockRequest{
		BlockPayload: payload,
		ProposerID:   proposer,
		TxIDs:        ids,
		BlockNumber:  b.Number,
	})
	if err != nil {
		return nil, err
	}

	if err := s.node.WaitApplied(ctx, resp.Index); err != nil {
		return nil, fmt.Errorf("wait for block %d at index %d: %w", b.Number, resp.Index, err)
	}

	final, err := s.ledger.BlockByNumber(b.Number)
	if err != nil || final.Hash != b.Hash {
		return nil, fmt.Errorf("block %d at index %d: %w", b.Number, resp.Index, ErrBlockRejected)
	}

	slog.Info("block produced",
		"block", final.Number,
		"hash", final.Hash,
		"txs", final.TransactionCount,
		"proposer", proposer,
		"index", resp.Index,
		"term", resp.Term,
	)
	return final, nil
}

func (s *Service) Block(number uint64) (*types.Block, error) {
	return s.ledger.BlockByNumber(number)
}

func (s *Service) BlockByHash(hash string) (*types.Block, error) {
	return s.ledger.BlockByHash(hash)
}

func (s *Service) LatestBlock(includeTransactions bool) *types.Block {
	return s.ledger.LatestBlock(includeTransactions)
}

func (s *Service) BlockRange(start, end uint64, maxResults int, includeTransactions bool) (*types.BlockRange, error) {
	return s.ledger.Range(start, end, maxResults, includeTransactions)
}

func (s *Service) Info() types.BlockchainInfo {
	return s.stats.Info(s.ledger.Info())
}

func (s *Service) Stats(from, to uint64) (types.ChainStats, error) {
	return s.stats.RangeStats(from, to)
}

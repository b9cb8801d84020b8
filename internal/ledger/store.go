package ledger

import (
	"encoding/json"
	"fmt"
	"hyperraft/internal/metrics"
	"hyperraft/internal/types"
	"log/slog"
	"sync"
)

const (
	ConsensusAlgorithm = "HyperRAFT++"
	defaultMaxResults  = 100
)

// Store is the block ledger. AddBlock is its only mutation after genesis;
// readers always receive copies.
type Store struct {
	mu  sync.RWMutex
	cfg Config

	blocks []*types.Block
	byHash map[string]uint64

	totalTxs   uint64
	totalGas   uint64
	addresses  map[string]struct{}
	validators map[string]*types.Validator
	order      []string
}

func New(cfg Config) *Store {
	cfg = cfg.withDefaults()
	s := &Store{cfg: cfg}
	s.reset()
	for _, v := range cfg.Validators {
		s.registerLocked(v)
	}

	g := s.blocks[0]
	slog.Info("ledger initialized",
		"network_id", cfg.NetworkID,
		"genesis_hash", g.Hash,
		"genesis_timestamp", g.Timestamp,
		"validators", len(s.order),
	)
	return s
}

func (s *Store) reset() {
	g := genesisBlock(s.cfg)
	s.blocks = []*types.Block{g}
	s.byHash = map[string]uint64{g.Hash: 0}
	s.totalTxs = 0
	s.totalGas = 0
	s.addresses = make(map[string]struct{})
	s.validators = make(map[string]*types.Validator)
	s.order = nil
}

func (s *Store) registerLocked(v types.Validator) *types.Validator {
	if existing, ok := s.validators[v.ID]; ok {
		return existing
	}
	c := v
	s.validators[v.ID] = &c
	s.order = append(s.order, v.ID)
	return &c
}

// Head returns the number of the latest block.
func (s *Store) Head() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.blocks) - 1)
}

func (s *Store) BlockByNumber(number uint64) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if number >= uint64(len(s.blocks)) {
		return nil, fmt.Errorf("block %d: %w", number, ErrBlockNotFound)
	}
	return s.blocks[number].Copy(true), nil
}

func (s *Store) BlockByHash(hash string) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("block %s: %w", hash, ErrBlockNotFound)
	}
	return s.blocks[n].Copy(true), nil
}

func (s *Store) LatestBlock(includeTransactions bool) *types.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks[len(s.blocks)-1].Copy(includeTransactions)
}

// Range returns blocks start..end inclusive, at most maxResults+1 of them.
func (s *Store) Range(start, end uint64, maxResults int, includeTransactions bool) (*types.BlockRange, error) {
	if start > end {
		return nil, fmt.Errorf("start %d after end %d: %w", start, end, ErrInvalidRange)
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	head := uint64(len(s.blocks) - 1)
	end = min(end, start+uint64(maxResults), head)

	out := &types.BlockRange{Blocks: []*types.Block{}}
	for n := start; n <= end && n <= head; n++ {
		out.Blocks = append(out.Blocks, s.blocks[n].Copy(includeTransactions))
	}
	out.HasMore = head > end
	return out, nil
}

// CreateProposal builds the next block on top of the current head without
// changing the ledger. The block becomes part of the chain only through AddBlock.
func (s *Store) CreateProposal(txs []types.Transaction, proposer string, now int64) *types.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	head := s.blocks[len(s.blocks)-1]
	number := head.Number + 1

	var gas uint64
	for _, tx := range txs {
		gas += tx.Gas
	}

	b := &types.Block{
		Number:           number,
		Hash:             ComputeHash(number, head.Hash, now),
		PreviousHash:     head.Hash,
		Timestamp:        now,
		Proposer:         proposer,
		Transactions:     append([]types.Transaction(nil), txs...),
		TransactionCount: len(txs),
		GasUsed:          gas,
		GasLimit:         s.cfg.GasLimit,
		StateRoot:        zeroRoot,
		TxRoot:           txRoot(txs),
		ReceiptsRoot:     zeroRoot,
		Confirmations:    0,
	}
	return b
}

// AddBlock appends a block that extends the current head.
func (s *Store) AddBlock(b *types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	head := s.blocks[len(s.blocks)-1]
	switch {
	case b.Number != head.Number+1:
		return fmt.Errorf("block number %d, expected %d: %w", b.Number, head.Number+1, ErrInvalidBlock)
	case b.PreviousHash != head.Hash:
		return fmt.Errorf("block %d previous hash %s, head is %s: %w", b.Number, b.PreviousHash, head.Hash, ErrInvalidBlock)
	case b.Hash != ComputeHash(b.Number, b.PreviousHash, b.Timestamp):
		return fmt.Errorf("block %d hash mismatch: %w", b.Number, ErrInvalidBlock)
	case b.TransactionCount != len(b.Transactions):
		return fmt.Errorf("block %d declares %d transactions, carries %d: %w",
			b.Number, b.TransactionCount, len(b.Transactions), ErrInvalidBlock)
	}

	c := b.Copy(true)
	c.Confirmations = 1
	s.appendLocked(c)

	metrics.LedgerHeight.Set(float64(c.Number))
	metrics.LedgerTransactionsTotal.Set(float64(s.totalTxs))
	return nil
}

func (s *Store) appendLocked(b *types.Block) {
	s.indexLocked(b)
	if b.Proposer != "" {
		v := s.registerLocked(types.Validator{ID: b.Proposer, Online: true})
		v.BlocksProduced++
	}
}

func (s *Store) indexLocked(b *types.Block) {
	s.blocks = append(s.blocks, b)
	s.byHash[b.Hash] = b.Number
	s.totalTxs += uint64(len(b.Transactions))
	s.totalGas += b.GasUsed
	for _, tx := range b.Transactions {
		if tx.From != "" {
			s.addresses[tx.From] = struct{}{}
		}
		if tx.To != "" {
			s.addresses[tx.To] = struct{}{}
		}
	}
}

func (s *Store) TotalTransactions() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalTxs
}

func (s *Store) UniqueAddresses() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.addresses)
}

// Validators returns the registry in registration order.
func (s *Store) Validators() []types.Validator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validatorsLocked()
}

func (s *Store) validatorsLocked() []types.Validator {
	out := make([]types.Validator, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.validators[id])
	}
	return out
}

// Info summarizes the chain. Timing figures are filled in by the statistics engine.
func (s *Store) Info() types.BlockchainInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	head := s.blocks[len(s.blocks)-1]
	return types.BlockchainInfo{
		LatestBlockNumber:  head.Number,
		LatestBlockHash:    head.Hash,
		TotalTransactions:  s.totalTxs,
		TotalGasUsed:       s.totalGas,
		UniqueAddresses:    len(s.addresses),
		GenesisTimestamp:   s.blocks[0].Timestamp,
		NetworkID:          s.cfg.NetworkID,
		ConsensusAlgorithm: ConsensusAlgorithm,
		ValidatorCount:     len(s.order),
		Validators:         s.validatorsLocked(),
	}
}

type snapshot struct {
	Blocks     []*types.Block    `json:"blocks"`
	Validators []types.Validator `json:"validators"`
}

// Snapshot serializes every block after genesis and the validator registry.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		Blocks:     s.blocks[1:],
		Validators: s.validatorsLocked(),
	}
	return json.Marshal(&snap)
}

// Restore replaces the ledger with a snapshot. Genesis is rebuilt from config
// and each block must chain onto it.
func (s *Store) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode ledger snapshot: %w", err)
	}

	prevHash := genesisBlock(s.cfg).Hash
	for i, b := range snap.Blocks {
		if b.Number != uint64(i+1) || b.PreviousHash != prevHash {
			return fmt.Errorf("snapshot block %d does not extend block %d: %w", b.Number, i, ErrInvalidBlock)
		}
		prevHash = b.Hash
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	for _, b := range snap.Blocks {
		s.indexLocked(b)
	}
	for _, v := range snap.Validators {
		s.registerLocked(v)
	}
	for _, v := range s.cfg.Validators {
		s.registerLocked(v)
	}

	head := s.blocks[len(s.blocks)-1]
	metrics.LedgerHeight.Set(float64(head.Number))
	metrics.LedgerTransactionsTotal.Set(float64(s.totalTxs))
	slog.Info("ledger restored from snapshot", "head", head.Number, "hash", head.Hash)
	return nil
}

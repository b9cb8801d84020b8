// Package stats derives chain statistics from the ledger. It never mutates it.
package stats

import (
	"fmt"
	"hyperraft/internal/domain"
	"hyperraft/internal/ledger"
	"hyperraft/internal/types"
)

const (
	blockTimeWindow = 100
	tpsWindow       = 10
)

type Engine struct {
	chain domain.ChainReader
}

func New(chain domain.ChainReader) *Engine {
	return &Engine{chain: chain}
}

// AverageBlockTime is the mean gap in milliseconds over the last 100 blocks.
func (e *Engine) AverageBlockTime() float64 {
	head := e.chain.Head()
	if head < 1 {
		return 0
	}
	n := min(uint64(blockTimeWindow), head)

	last, err := e.chain.BlockByNumber(head)
	if err != nil {
		return 0
	}
	first, err := e.chain.BlockByNumber(head - n)
	if err != nil {
		return 0
	}
	return float64(last.Timestamp-first.Timestamp) / float64(n)
}

// CurrentTPS is transactions per second over the last 10 blocks.
func (e *Engine) CurrentTPS() float64 {
	head := e.chain.Head()
	if head < 1 {
		return 0
	}
	avg := e.AverageBlockTime()
	if avg <= 0 {
		return 0
	}

	n := min(uint64(tpsWindow), head)
	var txs int
	for num := head - n + 1; num <= head; num++ {
		b, err := e.chain.BlockByNumber(num)
		if err != nil {
			return 0
		}
		txs += b.TransactionCount
	}
	return float64(txs) / float64(n) * 1000 / avg
}

// RangeStats summarizes blocks from..to inclusive. to == 0 means the head.
func (e *Engine) RangeStats(from, to uint64) (types.ChainStats, error) {
	head := e.chain.Head()
	if to == 0 || to > head {
		to = head
	}
	if from > to {
		return types.ChainStats{}, fmt.Errorf("from %d after to %d: %w", from, to, ledger.ErrInvalidRange)
	}

	st := types.ChainStats{FromBlock: from, ToBlock: to, TotalBlocks: to - from + 1}
	addrs := make(map[string]struct{})
	proposers := make(map[string]struct{})

	var prev *types.Block
	var first, last int64
	for num := from; num <= to; num++ {
		b, err := e.chain.BlockByNumber(num)
		if err != nil {
			return types.ChainStats{}, err
		}
		if num == from {
			first = b.Timestamp
		}
		last = b.Timestamp

		st.TotalTransactions += uint64(b.TransactionCount)
		st.TotalGasUsed += b.GasUsed
		for _, tx := range b.Transactions {
			if tx.From != "" {
				addrs[tx.From] = struct{}{}
			}
			if tx.To != "" {
				addrs[tx.To] = struct{}{}
			}
		}
		if b.Proposer != "" {
			proposers[b.Proposer] = struct{}{}
		}

		if prev != nil {
			if dt := b.Timestamp - prev.Timestamp; dt > 0 {
				st.PeakTPS = max(st.PeakTPS, float64(b.TransactionCount)*1000/float64(dt))
			}
		}
		prev = b
	}

	if to > from {
		st.AverageBlockTimeMs = float64(last-first) / float64(to-from)
	}
	st.AverageTxPerBlock = float64(st.TotalTransactions) / float64(st.TotalBlocks)
	if st.AverageBlockTimeMs > 0 {
		st.AverageTPS = st.AverageTxPerBlock * 1000 / st.AverageBlockTimeMs
	}
	st.UniqueAddresses = len(addrs)
	st.ActiveValidators = len(proposers)
	return st, nil
}

// Info completes the ledger summary with timing figures.
func (e *Engine) Info(info types.BlockchainInfo) types.BlockchainInfo {
	info.AverageBlockTimeMs = e.AverageBlockTime()
	info.CurrentTPS = e.CurrentTPS()
	return info
}

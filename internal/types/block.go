package types

type Transaction struct {
	Hash      string `json:"hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"`
	Gas       uint64 `json:"gas"`
	Nonce     uint64 `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

// Block is immutable once it has been added to the ledger.
type Block struct {
	Number           uint64        `json:"number"`
	Hash             string        `json:"hash"`
	PreviousHash     string        `json:"previousHash"`
	Timestamp        int64         `json:"timestamp"`
	Proposer         string        `json:"proposer"`
	Transactions     []Transaction `json:"transactions,omitempty"`
	TransactionCount int           `json:"transactionCount"`
	GasUsed          uint64        `json:"gasUsed"`
	GasLimit         uint64        `json:"gasLimit"`
	StateRoot        string        `json:"stateRoot"`
	TxRoot           string        `json:"txRoot"`
	ReceiptsRoot     string        `json:"receiptsRoot"`
	Confirmations    uint64        `json:"confirmations"`
}

// Copy returns a deep copy. Transactions are dropped unless withTxs is set.
func (b *Block) Copy(withTxs bool) *Block {
	c := *b
	if withTxs && b.Transactions != nil {
		c.Transactions = make([]Transaction, len(b.Transactions))
		copy(c.Transactions, b.Transactions)
	} else {
		c.Transactions = nil
	}
	return &c
}

type Validator struct {
	ID             string `json:"id"`
	Address        string `json:"address"`
	Stake          uint64 `json:"stake"`
	Online         bool   `json:"online"`
	BlocksProduced uint64 `json:"blocksProduced"`
}

type BlockRange struct {
	Blocks  []*Block `json:"blocks"`
	HasMore bool     `json:"hasMore"`
}

type BlockchainInfo struct {
	LatestBlockNumber  uint64      `json:"latestBlockNumber"`
	LatestBlockHash    string      `json:"latestBlockHash"`
	TotalTransactions  uint64      `json:"totalTransactions"`
	TotalGasUsed       uint64      `json:"totalGasUsed"`
	UniqueAddresses    int         `json:"uniqueAddresses"`
	GenesisTimestamp   int64       `json:"genesisTimestamp"`
	NetworkID          string      `json:"networkId"`
	ConsensusAlgorithm string      `json:"consensusAlgorithm"`
	ValidatorCount     int         `json:"validatorCount"`
	AverageBlockTimeMs float64     `json:"averageBlockTimeMs"`
	CurrentTPS         float64     `json:"currentTps"`
	Validators         []Validator `json:"validators,omitempty"`
}

type ChainStats struct {
	FromBlock          uint64  `json:"fromBlock"`
	ToBlock            uint64  `json:"toBlock"`
	TotalBlocks        uint64  `json:"totalBlocks"`
	TotalTransactions  uint64  `json:"totalTransactions"`
	TotalGasUsed       uint64  `json:"totalGasUsed"`
	AverageBlockTimeMs float64 `json:"averageBlockTimeMs"`
	AverageTxPerBlock  float64 `json:"averageTxPerBlock"`
	PeakTPS            float64 `json:"peakTps"`
	AverageTPS         float64 `json:"averageTps"`
	UniqueAddresses    int     `json:"uniqueAddresses"`
	ActiveValidators   int     `json:"activeValidators"`
}

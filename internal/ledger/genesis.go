package ledger

import (
	"fmt"
	"hyperraft/internal/types"
	"os"

	"sigs.k8s.io/yaml"
)

const (
	DefaultGasLimit  uint64 = 30_000_000
	DefaultNetworkID        = "hyperraft-local"
)

// Config seeds a ledger. Every replica must use the same values so that their
// genesis blocks, and therefore all later hashes, agree.
type Config struct {
	NetworkID        string
	GenesisTimestamp int64
	GasLimit         uint64
	Validators       []types.Validator
}

// Genesis is the optional genesis file shared by all replicas.
type Genesis struct {
	NetworkID  string            `json:"networkId"`
	Timestamp  int64             `json:"timestamp"`
	GasLimit   uint64            `json:"gasLimit"`
	Validators []types.Validator `json:"validators"`
}

func LoadGenesis(path string) (*Genesis, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis file: %w", err)
	}

	g := &Genesis{}
	if err := yaml.Unmarshal(b, g); err != nil {
		return nil, fmt.Errorf("parse genesis file %s: %w", path, err)
	}
	return g, nil
}

// WithGenesis overlays the non-zero fields of g on c.
func (c Config) WithGenesis(g *Genesis) Config {
	if g == nil {
		return c
	}
	if g.NetworkID != "" {
		c.NetworkID = g.NetworkID
	}
	if g.Timestamp != 0 {
		c.GenesisTimestamp = g.Timestamp
	}
	if g.GasLimit != 0 {
		c.GasLimit = g.GasLimit
	}
	if len(g.Validators) > 0 {
		c.Validators = g.Validators
	}
	return c
}

func (c Config) withDefaults() Config {
	if c.NetworkID == "" {
		c.NetworkID = DefaultNetworkID
	}
	if c.GasLimit == 0 {
		c.GasLimit = DefaultGasLimit
	}
	return c
}

func genesisBlock(c Config) *types.Block {
	return &types.Block{
		Number:        0,
		Hash:          ComputeHash(0, "0", c.GenesisTimestamp),
		PreviousHash:  "0",
		Timestamp:     c.GenesisTimestamp,
		GasLimit:      c.GasLimit,
		StateRoot:     zeroRoot,
		TxRoot:        zeroRoot,
		ReceiptsRoot:  zeroRoot,
		Confirmations: 1,
	}
}

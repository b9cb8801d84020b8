package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const genesisYAML = `
networkId: hyperraft-test
timestamp: 1700000000000
gasLimit: 15000000
validators:
  - id: validator-1
    address: "0xv1"
    stake: 1000
    online: true
  - id: validator-2
    address: "0xv2"
    stake: 500
`

func TestLoadGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yml")
	require.NoError(t, os.WriteFile(path, []byte(genesisYAML), 0o600))

	g, err := LoadGenesis(path)
	require.NoError(t, err)
	assert.Equal(t, "hyperraft-test", g.NetworkID)
	assert.Equal(t, int64(1_700_000_000_000), g.Timestamp)
	assert.Equal(t, uint64(15_000_000), g.GasLimit)
	require.Len(t, g.Validators, 2)
	assert.Equal(t, "0xv2", g.Validators[1].Address)
	assert.False(t, g.Validators[1].Online)

	cfg := Config{NetworkID: "from-config", GenesisTimestamp: 5}.WithGenesis(g)
	assert.Equal(t, "hyperraft-test", cfg.NetworkID)
	assert.Equal(t, g.Timestamp, cfg.GenesisTimestamp)

	s := New(cfg)
	assert.Equal(t, 2, s.Info().ValidatorCount)
	assert.Equal(t, uint64(15_000_000), s.LatestBlock(false).GasLimit)
}

func TestLoadGenesis_Errors(t *testing.T) {
	_, err := LoadGenesis(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("validators: [\n"), 0o600))
	_, err = LoadGenesis(path)
	assert.Error(t, err)
}

func TestConfig_WithGenesisNil(t *testing.T) {
	cfg := Config{NetworkID: "x"}
	assert.Equal(t, cfg, cfg.WithGenesis(nil))
}

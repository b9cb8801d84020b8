package ledger

import (
	"encoding/json"
	"fmt"
	"hyperraft/internal/types"
)

// EncodeBlock produces the BLOCK_PROPOSAL command payload for a block.
func EncodeBlock(b *types.Block) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode block %d: %w", b.Number, err)
	}
	return data, nil
}

func DecodeBlock(data []byte) (*types.Block, error) {
	var b types.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return &b, nil
}

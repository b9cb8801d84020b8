package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hyperraft/internal/types"
	"strings"
)

const zeroRoot = "0x0000000000000000000000000000000000000000000000000000000000000000"

// ComputeHash returns "0x" followed by the hex SHA-256 of the decimal block
// number, the previous hash and the decimal timestamp, concatenated.
func ComputeHash(number uint64, previousHash string, timestamp int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%s%d", number, previousHash, timestamp)))
	return "0x" + hex.EncodeToString(sum[:])
}

// txRoot digests the transaction hashes in block order.
func txRoot(txs []types.Transaction) string {
	if len(txs) == 0 {
		return zeroRoot
	}
	var b strings.Builder
	for _, tx := range txs {
		b.WriteString(tx.Hash)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return "0x" + hex.EncodeToString(sum[:])
}

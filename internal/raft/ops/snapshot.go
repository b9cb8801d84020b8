package ops

import (
	"fmt"
	"hyperraft/internal/types"
)

func ValidateSnapshot(meta types.SnapshotMeta) error {
	if meta.LastIncludedIndex == 0 {
		return fmt.Errorf("snapshot index is zero")
	}
	if meta.LastIncludedTerm == 0 {
		return fmt.Errorf("snapshot term is zero")
	}
	return nil
}

func IsEmptySnapshot(meta types.SnapshotMeta) bool {
	return meta.LastIncludedIndex == 0
}

// SplitChunks cuts data into pieces of at most size bytes. It always returns
// at least one chunk so an empty snapshot can still be transferred.
func SplitChunks(data []byte, size int) [][]byte {
	if size <= 0 || len(data) <= size {
		return [][]byte{data}
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		chunks = append(chunks, data[start:end])
	}
	return chunks
}

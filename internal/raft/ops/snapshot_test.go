package ops

import (
	"bytes"
	"hyperraft/internal/types"
	"testing"
)

func TestValidateSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		meta    types.SnapshotMeta
		wantErr bool
	}{
		{
			name:    "valid snapshot",
			meta:    types.SnapshotMeta{LastIncludedIndex: 100, LastIncludedTerm: 5},
			wantErr: false,
		},
		{
			name:    "zero index",
			meta:    types.SnapshotMeta{LastIncludedIndex: 0, LastIncludedTerm: 5},
			wantErr: true,
		},
		{
			name:    "zero term",
			meta:    types.SnapshotMeta{LastIncludedIndex: 100, LastIncludedTerm: 0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSnapshot(tt.meta)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSnapshot() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsEmptySnapshot(t *testing.T) {
	if !IsEmptySnapshot(types.SnapshotMeta{}) {
		t.Error("IsEmptySnapshot() = false for zero metadata")
	}
	if IsEmptySnapshot(types.SnapshotMeta{LastIncludedIndex: 3, LastIncludedTerm: 1}) {
		t.Error("IsEmptySnapshot() = true for index 3")
	}
}

func TestSplitChunks(t *testing.T) {
	data := []byte("0123456789")

	tests := []struct {
		name      string
		size      int
		wantCount int
	}{
		{"single chunk when size exceeds data", 64, 1},
		{"exact multiple", 5, 2},
		{"remainder chunk", 3, 4},
		{"non-positive size", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := SplitChunks(data, tt.size)
			if len(chunks) != tt.wantCount {
				t.Fatalf("SplitChunks() returned %d chunks, want %d", len(chunks), tt.wantCount)
			}
			if got := bytes.Join(chunks, nil); !bytes.Equal(got, data) {
				t.Errorf("reassembled = %q, want %q", got, data)
			}
		})
	}
}

func TestSplitChunks_Empty(t *testing.T) {
	chunks := SplitChunks(nil, 16)
	if len(chunks) != 1 || len(chunks[0]) != 0 {
		t.Fatalf("SplitChunks(nil) = %v, want one empty chunk", chunks)
	}
}

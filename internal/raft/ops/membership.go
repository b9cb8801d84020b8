package ops

import (
	"slices"
	"sort"
)

// Quorum returns the majority size for a cluster of n voters.
func Quorum(n int) int {
	return n/2 + 1
}

// QuorumMatchIndex returns the highest index replicated on a majority, given
// the match index of every voter including the leader itself.
func QuorumMatchIndex(matches []uint64) uint64 {
	if len(matches) == 0 {
		return 0
	}
	sorted := slices.Clone(matches)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	return sorted[Quorum(len(sorted))-1]
}

func IsVoter(voters []uint64, nodeID uint64) bool {
	return slices.Contains(voters, nodeID)
}

// Voters returns the sorted ids of a peer address map.
func Voters(peers map[uint64]string) []uint64 {
	ids := make([]uint64, 0, len(peers))
	for id := range peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

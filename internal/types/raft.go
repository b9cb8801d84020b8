package types

import "fmt"

// CommandType tags the payload carried by a log entry.
type CommandType string

const (
	CommandBlockProposal CommandType = "BLOCK_PROPOSAL"
	CommandNoop          CommandType = "NOOP"
)

type Role int

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "FOLLOWER"
	case Candidate:
		return "CANDIDATE"
	case Leader:
		return "LEADER"
	default:
		return fmt.Sprintf("ROLE(%d)", int(r))
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	switch string(b) {
	case "FOLLOWER":
		*r = Follower
	case "CANDIDATE":
		*r = Candidate
	case "LEADER":
		*r = Leader
	default:
		return fmt.Errorf("unknown role %q", string(b))
	}
	return nil
}

// LogEntry is a single replicated command. Index is 1-based.
type LogEntry struct {
	Index       uint64      `json:"index"`
	Term        uint64      `json:"term"`
	Command     []byte      `json:"command,omitempty"`
	CommandType CommandType `json:"commandType"`
	Timestamp   int64       `json:"timestamp"`
}

// HardState is the part of the node state that must survive a restart.
type HardState struct {
	Term     uint64
	VotedFor uint64
	Commit   uint64
}

func (h HardState) IsEmpty() bool {
	return h.Term == 0 && h.VotedFor == 0 && h.Commit == 0
}

type SnapshotMeta struct {
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	Voters            []uint64
}

type RequestVoteRequest struct {
	Term         uint64 `json:"term"`
	CandidateID  uint64 `json:"candidateId"`
	LastLogIndex uint64 `json:"lastLogIndex"`
	LastLogTerm  uint64 `json:"lastLogTerm"`
}

type RequestVoteResponse struct {
	Term        uint64 `json:"term"`
	VoteGranted bool   `json:"voteGranted"`
	VoterID     uint64 `json:"voterId"`
}

type AppendEntriesRequest struct {
	Term         uint64     `json:"term"`
	LeaderID     uint64     `json:"leaderId"`
	PrevLogIndex uint64     `json:"prevLogIndex"`
	PrevLogTerm  uint64     `json:"prevLogTerm"`
	Entries      []LogEntry `json:"entries,omitempty"`
	LeaderCommit uint64     `json:"leaderCommit"`
	BatchAppend  bool       `json:"batchAppend"`
}

type AppendEntriesResponse struct {
	Term       uint64 `json:"term"`
	Success    bool   `json:"success"`
	MatchIndex uint64 `json:"matchIndex"`
	FollowerID uint64 `json:"followerId"`
}

type InstallSnapshotRequest struct {
	Term              uint64   `json:"term"`
	LeaderID          uint64   `json:"leaderId"`
	LastIncludedIndex uint64   `json:"lastIncludedIndex"`
	LastIncludedTerm  uint64   `json:"lastIncludedTerm"`
	Voters            []uint64 `json:"voters,omitempty"`
	Offset            uint64   `json:"offset"`
	Data              []byte   `json:"data,omitempty"`
	Done              bool     `json:"done"`
}

type InstallSnapshotResponse struct {
	Term    uint64 `json:"term"`
	Success bool   `json:"success"`
}

type ProposeBlockRequest struct {
	BlockPayload []byte   `json:"blockPayload"`
	ProposerID   string   `json:"proposerId"`
	TxIDs        []string `json:"txIds,omitempty"`
	BlockNumber  uint64   `json:"blockNumber"`
}

type ProposeBlockResponse struct {
	Accepted    bool   `json:"accepted"`
	BlockNumber uint64 `json:"blockNumber"`
	Index       uint64 `json:"index"`
	Term        uint64 `json:"term"`
	LeaderID    uint64 `json:"leaderId"`
	Message     string `json:"message"`
}

type PeerState struct {
	ID         uint64 `json:"id"`
	Address    string `json:"address"`
	NextIndex  uint64 `json:"nextIndex"`
	MatchIndex uint64 `json:"matchIndex"`
}

// NodeState is a point-in-time copy of a consensus node's state.
type NodeState struct {
	NodeID        uint64      `json:"nodeId"`
	Role          Role        `json:"role"`
	Term          uint64      `json:"term"`
	VotedFor      uint64      `json:"votedFor"`
	CommitIndex   uint64      `json:"commitIndex"`
	LastApplied   uint64      `json:"lastApplied"`
	LeaderID      uint64      `json:"leaderId"`
	LogSize       uint64      `json:"logSize"`
	SnapshotIndex uint64      `json:"snapshotIndex"`
	Peers         []PeerState `json:"peers,omitempty"`
}

type EventType string

const (
	EventTermChanged    EventType = "TERM_CHANGED"
	EventRoleChanged    EventType = "ROLE_CHANGED"
	EventLeaderChanged  EventType = "LEADER_CHANGED"
	EventCommitAdvanced EventType = "COMMIT_ADVANCED"
	EventBlockFinalized EventType = "BLOCK_FINALIZED"
)

type ConsensusEvent struct {
	EventID     string    `json:"eventId"`
	Type        EventType `json:"type"`
	NodeID      uint64    `json:"nodeId"`
	Term        uint64    `json:"term"`
	Role        string    `json:"role"`
	LeaderID    uint64    `json:"leaderId"`
	CommitIndex uint64    `json:"commitIndex"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	Timestamp   int64     `json:"timestamp"`
}

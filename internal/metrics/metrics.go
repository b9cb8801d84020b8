package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hyperraft"

var (
	RaftIsLeader = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "raft",
		Name:      "is_leader",
		Help:      "Whether this node is the leader (1=leader, 0=otherwise)",
	})

	RaftTerm = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "raft",
		Name:      "term",
		Help:      "Current term",
	})

	RaftCommitIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "raft",
		Name:      "commit_index",
		Help:      "Current commit index",
	})

	RaftAppliedIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "raft",
		Name:      "applied_index",
		Help:      "Last applied index",
	})

	RaftSnapshotIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "raft",
		Name:      "snapshot_index",
		Help:      "Last snapshot index",
	})

	RaftPeersTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "raft",
		Name:      "peers_total",
		Help:      "Number of configured peers",
	})

	RaftElectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "raft",
		Name:      "elections_total",
		Help:      "Elections started by this node, by outcome",
	}, []string{"outcome"})

	RaftVotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "raft",
		Name:      "votes_total",
		Help:      "RequestVote decisions made by this node",
	}, []string{"granted"})

	RaftMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "raft",
		Name:      "messages_total",
		Help:      "Consensus RPCs sent/received",
	}, []string{"direction", "type"})

	RaftMessageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "raft",
		Name:      "message_errors_total",
		Help:      "Consensus RPCs that failed to reach a peer",
	}, []string{"peer_id"})

	RaftProposalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "raft",
		Name:      "proposals_total",
		Help:      "Block proposals accepted by the leader",
	})

	RaftProposalsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "raft",
		Name:      "proposals_failed_total",
		Help:      "Block proposals rejected",
	})

	RaftSnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "raft",
		Name:      "snapshots_total",
		Help:      "Snapshots taken locally or installed from the leader",
	}, []string{"source"})

	RaftSnapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "raft",
		Name:      "snapshot_duration_seconds",
		Help:      "Time to create snapshot",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
	})

	LedgerHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "height",
		Help:      "Number of the latest block",
	})

	LedgerTransactionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "transactions_total",
		Help:      "Transactions included in the chain",
	})

	LedgerBlocksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "blocks_rejected_total",
		Help:      "Committed block payloads that failed validation",
	})

	StreamSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "subscribers",
		Help:      "Active streaming subscriptions",
	}, []string{"feed"})

	GRPCRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "requests_total",
		Help:      "Total gRPC requests",
	}, []string{"service", "method", "code"})

	GRPCRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "request_duration_seconds",
		Help:      "gRPC request duration",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20),
	}, []string{"service", "method"})

	WALWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wal",
		Name:      "writes_total",
		Help:      "Total WAL records written",
	})

	WALWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "wal",
		Name:      "write_duration_seconds",
		Help:      "WAL write duration",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 20),
	})

	WALSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "wal",
		Name:      "sync_duration_seconds",
		Help:      "Snapshot file sync duration",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 20),
	})
)

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SetLeader records leadership for this node.
func SetLeader(isLeader bool) {
	RaftIsLeader.Set(boolGauge(isLeader))
}

package main

import (
	"errors"
	"fmt"
	"hyperraft/internal/chain"
	"hyperraft/internal/configuration/properties"
	"hyperraft/internal/ledger"
	"hyperraft/internal/metrics"
	"hyperraft/internal/raft"
	"hyperraft/internal/stats"
	"hyperraft/internal/stream"
	"hyperraft/internal/transport"
	"hyperraft/internal/transport/handler"
	"hyperraft/internal/types"
	"log/slog"
)

var errNoLeader = errors.New("no known leader")

// Node wires one hyperraft process: WAL, consensus, ledger and its servers.
type Node struct {
	storage   *raft.WALStorage
	peers     *transport.PeerTransport
	engine    *raft.Engine
	ledger    *ledger.Store
	transport *transport.Service
	metrics   *metrics.Server
}

func NewNode(cfg *properties.Config) (*Node, error) {
	ledgerCfg, err := ledgerConfig(&cfg.Chain)
	if err != nil {
		return nil, err
	}
	store := ledger.New(ledgerCfg)

	storage, err := raft.OpenStorage(cfg.Raft.NodeDir(), cfg.Raft.Wal.NoSync)
	if err != nil {
		return nil, fmt.Errorf("open raft storage: %w", err)
	}

	peers := transport.NewPeerTransport(cfg.Raft.NodeID, cfg.Raft.Peers)
	engine, err := raft.New(raftConfig(&cfg.Raft), storage, peers, ledger.NewApplier(store))
	if err != nil {
		storage.Close()
		return nil, err
	}

	svc := chain.NewService(engine, store, stats.New(store))
	feed := stream.NewFeed(store, engine, cfg.Stream.PollDuration())

	n := &Node{
		storage: storage,
		peers:   peers,
		engine:  engine,
		ledger:  store,
		transport: transport.NewTransportService(&cfg.Transport,
			handler.NewConsensusHandler(engine),
			handler.NewNodeHandler(svc, feed),
			handler.NewBlockchainHandler(svc, feed),
		),
	}

	if cfg.Metrics.Enabled {
		n.metrics = metrics.NewServer(cfg.Metrics.Address, func() error {
			if engine.LeaderID() == 0 {
				return errNoLeader
			}
			return nil
		})
	}
	return n, nil
}

func raftConfig(p *properties.RaftConfigProperties) raft.Config {
	return raft.Config{
		ID:                p.NodeID,
		Peers:             p.Peers,
		TickInterval:      p.TickDuration(),
		ElectionTimeout:   p.ElectionTimeoutDuration(),
		ElectionJitter:    p.ElectionJitterDuration(),
		HeartbeatInterval: p.HeartbeatDuration(),
		RPCTimeout:        p.RPCTimeoutDuration(),
		SnapCount:         p.SnapCount,
		SnapshotChunkSize: p.SnapshotChunkSize,
		MaxAppendEntries:  p.MaxAppendEntries,
		BatchAppend:       p.BatchAppend,
	}
}

func ledgerConfig(p *properties.ChainConfigProperties) (ledger.Config, error) {
	cfg := ledger.Config{
		NetworkID:        p.NetworkID,
		GenesisTimestamp: p.GenesisTimestamp,
		GasLimit:         p.GasLimit,
	}
	for _, v := range p.Validators {
		cfg.Validators = append(cfg.Validators, types.Validator{
			ID:      v.ID,
			Address: v.Address,
			Stake:   v.Stake,
			Online:  true,
		})
	}

	if p.GenesisFile == "" {
		return cfg, nil
	}
	g, err := ledger.LoadGenesis(p.GenesisFile)
	if err != nil {
		return ledger.Config{}, err
	}
	slog.Info("loaded genesis file", "path", p.GenesisFile, "validators", len(g.Validators))
	return cfg.WithGenesis(g), nil
}

// Start opens the raft port, then starts the engine and the client and
// metrics servers.
func (n *Node) Start() error {
	if _, err := n.transport.StartRaftServer(); err != nil {
		return err
	}
	n.engine.Start()

	if _, err := n.transport.StartClientServer(); err != nil {
		return err
	}
	if n.metrics != nil {
		if _, err := n.metrics.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}
	return nil
}

func (n *Node) Stop() {
	n.transport.Stop()
	n.engine.Stop()
	if err := n.peers.Close(); err != nil {
		slog.Warn("closing peer connections", "error", err)
	}
	if err := n.storage.Close(); err != nil {
		slog.Error("closing raft storage", "error", err)
	}
	if n.metrics != nil {
		n.metrics.Stop()
	}
}

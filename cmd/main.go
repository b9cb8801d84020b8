package main

import (
	"context"
	"hyperraft/internal/configuration"
	"hyperraft/internal/logging"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	cfg, err := configuration.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Init(cfg.Application.LogLevel)
	slog.Info("Starting hyperraft node...",
		"node_id", cfg.Raft.NodeID,
		"profile", cfg.Application.Profile,
		"network_id", cfg.Chain.NetworkID,
	)

	node, err := NewNode(cfg)
	if err != nil {
		slog.Error("Failed to initialize node", "error", err)
		os.Exit(1)
	}

	if err := node.Start(); err != nil {
		slog.Error("Failed to start node", "error", err)
		node.Stop()
		os.Exit(1)
	}

	slog.Info("Node ready",
		"raft_addr", cfg.Transport.RaftAddr(),
		"client_addr", cfg.Transport.ClientAddr(),
	)
	<-ctx.Done()

	slog.Info("Shutting down node...")
	node.Stop()
	slog.Info("Node stopped")
}

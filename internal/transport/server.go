package transport

import (
	"context"
	"fmt"
	"hyperraft/internal/configuration/properties"
	"hyperraft/internal/metrics"
	"hyperraft/internal/transport/handler"
	"hyperraft/internal/transport/rpc"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

const defaultRequestTimeout = time.Second

// Service owns the two gRPC listeners of a node: the raft port serving
// hyperraft.v1.Consensus and the client port serving Node and Blockchain.
type Service struct {
	network              string
	raftAddr             string
	clientAddr           string
	timeout              time.Duration
	maxConcurrentStreams uint32

	consensus  *handler.ConsensusHandler
	node       *handler.NodeHandler
	blockchain *handler.BlockchainHandler

	RaftServer   *grpc.Server
	ClientServer *grpc.Server
}

func NewTransportService(
	transportConfig *properties.TransportConfigProperties,
	consensus *handler.ConsensusHandler,
	node *handler.NodeHandler,
	blockchain *handler.BlockchainHandler,
) *Service {
	return &Service{
		network:              transportConfig.Network,
		raftAddr:             transportConfig.RaftAddr(),
		clientAddr:           transportConfig.ClientAddr(),
		timeout:              transportConfig.RequestTimeout(),
		maxConcurrentStreams: transportConfig.MaxConcurrentStreams,
		consensus:            consensus,
		node:                 node,
		blockchain:           blockchain,
	}
}

func (ts *Service) serverOptions(unary ...grpc.UnaryServerInterceptor) []grpc.ServerOption {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(append([]grpc.UnaryServerInterceptor{metrics.UnaryServerInterceptor()}, unary...)...),
		grpc.ChainStreamInterceptor(metrics.StreamServerInterceptor()),
	}
	if ts.maxConcurrentStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(ts.maxConcurrentStreams))
	}
	return opts
}

func (ts *Service) StartRaftServer() (net.Listener, error) {
	raftLis, err := net.Listen(ts.network, ts.raftAddr)
	if err != nil {
		return nil, fmt.Errorf("listen raft %s: %w", ts.raftAddr, err)
	}

	ts.RaftServer = grpc.NewServer(ts.serverOptions()...)
	rpc.RegisterConsensusServer(ts.RaftServer, ts.consensus)
	reflection.Register(ts.RaftServer)

	slog.Info("transport listening for raft", "addr", raftLis.Addr().String())
	go func() {
		if err := ts.RaftServer.Serve(raftLis); err != nil {
			slog.Error("failed to serve raft listener", "error", err)
		}
	}()
	return raftLis, nil
}

func (ts *Service) StartClientServer() (net.Listener, error) {
	clientLis, err := net.Listen(ts.network, ts.clientAddr)
	if err != nil {
		return nil, fmt.Errorf("listen client %s: %w", ts.clientAddr, err)
	}

	timeout := ts.timeout
	if timeout <= 0 {
		slog.Warn("client request timeout not set, using default", "timeout", defaultRequestTimeout)
		timeout = defaultRequestTimeout
	}

	ts.ClientServer = grpc.NewServer(ts.serverOptions(timeoutInterceptor(timeout))...)
	rpc.RegisterNodeServer(ts.ClientServer, ts.node)
	rpc.RegisterBlockchainServer(ts.ClientServer, ts.blockchain)
	reflection.Register(ts.ClientServer)

	slog.Info("transport listening for client", "addr", clientLis.Addr().String())
	go func() {
		if err := ts.ClientServer.Serve(clientLis); err != nil {
			slog.Error("failed to serve client listener", "error", err)
		}
	}()
	return clientLis, nil
}

// Stop drains the client port first so in-flight proposals can still replicate.
func (ts *Service) Stop() {
	if ts.ClientServer != nil {
		ts.ClientServer.GracefulStop()
	}
	if ts.RaftServer != nil {
		ts.RaftServer.GracefulStop()
	}
	slog.Info("transport stopped")
}

func timeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		return handler(ctx, req)
	}
}

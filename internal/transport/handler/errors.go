package handler

import (
	"context"
	"errors"
	"hyperraft/internal/ledger"
	"hyperraft/internal/raft"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps domain errors onto gRPC status codes at the transport edge.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var notLeader *raft.NotLeaderError
	switch {
	case errors.As(err, &notLeader), errors.Is(err, raft.ErrNotLeader):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ledger.ErrBlockNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidRange):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return status.FromContextError(err).Err()
	case errors.Is(err, raft.ErrStopped):
		return status.Error(codes.Unavailable, "node is shutting down")
	default:
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
}

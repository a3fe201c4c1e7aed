package remote

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/roach88/notekeeper/internal/ledger"
)

// Compile-time interface check.
var _ LedgerServiceServer = (*GRPCServer)(nil)

// GRPCServer exposes a node as the ledger gRPC service.
type GRPCServer struct {
	node LedgerClient
}

// NewGRPCServer wraps node. Any LedgerClient can be served, including a
// *Client, which turns the server into a proxy.
func NewGRPCServer(node LedgerClient) *GRPCServer {
	return &GRPCServer{node: node}
}

// Register adds the ledger service to a gRPC server.
func (s *GRPCServer) Register(gs *grpc.Server) {
	RegisterLedgerServiceServer(gs, s)
}

// NewServer returns a gRPC server with the service registered and the JSON
// codec forced.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	gs := grpc.NewServer(append([]grpc.ServerOption{grpc.ForceServerCodec(JSONCodec{})}, opts...)...)
	s.Register(gs)
	return gs
}

// Serve runs a gRPC server on lis until it fails or is stopped.
func (s *GRPCServer) Serve(lis net.Listener, opts ...grpc.ServerOption) error {
	return s.NewServer(opts...).Serve(lis)
}

func (s *GRPCServer) FetchDelta(ctx context.Context, req *DeltaRequest) (*ledger.SyncSummary, error) {
	summary, err := s.node.FetchDelta(ctx, req.Since, req.Accounts)
	if err != nil {
		return nil, toStatus(err)
	}
	return &summary, nil
}

func (s *GRPCServer) SubmitTransaction(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	id, err := s.node.SubmitTransaction(ctx, req.Account, req.Bundle)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SubmitResponse{TxID: id}, nil
}

package remote

import (
	"context"
	"fmt"

	"github.com/roach88/notekeeper/internal/ledger"
	"google.golang.org/grpc"
)

const serviceName = "notekeeper.v1.LedgerService"

// LedgerServiceServer is the server-side interface for the ledger service.
type LedgerServiceServer interface {
	FetchDelta(context.Context, *DeltaRequest) (*ledger.SyncSummary, error)
	SubmitTransaction(context.Context, *SubmitRequest) (*SubmitResponse, error)
}

// RegisterLedgerServiceServer registers srv on a gRPC server.
func RegisterLedgerServiceServer(s *grpc.Server, srv LedgerServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

func handlerFetchDelta(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(DeltaRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(LedgerServiceServer).FetchDelta(ctx, req)
}

func handlerSubmitTransaction(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(SubmitRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(LedgerServiceServer).SubmitTransaction(ctx, req)
}

func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "FetchDelta", Handler: handlerFetchDelta},
		{MethodName: "SubmitTransaction", Handler: handlerSubmitTransaction},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "notekeeper/v1/ledger.json",
}

package remote

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/roach88/notekeeper/internal/ledger"
)

// Compile-time interface check.
var _ LedgerClient = (*Client)(nil)

// Client talks to a ledger node over gRPC.
type Client struct {
	cc *grpc.ClientConn
}

// Dial creates a client for the node at addr. The connection is established
// lazily on the first call. Without explicit transport credentials the
// connection is insecure, which suits a local devnet.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(JSONCodec{})),
	}
	cc, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, ledger.Wrap(ledger.ErrCodeInitialization, err, "dial "+addr)
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

func (c *Client) FetchDelta(ctx context.Context, since uint64, accounts []ledger.AccountID) (ledger.SyncSummary, error) {
	req := &DeltaRequest{Since: since, Accounts: accounts}
	resp := new(ledger.SyncSummary)
	if err := c.cc.Invoke(ctx, fullMethod("FetchDelta"), req, resp); err != nil {
		return ledger.SyncSummary{}, fromStatus(ledger.ErrCodeSync, err, "fetch delta")
	}
	return *resp, nil
}

func (c *Client) SubmitTransaction(ctx context.Context, account ledger.AccountID, bundle ProofBundle) (ledger.TxID, error) {
	req := &SubmitRequest{Account: account, Bundle: bundle}
	resp := new(SubmitResponse)
	if err := c.cc.Invoke(ctx, fullMethod("SubmitTransaction"), req, resp); err != nil {
		return ledger.TxID{}, fromStatus(ledger.ErrCodeSubmission, err, "submit transaction")
	}
	return resp.TxID, nil
}

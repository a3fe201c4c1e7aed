package remote

import (
	"context"

	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/txbuilder"
)

// LedgerClient is the network boundary of the client engine.
// Implemented by *Client over gRPC and by the in-process devnet node.
type LedgerClient interface {
	// FetchDelta returns everything committed after block since that concerns
	// the given accounts. The summary's BlockNum is the node's chain tip.
	FetchDelta(ctx context.Context, since uint64, accounts []ledger.AccountID) (ledger.SyncSummary, error)

	// SubmitTransaction hands a signed transaction to the node. On success the
	// node has accepted it for inclusion in a future block.
	SubmitTransaction(ctx context.Context, account ledger.AccountID, bundle ProofBundle) (ledger.TxID, error)
}

// ProofBundle is a transaction as submitted: the request, the authorizing
// account's header, and a signature over the transaction id.
//
// Account lets the node register an account on its first transaction.
type ProofBundle struct {
	Account   ledger.Account    `json:"account"`
	Request   txbuilder.Request `json:"request"`
	PublicKey []byte            `json:"public_key"`
	Signature []byte            `json:"signature"`
}

// DeltaRequest is the FetchDelta request message.
type DeltaRequest struct {
	Since    uint64             `json:"since"`
	Accounts []ledger.AccountID `json:"accounts,omitempty"`
}

// SubmitRequest is the SubmitTransaction request message.
type SubmitRequest struct {
	Account ledger.AccountID `json:"account"`
	Bundle  ProofBundle      `json:"bundle"`
}

// SubmitResponse is the SubmitTransaction response message.
type SubmitResponse struct {
	TxID ledger.TxID `json:"tx_id"`
}

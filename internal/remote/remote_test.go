package remote_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/notestore"
	"github.com/roach88/notekeeper/internal/registry"
	"github.com/roach88/notekeeper/internal/remote"
	"github.com/roach88/notekeeper/internal/testutil"
	"github.com/roach88/notekeeper/internal/txbuilder"
)

type fakeNode struct {
	mu        sync.Mutex
	summary   ledger.SyncSummary
	submitted []remote.SubmitRequest
	since     uint64
	accounts  []ledger.AccountID
	err       error
}

func (n *fakeNode) FetchDelta(_ context.Context, since uint64, accounts []ledger.AccountID) (ledger.SyncSummary, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.since, n.accounts = since, accounts
	return n.summary, n.err
}

func (n *fakeNode) SubmitTransaction(_ context.Context, account ledger.AccountID, bundle remote.ProofBundle) (ledger.TxID, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return ledger.TxID{}, n.err
	}
	n.submitted = append(n.submitted, remote.SubmitRequest{Account: account, Bundle: bundle})
	return bundle.Request.TxID(), nil
}

func (n *fakeNode) calls() (since uint64, accounts []ledger.AccountID, submitted []remote.SubmitRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.since, n.accounts, n.submitted
}

// startServer starts a gRPC server on a random port and returns the listener
// address and a stop function.
func startServer(t *testing.T, node remote.LedgerClient) (string, func()) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	gs := remote.NewGRPCServer(node).NewServer()
	go func() {
		_ = gs.Serve(lis)
	}()
	return lis.Addr().String(), gs.Stop
}

func dial(t *testing.T, addr string) *remote.Client {
	t.Helper()
	client, err := remote.Dial(addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type world struct {
	rng    *testutil.SeededReader
	faucet ledger.Account
	alice  ledger.Account
	b      *txbuilder.Builder
}

func newWorld(t *testing.T) *world {
	t.Helper()
	rng := testutil.NewSeededReader(42)
	sym, err := ledger.NewTokenSymbol("MID")
	require.NoError(t, err)
	faucet, err := ledger.NewAccountBuilder(rng.Seed32()).
		AccountType(ledger.FungibleFaucet).
		WithAuth(ledger.AuthCommitmentFromPublicKey([]byte("faucet"))).
		WithFaucet(sym, 8, 1_000_000).
		Build()
	require.NoError(t, err)
	alice, err := ledger.NewAccountBuilder(rng.Seed32()).
		WithAuth(ledger.AuthCommitmentFromPublicKey([]byte("alice"))).
		WithWallet().
		Build()
	require.NoError(t, err)

	reg := registry.New(nil)
	require.NoError(t, reg.Register(faucet))
	require.NoError(t, reg.Register(alice))
	return &world{rng: rng, faucet: faucet, alice: alice, b: txbuilder.New(reg, notestore.New(), rng)}
}

func TestGRPC_FetchDelta(t *testing.T) {
	w := newWorld(t)
	note, err := ledger.NewP2IDNote(w.faucet.ID, w.alice.ID,
		[]ledger.FungibleAsset{{Faucet: w.faucet.ID, Amount: 100}}, ledger.NotePublic, nil, w.rng)
	require.NoError(t, err)

	funded := w.alice.Clone()
	funded.Nonce = 1
	require.NoError(t, funded.Vault.Add(ledger.FungibleAsset{Faucet: w.faucet.ID, Amount: 100}))

	node := &fakeNode{summary: ledger.SyncSummary{
		BlockNum:        7,
		NewNotes:        []ledger.Note{note},
		CommittedNotes:  []ledger.NoteHeader{note.Header()},
		ConsumedNotes:   []ledger.NoteID{{1}},
		UpdatedAccounts: []ledger.Account{funded, w.faucet},
		CommittedTxs:    []ledger.TxID{{2}},
	}}
	addr, stop := startServer(t, node)
	defer stop()
	client := dial(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := client.FetchDelta(ctx, 3, []ledger.AccountID{w.alice.ID})
	require.NoError(t, err)

	assert.Equal(t, node.summary, got)
	assert.NoError(t, got.NewNotes[0].Verify())
	assert.Equal(t, funded.Commitment(), got.UpdatedAccounts[0].Commitment())
	since, accounts, _ := node.calls()
	assert.Equal(t, uint64(3), since)
	assert.Equal(t, []ledger.AccountID{w.alice.ID}, accounts)
}

func TestGRPC_SubmitTransaction(t *testing.T) {
	w := newWorld(t)
	req, err := w.b.Mint(ledger.FungibleAsset{Faucet: w.faucet.ID, Amount: 100}, w.alice.ID, ledger.NotePublic)
	require.NoError(t, err)

	node := &fakeNode{}
	addr, stop := startServer(t, node)
	defer stop()
	client := dial(t, addr)

	bundle := remote.ProofBundle{Account: w.faucet, Request: req, PublicKey: []byte("pk"), Signature: []byte("sig")}
	id, err := client.SubmitTransaction(context.Background(), w.faucet.ID, bundle)
	require.NoError(t, err)

	assert.Equal(t, req.TxID(), id)
	_, _, submitted := node.calls()
	require.Len(t, submitted, 1)
	assert.Equal(t, w.faucet.ID, submitted[0].Account)
	assert.Equal(t, req.OutputNotes(), submitted[0].Bundle.Request.OutputNotes())
	assert.Equal(t, []byte("sig"), submitted[0].Bundle.Signature)
}

func TestGRPC_RejectionIsNotRetryable(t *testing.T) {
	w := newWorld(t)
	req, err := w.b.Mint(ledger.FungibleAsset{Faucet: w.faucet.ID, Amount: 1}, w.alice.ID, ledger.NotePublic)
	require.NoError(t, err)

	node := &fakeNode{err: ledger.Errorf(ledger.ErrCodeSubmission, "bad signature")}
	addr, stop := startServer(t, node)
	defer stop()
	client := dial(t, addr)

	_, err = client.SubmitTransaction(context.Background(), w.faucet.ID, remote.ProofBundle{Account: w.faucet, Request: req})
	require.Error(t, err)
	assert.True(t, ledger.IsCode(err, ledger.ErrCodeSubmission))
	assert.False(t, ledger.IsRetryable(err))
	assert.Contains(t, err.Error(), "bad signature")
}

func TestGRPC_UnavailableIsRetryable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	client := dial(t, addr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = client.FetchDelta(ctx, 0, nil)
	require.Error(t, err)
	assert.True(t, ledger.IsCode(err, ledger.ErrCodeSync))
	assert.True(t, ledger.IsRetryable(err))
}

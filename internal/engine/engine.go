package engine

import (
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/notestore"
	"github.com/roach88/notekeeper/internal/registry"
	"github.com/roach88/notekeeper/internal/remote"
	"github.com/roach88/notekeeper/internal/txbuilder"
)

// DefaultRPCTimeout bounds each network call.
const DefaultRPCTimeout = 10 * time.Second

// Signer signs payloads with the key an auth commitment refers to.
// Implemented by *keystore.Store.
type Signer interface {
	Sign(commitment ledger.Digest, msg []byte) (ed25519.PublicKey, []byte, error)
}

// Engine is the client context object. It owns the account registry, the
// note store and the transaction log, and drives sync rounds and submissions
// against a remote ledger.
//
// Thread-safety model:
//   - reads (Account, ConsumableNotes, Transactions, ...): safe from any goroutine
//   - SyncState: rounds are serialized; a second caller waits for the first
//   - every local mutation happens under one lock, so a sync round is applied
//     as a unit relative to claims taken by Submit
//   - network calls never hold the mutation lock
type Engine struct {
	remote   remote.LedgerClient
	signer   Signer
	accounts *registry.Registry
	notes    *notestore.Store
	builder  *txbuilder.Builder
	logger   *slog.Logger
	clock    *Clock
	attempts AttemptIDGenerator

	rpcTimeout   time.Duration
	reclaimAfter int
	rng          io.Reader

	syncSem chan struct{} // one sync round at a time

	mu        sync.Mutex // guards local mutations and the fields below
	lastBlock uint64
	txs       map[ledger.TxID]*TransactionRecord
	txOrder   []ledger.TxID
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithRPCTimeout sets the timeout applied to each network call.
//
// Default: 10s (DefaultRPCTimeout)
func WithRPCTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.rpcTimeout = d
		}
	}
}

// WithReclaimAfter sets how many advancing sync rounds an unconfirmed claim
// survives before it is reverted.
func WithReclaimAfter(rounds int) EngineOption {
	return func(e *Engine) {
		e.reclaimAfter = rounds
	}
}

// WithLogger sets the logger used by the engine and its stores.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRand sets the randomness source for note serial numbers and request
// salts. Tests pass a seeded reader.
func WithRand(r io.Reader) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.rng = r
		}
	}
}

// WithAttemptIDs sets the generator of submission attempt ids.
func WithAttemptIDs(g AttemptIDGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.attempts = g
		}
	}
}

// New creates an engine talking to client and signing with signer.
func New(client remote.LedgerClient, signer Signer, opts ...EngineOption) *Engine {
	e := &Engine{
		remote:       client,
		signer:       signer,
		logger:       slog.Default(),
		clock:        NewClock(),
		attempts:     UUIDv7Generator{},
		rpcTimeout:   DefaultRPCTimeout,
		reclaimAfter: notestore.DefaultReclaimAfter,
		rng:          rand.Reader,
		syncSem:      make(chan struct{}, 1),
		txs:          make(map[ledger.TxID]*TransactionRecord),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.accounts = registry.New(e.logger)
	e.notes = notestore.New(
		notestore.WithReclaimAfter(e.reclaimAfter),
		notestore.WithLogger(e.logger),
	)
	e.builder = txbuilder.New(e.accounts, e.notes, e.rng)
	return e
}

// AddAccount starts tracking acc. Re-adding an account with the same auth
// commitment is a no-op.
func (e *Engine) AddAccount(acc ledger.Account) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accounts.Register(acc)
}

// Account returns the latest known state of id.
func (e *Engine) Account(id ledger.AccountID) (ledger.Account, error) {
	return e.accounts.MustGet(id)
}

// Accounts returns every tracked account.
func (e *Engine) Accounts() []ledger.Account {
	return e.accounts.List()
}

// ConsumableNotes yields the committed, unclaimed notes account can consume.
// Each range recomputes the set from the latest reconciled state.
func (e *Engine) ConsumableNotes(account ledger.AccountID) iter.Seq[ledger.Note] {
	return e.notes.ConsumableBy(account)
}

// Notes returns note records matching f.
func (e *Engine) Notes(f notestore.Filter) []notestore.Record {
	return e.notes.List(f)
}

// Builder returns the request builder bound to this engine's state.
func (e *Engine) Builder() *txbuilder.Builder {
	return e.builder
}

// LastBlock returns the block number of the last applied sync round.
func (e *Engine) LastBlock() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastBlock
}

// Transactions returns the transaction log in submission order.
func (e *Engine) Transactions() []TransactionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]TransactionRecord, 0, len(e.txOrder))
	for _, id := range e.txOrder {
		out = append(out, e.txs[id].clone())
	}
	return out
}

// Transaction returns the log entry for id.
func (e *Engine) Transaction(id ledger.TxID) (TransactionRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.txs[id]
	if !ok {
		return TransactionRecord{}, false
	}
	return r.clone(), true
}

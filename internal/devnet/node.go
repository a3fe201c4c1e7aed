// Package devnet is an in-process ledger node for local development and
// tests.
//
// The node validates submitted transactions against its head state, queues
// them, and commits the queue as one block on ProduceBlock or on a timer in
// Run. Committed state is what FetchDelta reports; queued transactions are
// invisible to clients until their block is produced.
package devnet

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/remote"
)

// Compile-time interface check.
var _ remote.LedgerClient = (*Node)(nil)

type noteEntry struct {
	note     ledger.Note
	block    uint64
	consumed uint64 // block that consumed the note, 0 if unspent
}

type queuedTx struct {
	id      ledger.TxID
	account ledger.AccountID
	inputs  []ledger.NoteID
	outputs []ledger.Note
}

type block struct {
	num      uint64
	txs      []queuedTx
	accounts map[ledger.AccountID]ledger.Account
}

// Node is a single-process ledger.
//
// Thread-safety: all methods are safe for concurrent use.
type Node struct {
	mu     sync.Mutex
	logger *slog.Logger

	head      map[ledger.AccountID]ledger.Account // including queued txs
	committed map[ledger.AccountID]ledger.Account
	notes     map[ledger.NoteID]*noteEntry
	claimed   map[ledger.NoteID]ledger.TxID // inputs of queued txs
	queue     []queuedTx
	seen      map[ledger.TxID]struct{}
	blocks    []block
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.logger = l
		}
	}
}

// New creates a node at block 0 with no accounts.
func New(opts ...Option) *Node {
	n := &Node{
		logger:    slog.Default(),
		head:      make(map[ledger.AccountID]ledger.Account),
		committed: make(map[ledger.AccountID]ledger.Account),
		notes:     make(map[ledger.NoteID]*noteEntry),
		claimed:   make(map[ledger.NoteID]ledger.TxID),
		seen:      make(map[ledger.TxID]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Tip returns the number of the latest produced block.
func (n *Node) Tip() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return uint64(len(n.blocks))
}

// Pending returns the number of queued transactions.
func (n *Node) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// Account returns the committed state of id.
func (n *Node) Account(id ledger.AccountID) (ledger.Account, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	acc, ok := n.committed[id]
	if !ok {
		return ledger.Account{}, false
	}
	return acc.Clone(), true
}

// ProduceBlock commits every queued transaction as one block and returns its
// number. An empty queue still produces a block.
func (n *Node) ProduceBlock() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	num := uint64(len(n.blocks)) + 1
	b := block{num: num, txs: n.queue, accounts: make(map[ledger.AccountID]ledger.Account)}
	for _, tx := range n.queue {
		for _, id := range tx.inputs {
			n.notes[id].consumed = num
			delete(n.claimed, id)
		}
		for _, note := range tx.outputs {
			n.notes[note.ID] = &noteEntry{note: note, block: num}
		}
		acc := n.head[tx.account].Clone()
		n.committed[tx.account] = acc
		b.accounts[tx.account] = acc
	}
	n.blocks = append(n.blocks, b)
	n.queue = nil

	if len(b.txs) > 0 {
		n.logger.Info("block produced", "block", num, "txs", len(b.txs))
	} else {
		n.logger.Debug("block produced", "block", num, "txs", 0)
	}
	return num
}

// Run produces a block every interval until ctx is done.
func (n *Node) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n.ProduceBlock()
		}
	}
}

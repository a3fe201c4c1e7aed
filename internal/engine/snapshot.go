package engine

import (
	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/notestore"
)

// Snapshot is the durable local state of an engine.
type Snapshot struct {
	LastBlock    uint64              `json:"last_block"`
	Accounts     []ledger.Account    `json:"accounts"`
	Notes        []notestore.Record  `json:"notes"`
	Transactions []TransactionRecord `json:"transactions"`
}

// Snapshot captures the current local state. Taken under the mutation lock,
// so it never observes half of a sync round.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		LastBlock:    e.lastBlock,
		Accounts:     e.accounts.List(),
		Notes:        e.notes.Records(),
		Transactions: make([]TransactionRecord, 0, len(e.txOrder)),
	}
	for _, id := range e.txOrder {
		s.Transactions = append(s.Transactions, e.txs[id].clone())
	}
	return s
}

// Restore replaces the local state with s. Called at startup only, before
// any sync or submission.
func (e *Engine) Restore(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.accounts.Restore(s.Accounts)
	e.notes.Restore(s.Notes)
	e.lastBlock = s.LastBlock

	e.txs = make(map[ledger.TxID]*TransactionRecord, len(s.Transactions))
	e.txOrder = e.txOrder[:0]
	var maxSeq int64
	for i := range s.Transactions {
		r := s.Transactions[i].clone()
		e.txs[r.ID] = &r
		e.txOrder = append(e.txOrder, r.ID)
		maxSeq = max(maxSeq, r.Seq)
	}
	e.clock = NewClockAt(maxSeq)

	e.logger.Info("state restored",
		"block", s.LastBlock,
		"accounts", len(s.Accounts),
		"notes", len(s.Notes),
		"transactions", len(s.Transactions),
	)
}

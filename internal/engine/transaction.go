package engine

import (
	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/txbuilder"
)

// TxStatus is the local view of a submitted transaction.
type TxStatus string

const (
	// TxPending: submitted, not yet seen in a synced block.
	TxPending TxStatus = "pending"

	// TxCommitted: reported committed by a sync round.
	TxCommitted TxStatus = "committed"

	// TxDiscarded: never confirmed within the reclaim window; its claims
	// were reverted.
	TxDiscarded TxStatus = "discarded"
)

// TransactionRecord is one entry of the transaction log.
type TransactionRecord struct {
	ID             ledger.TxID      `json:"id"`
	Seq            int64            `json:"seq"`
	AttemptID      string           `json:"attempt_id"`
	Account        ledger.AccountID `json:"account"`
	Kind           txbuilder.Kind   `json:"kind"`
	Status         TxStatus         `json:"status"`
	SubmittedBlock uint64           `json:"submitted_block"`
	CommittedBlock uint64           `json:"committed_block,omitempty"`
	InputNotes     []ledger.NoteID  `json:"input_notes,omitempty"`
	OutputNotes    []ledger.NoteID  `json:"output_notes,omitempty"`
}

func (r *TransactionRecord) clone() TransactionRecord {
	out := *r
	out.InputNotes = append([]ledger.NoteID(nil), r.InputNotes...)
	out.OutputNotes = append([]ledger.NoteID(nil), r.OutputNotes...)
	return out
}

package ledger

// SyncSummary is the delta between two chain heights.
//
// NewNotes carries full contents of public notes. CommittedNotes lists the
// header of every note committed in the range, public or private; the client
// matches private headers against notes it created itself.
type SyncSummary struct {
	BlockNum        uint64       `json:"block_num"`
	NewNotes        []Note       `json:"new_notes,omitempty"`
	CommittedNotes  []NoteHeader `json:"committed_notes,omitempty"`
	ConsumedNotes   []NoteID     `json:"consumed_notes,omitempty"`
	UpdatedAccounts []Account    `json:"updated_accounts,omitempty"`
	CommittedTxs    []TxID       `json:"committed_txs,omitempty"`
}

// IsEmpty reports whether the summary carries no changes besides the height.
func (s SyncSummary) IsEmpty() bool {
	return len(s.NewNotes) == 0 &&
		len(s.CommittedNotes) == 0 &&
		len(s.ConsumedNotes) == 0 &&
		len(s.UpdatedAccounts) == 0 &&
		len(s.CommittedTxs) == 0
}

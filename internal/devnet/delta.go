package devnet

import (
	"context"
	"sort"

	"github.com/roach88/notekeeper/internal/ledger"
)

// FetchDelta reports the blocks after since, filtered to the given accounts.
// An empty account list matches everything.
//
//   - NewNotes: public notes sent by or addressed to an account
//   - CommittedNotes: headers of every note, public or private, sent by or
//     tagged for an account
//   - ConsumedNotes: every consumed note id
//   - UpdatedAccounts: the latest committed state of each changed account
//   - CommittedTxs: transactions of the accounts
func (n *Node) FetchDelta(ctx context.Context, since uint64, accounts []ledger.AccountID) (ledger.SyncSummary, error) {
	if err := ctx.Err(); err != nil {
		return ledger.SyncSummary{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	tip := uint64(len(n.blocks))
	summary := ledger.SyncSummary{BlockNum: tip}
	if since >= tip {
		return summary, nil
	}

	want := newAccountFilter(accounts)
	updated := make(map[ledger.AccountID]ledger.Account)
	for _, b := range n.blocks[since:] {
		for _, tx := range b.txs {
			summary.ConsumedNotes = append(summary.ConsumedNotes, tx.inputs...)
			if want.has(tx.account) {
				summary.CommittedTxs = append(summary.CommittedTxs, tx.id)
			}
			for _, note := range tx.outputs {
				sender, target := note.Metadata.Sender, note.Recipient.Target
				if want.has(sender) || want.tagged(note.Metadata.Tag) {
					summary.CommittedNotes = append(summary.CommittedNotes, note.Header())
				}
				if note.Metadata.Type == ledger.NotePublic && (want.has(sender) || want.has(target)) {
					summary.NewNotes = append(summary.NewNotes, note)
				}
			}
		}
		for id, acc := range b.accounts {
			if want.has(id) {
				updated[id] = acc
			}
		}
	}

	ids := make([]ledger.AccountID, 0, len(updated))
	for id := range updated {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		summary.UpdatedAccounts = append(summary.UpdatedAccounts, updated[id].Clone())
	}
	return summary, nil
}

type accountFilter struct {
	all  bool
	ids  map[ledger.AccountID]struct{}
	tags map[uint32]struct{}
}

func newAccountFilter(accounts []ledger.AccountID) accountFilter {
	f := accountFilter{
		all:  len(accounts) == 0,
		ids:  make(map[ledger.AccountID]struct{}, len(accounts)),
		tags: make(map[uint32]struct{}, len(accounts)),
	}
	for _, id := range accounts {
		f.ids[id] = struct{}{}
		f.tags[ledger.TagForAccount(id)] = struct{}{}
	}
	return f
}

func (f accountFilter) has(id ledger.AccountID) bool {
	if f.all {
		return true
	}
	_, ok := f.ids[id]
	return ok
}

func (f accountFilter) tagged(tag uint32) bool {
	if f.all {
		return true
	}
	_, ok := f.tags[tag]
	return ok
}

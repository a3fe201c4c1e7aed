package engine

import (
	"context"

	"github.com/roach88/notekeeper/internal/ledger"
)

// SyncState runs one sync round: fetch the delta since the last applied
// block, then apply it to the registry, the note store and the transaction
// log as one unit.
//
// Rounds never overlap; a caller arriving during a round waits for it. On any
// failure nothing is applied. A round that finds no chain change returns an
// empty summary and mutates nothing.
//
// Errors are SYNC errors. Transport failures and timeouts are retryable; an
// account update that is not strictly newer aborts the round with a wrapped
// STALE_UPDATE.
func (e *Engine) SyncState(ctx context.Context) (ledger.SyncSummary, error) {
	select {
	case e.syncSem <- struct{}{}:
	case <-ctx.Done():
		return ledger.SyncSummary{}, ledger.Wrap(ledger.ErrCodeSync, ctx.Err(), "wait for sync round")
	}
	defer func() { <-e.syncSem }()

	since := e.LastBlock()
	tracked := e.trackedIDs()

	rctx, cancel := context.WithTimeout(ctx, e.rpcTimeout)
	summary, err := e.remote.FetchDelta(rctx, since, tracked)
	cancel()
	if err != nil {
		return ledger.SyncSummary{}, remoteError(ledger.ErrCodeSync, err, "fetch delta")
	}
	if err := ctx.Err(); err != nil {
		return ledger.SyncSummary{}, ledger.Wrap(ledger.ErrCodeSync, err, "sync cancelled")
	}
	if summary.BlockNum < since {
		return ledger.SyncSummary{}, ledger.Errorf(ledger.ErrCodeSync,
			"remote chain tip %d is behind last synced block %d", summary.BlockNum, since)
	}

	applied, err := e.apply(since, summary)
	if err != nil {
		return ledger.SyncSummary{}, err
	}
	return applied, nil
}

// apply reconciles a fetched summary under the mutation lock. Every check
// that can fail runs before the first mutation.
func (e *Engine) apply(since uint64, summary ledger.SyncSummary) (ledger.SyncSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastBlock != since {
		return ledger.SyncSummary{}, ledger.Errorf(ledger.ErrCodeSync, "local state moved during sync round")
	}

	accepted, err := e.accounts.CheckUpdates(summary.UpdatedAccounts)
	if err != nil {
		return ledger.SyncSummary{}, ledger.Wrap(ledger.ErrCodeSync, err, "check account updates")
	}

	relevant := summary
	relevant.UpdatedAccounts = accepted
	relevant.NewNotes = nil
	for _, n := range summary.NewNotes {
		if e.accounts.Tracks(n.Recipient.Target) || e.accounts.Tracks(n.Metadata.Sender) {
			relevant.NewNotes = append(relevant.NewNotes, n)
		}
	}

	advanced := summary.BlockNum > since
	res, err := e.notes.Reconcile(relevant, advanced)
	if err != nil {
		return ledger.SyncSummary{}, ledger.Wrap(ledger.ErrCodeSync, err, "reconcile notes")
	}
	if err := e.accounts.ApplyUpdates(accepted); err != nil {
		// Unreachable: updates were checked under the same lock.
		return ledger.SyncSummary{}, ledger.Wrap(ledger.ErrCodeSync, err, "apply account updates")
	}

	committed := 0
	for _, id := range summary.CommittedTxs {
		if r, ok := e.txs[id]; ok && r.Status == TxPending {
			r.Status = TxCommitted
			r.CommittedBlock = summary.BlockNum
			committed++
		}
	}
	for _, id := range res.Reverted {
		if r, ok := e.txs[id]; ok && r.Status == TxPending {
			r.Status = TxDiscarded
		}
	}
	e.lastBlock = summary.BlockNum

	if advanced || !relevant.IsEmpty() {
		e.logger.Info("sync round applied",
			"block", summary.BlockNum,
			"new_notes", res.Added,
			"committed_notes", res.Committed,
			"consumed_notes", res.Consumed,
			"accounts", len(accepted),
			"txs_committed", committed,
			"txs_reverted", len(res.Reverted),
		)
	} else {
		e.logger.Debug("sync round: no chain change", "block", summary.BlockNum)
	}
	return relevant, nil
}

func (e *Engine) trackedIDs() []ledger.AccountID {
	accounts := e.accounts.List()
	ids := make([]ledger.AccountID, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	return ids
}

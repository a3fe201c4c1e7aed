package engine

import (
	"context"
	"errors"
	"slices"

	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/remote"
	"github.com/roach88/notekeeper/internal/txbuilder"
)

// Submit signs req for account and hands it to the network.
//
// Input notes are claimed for the transaction before the network round-trip,
// so a concurrent build cannot select them. If the submission fails, times
// out, or ctx is cancelled, the claims are released before Submit returns.
// The transaction is logged as pending and its outputs are expected from
// the same moment; a failed submission removes both again. The next sync
// rounds confirm them.
//
// Submit never retries. Errors are SUBMISSION errors, retryable for
// transport failures and timeouts, except for local guards: an unknown
// account is ACCOUNT_NOT_FOUND and a note claimed by another in-flight
// transaction is NOTE_ALREADY_CLAIMED.
func (e *Engine) Submit(ctx context.Context, account ledger.AccountID, req txbuilder.Request) (ledger.TxID, error) {
	if req.IsZero() {
		return ledger.TxID{}, ledger.Errorf(ledger.ErrCodeSubmission, "empty request")
	}
	if req.Account() != account {
		return ledger.TxID{}, ledger.Errorf(ledger.ErrCodeSubmission,
			"request is authorized by %s, not %s", req.Account(), account)
	}
	acc, err := e.accounts.MustGet(account)
	if err != nil {
		return ledger.TxID{}, err
	}

	txID := req.TxID()
	attempt := e.attempts.Generate()
	inputs := req.InputNotes()
	log := e.logger.With("tx", txID, "attempt", attempt, "account", account)

	outputs := req.OutputNotes()
	record := &TransactionRecord{
		ID:          txID,
		AttemptID:   attempt,
		Account:     account,
		Kind:        req.Kind(),
		Status:      TxPending,
		InputNotes:  inputs,
		OutputNotes: make([]ledger.NoteID, len(outputs)),
	}
	for i, n := range outputs {
		record.OutputNotes[i] = n.ID
	}

	// The record, its expected outputs and the input claims exist before the
	// round-trip: a sync round running during the call may already carry the
	// block that commits this transaction.
	e.mu.Lock()
	if prev, ok := e.txs[txID]; ok {
		if prev.Status != TxDiscarded {
			e.mu.Unlock()
			return ledger.TxID{}, ledger.Errorf(ledger.ErrCodeSubmission, "transaction %s already %s", txID, prev.Status)
		}
		e.removeTxLocked(txID)
	}
	if len(inputs) > 0 {
		if err := e.notes.MarkPendingConsumption(inputs, txID); err != nil {
			e.mu.Unlock()
			return ledger.TxID{}, err
		}
	}
	record.Seq = e.clock.Next()
	record.SubmittedBlock = e.lastBlock
	e.txs[txID] = record
	e.txOrder = append(e.txOrder, txID)
	e.notes.AddExpected(txID, outputs...)
	e.mu.Unlock()

	succeeded := false
	defer func() {
		if succeeded {
			return
		}
		e.mu.Lock()
		released := e.notes.ReleaseClaims(txID)
		dropped := e.notes.DiscardExpected(txID)
		e.removeTxLocked(txID)
		e.mu.Unlock()
		log.Debug("submission rolled back", "claims_released", released, "expected_dropped", dropped)
	}()

	pub, sig, err := e.signer.Sign(acc.AuthCommitment, txID[:])
	if err != nil {
		return ledger.TxID{}, ledger.Wrap(ledger.ErrCodeSubmission, err, "sign transaction")
	}
	bundle := remote.ProofBundle{Account: acc, Request: req, PublicKey: pub, Signature: sig}

	rctx, cancel := context.WithTimeout(ctx, e.rpcTimeout)
	defer cancel()
	got, err := e.remote.SubmitTransaction(rctx, account, bundle)
	if err != nil {
		log.Error("transaction rejected", "error", err)
		return ledger.TxID{}, remoteError(ledger.ErrCodeSubmission, err, "submit transaction")
	}
	if got != txID {
		return ledger.TxID{}, ledger.Errorf(ledger.ErrCodeSubmission, "network assigned id %s, expected %s", got, txID)
	}

	succeeded = true

	log.Info("transaction submitted", "kind", req.Kind(), "inputs", len(inputs), "outputs", len(outputs))
	return txID, nil
}

func (e *Engine) removeTxLocked(id ledger.TxID) {
	delete(e.txs, id)
	e.txOrder = slices.DeleteFunc(e.txOrder, func(t ledger.TxID) bool { return t == id })
}

// remoteError turns a network failure into an error with the given code.
// Timeouts are retryable; caller cancellation is not.
func remoteError(code ledger.ErrorCode, err error, message string) error {
	switch {
	case ledger.CodeOf(err) == code:
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return ledger.WrapRetryable(code, err, message+": timed out")
	case errors.Is(err, context.Canceled):
		return ledger.Wrap(code, err, message+": cancelled")
	case ledger.IsRetryable(err):
		return ledger.WrapRetryable(code, err, message)
	default:
		return ledger.Wrap(code, err, message)
	}
}

package devnet

import (
	"context"

	"github.com/roach88/notekeeper/internal/keystore"
	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/remote"
)

// SubmitTransaction validates a transaction against the head state and queues
// it for the next block.
//
// Validation covers the signature, the inputs (committed, unspent, unclaimed
// and addressed to the account), the outputs (well formed, sent by the
// account), and the value balance: a faucet may issue its own token up to its
// max supply; every other asset must come from the vault or the inputs.
func (n *Node) SubmitTransaction(ctx context.Context, accountID ledger.AccountID, bundle remote.ProofBundle) (ledger.TxID, error) {
	if err := ctx.Err(); err != nil {
		return ledger.TxID{}, err
	}

	req := bundle.Request
	if req.IsZero() {
		return ledger.TxID{}, reject("empty request")
	}
	if req.Account() != accountID {
		return ledger.TxID{}, reject("request is authorized by %s, submitted for %s", req.Account(), accountID)
	}
	txID := req.TxID()

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, dup := n.seen[txID]; dup {
		return ledger.TxID{}, reject("transaction %s already submitted", txID)
	}

	acc, err := n.resolveAccount(accountID, bundle.Account)
	if err != nil {
		return ledger.TxID{}, err
	}
	if err := keystore.Verify(acc.AuthCommitment, bundle.PublicKey, txID[:], bundle.Signature); err != nil {
		return ledger.TxID{}, reject("transaction %s: %v", txID, err)
	}

	inputs := req.InputNotes()
	outputs := req.OutputNotes()
	next := acc.Clone()

	seenInput := make(map[ledger.NoteID]struct{}, len(inputs))
	for _, id := range inputs {
		if _, dup := seenInput[id]; dup {
			return ledger.TxID{}, reject("note %s consumed twice", id)
		}
		seenInput[id] = struct{}{}

		entry, ok := n.notes[id]
		switch {
		case !ok:
			return ledger.TxID{}, reject("note %s is not committed", id)
		case entry.consumed != 0:
			return ledger.TxID{}, reject("note %s already consumed in block %d", id, entry.consumed)
		case !entry.note.ConsumableBy(accountID):
			return ledger.TxID{}, reject("note %s is not consumable by %s", id, accountID)
		}
		if other, ok := n.claimed[id]; ok {
			return ledger.TxID{}, reject("note %s is consumed by queued transaction %s", id, other)
		}
		for _, a := range entry.note.Assets {
			if err := next.Vault.Add(a); err != nil {
				return ledger.TxID{}, ledger.Wrap(ledger.ErrCodeSubmission, err, "credit input")
			}
		}
	}

	seenOutput := make(map[ledger.NoteID]struct{}, len(outputs))
	for _, note := range outputs {
		if err := note.Verify(); err != nil {
			return ledger.TxID{}, ledger.Wrap(ledger.ErrCodeSubmission, err, "invalid output note")
		}
		if note.Metadata.Sender != accountID {
			return ledger.TxID{}, reject("output note %s is not sent by %s", note.ID, accountID)
		}
		if _, dup := seenOutput[note.ID]; dup {
			return ledger.TxID{}, reject("output note %s listed twice", note.ID)
		}
		seenOutput[note.ID] = struct{}{}
		if _, exists := n.notes[note.ID]; exists {
			return ledger.TxID{}, reject("note %s already exists", note.ID)
		}
		if n.queuedOutput(note.ID) {
			return ledger.TxID{}, reject("note %s already queued", note.ID)
		}
		for _, a := range note.Assets {
			if err := n.debit(&next, a); err != nil {
				return ledger.TxID{}, err
			}
		}
	}

	next.Nonce++
	n.head[accountID] = next
	for _, id := range inputs {
		n.claimed[id] = txID
	}
	n.seen[txID] = struct{}{}
	n.queue = append(n.queue, queuedTx{id: txID, account: accountID, inputs: inputs, outputs: outputs})

	n.logger.Debug("transaction queued",
		"tx", txID,
		"account", accountID,
		"inputs", len(inputs),
		"outputs", len(outputs),
	)
	return txID, nil
}

// resolveAccount returns the head state of id. An unknown account is
// registered from its submitted header, which must describe a fresh account.
func (n *Node) resolveAccount(id ledger.AccountID, header ledger.Account) (ledger.Account, error) {
	if acc, ok := n.head[id]; ok {
		if header.AuthCommitment != acc.AuthCommitment {
			return ledger.Account{}, ledger.Errorf(ledger.ErrCodeAccountConflict, "auth commitment of %s does not match", id)
		}
		return acc, nil
	}

	switch {
	case header.ID != id:
		return ledger.Account{}, reject("account header is for %s, not %s", header.ID, id)
	case header.Nonce != 0 || len(header.Vault) != 0:
		return ledger.Account{}, reject("unknown account %s must start at nonce 0 with an empty vault", id)
	case header.AuthCommitment.IsZero():
		return ledger.Account{}, reject("account %s has no auth commitment", id)
	}
	switch header.Kind {
	case ledger.KindWallet:
		if header.Type() != ledger.RegularUpdatable && header.Type() != ledger.RegularImmutable {
			return ledger.Account{}, reject("wallet %s has type %s", id, header.Type())
		}
	case ledger.KindFungibleFaucet:
		if header.Type() != ledger.FungibleFaucet || header.Faucet == nil || header.Faucet.Issued != 0 {
			return ledger.Account{}, reject("faucet %s header is malformed", id)
		}
	default:
		return ledger.Account{}, reject("account %s has unknown kind %q", id, header.Kind)
	}

	acc := header.Clone()
	if acc.Vault == nil {
		acc.Vault = ledger.Vault{}
	}
	n.logger.Info("account registered", "account", id, "kind", acc.Kind)
	return acc, nil
}

// debit pays one output asset from acc: issued when acc is the asset's
// faucet, taken from the vault otherwise.
func (n *Node) debit(acc *ledger.Account, a ledger.FungibleAsset) error {
	if a.Faucet == acc.ID {
		f := acc.Faucet
		if f == nil || a.Amount > f.Remaining() {
			return ledger.Errorf(ledger.ErrCodeSubmission, "mint of %d exceeds remaining supply", a.Amount)
		}
		f.Issued += a.Amount
		return nil
	}
	if err := acc.Vault.Sub(a); err != nil {
		return ledger.Wrap(ledger.ErrCodeSubmission, err, "debit output")
	}
	return nil
}

func (n *Node) queuedOutput(id ledger.NoteID) bool {
	for _, tx := range n.queue {
		for _, note := range tx.outputs {
			if note.ID == id {
				return true
			}
		}
	}
	return false
}

func reject(format string, args ...any) error {
	return ledger.Errorf(ledger.ErrCodeSubmission, format, args...)
}

// Package txbuilder constructs transaction requests from intents.
//
// Construction is pure: the builder reads account and note state for
// validation but never mutates it. Every constraint is checked before a
// Request is returned; no partially valid request escapes.
package txbuilder

import (
	"io"

	"github.com/roach88/notekeeper/internal/ledger"
)

// AccountView is the read side of the account registry.
type AccountView interface {
	Get(id ledger.AccountID) (ledger.Account, bool)
}

// NoteView is the read side of the note store.
type NoteView interface {
	CheckConsumable(account ledger.AccountID, ids []ledger.NoteID) error
}

// Payment is one pay-to-id output of a transfer.
type Payment struct {
	Target ledger.AccountID
	Asset  ledger.FungibleAsset
}

// Builder builds requests against the latest known local state.
type Builder struct {
	accounts AccountView
	notes    NoteView
	rng      io.Reader
}

// New creates a builder. rng supplies note serial numbers and request salts.
func New(accounts AccountView, notes NoteView, rng io.Reader) *Builder {
	return &Builder{accounts: accounts, notes: notes, rng: rng}
}

// Mint builds a request in which the asset's faucet pays asset to target.
//
// Fails with INVALID_ASSET if the amount is zero or exceeds the faucet's
// remaining issuable supply as of the latest synced faucet state.
func (b *Builder) Mint(asset ledger.FungibleAsset, target ledger.AccountID, noteType ledger.NoteType) (Request, error) {
	if err := asset.Validate(); err != nil {
		return Request{}, err
	}
	if asset.Amount == 0 {
		return Request{}, ledger.Errorf(ledger.ErrCodeInvalidAsset, "mint amount must be positive")
	}

	faucet, ok := b.accounts.Get(asset.Faucet)
	if !ok {
		return Request{}, ledger.Errorf(ledger.ErrCodeAccountNotFound, "faucet %s is not tracked", asset.Faucet)
	}
	if faucet.Kind != ledger.KindFungibleFaucet || faucet.Faucet == nil {
		return Request{}, ledger.Errorf(ledger.ErrCodeInvalidAsset, "account %s cannot mint", asset.Faucet)
	}
	if remaining := faucet.Faucet.Remaining(); asset.Amount > remaining {
		return Request{}, ledger.Errorf(ledger.ErrCodeInvalidAsset,
			"mint of %d exceeds remaining supply %d of %s", asset.Amount, remaining, faucet.Faucet.Symbol)
	}

	note, err := ledger.NewP2IDNote(asset.Faucet, target, []ledger.FungibleAsset{asset}, noteType, nil, b.rng)
	if err != nil {
		return Request{}, err
	}
	return b.finish(Request{kind: KindMint, account: asset.Faucet, outputs: []ledger.Note{note}})
}

// ConsumeNotes builds a request in which account consumes exactly notes.
//
// The consumability check against the note store is advisory: the network is
// the final arbiter.
func (b *Builder) ConsumeNotes(account ledger.AccountID, notes []ledger.Note) (Request, error) {
	if len(notes) == 0 {
		return Request{}, ledger.Errorf(ledger.ErrCodeEmptyNoteSet, "no notes to consume")
	}
	if _, ok := b.accounts.Get(account); !ok {
		return Request{}, ledger.Errorf(ledger.ErrCodeAccountNotFound, "account %s is not tracked", account)
	}

	inputs := make([]ledger.NoteID, 0, len(notes))
	seen := make(map[ledger.NoteID]struct{}, len(notes))
	for _, n := range notes {
		if _, dup := seen[n.ID]; dup {
			return Request{}, ledger.Errorf(ledger.ErrCodeNoteNotConsumable, "note %s listed twice", n.ID)
		}
		seen[n.ID] = struct{}{}
		if !n.ConsumableBy(account) {
			return Request{}, ledger.Errorf(ledger.ErrCodeNoteNotConsumable, "note %s is not addressed to %s", n.ID, account)
		}
		inputs = append(inputs, n.ID)
	}
	if err := b.notes.CheckConsumable(account, inputs); err != nil {
		return Request{}, err
	}

	return b.finish(Request{kind: KindConsume, account: account, inputs: inputs})
}

// Transfer builds one request whose outputs are independent pay-to-id notes,
// one per payment.
func (b *Builder) Transfer(sender ledger.AccountID, payments []Payment, noteType ledger.NoteType) (Request, error) {
	if len(payments) == 0 {
		return Request{}, ledger.Errorf(ledger.ErrCodeNoteCreation, "transfer has no payments")
	}
	if _, ok := b.accounts.Get(sender); !ok {
		return Request{}, ledger.Errorf(ledger.ErrCodeAccountNotFound, "account %s is not tracked", sender)
	}

	outputs := make([]ledger.Note, 0, len(payments))
	for _, p := range payments {
		if err := p.Asset.Validate(); err != nil {
			return Request{}, err
		}
		if p.Asset.Amount == 0 {
			return Request{}, ledger.Errorf(ledger.ErrCodeInvalidAsset, "payment to %s has zero amount", p.Target)
		}
		note, err := ledger.NewP2IDNote(sender, p.Target, []ledger.FungibleAsset{p.Asset}, noteType, nil, b.rng)
		if err != nil {
			return Request{}, err
		}
		outputs = append(outputs, note)
	}

	return b.finish(Request{kind: KindTransfer, account: sender, outputs: outputs})
}

// OwnOutputNotes builds a request that creates notes prepared by the caller.
// Every note must be sent by account and carry a valid id.
func (b *Builder) OwnOutputNotes(account ledger.AccountID, notes []ledger.Note) (Request, error) {
	if len(notes) == 0 {
		return Request{}, ledger.Errorf(ledger.ErrCodeNoteCreation, "no output notes")
	}
	if _, ok := b.accounts.Get(account); !ok {
		return Request{}, ledger.Errorf(ledger.ErrCodeAccountNotFound, "account %s is not tracked", account)
	}
	outputs := make([]ledger.Note, len(notes))
	for i, n := range notes {
		if err := n.Verify(); err != nil {
			return Request{}, err
		}
		if n.Metadata.Sender != account {
			return Request{}, ledger.Errorf(ledger.ErrCodeNoteCreation, "note %s is sent by %s, not %s", n.ID, n.Metadata.Sender, account)
		}
		outputs[i] = n
	}
	return b.finish(Request{kind: KindOutputs, account: account, outputs: outputs})
}

func (b *Builder) finish(r Request) (Request, error) {
	if _, err := io.ReadFull(b.rng, r.salt[:]); err != nil {
		return Request{}, ledger.Wrap(ledger.ErrCodeNoteCreation, err, "draw request salt")
	}
	return r, nil
}

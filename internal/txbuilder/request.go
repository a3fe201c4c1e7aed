package txbuilder

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/notekeeper/internal/ledger"
)

// Kind names the intent a request was built from.
type Kind string

const (
	KindMint     Kind = "mint"
	KindConsume  Kind = "consume"
	KindTransfer Kind = "transfer"
	KindOutputs  Kind = "outputs"
)

// Request is a validated, immutable transaction intent: the notes to consume,
// the notes to create, and the account authorizing both.
//
// Fields are unexported; accessors return copies.
type Request struct {
	kind    Kind
	account ledger.AccountID
	inputs  []ledger.NoteID
	outputs []ledger.Note
	salt    ledger.Digest
}

// Kind returns the intent.
func (r Request) Kind() Kind { return r.kind }

// Account returns the authorizing account.
func (r Request) Account() ledger.AccountID { return r.account }

// InputNotes returns the ids of the notes to consume.
func (r Request) InputNotes() []ledger.NoteID {
	out := make([]ledger.NoteID, len(r.inputs))
	copy(out, r.inputs)
	return out
}

// OutputNotes returns the notes the transaction creates.
func (r Request) OutputNotes() []ledger.Note {
	out := make([]ledger.Note, len(r.outputs))
	copy(out, r.outputs)
	return out
}

// Commitment hashes the whole request. Identical intents differ by salt.
func (r Request) Commitment() ledger.Digest {
	parts := [][]byte{[]byte(r.kind), r.account[:], r.salt[:]}
	for _, id := range r.inputs {
		parts = append(parts, id[:])
	}
	for _, n := range r.outputs {
		parts = append(parts, n.ID[:])
	}
	return ledger.HashWithDomain(ledger.DomainRequest, parts...)
}

// TxID returns the id the network will assign to this request.
func (r Request) TxID() ledger.TxID {
	return ledger.ComputeTxID(r.account, r.Commitment())
}

// IsZero reports whether r was never built.
func (r Request) IsZero() bool { return r.kind == "" }

func (r Request) String() string {
	return fmt.Sprintf("%s(account=%s inputs=%d outputs=%d)", r.kind, r.account, len(r.inputs), len(r.outputs))
}

type wireRequest struct {
	Kind    Kind             `json:"kind"`
	Account ledger.AccountID `json:"account"`
	Inputs  []ledger.NoteID  `json:"inputs,omitempty"`
	Outputs []ledger.Note    `json:"outputs,omitempty"`
	Salt    ledger.Digest    `json:"salt"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRequest{
		Kind:    r.kind,
		Account: r.account,
		Inputs:  r.inputs,
		Outputs: r.outputs,
		Salt:    r.salt,
	})
}

// UnmarshalJSON decodes a request received over the wire. Output notes are
// verified so a decoded request carries the same guarantees as a built one.
func (r *Request) UnmarshalJSON(data []byte) error {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	for _, n := range w.Outputs {
		if err := n.Verify(); err != nil {
			return err
		}
	}
	*r = Request{kind: w.Kind, account: w.Account, inputs: w.Inputs, outputs: w.Outputs, salt: w.Salt}
	return nil
}

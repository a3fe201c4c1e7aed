package ledger

import (
	"encoding/binary"
	"fmt"
	"io"
)

// NoteType controls whether note contents are published on chain.
type NoteType uint8

const (
	NotePublic NoteType = iota + 1
	NotePrivate
)

func (t NoteType) String() string {
	switch t {
	case NotePublic:
		return "public"
	case NotePrivate:
		return "private"
	default:
		return fmt.Sprintf("note-type(%d)", uint8(t))
	}
}

// ParseNoteType parses "public" or "private".
func ParseNoteType(s string) (NoteType, error) {
	switch s {
	case "public":
		return NotePublic, nil
	case "private":
		return NotePrivate, nil
	}
	return 0, fmt.Errorf("unknown note type %q", s)
}

// ScriptP2ID is the pay-to-id recipient script.
const ScriptP2ID = "p2id"

// Recipient is the spending condition of a note.
type Recipient struct {
	Script    string    `json:"script"`
	Target    AccountID `json:"target"`
	SerialNum Digest    `json:"serial_num"`
}

// Digest commits to the recipient.
func (r Recipient) Digest() Digest {
	return HashWithDomain(DomainRecipient, []byte(r.Script), r.Target[:], r.SerialNum[:])
}

// NoteMetadata is the public part of a note, published even for private notes.
type NoteMetadata struct {
	Sender     AccountID `json:"sender"`
	Type       NoteType  `json:"type"`
	Tag        uint32    `json:"tag"`
	Attachment []byte    `json:"attachment,omitempty"`
}

// NoteHeader is what the network publishes for every committed note.
type NoteHeader struct {
	ID       NoteID       `json:"id"`
	Metadata NoteMetadata `json:"metadata"`
}

// Note is a transferable record of assets, consumed exactly once.
type Note struct {
	ID        NoteID          `json:"id"`
	Metadata  NoteMetadata    `json:"metadata"`
	Recipient Recipient       `json:"recipient"`
	Assets    []FungibleAsset `json:"assets"`
}

// Header returns the published part of the note.
func (n Note) Header() NoteHeader {
	return NoteHeader{ID: n.ID, Metadata: n.Metadata}
}

// ConsumableBy reports whether account satisfies the recipient condition.
func (n Note) ConsumableBy(account AccountID) bool {
	return n.Recipient.Script == ScriptP2ID && n.Recipient.Target == account
}

// Total sums the note's assets issued by faucet.
func (n Note) Total(faucet AccountID) uint64 {
	var sum uint64
	for _, a := range n.Assets {
		if a.Faucet == faucet {
			sum += a.Amount
		}
	}
	return sum
}

// Verify recomputes the note id and validates the assets.
func (n Note) Verify() error {
	if err := validateNoteAssets(n.Assets); err != nil {
		return err
	}
	if computeNoteID(n.Recipient, n.Assets) != n.ID {
		return Errorf(ErrCodeNoteCreation, "note %s: id does not match contents", n.ID)
	}
	return nil
}

// TagForAccount derives the routing tag for notes addressed to account.
func TagForAccount(account AccountID) uint32 {
	return binary.BigEndian.Uint32(account[:4])
}

// NewP2IDNote creates a pay-to-id note from sender to target. The serial
// number is drawn from rng, so two notes with equal assets get distinct ids.
func NewP2IDNote(sender, target AccountID, assets []FungibleAsset, noteType NoteType, attachment []byte, rng io.Reader) (Note, error) {
	if target.IsZero() {
		return Note{}, Errorf(ErrCodeNoteCreation, "p2id target is required")
	}
	if noteType != NotePublic && noteType != NotePrivate {
		return Note{}, Errorf(ErrCodeNoteCreation, "unknown note type %d", noteType)
	}
	if err := validateNoteAssets(assets); err != nil {
		return Note{}, err
	}

	var serial Digest
	if _, err := io.ReadFull(rng, serial[:]); err != nil {
		return Note{}, Wrap(ErrCodeNoteCreation, err, "draw serial number")
	}

	recipient := Recipient{Script: ScriptP2ID, Target: target, SerialNum: serial}
	owned := make([]FungibleAsset, len(assets))
	copy(owned, assets)

	var att []byte
	if len(attachment) > 0 {
		att = append([]byte(nil), attachment...)
	}

	return Note{
		ID: computeNoteID(recipient, owned),
		Metadata: NoteMetadata{
			Sender:     sender,
			Type:       noteType,
			Tag:        TagForAccount(target),
			Attachment: att,
		},
		Recipient: recipient,
		Assets:    owned,
	}, nil
}

func validateNoteAssets(assets []FungibleAsset) error {
	if len(assets) == 0 {
		return Errorf(ErrCodeNoteCreation, "note carries no assets")
	}
	for i, a := range assets {
		if err := a.Validate(); err != nil {
			return Wrap(ErrCodeNoteCreation, err, fmt.Sprintf("asset[%d]", i))
		}
		if a.Amount == 0 {
			return Errorf(ErrCodeNoteCreation, "asset[%d] has zero amount", i)
		}
	}
	return nil
}

func computeNoteID(r Recipient, assets []FungibleAsset) NoteID {
	rd := r.Digest()
	parts := [][]byte{rd[:]}
	for _, a := range assets {
		parts = append(parts, a.Faucet[:], U64(a.Amount))
	}
	return NoteID(HashWithDomain(DomainNote, parts...))
}

package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainAccountID    = "notekeeper/account/v1"
	DomainAccountState = "notekeeper/account-state/v1"
	DomainAuth         = "notekeeper/auth/v1"
	DomainRecipient    = "notekeeper/recipient/v1"
	DomainNote         = "notekeeper/note/v1"
	DomainRequest      = "notekeeper/request/v1"
	DomainTx           = "notekeeper/tx/v1"
)

// Digest is a BLAKE2b-256 hash.
type Digest [32]byte

// HashWithDomain computes BLAKE2b-256 with domain separation.
// Format: H(domain || 0x00 || len(p0) || p0 || len(p1) || p1 ...)
// Length prefixes keep part boundaries unambiguous.
func HashWithDomain(domain string, parts ...[]byte) Digest {
	h, _ := blake2b.New256(nil) // error only for oversized keys
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	var l [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(l[:], uint32(len(p)))
		h.Write(l[:])
		h.Write(p)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// U64 encodes v as 8 big-endian bytes for hashing.
func U64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func (d Digest) String() string { return encodeHex(d[:]) }

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool { return d == Digest{} }

func (d Digest) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Digest) UnmarshalText(text []byte) error {
	return decodeHex(string(text), d[:])
}

// ParseDigest parses a 0x-prefixed hex digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	err := d.UnmarshalText([]byte(s))
	return d, err
}

// NoteID identifies a note by the hash of its recipient and assets.
type NoteID Digest

func (id NoteID) String() string { return Digest(id).String() }

func (id NoteID) MarshalText() ([]byte, error) { return Digest(id).MarshalText() }

func (id *NoteID) UnmarshalText(text []byte) error {
	return (*Digest)(id).UnmarshalText(text)
}

// ParseNoteID parses a 0x-prefixed hex note id.
func ParseNoteID(s string) (NoteID, error) {
	d, err := ParseDigest(s)
	return NoteID(d), err
}

// TxID identifies a transaction. Client and network derive it identically
// from the authorizing account and the request commitment.
type TxID Digest

func (id TxID) String() string { return Digest(id).String() }

func (id TxID) MarshalText() ([]byte, error) { return Digest(id).MarshalText() }

func (id *TxID) UnmarshalText(text []byte) error {
	return (*Digest)(id).UnmarshalText(text)
}

// IsZero reports whether id is unset.
func (id TxID) IsZero() bool { return id == TxID{} }

// ComputeTxID derives the transaction id for a request authorized by account.
func ComputeTxID(account AccountID, requestCommitment Digest) TxID {
	return TxID(HashWithDomain(DomainTx, account[:], requestCommitment[:]))
}

// AccountIDLen is the width of an AccountID in bytes.
const AccountIDLen = 15

// AccountID is an opaque fixed-width account identifier.
//
// The first 14 bytes are derived from the account seed; the last byte packs
// the account type (high nibble) and storage mode (low nibble).
type AccountID [AccountIDLen]byte

// NewAccountID derives an account id from a seed, the account tags and the
// auth commitment.
func NewAccountID(seed [32]byte, t AccountType, mode StorageMode, auth Digest) AccountID {
	d := HashWithDomain(DomainAccountID, seed[:], []byte{byte(t), byte(mode)}, auth[:])
	var id AccountID
	copy(id[:AccountIDLen-1], d[:])
	id[AccountIDLen-1] = byte(t)<<4 | byte(mode)&0x0f
	return id
}

// DummyAccountID builds an id directly from seed bytes. Used for recipients
// that are not tracked locally.
func DummyAccountID(seed [AccountIDLen]byte, t AccountType, mode StorageMode) AccountID {
	var id AccountID
	copy(id[:AccountIDLen-1], seed[:])
	id[AccountIDLen-1] = byte(t)<<4 | byte(mode)&0x0f
	return id
}

// Type returns the account type tag encoded in the id.
func (id AccountID) Type() AccountType { return AccountType(id[AccountIDLen-1] >> 4) }

// StorageMode returns the storage mode tag encoded in the id.
func (id AccountID) StorageMode() StorageMode { return StorageMode(id[AccountIDLen-1] & 0x0f) }

// IsFaucet reports whether the id belongs to a faucet account.
func (id AccountID) IsFaucet() bool {
	t := id.Type()
	return t == FungibleFaucet || t == NonFungibleFaucet
}

// IsZero reports whether id is unset.
func (id AccountID) IsZero() bool { return id == AccountID{} }

func (id AccountID) String() string { return encodeHex(id[:]) }

func (id AccountID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *AccountID) UnmarshalText(text []byte) error {
	return decodeHex(string(text), id[:])
}

// ParseAccountID parses a 0x-prefixed hex account id.
func ParseAccountID(s string) (AccountID, error) {
	var id AccountID
	if err := id.UnmarshalText([]byte(s)); err != nil {
		return AccountID{}, err
	}
	if !id.Type().Valid() || !id.StorageMode().Valid() {
		return AccountID{}, fmt.Errorf("account id %s: invalid type or storage tag", s)
	}
	return id, nil
}

func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func decodeHex(s string, dst []byte) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return fmt.Errorf("decode hex %q: %w", s, err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("decode hex %q: want %d bytes, got %d", s, len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}

package ledger

import (
	"bytes"
	"fmt"
	"sort"
)

// AccountType is the type tag carried in every AccountID.
type AccountType uint8

const (
	RegularUpdatable AccountType = iota + 1
	RegularImmutable
	FungibleFaucet
	NonFungibleFaucet
)

var accountTypeNames = map[AccountType]string{
	RegularUpdatable:  "regular-updatable",
	RegularImmutable:  "regular-immutable",
	FungibleFaucet:    "fungible-faucet",
	NonFungibleFaucet: "non-fungible-faucet",
}

func (t AccountType) String() string {
	if name, ok := accountTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("account-type(%d)", uint8(t))
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	_, ok := accountTypeNames[t]
	return ok
}

// ParseAccountType parses the String form of an account type.
func ParseAccountType(s string) (AccountType, error) {
	for t, name := range accountTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown account type %q", s)
}

// StorageMode controls whether account state is published on chain.
type StorageMode uint8

const (
	StoragePublic StorageMode = iota + 1
	StoragePrivate
)

func (m StorageMode) String() string {
	switch m {
	case StoragePublic:
		return "public"
	case StoragePrivate:
		return "private"
	default:
		return fmt.Sprintf("storage-mode(%d)", uint8(m))
	}
}

// Valid reports whether m is a known storage mode.
func (m StorageMode) Valid() bool { return m == StoragePublic || m == StoragePrivate }

// ParseStorageMode parses "public" or "private".
func ParseStorageMode(s string) (StorageMode, error) {
	switch s {
	case "public":
		return StoragePublic, nil
	case "private":
		return StoragePrivate, nil
	}
	return 0, fmt.Errorf("unknown storage mode %q", s)
}

// Kind is the closed set of account capabilities.
type Kind string

const (
	KindWallet         Kind = "wallet"
	KindFungibleFaucet Kind = "fungible-faucet"
)

// FaucetInfo holds the capability fields of a fungible faucet.
type FaucetInfo struct {
	Symbol    TokenSymbol `json:"symbol"`
	Decimals  uint8       `json:"decimals"`
	MaxSupply uint64      `json:"max_supply"`
	Issued    uint64      `json:"issued"`
}

// Remaining returns how many units can still be issued.
func (f FaucetInfo) Remaining() uint64 {
	if f.Issued >= f.MaxSupply {
		return 0
	}
	return f.MaxSupply - f.Issued
}

// Vault holds fungible balances keyed by issuing faucet.
type Vault map[AccountID]uint64

// Balance returns the amount held of the faucet's token.
func (v Vault) Balance(faucet AccountID) uint64 { return v[faucet] }

// Clone returns an independent copy.
func (v Vault) Clone() Vault {
	out := make(Vault, len(v))
	for k, amt := range v {
		out[k] = amt
	}
	return out
}

// Add deposits an asset.
func (v Vault) Add(a FungibleAsset) error {
	cur := v[a.Faucet]
	if a.Amount > MaxAssetAmount-cur {
		return Errorf(ErrCodeInvalidAsset, "vault balance of %s would exceed maximum", a.Faucet)
	}
	v[a.Faucet] = cur + a.Amount
	return nil
}

// Sub withdraws an asset.
func (v Vault) Sub(a FungibleAsset) error {
	cur := v[a.Faucet]
	if cur < a.Amount {
		return Errorf(ErrCodeInvalidAsset, "insufficient balance of %s: have %d, need %d", a.Faucet, cur, a.Amount)
	}
	if cur == a.Amount {
		delete(v, a.Faucet)
		return nil
	}
	v[a.Faucet] = cur - a.Amount
	return nil
}

// sortedFaucets returns vault keys in byte order.
func (v Vault) sortedFaucets() []AccountID {
	keys := make([]AccountID, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys
}

// Account is a snapshot of an account's state.
//
// Accounts are superseded, never deleted: every confirmed transaction produces a
// new snapshot with a higher nonce.
type Account struct {
	ID             AccountID   `json:"id"`
	Kind           Kind        `json:"kind"`
	AuthCommitment Digest      `json:"auth_commitment"`
	Nonce          uint64      `json:"nonce"`
	Vault          Vault       `json:"vault"`
	Faucet         *FaucetInfo `json:"faucet,omitempty"`
}

// Type returns the account type encoded in the id.
func (a Account) Type() AccountType { return a.ID.Type() }

// StorageMode returns the storage mode encoded in the id.
func (a Account) StorageMode() StorageMode { return a.ID.StorageMode() }

// IsNew reports whether the account has never executed a transaction.
func (a Account) IsNew() bool { return a.Nonce == 0 }

// Clone returns a deep copy.
func (a Account) Clone() Account {
	out := a
	out.Vault = a.Vault.Clone()
	if a.Faucet != nil {
		f := *a.Faucet
		out.Faucet = &f
	}
	return out
}

// Commitment hashes the full account state.
func (a Account) Commitment() Digest {
	parts := [][]byte{a.ID[:], []byte(a.Kind), a.AuthCommitment[:], U64(a.Nonce)}
	for _, faucet := range a.Vault.sortedFaucets() {
		parts = append(parts, faucet[:], U64(a.Vault[faucet]))
	}
	if a.Faucet != nil {
		parts = append(parts,
			[]byte(a.Faucet.Symbol),
			[]byte{a.Faucet.Decimals},
			U64(a.Faucet.MaxSupply),
			U64(a.Faucet.Issued),
		)
	}
	return HashWithDomain(DomainAccountState, parts...)
}

// AuthCommitmentFromPublicKey commits to an auth public key.
func AuthCommitmentFromPublicKey(pub []byte) Digest {
	return HashWithDomain(DomainAuth, pub)
}

const maxDecimals = 12

// AccountBuilder constructs accounts. It is a value type: every method returns
// a modified copy, so a partially configured builder can be reused safely.
//
// Example:
//
//	acc, err := ledger.NewAccountBuilder(seed).
//	    AccountType(ledger.RegularUpdatable).
//	    StorageMode(ledger.StoragePublic).
//	    WithAuth(commitment).
//	    WithWallet().
//	    Build()
type AccountBuilder struct {
	seed        [32]byte
	accountType AccountType
	storage     StorageMode
	auth        Digest
	kind        Kind
	faucet      FaucetInfo
}

// NewAccountBuilder starts a builder for a regular updatable public account.
func NewAccountBuilder(seed [32]byte) AccountBuilder {
	return AccountBuilder{
		seed:        seed,
		accountType: RegularUpdatable,
		storage:     StoragePublic,
	}
}

func (b AccountBuilder) AccountType(t AccountType) AccountBuilder {
	b.accountType = t
	return b
}

func (b AccountBuilder) StorageMode(m StorageMode) AccountBuilder {
	b.storage = m
	return b
}

// WithAuth sets the commitment to the account's auth public key.
func (b AccountBuilder) WithAuth(commitment Digest) AccountBuilder {
	b.auth = commitment
	return b
}

// WithWallet gives the account the basic wallet capability.
func (b AccountBuilder) WithWallet() AccountBuilder {
	b.kind = KindWallet
	return b
}

// WithFaucet gives the account the fungible faucet capability.
func (b AccountBuilder) WithFaucet(symbol TokenSymbol, decimals uint8, maxSupply uint64) AccountBuilder {
	b.kind = KindFungibleFaucet
	b.faucet = FaucetInfo{Symbol: symbol, Decimals: decimals, MaxSupply: maxSupply}
	return b
}

// Build validates every constraint and returns a new account at nonce 0.
func (b AccountBuilder) Build() (Account, error) {
	if !b.accountType.Valid() {
		return Account{}, Errorf(ErrCodeInvalidAccount, "unknown account type %d", b.accountType)
	}
	if !b.storage.Valid() {
		return Account{}, Errorf(ErrCodeInvalidAccount, "unknown storage mode %d", b.storage)
	}
	if b.auth.IsZero() {
		return Account{}, Errorf(ErrCodeInvalidAccount, "auth commitment is required")
	}

	acc := Account{
		ID:             NewAccountID(b.seed, b.accountType, b.storage, b.auth),
		Kind:           b.kind,
		AuthCommitment: b.auth,
		Vault:          Vault{},
	}

	switch b.kind {
	case KindWallet:
		if b.accountType != RegularUpdatable && b.accountType != RegularImmutable {
			return Account{}, Errorf(ErrCodeInvalidAccount, "wallet requires a regular account type, got %s", b.accountType)
		}
	case KindFungibleFaucet:
		if b.accountType != FungibleFaucet {
			return Account{}, Errorf(ErrCodeInvalidAccount, "fungible faucet requires type %s, got %s", FungibleFaucet, b.accountType)
		}
		if _, err := NewTokenSymbol(string(b.faucet.Symbol)); err != nil {
			return Account{}, err
		}
		if b.faucet.Decimals > maxDecimals {
			return Account{}, Errorf(ErrCodeInvalidAccount, "decimals %d exceed %d", b.faucet.Decimals, maxDecimals)
		}
		if b.faucet.MaxSupply == 0 || b.faucet.MaxSupply > MaxAssetAmount {
			return Account{}, Errorf(ErrCodeInvalidAccount, "max supply %d out of range", b.faucet.MaxSupply)
		}
		f := b.faucet
		acc.Faucet = &f
	case "":
		return Account{}, Errorf(ErrCodeInvalidAccount, "account has no capability component")
	default:
		return Account{}, Errorf(ErrCodeInvalidAccount, "unsupported account kind %q", b.kind)
	}

	return acc, nil
}

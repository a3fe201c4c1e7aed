package ledger

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MaxAssetAmount bounds any fungible amount and any faucet max supply.
const MaxAssetAmount uint64 = 1<<63 - 1<<31

// FungibleAsset is an amount of a fungible token issued by a faucet.
type FungibleAsset struct {
	Faucet AccountID `json:"faucet"`
	Amount uint64    `json:"amount"`
}

// NewFungibleAsset validates and returns a fungible asset.
// The faucet id must carry the FungibleFaucet type tag.
func NewFungibleAsset(faucet AccountID, amount uint64) (FungibleAsset, error) {
	a := FungibleAsset{Faucet: faucet, Amount: amount}
	if err := a.Validate(); err != nil {
		return FungibleAsset{}, err
	}
	return a, nil
}

// Validate checks the faucet tag and the amount ceiling. Zero amounts are
// structurally valid; operations that move value reject them.
func (a FungibleAsset) Validate() error {
	if a.Faucet.Type() != FungibleFaucet {
		return Errorf(ErrCodeInvalidAsset, "issuer %s is not a fungible faucet", a.Faucet)
	}
	if a.Amount > MaxAssetAmount {
		return Errorf(ErrCodeInvalidAsset, "amount %d exceeds maximum %d", a.Amount, MaxAssetAmount)
	}
	return nil
}

func (a FungibleAsset) String() string {
	return fmt.Sprintf("%d@%s", a.Amount, a.Faucet)
}

// TokenSymbol is a faucet ticker: 1 to 6 upper-case ASCII letters.
type TokenSymbol string

const maxSymbolLen = 6

var upper = cases.Upper(language.Und)

// NewTokenSymbol normalizes (NFC, upper case) and validates a symbol.
func NewTokenSymbol(s string) (TokenSymbol, error) {
	normalized := upper.String(norm.NFC.String(s))
	if len(normalized) == 0 || len(normalized) > maxSymbolLen {
		return "", Errorf(ErrCodeInvalidAccount, "token symbol %q must be 1 to %d letters", s, maxSymbolLen)
	}
	for _, r := range normalized {
		if r < 'A' || r > 'Z' {
			return "", Errorf(ErrCodeInvalidAccount, "token symbol %q contains %q", s, r)
		}
	}
	return TokenSymbol(normalized), nil
}

func (s TokenSymbol) String() string { return string(s) }

package cli

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/notekeeper/internal/ledger"
)

// AccountView is the CLI rendering of an account.
type AccountView struct {
	ID        string            `json:"id"`
	Kind      ledger.Kind       `json:"kind"`
	Storage   string            `json:"storage"`
	Nonce     uint64            `json:"nonce"`
	Balances  map[string]uint64 `json:"balances,omitempty"`
	Symbol    string            `json:"symbol,omitempty"`
	Decimals  uint8             `json:"decimals,omitempty"`
	MaxSupply uint64            `json:"max_supply,omitempty"`
	Issued    uint64            `json:"issued,omitempty"`
}

func newAccountView(acc ledger.Account) AccountView {
	v := AccountView{
		ID:      acc.ID.String(),
		Kind:    acc.Kind,
		Storage: acc.StorageMode().String(),
		Nonce:   acc.Nonce,
	}
	if len(acc.Vault) > 0 {
		v.Balances = make(map[string]uint64, len(acc.Vault))
		for faucet, amount := range acc.Vault {
			v.Balances[faucet.String()] = amount
		}
	}
	if acc.Faucet != nil {
		v.Symbol = acc.Faucet.Symbol.String()
		v.Decimals = acc.Faucet.Decimals
		v.MaxSupply = acc.Faucet.MaxSupply
		v.Issued = acc.Faucet.Issued
	}
	return v
}

func (v AccountView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s (%s)  nonce %d", v.ID, v.Kind, v.Storage, v.Nonce)
	if v.Symbol != "" {
		fmt.Fprintf(&b, "\n  token %s, %d decimals, issued %d of %d", v.Symbol, v.Decimals, v.Issued, v.MaxSupply)
	}
	faucets := make([]string, 0, len(v.Balances))
	for faucet := range v.Balances {
		faucets = append(faucets, faucet)
	}
	sort.Strings(faucets)
	for _, faucet := range faucets {
		fmt.Fprintf(&b, "\n  %s: %d", faucet, v.Balances[faucet])
	}
	return b.String()
}

// AccountList is the output of account list.
type AccountList struct {
	Accounts []AccountView `json:"accounts"`
	Block    uint64        `json:"block"`
}

func (l AccountList) String() string {
	if len(l.Accounts) == 0 {
		return "No accounts. Create one with 'notekeeper account new'."
	}
	lines := make([]string, 0, len(l.Accounts)+1)
	for _, a := range l.Accounts {
		lines = append(lines, a.String())
	}
	lines = append(lines, fmt.Sprintf("(synced to block %d)", l.Block))
	return strings.Join(lines, "\n")
}

// NewAccountCommand creates the account command group.
func NewAccountCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Create and list wallet accounts",
	}
	cmd.AddCommand(newAccountNewCommand(rootOpts))
	cmd.AddCommand(newAccountListCommand(rootOpts))
	return cmd
}

func newAccountNewCommand(rootOpts *RootOptions) *cobra.Command {
	var storage string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a wallet account",
		Long: `Create a wallet account with a fresh signing key.

The key is written to the keystore and the account is tracked from the next
sync on. The network learns about the account with its first transaction.

Example:
  notekeeper account new
  notekeeper account new --storage private`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := ledger.ParseStorageMode(storage)
			if err != nil {
				return rootOpts.formatter(cmd).Fail("invalid --storage", ledger.Wrap(ledger.ErrCodeInvalidAccount, err, "parse storage mode"))
			}
			return createAccount(cmd, rootOpts, "account new", func(b ledger.AccountBuilder) ledger.AccountBuilder {
				return b.StorageMode(mode).WithWallet()
			})
		},
	}

	cmd.Flags().StringVar(&storage, "storage", "public", "account storage mode (public|private)")
	return cmd
}

func newAccountListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List tracked accounts with their balances",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, "account list", func(ctx context.Context, s *session, f *OutputFormatter) error {
				out := AccountList{Accounts: []AccountView{}, Block: s.eng.LastBlock()}
				for _, acc := range s.eng.Accounts() {
					out.Accounts = append(out.Accounts, newAccountView(acc))
				}
				return f.Success(out)
			})
		},
	}
}

// NewFaucetCommand creates the faucet command group.
func NewFaucetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "faucet",
		Short: "Create fungible faucet accounts",
	}

	var (
		symbol    string
		decimals  uint8
		maxSupply uint64
		storage   string
	)
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Create a fungible faucet",
		Long: `Create a fungible faucet that issues one token.

Example:
  notekeeper faucet new --symbol MID --decimals 8 --max-supply 1000000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			sym, err := ledger.NewTokenSymbol(symbol)
			if err != nil {
				return f.Fail("invalid --symbol", err)
			}
			mode, err := ledger.ParseStorageMode(storage)
			if err != nil {
				return f.Fail("invalid --storage", ledger.Wrap(ledger.ErrCodeInvalidAccount, err, "parse storage mode"))
			}
			return createAccount(cmd, rootOpts, "faucet new", func(b ledger.AccountBuilder) ledger.AccountBuilder {
				return b.AccountType(ledger.FungibleFaucet).StorageMode(mode).WithFaucet(sym, decimals, maxSupply)
			})
		},
	}
	newCmd.Flags().StringVar(&symbol, "symbol", "", "token symbol, 1 to 6 letters (required)")
	newCmd.Flags().Uint8Var(&decimals, "decimals", 8, "token decimals")
	newCmd.Flags().Uint64Var(&maxSupply, "max-supply", 0, "maximum issuance in base units (required)")
	newCmd.Flags().StringVar(&storage, "storage", "public", "account storage mode (public|private)")
	_ = newCmd.MarkFlagRequired("symbol")
	_ = newCmd.MarkFlagRequired("max-supply")

	cmd.AddCommand(newCmd)
	return cmd
}

// createAccount generates a key, builds the account and starts tracking it.
func createAccount(cmd *cobra.Command, opts *RootOptions, action string, kind func(ledger.AccountBuilder) ledger.AccountBuilder) error {
	return withSession(cmd, opts, action, func(ctx context.Context, s *session, f *OutputFormatter) error {
		commitment, err := s.keys.NewKey(rand.Reader)
		if err != nil {
			return err
		}
		var seed [32]byte
		if _, err := io.ReadFull(rand.Reader, seed[:]); err != nil {
			return ledger.Wrap(ledger.ErrCodeInvalidAccount, err, "draw account seed")
		}
		acc, err := kind(ledger.NewAccountBuilder(seed).WithAuth(commitment)).Build()
		if err != nil {
			return err
		}
		if err := s.eng.AddAccount(acc); err != nil {
			return err
		}
		s.logger.Info("account created", "account", acc.ID, "kind", acc.Kind)
		return f.Success(newAccountView(acc))
	})
}

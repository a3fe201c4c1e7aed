package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/notekeeper/internal/harness"
	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/txbuilder"
)

// SubmitResult lists the transactions a command submitted.
type SubmitResult struct {
	Account      string   `json:"account"`
	Transactions []string `json:"transactions"`
	Notes        int      `json:"notes"`
	Amount       uint64   `json:"amount"`
}

func (r SubmitResult) String() string {
	lines := []string{fmt.Sprintf("Submitted %d transaction(s) from %s (%d notes, %d units)",
		len(r.Transactions), r.Account, r.Notes, r.Amount)}
	for _, id := range r.Transactions {
		lines = append(lines, "  "+id)
	}
	lines = append(lines, "Effects are visible after the next block is synced ('notekeeper sync').")
	return strings.Join(lines, "\n")
}

func submit(ctx context.Context, s *session, account ledger.AccountID, req txbuilder.Request, out *SubmitResult) error {
	id, err := s.eng.Submit(ctx, account, req)
	if err != nil {
		return err
	}
	out.Transactions = append(out.Transactions, id.String())
	return nil
}

// NewMintCommand creates the mint command.
func NewMintCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		faucet, to, noteType string
		amount               uint64
		count                int
	)

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint tokens from a faucet into P2ID notes",
		Long: `Mint tokens from a tracked faucet. Each mint is one transaction producing
one pay-to-id note for the target account.

Example:
  notekeeper mint --faucet <faucet-id> --to <account-id> --amount 100 --count 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, "mint", func(ctx context.Context, s *session, f *OutputFormatter) error {
				fac, err := accountArg(s.eng, "faucet", faucet)
				if err != nil {
					return err
				}
				target, err := ledger.ParseAccountID(to)
				if err != nil {
					return ledger.Wrap(ledger.ErrCodeInvalidAccount, err, "--to")
				}
				nt, err := ledger.ParseNoteType(noteType)
				if err != nil {
					return ledger.Wrap(ledger.ErrCodeNoteCreation, err, "--note-type")
				}

				out := SubmitResult{Account: fac.ID.String(), Transactions: []string{}}
				for range max(count, 1) {
					req, err := s.eng.Builder().Mint(ledger.FungibleAsset{Faucet: fac.ID, Amount: amount}, target, nt)
					if err != nil {
						return err
					}
					if err := submit(ctx, s, fac.ID, req, &out); err != nil {
						return err
					}
					out.Notes++
					out.Amount += amount
				}
				return f.Success(out)
			})
		},
	}

	cmd.Flags().StringVar(&faucet, "faucet", "", "faucet account id (required)")
	cmd.Flags().StringVar(&to, "to", "", "target account id (required)")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount per note in base units (required)")
	cmd.Flags().IntVar(&count, "count", 1, "number of notes to mint")
	cmd.Flags().StringVar(&noteType, "note-type", "public", "note type (public|private)")
	_ = cmd.MarkFlagRequired("faucet")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

// NewConsumeCommand creates the consume command.
func NewConsumeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		account string
		wait    int
	)

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume every note an account can spend",
		Long: `Consume every committed, unclaimed note addressed to an account in one
transaction. With --wait N the command first syncs until at least N notes are
consumable, bounded by the configured poll policy.

Example:
  notekeeper consume --account <account-id>
  notekeeper consume --account <account-id> --wait 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, "consume", func(ctx context.Context, s *session, f *OutputFormatter) error {
				acc, err := accountArg(s.eng, "account", account)
				if err != nil {
					return err
				}

				notes := slices.Collect(s.eng.ConsumableNotes(acc.ID))
				if wait > 0 {
					policy := s.cfg.PollPolicy()
					notes, _, err = harness.AwaitConsumable(ctx, s.eng, acc.ID, wait, policy, func(attempt int, err error) {
						if err != nil {
							fmt.Fprintf(f.GetErrWriter(), "waiting for %d notes (attempt %d/%d): %v\n", wait, attempt, policy.MaxAttempts, err)
							return
						}
						fmt.Fprintf(f.GetErrWriter(), "waiting for %d notes (attempt %d/%d)\n", wait, attempt, policy.MaxAttempts)
					})
					if err != nil {
						return err
					}
				}

				req, err := s.eng.Builder().ConsumeNotes(acc.ID, notes)
				if err != nil {
					return err
				}
				out := SubmitResult{Account: acc.ID.String(), Transactions: []string{}, Notes: len(notes)}
				for _, n := range notes {
					for _, a := range n.Assets {
						out.Amount += a.Amount
					}
				}
				if err := submit(ctx, s, acc.ID, req, &out); err != nil {
					return err
				}
				return f.Success(out)
			})
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "consuming account id (required)")
	cmd.Flags().IntVar(&wait, "wait", 0, "sync until at least this many notes are consumable")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		from, faucet, noteType string
		to                     []string
		amount                 uint64
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Pay one or more accounts from a wallet",
		Long: `Pay the same amount to each target in one transaction. Each target
receives its own pay-to-id note.

Example:
  notekeeper send --from <account-id> --faucet <faucet-id> --amount 50 --to <id1> --to <id2>`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, "send", func(ctx context.Context, s *session, f *OutputFormatter) error {
				sender, err := accountArg(s.eng, "from", from)
				if err != nil {
					return err
				}
				fid, err := ledger.ParseAccountID(faucet)
				if err != nil {
					return ledger.Wrap(ledger.ErrCodeInvalidAsset, err, "--faucet")
				}
				nt, err := ledger.ParseNoteType(noteType)
				if err != nil {
					return ledger.Wrap(ledger.ErrCodeNoteCreation, err, "--note-type")
				}

				payments := make([]txbuilder.Payment, 0, len(to))
				for _, t := range to {
					target, err := ledger.ParseAccountID(t)
					if err != nil {
						return ledger.Wrap(ledger.ErrCodeInvalidAccount, err, "--to")
					}
					payments = append(payments, txbuilder.Payment{
						Target: target,
						Asset:  ledger.FungibleAsset{Faucet: fid, Amount: amount},
					})
				}

				req, err := s.eng.Builder().Transfer(sender.ID, payments, nt)
				if err != nil {
					return err
				}
				out := SubmitResult{
					Account:      sender.ID.String(),
					Transactions: []string{},
					Notes:        len(payments),
					Amount:       amount * uint64(len(payments)),
				}
				if err := submit(ctx, s, sender.ID, req, &out); err != nil {
					return err
				}
				return f.Success(out)
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "sending wallet id (required)")
	cmd.Flags().StringVar(&faucet, "faucet", "", "faucet id of the paid token (required)")
	cmd.Flags().StringSliceVar(&to, "to", nil, "target account id, repeatable (required)")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount per target in base units (required)")
	cmd.Flags().StringVar(&noteType, "note-type", "public", "note type (public|private)")
	for _, name := range []string{"from", "faucet", "to", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

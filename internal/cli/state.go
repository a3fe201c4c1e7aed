package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/notestore"
)

// SyncResult reports what a sync round applied.
type SyncResult struct {
	Block           uint64 `json:"block"`
	NewNotes        int    `json:"new_notes"`
	CommittedNotes  int    `json:"committed_notes"`
	ConsumedNotes   int    `json:"consumed_notes"`
	UpdatedAccounts int    `json:"updated_accounts"`
	CommittedTxs    int    `json:"committed_txs"`
}

func (r SyncResult) String() string {
	return fmt.Sprintf("Synced to block %d: %d new notes, %d committed, %d consumed, %d accounts updated, %d transactions committed",
		r.Block, r.NewNotes, r.CommittedNotes, r.ConsumedNotes, r.UpdatedAccounts, r.CommittedTxs)
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync round against the node",
		Long: `Fetch everything committed since the last synced block for the tracked
accounts and apply it to the local state.

Example:
  notekeeper sync
  notekeeper sync --endpoint node.example:57291 --timeout 30s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, "sync", func(ctx context.Context, s *session, f *OutputFormatter) error {
				summary, err := s.eng.SyncState(ctx)
				if err != nil {
					return err
				}
				return f.Success(SyncResult{
					Block:           s.eng.LastBlock(),
					NewNotes:        len(summary.NewNotes),
					CommittedNotes:  len(summary.CommittedNotes),
					ConsumedNotes:   len(summary.ConsumedNotes),
					UpdatedAccounts: len(summary.UpdatedAccounts),
					CommittedTxs:    len(summary.CommittedTxs),
				})
			})
		},
	}
}

// NoteView is the CLI rendering of a note record.
type NoteView struct {
	ID        string           `json:"id"`
	Status    notestore.Status `json:"status"`
	Type      string           `json:"type"`
	Sender    string           `json:"sender"`
	Target    string           `json:"target"`
	Assets    []string         `json:"assets"`
	Block     uint64           `json:"block,omitempty"`
	ClaimedBy string           `json:"claimed_by,omitempty"`
}

func newNoteView(r notestore.Record) NoteView {
	v := NoteView{
		ID:     r.Note.ID.String(),
		Status: r.Status,
		Type:   r.Note.Metadata.Type.String(),
		Sender: r.Note.Metadata.Sender.String(),
		Target: r.Note.Recipient.Target.String(),
		Assets: make([]string, 0, len(r.Note.Assets)),
		Block:  r.Block,
	}
	for _, a := range r.Note.Assets {
		v.Assets = append(v.Assets, a.String())
	}
	if !r.ClaimedBy.IsZero() {
		v.ClaimedBy = r.ClaimedBy.String()
	}
	return v
}

// NoteList is the output of the notes command.
type NoteList struct {
	Notes []NoteView `json:"notes"`
}

func (l NoteList) String() string {
	if len(l.Notes) == 0 {
		return "No notes."
	}
	lines := make([]string, 0, len(l.Notes))
	for _, n := range l.Notes {
		line := fmt.Sprintf("%s  %-9s %-7s -> %s  %s", n.ID, n.Status, n.Type, n.Target, strings.Join(n.Assets, ", "))
		if n.ClaimedBy != "" {
			line += "  (claimed by " + n.ClaimedBy + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// NewNotesCommand creates the notes command.
func NewNotesCommand(rootOpts *RootOptions) *cobra.Command {
	var status, account string

	cmd := &cobra.Command{
		Use:   "notes",
		Short: "List locally known notes",
		Long: `List the notes in the local store. Does not contact the node; run sync
first for an up-to-date view.

Example:
  notekeeper notes --status committed --account <account-id>`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, "notes", func(ctx context.Context, s *session, f *OutputFormatter) error {
				filter, err := noteFilter(status, account)
				if err != nil {
					return err
				}
				out := NoteList{Notes: []NoteView{}}
				for _, r := range s.eng.Notes(filter) {
					out.Notes = append(out.Notes, newNoteView(r))
				}
				return f.Success(out)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (expected|committed|pending|consumed)")
	cmd.Flags().StringVar(&account, "account", "", "filter by sender or target account id")

	return cmd
}

func noteFilter(status, account string) (notestore.Filter, error) {
	var f notestore.Filter
	switch s := notestore.Status(status); s {
	case "", notestore.StatusExpected, notestore.StatusCommitted, notestore.StatusPending, notestore.StatusConsumed:
		f.Status = s
	default:
		return f, fmt.Errorf("unknown --status %q", status)
	}
	if account != "" {
		id, err := ledger.ParseAccountID(account)
		if err != nil {
			return f, ledger.Wrap(ledger.ErrCodeInvalidAccount, err, "--account")
		}
		f.Account = id
	}
	return f, nil
}

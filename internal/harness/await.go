package harness

import (
	"context"
	"iter"
	"slices"

	"github.com/roach88/notekeeper/internal/engine"
	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/poll"
)

// Syncer is the part of the client AwaitConsumable drives.
// Implemented by *engine.Engine.
type Syncer interface {
	SyncState(ctx context.Context) (ledger.SyncSummary, error)
	ConsumableNotes(account ledger.AccountID) iter.Seq[ledger.Note]
}

// AwaitConsumable syncs until account has at least want consumable notes.
//
// Each attempt runs one sync round and re-reads the consumable set. Retryable
// sync failures count as unsuccessful attempts and are passed to progress;
// other failures abort. Returns the notes seen by the last attempt and the
// number of attempts made.
func AwaitConsumable(ctx context.Context, s Syncer, account ledger.AccountID, want int, policy poll.Policy, progress poll.Progress) ([]ledger.Note, int, error) {
	var notes []ledger.Note
	attempts := 0
	err := poll.Until(ctx, policy, func(ctx context.Context) (bool, error) {
		attempts++
		if _, err := s.SyncState(ctx); err != nil {
			return false, err
		}
		notes = slices.Collect(s.ConsumableNotes(account))
		return len(notes) >= want, nil
	}, progress)
	return notes, attempts, err
}

// advancing produces a block before every sync round, so polls against a
// local devnet observe progress without a block timer.
type advancing struct {
	*engine.Engine
	advance func()
}

func (a advancing) SyncState(ctx context.Context) (ledger.SyncSummary, error) {
	if a.advance != nil {
		a.advance()
	}
	return a.Engine.SyncState(ctx)
}

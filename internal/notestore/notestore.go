// Package notestore owns the notes known to the client and their
// consumability state.
//
// Note lifecycle:
//
//	expected ──► committed ──► pending ──► consumed
//	                 ▲            │
//	                 └────────────┘  (claim released or reverted)
//
// Expected notes are outputs of the client's own transactions that the
// network has not committed yet. Only committed, unclaimed notes are
// consumable. A note carries at most one pending-consumption claim.
package notestore

import (
	"iter"
	"log/slog"
	"sync"

	"github.com/roach88/notekeeper/internal/ledger"
)

// Status is the local lifecycle state of a note.
type Status string

const (
	StatusExpected  Status = "expected"
	StatusCommitted Status = "committed"
	StatusPending   Status = "pending"
	StatusConsumed  Status = "consumed"
)

// DefaultReclaimAfter is the number of advancing sync rounds after which a
// claim whose transaction never confirmed is reverted.
const DefaultReclaimAfter = 10

// Record is a note plus its local state.
type Record struct {
	Note      ledger.Note `json:"note"`
	Status    Status      `json:"status"`
	ClaimedBy ledger.TxID `json:"claimed_by"`
	ClaimAge  int         `json:"claim_age"`
	CreatedBy ledger.TxID `json:"created_by"`
	Block     uint64      `json:"block"`
}

// Filter selects records in List. Zero fields match everything.
type Filter struct {
	Status  Status
	Account ledger.AccountID // matches recipient or sender
}

func (f Filter) match(r *Record) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.Account.IsZero() && r.Note.Recipient.Target != f.Account && r.Note.Metadata.Sender != f.Account {
		return false
	}
	return true
}

// ReconcileResult reports what a sync round changed.
type ReconcileResult struct {
	Added     int
	Committed int
	Consumed  int
	Reverted  []ledger.TxID
}

// Store holds note records keyed by note id, iterated in insertion order.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	records      map[ledger.NoteID]*Record
	order        []ledger.NoteID
	reclaimAfter int
	logger       *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithReclaimAfter sets how many advancing sync rounds an unconfirmed claim
// survives before it is reverted.
func WithReclaimAfter(rounds int) Option {
	return func(s *Store) {
		if rounds > 0 {
			s.reclaimAfter = rounds
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records:      make(map[ledger.NoteID]*Record),
		reclaimAfter: DefaultReclaimAfter,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddNotes inserts committed notes. Re-adding a known note is a no-op, except
// that an expected note is promoted to committed.
// Every note is verified first; on failure nothing is inserted.
func (s *Store) AddNotes(block uint64, notes ...ledger.Note) (int, error) {
	for _, n := range notes {
		if err := n.Verify(); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, n := range notes {
		if s.insertCommittedLocked(n, block) {
			added++
		}
	}
	return added, nil
}

// AddExpected records outputs of a submitted transaction. They become
// consumable once a sync reports them committed.
func (s *Store) AddExpected(tx ledger.TxID, notes ...ledger.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range notes {
		if _, ok := s.records[n.ID]; ok {
			continue
		}
		s.insertLocked(&Record{Note: n, Status: StatusExpected, CreatedBy: tx})
	}
}

// Get returns a copy of the record for id.
func (s *Store) Get(id ledger.NoteID) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// ConsumableBy yields committed, unclaimed notes whose recipient condition
// account satisfies. The set is recomputed each time the sequence is ranged
// over, so it always reflects the latest reconciled state.
func (s *Store) ConsumableBy(account ledger.AccountID) iter.Seq[ledger.Note] {
	return func(yield func(ledger.Note) bool) {
		for _, n := range s.consumableSnapshot(account) {
			if !yield(n) {
				return
			}
		}
	}
}

func (s *Store) consumableSnapshot(account ledger.AccountID) []ledger.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledger.Note
	for _, id := range s.order {
		r := s.records[id]
		if r.Status == StatusCommitted && r.Note.ConsumableBy(account) {
			out = append(out, r.Note)
		}
	}
	return out
}

// CheckConsumable verifies that every id is committed, unclaimed and
// addressed to account. Advisory only: state can change before submission.
func (s *Store) CheckConsumable(account ledger.AccountID, ids []ledger.NoteID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range ids {
		r, ok := s.records[id]
		if !ok || r.Status != StatusCommitted || !r.Note.ConsumableBy(account) {
			return ledger.Errorf(ledger.ErrCodeNoteNotConsumable, "note %s is not consumable by %s", id, account)
		}
	}
	return nil
}

// MarkPendingConsumption claims notes for an in-flight transaction.
// All-or-nothing: if any note is unknown, not committed, or already claimed,
// no claim is taken.
func (s *Store) MarkPendingConsumption(ids []ledger.NoteID, tx ledger.TxID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[ledger.NoteID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return ledger.Errorf(ledger.ErrCodeNoteAlreadyClaimed, "note %s listed twice in transaction %s", id, tx)
		}
		seen[id] = struct{}{}

		r, ok := s.records[id]
		if !ok {
			return ledger.Errorf(ledger.ErrCodeNoteNotConsumable, "note %s is unknown", id)
		}
		switch r.Status {
		case StatusPending:
			return ledger.Errorf(ledger.ErrCodeNoteAlreadyClaimed, "note %s already claimed by %s", id, r.ClaimedBy)
		case StatusCommitted:
		default:
			return ledger.Errorf(ledger.ErrCodeNoteNotConsumable, "note %s is %s", id, r.Status)
		}
	}

	for _, id := range ids {
		r := s.records[id]
		r.Status = StatusPending
		r.ClaimedBy = tx
		r.ClaimAge = 0
	}
	s.logger.Debug("notes claimed", "tx", tx, "count", len(ids))
	return nil
}

// ReleaseClaims returns every note claimed by tx to committed.
func (s *Store) ReleaseClaims(tx ledger.TxID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(tx)
}

func (s *Store) releaseLocked(tx ledger.TxID) int {
	released := 0
	for _, r := range s.records {
		if r.Status == StatusPending && r.ClaimedBy == tx {
			r.Status = StatusCommitted
			r.ClaimedBy = ledger.TxID{}
			r.ClaimAge = 0
			released++
		}
	}
	return released
}

// DiscardExpected forgets expected outputs of a transaction that will never
// be committed.
func (s *Store) DiscardExpected(tx ledger.TxID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discardExpectedLocked(tx)
}

func (s *Store) discardExpectedLocked(tx ledger.TxID) int {
	dropped := 0
	kept := s.order[:0]
	for _, id := range s.order {
		r := s.records[id]
		if r.Status == StatusExpected && r.CreatedBy == tx {
			delete(s.records, id)
			dropped++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return dropped
}

// Reconcile applies a sync round.
//
//   - public notes are inserted as committed
//   - expected notes whose header was committed are promoted
//   - consumed notes are marked consumed and lose their claim
//   - when advanced is true, surviving claims age by one round; claims older
//     than the reclaim threshold whose transaction is not in CommittedTxs are
//     reverted and the transaction's expected outputs dropped
//
// New notes are verified before anything changes.
func (s *Store) Reconcile(summary ledger.SyncSummary, advanced bool) (ReconcileResult, error) {
	for _, n := range summary.NewNotes {
		if err := n.Verify(); err != nil {
			return ReconcileResult{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res ReconcileResult
	for _, n := range summary.NewNotes {
		if s.insertCommittedLocked(n, summary.BlockNum) {
			res.Added++
		}
	}

	for _, h := range summary.CommittedNotes {
		if r, ok := s.records[h.ID]; ok && r.Status == StatusExpected {
			r.Status = StatusCommitted
			r.Block = summary.BlockNum
			res.Committed++
		}
	}

	for _, id := range summary.ConsumedNotes {
		r, ok := s.records[id]
		if !ok || r.Status == StatusConsumed {
			continue
		}
		r.Status = StatusConsumed
		r.ClaimedBy = ledger.TxID{}
		r.ClaimAge = 0
		res.Consumed++
	}

	if advanced {
		committed := make(map[ledger.TxID]struct{}, len(summary.CommittedTxs))
		for _, tx := range summary.CommittedTxs {
			committed[tx] = struct{}{}
		}
		expired := make(map[ledger.TxID]struct{})
		for _, r := range s.records {
			if r.Status != StatusPending {
				continue
			}
			r.ClaimAge++
			if _, ok := committed[r.ClaimedBy]; ok {
				continue
			}
			if r.ClaimAge >= s.reclaimAfter {
				expired[r.ClaimedBy] = struct{}{}
			}
		}
		for tx := range expired {
			n := s.releaseLocked(tx)
			s.discardExpectedLocked(tx)
			s.logger.Warn("claim reverted: transaction not confirmed", "tx", tx, "notes", n, "rounds", s.reclaimAfter)
			res.Reverted = append(res.Reverted, tx)
		}
	}

	return res, nil
}

// List returns copies of matching records in insertion order.
func (s *Store) List(f Filter) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, id := range s.order {
		r := s.records[id]
		if f.match(r) {
			out = append(out, *r)
		}
	}
	return out
}

// Records returns every record, for persistence.
func (s *Store) Records() []Record {
	return s.List(Filter{})
}

// Restore replaces the store contents from a persisted snapshot.
// Called at startup only.
func (s *Store) Restore(records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[ledger.NoteID]*Record, len(records))
	s.order = s.order[:0]
	for i := range records {
		r := records[i]
		s.insertLocked(&r)
	}
}

func (s *Store) insertCommittedLocked(n ledger.Note, block uint64) bool {
	if r, ok := s.records[n.ID]; ok {
		if r.Status == StatusExpected {
			r.Status = StatusCommitted
			r.Block = block
		}
		return false
	}
	s.insertLocked(&Record{Note: n, Status: StatusCommitted, Block: block})
	return true
}

func (s *Store) insertLocked(r *Record) {
	s.records[r.Note.ID] = r
	s.order = append(s.order, r.Note.ID)
}

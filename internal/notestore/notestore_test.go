package notestore

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/testutil"
)

type fixture struct {
	rng    *testutil.SeededReader
	faucet ledger.AccountID
	alice  ledger.AccountID
	bob    ledger.AccountID
}

func newFixture(seed uint64) *fixture {
	rng := testutil.NewSeededReader(seed)
	return &fixture{
		rng:    rng,
		faucet: ledger.DummyAccountID(rng.Seed15(), ledger.FungibleFaucet, ledger.StoragePublic),
		alice:  ledger.DummyAccountID(rng.Seed15(), ledger.RegularUpdatable, ledger.StoragePublic),
		bob:    ledger.DummyAccountID(rng.Seed15(), ledger.RegularUpdatable, ledger.StoragePublic),
	}
}

func (f *fixture) note(t *testing.T, target ledger.AccountID, amount uint64) ledger.Note {
	t.Helper()
	n, err := ledger.NewP2IDNote(f.faucet, target, []ledger.FungibleAsset{{Faucet: f.faucet, Amount: amount}}, ledger.NotePublic, nil, f.rng)
	require.NoError(t, err)
	return n
}

func txID(b byte) ledger.TxID { return ledger.TxID{b} }

func ids(notes ...ledger.Note) []ledger.NoteID {
	out := make([]ledger.NoteID, len(notes))
	for i, n := range notes {
		out[i] = n.ID
	}
	return out
}

func TestAddNotes_Idempotent(t *testing.T) {
	f := newFixture(1)
	s := New()
	n := f.note(t, f.alice, 100)

	added, err := s.AddNotes(1, n)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = s.AddNotes(2, n)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	r, ok := s.Get(n.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCommitted, r.Status)
	assert.Equal(t, uint64(1), r.Block)
}

func TestAddNotes_RejectsTamperedWithoutPartialInsert(t *testing.T) {
	f := newFixture(2)
	s := New()
	good := f.note(t, f.alice, 100)
	bad := f.note(t, f.alice, 100)
	bad.Assets[0].Amount = 1_000_000

	_, err := s.AddNotes(1, good, bad)
	require.True(t, ledger.IsCode(err, ledger.ErrCodeNoteCreation))
	_, ok := s.Get(good.ID)
	assert.False(t, ok)
}

func TestConsumableBy_FiltersByRecipient(t *testing.T) {
	f := newFixture(3)
	s := New()
	a1, a2, b1 := f.note(t, f.alice, 1), f.note(t, f.alice, 2), f.note(t, f.bob, 3)
	_, err := s.AddNotes(1, a1, b1, a2)
	require.NoError(t, err)

	assert.Equal(t, ids(a1, a2), ids(slices.Collect(s.ConsumableBy(f.alice))...))
	assert.Equal(t, ids(b1), ids(slices.Collect(s.ConsumableBy(f.bob))...))
	assert.Empty(t, slices.Collect(s.ConsumableBy(f.faucet)))
}

func TestConsumableBy_RecomputedOnEveryRange(t *testing.T) {
	f := newFixture(4)
	s := New()
	n := f.note(t, f.alice, 1)
	seq := s.ConsumableBy(f.alice)

	assert.Empty(t, slices.Collect(seq))

	_, err := s.AddNotes(1, n)
	require.NoError(t, err)
	assert.Len(t, slices.Collect(seq), 1)

	require.NoError(t, s.MarkPendingConsumption(ids(n), txID(1)))
	assert.Empty(t, slices.Collect(seq), "pending notes are not consumable")
}

func TestConsumableBy_EarlyBreak(t *testing.T) {
	f := newFixture(5)
	s := New()
	_, err := s.AddNotes(1, f.note(t, f.alice, 1), f.note(t, f.alice, 2), f.note(t, f.alice, 3))
	require.NoError(t, err)

	count := 0
	for range s.ConsumableBy(f.alice) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestMarkPendingConsumption_SecondClaimFails(t *testing.T) {
	f := newFixture(6)
	s := New()
	n := f.note(t, f.alice, 1)
	_, err := s.AddNotes(1, n)
	require.NoError(t, err)

	require.NoError(t, s.MarkPendingConsumption(ids(n), txID(1)))

	err = s.MarkPendingConsumption(ids(n), txID(2))
	assert.True(t, ledger.IsCode(err, ledger.ErrCodeNoteAlreadyClaimed), "got %v", err)

	assert.Equal(t, 1, s.ReleaseClaims(txID(1)))
	require.NoError(t, s.MarkPendingConsumption(ids(n), txID(2)))

	r, _ := s.Get(n.ID)
	assert.Equal(t, txID(2), r.ClaimedBy)
}

func TestMarkPendingConsumption_AllOrNothing(t *testing.T) {
	f := newFixture(7)
	s := New()
	free, taken := f.note(t, f.alice, 1), f.note(t, f.alice, 2)
	_, err := s.AddNotes(1, free, taken)
	require.NoError(t, err)
	require.NoError(t, s.MarkPendingConsumption(ids(taken), txID(1)))

	err = s.MarkPendingConsumption(ids(free, taken), txID(2))
	require.True(t, ledger.IsCode(err, ledger.ErrCodeNoteAlreadyClaimed))

	r, _ := s.Get(free.ID)
	assert.Equal(t, StatusCommitted, r.Status, "free note must not be claimed by a failed batch")
}

func TestMarkPendingConsumption_Rejects(t *testing.T) {
	f := newFixture(8)
	s := New()
	n := f.note(t, f.alice, 1)

	err := s.MarkPendingConsumption(ids(n), txID(1))
	assert.True(t, ledger.IsCode(err, ledger.ErrCodeNoteNotConsumable))

	_, err = s.AddNotes(1, n)
	require.NoError(t, err)
	err = s.MarkPendingConsumption([]ledger.NoteID{n.ID, n.ID}, txID(1))
	assert.True(t, ledger.IsCode(err, ledger.ErrCodeNoteAlreadyClaimed))
}

func TestCheckConsumable(t *testing.T) {
	f := newFixture(9)
	s := New()
	n := f.note(t, f.alice, 1)
	_, err := s.AddNotes(1, n)
	require.NoError(t, err)

	assert.NoError(t, s.CheckConsumable(f.alice, ids(n)))
	assert.True(t, ledger.IsCode(s.CheckConsumable(f.bob, ids(n)), ledger.ErrCodeNoteNotConsumable))
}

func TestReconcile_ConsumedNeverConsumableAgain(t *testing.T) {
	f := newFixture(10)
	s := New()
	n := f.note(t, f.alice, 1)
	_, err := s.AddNotes(1, n)
	require.NoError(t, err)
	require.NoError(t, s.MarkPendingConsumption(ids(n), txID(1)))

	res, err := s.Reconcile(ledger.SyncSummary{
		BlockNum:      2,
		ConsumedNotes: ids(n),
		CommittedTxs:  []ledger.TxID{txID(1)},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Consumed)

	r, _ := s.Get(n.ID)
	assert.Equal(t, StatusConsumed, r.Status)
	assert.True(t, r.ClaimedBy.IsZero())

	_, err = s.AddNotes(3, n)
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(s.ConsumableBy(f.alice)))
	assert.True(t, ledger.IsCode(s.MarkPendingConsumption(ids(n), txID(2)), ledger.ErrCodeNoteNotConsumable))
}

func TestReconcile_RevertsStaleClaims(t *testing.T) {
	f := newFixture(11)
	s := New(WithReclaimAfter(2))
	n := f.note(t, f.alice, 1)
	out := f.note(t, f.bob, 1)
	_, err := s.AddNotes(1, n)
	require.NoError(t, err)
	require.NoError(t, s.MarkPendingConsumption(ids(n), txID(7)))
	s.AddExpected(txID(7), out)

	// Rounds that do not advance the chain never age claims.
	for i := 0; i < 5; i++ {
		res, err := s.Reconcile(ledger.SyncSummary{BlockNum: 1}, false)
		require.NoError(t, err)
		assert.Empty(t, res.Reverted)
	}

	res, err := s.Reconcile(ledger.SyncSummary{BlockNum: 2}, true)
	require.NoError(t, err)
	assert.Empty(t, res.Reverted)

	res, err = s.Reconcile(ledger.SyncSummary{BlockNum: 3}, true)
	require.NoError(t, err)
	assert.Equal(t, []ledger.TxID{txID(7)}, res.Reverted)

	r, _ := s.Get(n.ID)
	assert.Equal(t, StatusCommitted, r.Status)
	_, ok := s.Get(out.ID)
	assert.False(t, ok, "expected outputs of a reverted transaction are dropped")
}

func TestReconcile_CommittedTxClaimIsNotReverted(t *testing.T) {
	f := newFixture(12)
	s := New(WithReclaimAfter(1))
	n := f.note(t, f.alice, 1)
	_, err := s.AddNotes(1, n)
	require.NoError(t, err)
	require.NoError(t, s.MarkPendingConsumption(ids(n), txID(3)))

	res, err := s.Reconcile(ledger.SyncSummary{BlockNum: 2, CommittedTxs: []ledger.TxID{txID(3)}}, true)
	require.NoError(t, err)
	assert.Empty(t, res.Reverted)
	r, _ := s.Get(n.ID)
	assert.Equal(t, StatusPending, r.Status)
}

func TestReconcile_PromotesExpectedPrivateNotes(t *testing.T) {
	f := newFixture(13)
	s := New()
	out, err := ledger.NewP2IDNote(f.alice, f.bob, []ledger.FungibleAsset{{Faucet: f.faucet, Amount: 50}}, ledger.NotePrivate, nil, f.rng)
	require.NoError(t, err)
	s.AddExpected(txID(1), out)

	assert.Empty(t, slices.Collect(s.ConsumableBy(f.bob)), "expected notes are not consumable")

	res, err := s.Reconcile(ledger.SyncSummary{
		BlockNum:       4,
		CommittedNotes: []ledger.NoteHeader{out.Header()},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Committed)
	assert.Equal(t, ids(out), ids(slices.Collect(s.ConsumableBy(f.bob))...))
}

func TestReconcile_RejectsTamperedNotes(t *testing.T) {
	f := newFixture(14)
	s := New()
	bad := f.note(t, f.alice, 1)
	bad.Recipient.Target = f.bob

	_, err := s.Reconcile(ledger.SyncSummary{BlockNum: 1, NewNotes: []ledger.Note{bad}}, true)
	require.Error(t, err)
	assert.Empty(t, s.Records())
}

func TestList_AndRestore(t *testing.T) {
	f := newFixture(15)
	s := New()
	a, b := f.note(t, f.alice, 1), f.note(t, f.bob, 2)
	_, err := s.AddNotes(1, a, b)
	require.NoError(t, err)
	require.NoError(t, s.MarkPendingConsumption(ids(b), txID(9)))

	assert.Len(t, s.List(Filter{Status: StatusPending}), 1)
	assert.Len(t, s.List(Filter{Account: f.alice}), 1)
	assert.Len(t, s.List(Filter{Account: f.faucet}), 2, "sender filter matches the faucet")

	restored := New()
	restored.Restore(s.Records())
	assert.Equal(t, s.Records(), restored.Records())
	assert.True(t, ledger.IsCode(restored.MarkPendingConsumption(ids(b), txID(10)), ledger.ErrCodeNoteAlreadyClaimed))
}

package harness

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notekeeper/internal/devnet"
	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/poll"
	"github.com/roach88/notekeeper/internal/remote"
)

func TestRunWithGolden_Demo(t *testing.T) {
	result, err := RunWithGolden(t, Demo())
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_DemoRecipientsEachHoldOneNote(t *testing.T) {
	result, err := Run(context.Background(), Demo())
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	mid := result.Accounts["mid"]
	seen := map[ledger.NoteID]bool{}
	for _, name := range []string{"dummy-7-1", "dummy-7-2", "dummy-7-3", "dummy-7-4", "dummy-8-1"} {
		id, ok := result.Accounts[name]
		require.True(t, ok, name)
		notes := slices.Collect(result.Engine.ConsumableNotes(id))
		require.Len(t, notes, 1, name)
		assert.Equal(t, uint64(50), notes[0].Total(mid))
		assert.False(t, seen[notes[0].ID])
		seen[notes[0].ID] = true
	}
	assert.Empty(t, slices.Collect(result.Engine.ConsumableNotes(result.Accounts["alice"])))
}

func TestRun_SeededTraceIsReproducible(t *testing.T) {
	first, err := Run(context.Background(), Demo())
	require.NoError(t, err)
	second, err := Run(context.Background(), Demo())
	require.NoError(t, err)

	assert.Equal(t, first.Accounts, second.Accounts)
	a, err := MarshalTrace("demo", first)
	require.NoError(t, err)
	b, err := MarshalTrace("demo", second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ScenarioFiles(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Trace, len(scenario.Steps))
		})
	}
}

func TestRun_ExpectationMismatchFailsResult(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: mismatch
description: wrong expectations are reported, not fatal
seed: 3
steps:
  - action: create_faucet
    name: f
    symbol: F
    max_supply: 10
  - action: create_wallet
    name: w
  - action: mint
    account: f
    to: [w]
    amount: 4
  - action: await_consumable
    account: w
    notes: 1
    expect: {total: 5}
  - action: consume_all
    account: w
    expect_error: EMPTY_NOTE_SET
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "total = 4, want 5")
	assert.Contains(t, result.Errors[1], "expected error EMPTY_NOTE_SET, step succeeded")
}

func TestRun_UnexpectedErrorAborts(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: abort
description: an undeclared failure stops the run
steps:
  - action: create_faucet
    name: f
    symbol: F
    max_supply: 10
  - action: create_wallet
    name: w
  - action: mint
    account: f
    to: [w]
    amount: 11
  - action: sync
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.True(t, ledger.IsCode(err, ledger.ErrCodeInvalidAsset))
	assert.Len(t, result.Trace, 2, "steps after the failure do not run")
}

// lagging hides blocks from the client for the first few fetches.
type lagging struct {
	*devnet.Node
	hidden int
}

func (l *lagging) FetchDelta(ctx context.Context, since uint64, accounts []ledger.AccountID) (ledger.SyncSummary, error) {
	if l.hidden > 0 {
		l.hidden--
		return ledger.SyncSummary{}, ledger.WrapRetryable(ledger.ErrCodeSync, errors.New("node unavailable"), "fetch")
	}
	return l.Node.FetchDelta(ctx, since, accounts)
}

var _ remote.LedgerClient = (*lagging)(nil)

func TestRun_AwaitReportsProgress(t *testing.T) {
	node := devnet.New()
	net := Network{Client: &lagging{Node: node, hidden: 2}, Advance: func() { node.ProduceBlock() }}

	scenario, err := ParseScenario([]byte(`
name: progress
description: retryable sync failures are reported and retried
seed: 5
steps:
  - action: create_faucet
    name: f
    symbol: F
    max_supply: 10
  - action: create_wallet
    name: w
  - action: mint
    account: f
    to: [w]
    amount: 2
  - action: await_consumable
    account: w
    notes: 1
`))
	require.NoError(t, err)

	var reported []int
	var observed []string
	result, err := Run(context.Background(), scenario,
		WithNetwork(net),
		WithPollPolicy(poll.Policy{Interval: 1, MaxAttempts: 5}),
		WithProgress(func(step, attempt int, err error) {
			assert.Equal(t, 4, step)
			assert.True(t, ledger.IsRetryable(err))
			reported = append(reported, attempt)
		}),
		WithObserver(func(ev TraceEvent) { observed = append(observed, ev.Action) }),
	)
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.Equal(t, []int{1, 2}, reported)
	assert.Equal(t, 3, result.Trace[3].Attempts)
	assert.Equal(t, []string{"create_faucet", "create_wallet", "mint", "await_consumable"}, observed)
}

func TestRun_AwaitExhausted(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: exhausted
description: waiting for notes that never arrive runs out of attempts
seed: 9
steps:
  - action: create_wallet
    name: w
  - action: await_consumable
    account: w
    notes: 1
    expect_error: POLL_EXHAUSTED
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario, WithPollPolicy(poll.Policy{Interval: 1, MaxAttempts: 3}))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 3, result.Trace[1].Attempts)
	assert.Equal(t, "POLL_EXHAUSTED", result.Trace[1].Error)
}

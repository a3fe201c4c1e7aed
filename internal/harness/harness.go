package harness

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/notekeeper/internal/devnet"
	"github.com/roach88/notekeeper/internal/engine"
	"github.com/roach88/notekeeper/internal/keystore"
	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/poll"
	"github.com/roach88/notekeeper/internal/remote"
	"github.com/roach88/notekeeper/internal/testutil"
	"github.com/roach88/notekeeper/internal/txbuilder"
)

// Network is the ledger a scenario runs against.
type Network struct {
	Client remote.LedgerClient

	// Advance produces a block. Nil for networks that produce blocks on
	// their own, in which case waits rely on polling alone.
	Advance func()
}

// LocalNetwork returns an in-process devnet that produces a block whenever
// the scenario syncs.
func LocalNetwork(logger *slog.Logger) Network {
	node := devnet.New(devnet.WithLogger(logger))
	return Network{Client: node, Advance: func() { node.ProduceBlock() }}
}

// Option configures Run.
type Option func(*Harness)

// WithNetwork runs the scenario against net instead of a fresh local devnet.
func WithNetwork(net Network) Option {
	return func(h *Harness) { h.net = net }
}

// WithKeystore stores generated keys in ks instead of an in-memory keystore.
func WithKeystore(ks *keystore.Store) Option {
	return func(h *Harness) { h.keys = ks }
}

// WithLogger sets the logger passed to the engine and the local devnet.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithPollPolicy bounds await_consumable steps.
func WithPollPolicy(p poll.Policy) Option {
	return func(h *Harness) { h.policy = p }
}

// WithEngineOptions passes extra options to the engine.
func WithEngineOptions(opts ...engine.EngineOption) Option {
	return func(h *Harness) { h.engineOpts = append(h.engineOpts, opts...) }
}

// WithObserver is called with every trace event as its step completes.
func WithObserver(fn func(TraceEvent)) Option {
	return func(h *Harness) { h.observe = fn }
}

// WithProgress is called after every unsuccessful poll attempt.
func WithProgress(fn func(step, attempt int, err error)) Option {
	return func(h *Harness) { h.progress = fn }
}

// Harness executes scenarios against a real engine.
type Harness struct {
	net        Network
	keys       *keystore.Store
	logger     *slog.Logger
	policy     poll.Policy
	engineOpts []engine.EngineOption
	observe    func(TraceEvent)
	progress   func(step, attempt int, err error)

	rng    io.Reader
	eng    *engine.Engine
	result *Result
}

// Run executes a scenario and returns the result.
//
// Without options each scenario runs against a fresh in-process devnet and
// in-memory keystore. A non-zero seed makes every id reproducible.
//
// Execution flow:
//  1. Create the network, keystore and engine
//  2. Execute steps in order, recording one trace event per step
//  3. Check expect clauses; mismatches fail the result, not the run
//
// A step that fails without declaring expect_error aborts the run.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		policy: poll.DefaultPolicy(),
		rng:    rand.Reader,
		result: NewResult(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.net.Client == nil {
		h.net = LocalNetwork(h.logger)
	}
	if h.keys == nil {
		ks, err := keystore.Open("")
		if err != nil {
			return nil, fmt.Errorf("failed to open keystore: %w", err)
		}
		h.keys = ks
	}

	engineOpts := []engine.EngineOption{engine.WithLogger(h.logger)}
	if scenario.Seed != 0 {
		h.rng = testutil.NewSeededReader(scenario.Seed)
		engineOpts = append(engineOpts,
			engine.WithRand(h.rng),
			engine.WithAttemptIDs(testutil.NewSequentialIDs(scenario.Name)),
		)
	}
	h.eng = engine.New(h.net.Client, h.keys, append(engineOpts, h.engineOpts...)...)
	h.result.Engine = h.eng

	for i, step := range scenario.Steps {
		ev := TraceEvent{Step: i + 1, Action: step.Action}
		err := h.execute(ctx, step, &ev)

		switch {
		case err != nil && step.ExpectError == "":
			return h.result, fmt.Errorf("step %d (%s): %w", ev.Step, step.Action, err)
		case err != nil:
			ev.Error = string(ledger.CodeOf(err))
			if ev.Error != step.ExpectError {
				h.result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got %v", ev.Step, step.Action, step.ExpectError, err))
			}
		case step.ExpectError != "":
			h.result.AddError(fmt.Sprintf("step %d (%s): expected error %s, step succeeded", ev.Step, step.Action, step.ExpectError))
		default:
			for _, msg := range checkExpect(step.Expect, ev) {
				h.result.AddError(fmt.Sprintf("step %d (%s): %s", ev.Step, step.Action, msg))
			}
		}

		h.result.AddEvent(ev)
		if h.observe != nil {
			h.observe(ev)
		}
		h.logger.Debug("scenario step completed", "scenario", scenario.Name, "step", ev.Step, "action", step.Action)
	}
	return h.result, nil
}

func (h *Harness) execute(ctx context.Context, step Step, ev *TraceEvent) error {
	switch step.Action {
	case ActionCreateWallet:
		ev.Account = step.Name
		return h.createAccount(step.Name, func(b ledger.AccountBuilder) ledger.AccountBuilder {
			return b.WithWallet()
		})

	case ActionCreateFaucet:
		ev.Account = step.Name
		sym, err := ledger.NewTokenSymbol(step.Symbol)
		if err != nil {
			return err
		}
		return h.createAccount(step.Name, func(b ledger.AccountBuilder) ledger.AccountBuilder {
			return b.AccountType(ledger.FungibleFaucet).WithFaucet(sym, step.Decimals, step.MaxSupply)
		})

	case ActionMint:
		return h.mint(ctx, step, ev)

	case ActionSync:
		// Sync until every submitted transaction is committed, so later
		// steps see their effects on networks with their own block timer.
		return poll.Until(ctx, h.policy, func(ctx context.Context) (bool, error) {
			if h.net.Advance != nil {
				h.net.Advance()
			}
			summary, err := h.eng.SyncState(ctx)
			if err != nil {
				return false, err
			}
			ev.Block = summary.BlockNum
			return !h.hasPending(), nil
		}, h.stepProgress(ev.Step))

	case ActionAwaitConsumable:
		id := h.result.Accounts[step.Account]
		ev.Account = step.Account
		notes, attempts, err := AwaitConsumable(ctx, advancing{h.eng, h.net.Advance}, id, step.Notes, h.policy, h.stepProgress(ev.Step))
		ev.Attempts = attempts
		ev.Notes = len(notes)
		ev.Total = totalAssets(notes)
		ev.Block = h.eng.LastBlock()
		return err

	case ActionConsumeAll:
		id := h.result.Accounts[step.Account]
		ev.Account = step.Account
		notes := slices.Collect(h.eng.ConsumableNotes(id))
		req, err := h.eng.Builder().ConsumeNotes(id, notes)
		if err != nil {
			return err
		}
		ev.Notes = len(notes)
		ev.Total = totalAssets(notes)
		_, err = h.eng.Submit(ctx, id, req)
		return err

	case ActionTransfer:
		return h.transfer(ctx, step, ev)

	case ActionBalance:
		ev.Account = step.Account
		acc, err := h.eng.Account(h.result.Accounts[step.Account])
		if err != nil {
			return err
		}
		ev.Balance = acc.Vault.Balance(h.result.Accounts[step.Faucet])
		ev.Nonce = acc.Nonce
		return nil
	}
	return fmt.Errorf("unknown action %q", step.Action)
}

func (h *Harness) createAccount(name string, kind func(ledger.AccountBuilder) ledger.AccountBuilder) error {
	commitment, err := h.keys.NewKey(h.rng)
	if err != nil {
		return err
	}
	var seed [32]byte
	if _, err := io.ReadFull(h.rng, seed[:]); err != nil {
		return fmt.Errorf("draw account seed: %w", err)
	}
	acc, err := kind(ledger.NewAccountBuilder(seed).WithAuth(commitment)).Build()
	if err != nil {
		return err
	}
	if err := h.eng.AddAccount(acc); err != nil {
		return err
	}
	h.result.Accounts[name] = acc.ID
	return nil
}

func (h *Harness) mint(ctx context.Context, step Step, ev *TraceEvent) error {
	faucet := h.result.Accounts[step.Account]
	noteType, err := parseNoteType(step.NoteType)
	if err != nil {
		return err
	}
	count := max(step.Count, 1)

	ev.Account = step.Account
	ev.Target = strings.Join(step.To, ",")
	ev.Amount = step.Amount
	for _, to := range step.To {
		for range count {
			req, err := h.eng.Builder().Mint(ledger.FungibleAsset{Faucet: faucet, Amount: step.Amount}, h.result.Accounts[to], noteType)
			if err != nil {
				return err
			}
			if _, err := h.eng.Submit(ctx, faucet, req); err != nil {
				return err
			}
			ev.Notes++
		}
	}
	return nil
}

func (h *Harness) transfer(ctx context.Context, step Step, ev *TraceEvent) error {
	sender := h.result.Accounts[step.Account]
	noteType, err := parseNoteType(step.NoteType)
	if err != nil {
		return err
	}
	asset := ledger.FungibleAsset{Faucet: h.result.Accounts[step.Faucet], Amount: step.Amount}

	targets := slices.Clone(step.To)
	var payments []txbuilder.Payment
	for _, to := range step.To {
		payments = append(payments, txbuilder.Payment{Target: h.result.Accounts[to], Asset: asset})
	}
	for i := range step.DummyRecipients {
		var seed [15]byte
		if _, err := io.ReadFull(h.rng, seed[:]); err != nil {
			return fmt.Errorf("draw recipient seed: %w", err)
		}
		name := fmt.Sprintf("dummy-%d-%d", ev.Step, i+1)
		id := ledger.DummyAccountID(seed, ledger.RegularUpdatable, ledger.StoragePublic)
		h.result.Accounts[name] = id
		targets = append(targets, name)
		payments = append(payments, txbuilder.Payment{Target: id, Asset: asset})
	}

	ev.Account = step.Account
	ev.Target = strings.Join(targets, ",")
	ev.Amount = step.Amount
	req, err := h.eng.Builder().Transfer(sender, payments, noteType)
	if err != nil {
		return err
	}
	if _, err := h.eng.Submit(ctx, sender, req); err != nil {
		return err
	}
	ev.Notes = len(payments)
	return nil
}

func (h *Harness) stepProgress(step int) poll.Progress {
	return func(attempt int, err error) {
		if h.progress != nil {
			h.progress(step, attempt, err)
		}
	}
}

func (h *Harness) hasPending() bool {
	for _, tx := range h.eng.Transactions() {
		if tx.Status == engine.TxPending {
			return true
		}
	}
	return false
}

func parseNoteType(s string) (ledger.NoteType, error) {
	if s == "" {
		return ledger.NotePublic, nil
	}
	return ledger.ParseNoteType(s)
}

func totalAssets(notes []ledger.Note) uint64 {
	var sum uint64
	for _, n := range notes {
		for _, a := range n.Assets {
			sum += a.Amount
		}
	}
	return sum
}

func checkExpect(want *Expect, got TraceEvent) []string {
	if want == nil {
		return nil
	}
	var errs []string
	if want.Notes != nil && *want.Notes != got.Notes {
		errs = append(errs, fmt.Sprintf("notes = %d, want %d", got.Notes, *want.Notes))
	}
	if want.Total != nil && *want.Total != got.Total {
		errs = append(errs, fmt.Sprintf("total = %d, want %d", got.Total, *want.Total))
	}
	if want.Balance != nil && *want.Balance != got.Balance {
		errs = append(errs, fmt.Sprintf("balance = %d, want %d", got.Balance, *want.Balance))
	}
	if want.Nonce != nil && *want.Nonce != got.Nonce {
		errs = append(errs, fmt.Sprintf("nonce = %d, want %d", got.Nonce, *want.Nonce))
	}
	if want.Block != nil && *want.Block != got.Block {
		errs = append(errs, fmt.Sprintf("block = %d, want %d", got.Block, *want.Block))
	}
	return errs
}

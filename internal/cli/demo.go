package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/notekeeper/internal/harness"
	"github.com/roach88/notekeeper/internal/remote"
)

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	Remote   bool
	Scenario string
}

// DemoResult holds the outcome of a scenario run.
type DemoResult struct {
	Scenario string               `json:"scenario"`
	Pass     bool                 `json:"pass"`
	Trace    []harness.TraceEvent `json:"trace"`
	Errors   []string             `json:"errors,omitempty"`
	Accounts map[string]string    `json:"accounts"`
}

func (r DemoResult) String() string {
	var b strings.Builder
	for _, ev := range r.Trace {
		b.WriteString(describeEvent(ev))
		b.WriteByte('\n')
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  FAIL %s\n", e)
	}
	if r.Pass {
		fmt.Fprintf(&b, "Scenario %s passed.", r.Scenario)
	} else {
		fmt.Fprintf(&b, "Scenario %s failed.", r.Scenario)
	}
	return b.String()
}

func describeEvent(ev harness.TraceEvent) string {
	var detail string
	switch ev.Action {
	case harness.ActionCreateWallet, harness.ActionCreateFaucet:
		detail = ev.Account
	case harness.ActionMint:
		detail = fmt.Sprintf("%s -> %s: %d notes of %d", ev.Account, ev.Target, ev.Notes, ev.Amount)
	case harness.ActionSync:
		detail = fmt.Sprintf("block %d", ev.Block)
	case harness.ActionAwaitConsumable:
		detail = fmt.Sprintf("%s: %d notes (%d units) after %d attempt(s)", ev.Account, ev.Notes, ev.Total, ev.Attempts)
	case harness.ActionConsumeAll:
		detail = fmt.Sprintf("%s: %d notes (%d units)", ev.Account, ev.Notes, ev.Total)
	case harness.ActionTransfer:
		detail = fmt.Sprintf("%s -> %s: %d each", ev.Account, ev.Target, ev.Amount)
	case harness.ActionBalance:
		detail = fmt.Sprintf("%s: %d (nonce %d)", ev.Account, ev.Balance, ev.Nonce)
	}
	line := fmt.Sprintf("%2d. %-16s %s", ev.Step, ev.Action, detail)
	if ev.Error != "" {
		line += " [" + ev.Error + "]"
	}
	return line
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the built-in demo or a scenario file",
		Long: `Run a scripted client session: deploy a faucet MID, mint five notes of 100
to a wallet, wait until they are consumable, consume them, and pay 50 to five
fresh recipients in two transactions.

By default the scenario runs against an in-process devnet that produces a
block whenever the client syncs. With --remote it runs against the configured
endpoint and waits for blocks using the configured poll policy. The demo uses
a throwaway keystore and never touches the local store.

Exit codes:
  0 - Scenario passed
  1 - Scenario failed or a step errored
  2 - Command error (unreadable scenario, bad config, etc.)

Example:
  notekeeper demo
  notekeeper demo --remote --endpoint 127.0.0.1:57291
  notekeeper demo --scenario ./payments.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Remote, "remote", false, "run against the configured endpoint instead of an in-process devnet")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "scenario YAML file (default: built-in demo)")

	return cmd
}

func runDemo(opts *DemoOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := newLogger(opts.RootOptions, cmd)

	scenario := harness.Demo()
	if opts.Scenario != "" {
		s, err := harness.LoadScenario(opts.Scenario)
		if err != nil {
			return f.Fail("failed to load scenario", err)
		}
		scenario = s
	}

	cfg, err := resolveConfig(opts.RootOptions)
	if err != nil {
		return f.Fail("invalid configuration", err)
	}

	net := harness.LocalNetwork(logger)
	if opts.Remote {
		client, err := remote.Dial(cfg.Endpoint)
		if err != nil {
			return f.Fail("failed to connect", err)
		}
		defer client.Close()
		net = harness.Network{Client: client}
		f.VerboseLog("Running %s against %s", scenario.Name, cfg.Endpoint)
	}

	ctx, cancel := commandContext(cmd, logger)
	defer cancel()

	policy := cfg.PollPolicy()
	result, err := harness.Run(ctx, scenario,
		harness.WithNetwork(net),
		harness.WithLogger(logger),
		harness.WithPollPolicy(policy),
		harness.WithProgress(func(step, attempt int, err error) {
			msg := fmt.Sprintf("step %d: waiting for notes (attempt %d/%d)", step, attempt, policy.MaxAttempts)
			if err != nil {
				msg += ": " + err.Error()
			}
			fmt.Fprintln(f.GetErrWriter(), msg)
		}),
		harness.WithObserver(func(ev harness.TraceEvent) {
			f.VerboseLog("%s", describeEvent(ev))
		}),
	)
	if err != nil {
		return f.Fail("scenario "+scenario.Name+" aborted", err)
	}

	out := DemoResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Trace:    result.Trace,
		Errors:   result.Errors,
		Accounts: make(map[string]string, len(result.Accounts)),
	}
	for name, id := range result.Accounts {
		out.Accounts[name] = id.String()
	}
	if err := f.Success(out); err != nil {
		return err
	}
	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

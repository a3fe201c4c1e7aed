package harness

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/notekeeper/internal/ledger"
)

// Scenario is a scripted sequence of client operations, the way an
// application drives the client: deploy accounts, mint, wait for notes,
// consume, pay.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// Seed makes key, account and note randomness reproducible.
	// Zero uses crypto/rand.
	Seed uint64 `yaml:"seed,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`
}

// Step is one scenario operation. Which fields apply depends on Action.
type Step struct {
	Action string `yaml:"action"`

	// create_wallet, create_faucet
	Name      string `yaml:"name,omitempty"`
	Symbol    string `yaml:"symbol,omitempty"`
	Decimals  uint8  `yaml:"decimals,omitempty"`
	MaxSupply uint64 `yaml:"max_supply,omitempty"`

	// Account is the acting account: the faucet for mint, the sender for
	// transfer, the holder for await_consumable, consume_all and balance.
	Account string `yaml:"account,omitempty"`

	// Faucet names the asset for transfer and balance.
	Faucet string `yaml:"faucet,omitempty"`

	To              []string `yaml:"to,omitempty"`
	DummyRecipients int      `yaml:"dummy_recipients,omitempty"`
	Amount          uint64   `yaml:"amount,omitempty"`
	Count           int      `yaml:"count,omitempty"`
	NoteType        string   `yaml:"note_type,omitempty"`

	// Notes is the number of consumable notes await_consumable waits for.
	Notes int `yaml:"notes,omitempty"`

	// Expect checks fields of the step's trace event.
	Expect *Expect `yaml:"expect,omitempty"`

	// ExpectError is the error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Expect is a subset match against a step's trace event. Nil fields are not
// checked.
type Expect struct {
	Notes   *int    `yaml:"notes,omitempty"`
	Total   *uint64 `yaml:"total,omitempty"`
	Balance *uint64 `yaml:"balance,omitempty"`
	Nonce   *uint64 `yaml:"nonce,omitempty"`
	Block   *uint64 `yaml:"block,omitempty"`
}

// Step actions.
const (
	ActionCreateWallet    = "create_wallet"
	ActionCreateFaucet    = "create_faucet"
	ActionMint            = "mint"
	ActionSync            = "sync"
	ActionAwaitConsumable = "await_consumable"
	ActionConsumeAll      = "consume_all"
	ActionTransfer        = "transfer"
	ActionBalance         = "balance"
)

//go:embed scenarios/demo.yaml
var demoYAML []byte

// Demo returns the built-in demo scenario: deploy faucet MID, mint 5 notes
// of 100 to a wallet, consume them all, then pay 50 to each of five fresh
// recipients in two transactions.
func Demo() *Scenario {
	s, err := ParseScenario(demoYAML)
	if err != nil {
		// Unreachable: the embedded scenario is covered by tests.
		panic(err)
	}
	return s
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "amout:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and that every
// alias is defined before use.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	wallets := map[string]bool{}
	faucets := map[string]bool{}
	defined := func(name string) bool { return wallets[name] || faucets[name] }

	for i, step := range s.Steps {
		at := func(format string, args ...any) error {
			return fmt.Errorf("steps[%d] (%s): %s", i, step.Action, fmt.Sprintf(format, args...))
		}
		if step.NoteType != "" {
			if _, err := ledger.ParseNoteType(step.NoteType); err != nil {
				return at("%v", err)
			}
		}
		if step.ExpectError != "" && step.Expect != nil {
			return at("expect and expect_error are mutually exclusive")
		}

		switch step.Action {
		case ActionCreateWallet, ActionCreateFaucet:
			if step.Name == "" {
				return at("name is required")
			}
			if defined(step.Name) {
				return at("account %q already defined", step.Name)
			}
			if step.Action == ActionCreateWallet {
				wallets[step.Name] = true
				continue
			}
			if step.Symbol == "" || step.MaxSupply == 0 {
				return at("symbol and max_supply are required")
			}
			faucets[step.Name] = true

		case ActionMint:
			if !faucets[step.Account] {
				return at("account %q is not a faucet", step.Account)
			}
			if len(step.To) == 0 {
				return at("to is required")
			}
			for _, to := range step.To {
				if !defined(to) {
					return at("unknown account %q", to)
				}
			}

		case ActionTransfer:
			if !wallets[step.Account] {
				return at("account %q is not a wallet", step.Account)
			}
			if !faucets[step.Faucet] {
				return at("faucet %q is not defined", step.Faucet)
			}
			if len(step.To) == 0 && step.DummyRecipients == 0 {
				return at("to or dummy_recipients is required")
			}
			for _, to := range step.To {
				if !defined(to) {
					return at("unknown account %q", to)
				}
			}

		case ActionAwaitConsumable:
			if !defined(step.Account) {
				return at("unknown account %q", step.Account)
			}
			if step.Notes <= 0 {
				return at("notes must be positive")
			}

		case ActionConsumeAll:
			if !defined(step.Account) {
				return at("unknown account %q", step.Account)
			}

		case ActionBalance:
			if !defined(step.Account) {
				return at("unknown account %q", step.Account)
			}
			if !faucets[step.Faucet] {
				return at("faucet %q is not defined", step.Faucet)
			}

		case ActionSync:

		case "":
			return at("action is required")
		default:
			return at("unknown action")
		}
	}
	return nil
}

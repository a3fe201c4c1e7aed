package harness

import (
	"github.com/roach88/notekeeper/internal/engine"
	"github.com/roach88/notekeeper/internal/ledger"
)

// TraceEvent records the observable outcome of one scenario step.
// Accounts appear by scenario alias, never by id, so traces are stable
// across seeds.
type TraceEvent struct {
	Step     int    `json:"step"`
	Action   string `json:"action"`
	Account  string `json:"account,omitempty"`
	Target   string `json:"target,omitempty"`
	Amount   uint64 `json:"amount,omitempty"`
	Notes    int    `json:"notes,omitempty"`
	Total    uint64 `json:"total,omitempty"`
	Balance  uint64 `json:"balance,omitempty"`
	Nonce    uint64 `json:"nonce,omitempty"`
	Block    uint64 `json:"block,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation matched.
	Pass bool `json:"pass"`

	// Trace holds one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation mismatches. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Accounts maps every alias, including generated dummy recipients, to
	// its account id.
	Accounts map[string]ledger.AccountID `json:"accounts"`

	// Engine is the client the scenario ran against, for state inspection.
	Engine *engine.Engine `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Accounts: make(map[string]ledger.AccountID),
	}
}

// AddError adds an expectation mismatch and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a step event to the trace.
func (r *Result) AddEvent(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

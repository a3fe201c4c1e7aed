// Package registry owns the locally tracked accounts and their latest known
// on-chain snapshot.
//
// Snapshots only move forward: an update is applied only when its nonce is
// strictly greater than the stored one. Anything else is reported as
// STALE_UPDATE rather than ignored.
package registry

import (
	"bytes"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/notekeeper/internal/ledger"
)

// Registry holds account snapshots keyed by id.
//
// Thread-safety: all methods are safe for concurrent use. Reads take a shared
// lock and return deep copies, so callers never alias stored state.
type Registry struct {
	mu       sync.RWMutex
	accounts map[ledger.AccountID]ledger.Account
	logger   *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		accounts: make(map[ledger.AccountID]ledger.Account),
		logger:   logger,
	}
}

// Register starts tracking an account.
//
// Registering the same id again with the same auth commitment is a no-op;
// a different commitment fails with ACCOUNT_CONFLICT.
func (r *Registry) Register(acc ledger.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.accounts[acc.ID]; ok {
		if existing.AuthCommitment != acc.AuthCommitment {
			return ledger.Errorf(ledger.ErrCodeAccountConflict,
				"account %s already registered with auth commitment %s", acc.ID, existing.AuthCommitment)
		}
		return nil
	}

	r.accounts[acc.ID] = acc.Clone()
	r.logger.Info("account registered", "account", acc.ID, "kind", acc.Kind, "type", acc.Type())
	return nil
}

// Get returns a copy of the stored snapshot.
func (r *Registry) Get(id ledger.AccountID) (ledger.Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.accounts[id]
	if !ok {
		return ledger.Account{}, false
	}
	return acc.Clone(), true
}

// MustGet is like Get but fails with ACCOUNT_NOT_FOUND.
func (r *Registry) MustGet(id ledger.AccountID) (ledger.Account, error) {
	acc, ok := r.Get(id)
	if !ok {
		return ledger.Account{}, ledger.Errorf(ledger.ErrCodeAccountNotFound, "account %s is not tracked", id)
	}
	return acc, nil
}

// Tracks reports whether id is registered.
func (r *Registry) Tracks(id ledger.AccountID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.accounts[id]
	return ok
}

// List returns all snapshots ordered by id.
func (r *Registry) List() []ledger.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ledger.Account, 0, len(r.accounts))
	for _, acc := range r.accounts {
		out = append(out, acc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return out
}

// ApplyUpdate overwrites the snapshot if update is strictly newer.
func (r *Registry) ApplyUpdate(update ledger.Account) error {
	return r.ApplyUpdates([]ledger.Account{update})
}

// CheckUpdates validates a batch without applying it. Updates for untracked
// accounts are skipped. Returns the updates that would be applied.
func (r *Registry) CheckUpdates(updates []ledger.Account) ([]ledger.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkLocked(updates)
}

// ApplyUpdates applies a batch atomically: either every tracked update is
// strictly newer and all are applied, or nothing changes.
func (r *Registry) ApplyUpdates(updates []ledger.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accepted, err := r.checkLocked(updates)
	if err != nil {
		return err
	}
	for _, u := range accepted {
		r.accounts[u.ID] = u.Clone()
		r.logger.Debug("account updated", "account", u.ID, "nonce", u.Nonce)
	}
	return nil
}

func (r *Registry) checkLocked(updates []ledger.Account) ([]ledger.Account, error) {
	accepted := make([]ledger.Account, 0, len(updates))
	seen := make(map[ledger.AccountID]uint64, len(updates))

	for _, u := range updates {
		current, ok := r.accounts[u.ID]
		if !ok {
			continue
		}
		floor := current.Nonce
		if prev, dup := seen[u.ID]; dup {
			floor = prev
		}
		if u.Nonce <= floor {
			return nil, ledger.Errorf(ledger.ErrCodeStaleUpdate,
				"account %s: update nonce %d is not newer than %d", u.ID, u.Nonce, floor)
		}
		if u.AuthCommitment != current.AuthCommitment {
			return nil, ledger.Errorf(ledger.ErrCodeAccountConflict,
				"account %s: update changes auth commitment", u.ID)
		}
		seen[u.ID] = u.Nonce
		accepted = append(accepted, u)
	}
	return accepted, nil
}

// Restore replaces the registry contents from a persisted snapshot.
// Called at startup only.
func (r *Registry) Restore(accounts []ledger.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts = make(map[ledger.AccountID]ledger.Account, len(accounts))
	for _, acc := range accounts {
		r.accounts[acc.ID] = acc.Clone()
	}
}

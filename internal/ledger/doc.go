// Package ledger provides the value types shared by every notekeeper package.
//
// This package contains identity, account, asset and note types only. All other
// internal packages import ledger; ledger imports nothing internal.
//
// Key design constraints:
//   - Values are immutable once built; builders validate at Build time
//   - Identifiers are content-addressed BLAKE2b-256 digests with domain separation
//   - Account kinds form a closed set (wallet, fungible faucet)
//   - All JSON tags use snake_case
package ledger

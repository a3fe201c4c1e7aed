// Package engine implements the notekeeper client: the context object that
// keeps local account and note state synchronized with a remote ledger and
// submits transactions against it.
//
// ARCHITECTURE:
//
// State ownership:
// The account registry and the note store own all local state. The request
// builder only reads them; the engine applies every change.
//
// Sync round:
//  1. FetchDelta from the last applied block, for the tracked accounts
//  2. check account updates (monotonic nonces) without mutating
//  3. reconcile notes (insert, promote expected, mark consumed, age claims)
//  4. apply account updates and transaction statuses, advance the block
//
// Steps 2-4 run under the mutation lock; a failing check aborts the round
// before anything changes.
//
// Submission:
//  1. claim input notes for the locally computed transaction id
//  2. sign the id with the account's auth key
//  3. submit with a timeout
//  4. on failure or cancellation release the claims; on success log the
//     transaction as pending and record its outputs as expected
//
// CRITICAL PATTERNS:
//
// Serialized sync:
// Sync rounds never overlap. Network calls run outside the mutation lock so
// local reads are never blocked by a slow remote.
//
// Claim before round-trip:
// A note carries at most one pending-consumption claim. The claim is taken
// before the network call returns and released on every failure path.
package engine

// Package harness runs scripted client scenarios end to end.
//
// A scenario is a YAML list of steps (create_wallet, create_faucet, mint,
// sync, await_consumable, consume_all, transfer, balance) executed through a
// real engine against a ledger network: by default a fresh in-process
// devnet, or any remote.LedgerClient. Each step appends one TraceEvent to the
// result; accounts appear by alias, so a seeded scenario produces the same
// trace on every run and can be compared against a golden file.
//
// The built-in demo (Demo) deploys faucet MID, mints five notes of 100 to a
// wallet, waits until they are consumable, consumes them in one transaction
// and pays 50 to each of five fresh recipients.
//
// # Waiting for visibility
//
// Submitted effects become visible only after a block is produced and a sync
// round applies it. AwaitConsumable polls with a bounded policy and reports
// every unsuccessful attempt. Against the local devnet a block is produced
// before every sync, so waits complete on the first attempt.
package harness

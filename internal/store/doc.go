// Package store provides SQLite-backed durable storage for notekeeper client
// state: tracked accounts, known notes with their local status and claims,
// the transaction log, and the last synced block.
//
// The store is a snapshot store. SaveSnapshot rewrites every table in one
// transaction, LoadSnapshot reads them back. Both are called at process
// startup and shutdown boundaries, never in the middle of a sync round or a
// submission.
//
// # Critical Patterns
//
// Logical ordering:
//   - notes and transactions carry a seq column (insertion order, logical
//     clock), NEVER timestamps
//   - every query orders by seq ASC, id COLLATE BINARY ASC so a load
//     reproduces the saved order exactly
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Row payloads are JSON TEXT; the indexed columns beside them (status,
// recipient, account) exist for inspection with the sqlite3 shell.
package store

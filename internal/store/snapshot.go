package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/notekeeper/internal/engine"
	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/notestore"
)

// SaveSnapshot replaces the stored state with snap in a single transaction.
// Either the whole snapshot is written or the previous one is kept.
func (s *Store) SaveSnapshot(ctx context.Context, snap engine.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, table := range []string{"accounts", "notes", "transactions", "sync_state"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("save snapshot: clear %s: %w", table, err)
		}
	}

	for _, acc := range snap.Accounts {
		if err := insertAccount(ctx, tx, acc); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	for i, rec := range snap.Notes {
		if err := insertNote(ctx, tx, int64(i), rec); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	for _, rec := range snap.Transactions {
		if err := insertTransaction(ctx, tx, rec); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sync_state (id, last_block) VALUES (1, ?)", int64(snap.LastBlock),
	); err != nil {
		return fmt.Errorf("save snapshot: write sync state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: commit: %w", err)
	}
	return nil
}

// LoadSnapshot reads the stored state. found is false for a store that has
// never been saved to.
func (s *Store) LoadSnapshot(ctx context.Context) (snap engine.Snapshot, found bool, err error) {
	var lastBlock int64
	err = s.db.QueryRowContext(ctx, "SELECT last_block FROM sync_state WHERE id = 1").Scan(&lastBlock)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Snapshot{}, false, nil
	}
	if err != nil {
		return engine.Snapshot{}, false, fmt.Errorf("load snapshot: read sync state: %w", err)
	}
	snap.LastBlock = uint64(lastBlock)

	if snap.Accounts, err = loadAccounts(ctx, s.db); err != nil {
		return engine.Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Notes, err = loadNotes(ctx, s.db); err != nil {
		return engine.Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Transactions, err = loadTransactions(ctx, s.db); err != nil {
		return engine.Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, true, nil
}

func insertAccount(ctx context.Context, tx *sql.Tx, acc ledger.Account) error {
	data, err := marshalRow("account", acc)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO accounts (id, kind, nonce, data) VALUES (?, ?, ?, ?)",
		acc.ID.String(), string(acc.Kind), int64(acc.Nonce), data,
	)
	if err != nil {
		return fmt.Errorf("write account %s: %w", acc.ID, err)
	}
	return nil
}

func insertNote(ctx context.Context, tx *sql.Tx, seq int64, rec notestore.Record) error {
	data, err := marshalRow("note", rec)
	if err != nil {
		return err
	}
	claimedBy := ""
	if !rec.ClaimedBy.IsZero() {
		claimedBy = rec.ClaimedBy.String()
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO notes (id, seq, status, recipient, claimed_by, data) VALUES (?, ?, ?, ?, ?, ?)",
		rec.Note.ID.String(), seq, string(rec.Status), rec.Note.Recipient.Target.String(), claimedBy, data,
	)
	if err != nil {
		return fmt.Errorf("write note %s: %w", rec.Note.ID, err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, rec engine.TransactionRecord) error {
	data, err := marshalRow("transaction", rec)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO transactions (id, seq, account, status, data) VALUES (?, ?, ?, ?, ?)",
		rec.ID.String(), rec.Seq, rec.Account.String(), string(rec.Status), data,
	)
	if err != nil {
		return fmt.Errorf("write transaction %s: %w", rec.ID, err)
	}
	return nil
}

func loadAccounts(ctx context.Context, db *sql.DB) ([]ledger.Account, error) {
	rows, err := db.QueryContext(ctx, "SELECT data FROM accounts ORDER BY id COLLATE BINARY ASC")
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		var acc ledger.Account
		if err := unmarshalRow("account", data, &acc); err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func loadNotes(ctx context.Context, db *sql.DB) ([]notestore.Record, error) {
	rows, err := db.QueryContext(ctx, "SELECT data FROM notes ORDER BY seq ASC, id COLLATE BINARY ASC")
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var out []notestore.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		var rec notestore.Record
		if err := unmarshalRow("note", data, &rec); err != nil {
			return nil, err
		}
		if err := rec.Note.Verify(); err != nil {
			return nil, fmt.Errorf("stored note %s: %w", rec.Note.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func loadTransactions(ctx context.Context, db *sql.DB) ([]engine.TransactionRecord, error) {
	rows, err := db.QueryContext(ctx, "SELECT data FROM transactions ORDER BY seq ASC, id COLLATE BINARY ASC")
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := []engine.TransactionRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		var rec engine.TransactionRecord
		if err := unmarshalRow("transaction", data, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

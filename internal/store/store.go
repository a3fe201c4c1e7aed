package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/notekeeper/internal/ledger"
)

//go:embed schema.sql
var schemaSQL string

// Store persists client snapshots in a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open creates or opens the client database at path, applying pragmas and
// pending migrations. Failures are INITIALIZATION errors.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, ledger.Errorf(ledger.ErrCodeInitialization, "store path is empty")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, ledger.Wrap(ledger.ErrCodeInitialization, err, "open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, ledger.Wrap(ledger.ErrCodeInitialization, err, "connect to database")
	}

	// One writer; pragmas are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, ledger.Wrap(ledger.ErrCodeInitialization, err, "apply pragmas")
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, ledger.Wrap(ledger.ErrCodeInitialization, err, "apply schema")
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// pragmas are applied to every connection before the schema.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates missing tables, then brings user_version up to
// currentSchemaVersion. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return migrate(db)
}

// migrations[i] upgrades a database from user_version i to i+1.
var migrations = []func(tx *sql.Tx) error{
	// v1: consumable-note listings filter by recipient and status.
	func(tx *sql.Tx) error {
		_, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_notes_recipient_status ON notes(recipient, status)")
		return err
	},
}

// currentSchemaVersion is len(migrations).
const currentSchemaVersion = 1

func migrate(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, len(migrations))
	}
	for v := version; v < len(migrations); v++ {
		if err := migrateStep(db, v); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	return nil
}

// migrateStep runs one migration and records the new version atomically.
func migrateStep(db *sql.DB, from int) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() // No-op if committed

	if err := migrations[from](tx); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", from+1)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}

func userVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

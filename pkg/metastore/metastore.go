package metastore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// Store is the relational metastore: the transactions log, the forms
// index, per-peer watermarks, and the needed-blobs set, all in one
// SQLite database so multi-statement mutations commit together.
type Store struct {
	db *sql.DB
}

// Execer is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// every mutation can run either standalone or inside an explicit
// transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (creating and migrating if needed) the metastore under base
func Open(base string) (*Store, error) {
	dbPath := filepath.Join(base, "database.db")

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %v: %w", err, types.ErrStorage)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %v: %w", err, types.ErrStorage)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool for callers that compose their own
// statements inside WithTx
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		data_type TEXT NOT NULL,
		action TEXT NOT NULL,
		blob_id TEXT NOT NULL,
		alt_key TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_timestamp
		ON transactions(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_entity
		ON transactions(data_type, alt_key, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_blob
		ON transactions(blob_id, timestamp DESC);

	CREATE TABLE IF NOT EXISTS forms (
		blob_id TEXT PRIMARY KEY,
		team INTEGER NOT NULL,
		match_number INTEGER NOT NULL,
		event_key TEXT NOT NULL,
		template TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_forms_template
		ON forms(template);

	CREATE TABLE IF NOT EXISTS watermarks (
		owner_id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS blobs (
		owner_id TEXT NOT NULL,
		blob_id TEXT NOT NULL,
		UNIQUE(owner_id, blob_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// WithTx runs fn inside one database transaction, committing on nil
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %v: %w", err, types.ErrStorage)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %v: %w", err, types.ErrStorage)
	}
	return nil
}

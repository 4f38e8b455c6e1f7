package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

const txnColumns = "id, data_type, action, blob_id, alt_key, timestamp"

// AppendTransaction inserts a transaction row. The caller is responsible
// for the timestamp; monotonicity is enforced by the transaction log.
func (s *Store) AppendTransaction(ctx context.Context, db Execer, txn types.Transaction) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO transactions (id, data_type, action, blob_id, alt_key, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		txn.ID.String(), string(txn.DataType), string(txn.Action),
		txn.BlobID.String(), txn.AltKey, txn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append transaction %s: %v: %w", txn.ID, err, types.ErrStorage)
	}
	return nil
}

// Latest returns the newest transaction for (dataType, altKey)
func (s *Store) Latest(ctx context.Context, dataType types.DataType, altKey string) (types.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+txnColumns+" FROM transactions WHERE data_type = ? AND alt_key = ? ORDER BY timestamp DESC LIMIT 1",
		string(dataType), altKey,
	)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Transaction{}, fmt.Errorf("%s %q: %w", dataType, altKey, types.ErrNotFound)
	}
	return txn, err
}

// LatestAction returns the action of the newest transaction for
// (dataType, altKey)
func (s *Store) LatestAction(ctx context.Context, dataType types.DataType, altKey string) (types.Action, error) {
	txn, err := s.Latest(ctx, dataType, altKey)
	if err != nil {
		return "", err
	}
	return txn.Action, nil
}

// GetTransaction returns a transaction by id
func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (types.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+txnColumns+" FROM transactions WHERE id = ?", id.String(),
	)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Transaction{}, fmt.Errorf("transaction %s: %w", id, types.ErrNotFound)
	}
	return txn, err
}

// HasTransaction reports whether a transaction id is already in the log
func (s *Store) HasTransaction(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE id = ?", id.String(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check transaction %s: %v: %w", id, err, types.ErrStorage)
	}
	return count > 0, nil
}

// BlobOf returns the blob referenced by a transaction
func (s *Store) BlobOf(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	txn, err := s.GetTransaction(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	return txn.BlobID, nil
}

// IsDeleted reports whether the most recent transaction referencing
// blobID carries action Delete. Preserves tombstone semantics for reads
// that remember a blob id.
func (s *Store) IsDeleted(ctx context.Context, blobID uuid.UUID) (bool, error) {
	var action string
	err := s.db.QueryRowContext(ctx,
		"SELECT action FROM transactions WHERE blob_id = ? ORDER BY timestamp DESC LIMIT 1",
		blobID.String(),
	).Scan(&action)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("blob %s has no transaction: %w", blobID, types.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("check blob %s: %v: %w", blobID, err, types.ErrStorage)
	}
	return types.Action(action) == types.ActionDelete, nil
}

// ListLive returns, for the given kind, every alt-key whose latest
// transaction is Add or Edit
func (s *Store) ListLive(ctx context.Context, dataType types.DataType) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t1.alt_key, t1.action FROM transactions t1
		WHERE t1.data_type = ?
		  AND t1.timestamp = (
			SELECT MAX(t2.timestamp) FROM transactions t2
			WHERE t2.data_type = t1.data_type AND t2.alt_key = t1.alt_key
		  )
		ORDER BY t1.alt_key`,
		string(dataType),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %v: %w", dataType, err, types.ErrStorage)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key, action string
		if err := rows.Scan(&key, &action); err != nil {
			return nil, fmt.Errorf("scan alt key: %v: %w", err, types.ErrStorage)
		}
		if types.Action(action).Live() {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %v: %w", dataType, err, types.ErrStorage)
	}
	return keys, nil
}

// CountByAltKey returns the total number of transactions recorded for
// (altKey, dataType). The UI cache uses changes in this count to
// invalidate entries.
func (s *Store) CountByAltKey(ctx context.Context, altKey string, dataType types.DataType) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE alt_key = ? AND data_type = ?",
		altKey, string(dataType),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s %q: %v: %w", dataType, altKey, err, types.ErrStorage)
	}
	return count, nil
}

// First returns the earliest transaction in the log, or nil if the log
// is empty
func (s *Store) First(ctx context.Context) (*types.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+txnColumns+" FROM transactions ORDER BY timestamp ASC LIMIT 1",
	)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// After returns the transaction with the smallest timestamp strictly
// greater than the given row's, or nil if the id names the tail
func (s *Store) After(ctx context.Context, id uuid.UUID) (*types.Transaction, error) {
	anchor, err := s.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+txnColumns+" FROM transactions WHERE timestamp > ? ORDER BY timestamp ASC LIMIT 1",
		anchor.Timestamp,
	)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// AllTransactionIDs returns every transaction id in the log. Used by the
// diff bootstrap reconciliation.
func (s *Store) AllTransactionIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM transactions ORDER BY timestamp ASC")
	if err != nil {
		return nil, fmt.Errorf("list transaction ids: %v: %w", err, types.ErrStorage)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan transaction id: %v: %w", err, types.ErrStorage)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("transaction id %q: %v: %w", raw, err, types.ErrDecode)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transaction ids: %v: %w", err, types.ErrStorage)
	}
	return ids, nil
}

// FormTransactionsInOrder returns every Form Add/Edit transaction in
// timestamp order. Used to rebuild the forms index from the log.
func (s *Store) FormTransactionsInOrder(ctx context.Context) ([]types.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+txnColumns+" FROM transactions WHERE data_type = ? AND action != ? ORDER BY timestamp ASC",
		string(types.DataTypeForm), string(types.ActionDelete),
	)
	if err != nil {
		return nil, fmt.Errorf("list form transactions: %v: %w", err, types.ErrStorage)
	}
	defer rows.Close()

	var txns []types.Transaction
	for rows.Next() {
		txn, err := scanTransactionRows(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list form transactions: %v: %w", err, types.ErrStorage)
	}
	return txns, nil
}

// MaxTimestamp returns the newest timestamp in the log (0 when empty).
// The transaction log seeds its clock from this so timestamps stay
// monotonic across restarts.
func (s *Store) MaxTimestamp(ctx context.Context) (int64, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(timestamp), 0) FROM transactions").Scan(&ts)
	if err != nil {
		return 0, fmt.Errorf("max timestamp: %v: %w", err, types.ErrStorage)
	}
	return ts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row *sql.Row) (types.Transaction, error) {
	return scanTxn(row)
}

func scanTransactionRows(rows *sql.Rows) (types.Transaction, error) {
	return scanTxn(rows)
}

func scanTxn(r rowScanner) (types.Transaction, error) {
	var (
		txn              types.Transaction
		id, blobID       string
		dataType, action string
	)
	if err := r.Scan(&id, &dataType, &action, &blobID, &txn.AltKey, &txn.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return txn, err
		}
		return txn, fmt.Errorf("scan transaction: %v: %w", err, types.ErrStorage)
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return txn, fmt.Errorf("transaction id %q: %v: %w", id, err, types.ErrDecode)
	}
	parsedBlob, err := uuid.Parse(blobID)
	if err != nil {
		return txn, fmt.Errorf("blob id %q: %v: %w", blobID, err, types.ErrDecode)
	}
	dt, err := types.ParseDataType(dataType)
	if err != nil {
		return txn, err
	}
	act, err := types.ParseAction(action)
	if err != nil {
		return txn, err
	}

	txn.ID = parsedID
	txn.BlobID = parsedBlob
	txn.DataType = dt
	txn.Action = act
	return txn, nil
}

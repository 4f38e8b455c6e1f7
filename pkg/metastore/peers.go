package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// Watermark returns the last transaction of owner this node has observed.
// ok is false when the peer has never been synced.
func (s *Store) Watermark(ctx context.Context, ownerID uuid.UUID) (uuid.UUID, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT transaction_id FROM watermarks WHERE owner_id = ?", ownerID.String(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("read watermark for %s: %v: %w", ownerID, err, types.ErrStorage)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("watermark %q: %v: %w", raw, err, types.ErrDecode)
	}
	return id, true, nil
}

// SetWatermark replaces the watermark for owner. The delete and insert
// run inside one database transaction so the table never holds two rows
// for a peer.
func (s *Store) SetWatermark(ctx context.Context, ownerID, txnID uuid.UUID) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM watermarks WHERE owner_id = ?", ownerID.String(),
		); err != nil {
			return fmt.Errorf("clear watermark for %s: %v: %w", ownerID, err, types.ErrStorage)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO watermarks (owner_id, transaction_id) VALUES (?, ?)",
			ownerID.String(), txnID.String(),
		); err != nil {
			return fmt.Errorf("set watermark for %s: %v: %w", ownerID, err, types.ErrStorage)
		}
		return nil
	})
}

// AddNeededBlob records that a blob referenced by an accepted transaction
// has not been transferred yet
func (s *Store) AddNeededBlob(ctx context.Context, ownerID, blobID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO blobs (owner_id, blob_id) VALUES (?, ?)",
		ownerID.String(), blobID.String(),
	)
	if err != nil {
		return fmt.Errorf("record needed blob %s: %v: %w", blobID, err, types.ErrStorage)
	}
	return nil
}

// RemoveNeededBlob clears a needed-blob entry once the payload arrived
func (s *Store) RemoveNeededBlob(ctx context.Context, ownerID, blobID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM blobs WHERE owner_id = ? AND blob_id = ?",
		ownerID.String(), blobID.String(),
	)
	if err != nil {
		return fmt.Errorf("clear needed blob %s: %v: %w", blobID, err, types.ErrStorage)
	}
	return nil
}

// NeededBlobs lists the blobs still owed by a peer
func (s *Store) NeededBlobs(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT blob_id FROM blobs WHERE owner_id = ? ORDER BY blob_id", ownerID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list needed blobs for %s: %v: %w", ownerID, err, types.ErrStorage)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan needed blob: %v: %w", err, types.ErrStorage)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("needed blob id %q: %v: %w", raw, err, types.ErrDecode)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list needed blobs for %s: %v: %w", ownerID, err, types.ErrStorage)
	}
	return ids, nil
}

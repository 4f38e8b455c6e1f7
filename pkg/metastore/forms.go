package metastore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// UpsertForm inserts an index row for a live form version. removePrior,
// when set, names the blob of the version this one supersedes; its row is
// deleted first so the index keeps one row per live form.
func (s *Store) UpsertForm(ctx context.Context, db Execer, row types.FormRow, removePrior *uuid.UUID) error {
	if removePrior != nil {
		if err := s.RemoveForm(ctx, db, *removePrior); err != nil {
			return err
		}
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO forms (blob_id, team, match_number, event_key, template)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(blob_id) DO UPDATE SET
			team = excluded.team,
			match_number = excluded.match_number,
			event_key = excluded.event_key,
			template = excluded.template`,
		row.BlobID.String(), row.Team, row.MatchNumber, row.EventKey, row.Template,
	)
	if err != nil {
		return fmt.Errorf("upsert form row %s: %v: %w", row.BlobID, err, types.ErrStorage)
	}
	return nil
}

// RemoveForm deletes the index row for a blob id
func (s *Store) RemoveForm(ctx context.Context, db Execer, blobID uuid.UUID) error {
	_, err := db.ExecContext(ctx, "DELETE FROM forms WHERE blob_id = ?", blobID.String())
	if err != nil {
		return fmt.Errorf("remove form row %s: %v: %w", blobID, err, types.ErrStorage)
	}
	return nil
}

// liveFormJoin restricts index rows to forms whose latest transaction is
// not a tombstone. The join recovers the form's alt-key through the
// Add/Edit transaction that minted the row's blob.
const liveFormJoin = `
	FROM forms f
	JOIN transactions t
	  ON t.blob_id = f.blob_id AND t.data_type = 'Form' AND t.action != 'Delete'
	WHERE f.template = ?
	  AND (SELECT t2.action FROM transactions t2
		   WHERE t2.data_type = 'Form' AND t2.alt_key = t.alt_key
		   ORDER BY t2.timestamp DESC LIMIT 1) != 'Delete'`

// FilterForms returns the blob ids of live forms for a template matching
// the indexed predicates of the filter. The scouter predicate is not
// indexed; the storage manager applies it over the candidate payloads.
func (s *Store) FilterForms(ctx context.Context, template string, filter types.Filter) ([]uuid.UUID, error) {
	var sb strings.Builder
	sb.WriteString("SELECT DISTINCT f.blob_id")
	sb.WriteString(liveFormJoin)
	args := []any{template}

	if filter.Team != nil {
		sb.WriteString(" AND f.team = ?")
		args = append(args, *filter.Team)
	}
	if filter.MatchNumber != nil {
		sb.WriteString(" AND f.match_number = ?")
		args = append(args, *filter.MatchNumber)
	}
	if filter.Event != nil {
		sb.WriteString(" AND f.event_key = ?")
		args = append(args, *filter.Event)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("filter forms for %q: %v: %w", template, err, types.ErrStorage)
	}
	defer rows.Close()

	var blobIDs []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan form row: %v: %w", err, types.ErrStorage)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("form blob id %q: %v: %w", raw, err, types.ErrDecode)
		}
		blobIDs = append(blobIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filter forms for %q: %v: %w", template, err, types.ErrStorage)
	}
	return blobIDs, nil
}

// ListFormUUIDs returns the distinct live form alt-keys for a template
func (s *Store) ListFormUUIDs(ctx context.Context, template string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT t.alt_key"+liveFormJoin+" ORDER BY t.alt_key", template,
	)
	if err != nil {
		return nil, fmt.Errorf("list forms for %q: %v: %w", template, err, types.ErrStorage)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan form uuid: %v: %w", err, types.ErrStorage)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list forms for %q: %v: %w", template, err, types.ErrStorage)
	}
	return ids, nil
}

// AllFormRows returns the full forms index. Used by tests and the rebuild
// equivalence check.
func (s *Store) AllFormRows(ctx context.Context) ([]types.FormRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT blob_id, team, match_number, event_key, template FROM forms ORDER BY blob_id",
	)
	if err != nil {
		return nil, fmt.Errorf("list form rows: %v: %w", err, types.ErrStorage)
	}
	defer rows.Close()

	var out []types.FormRow
	for rows.Next() {
		var (
			row types.FormRow
			raw string
		)
		if err := rows.Scan(&raw, &row.Team, &row.MatchNumber, &row.EventKey, &row.Template); err != nil {
			return nil, fmt.Errorf("scan form row: %v: %w", err, types.ErrStorage)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("form blob id %q: %v: %w", raw, err, types.ErrDecode)
		}
		row.BlobID = id
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list form rows: %v: %w", err, types.ErrStorage)
	}
	return out, nil
}

// ClearForms empties the forms index ahead of a rebuild
func (s *Store) ClearForms(ctx context.Context, db Execer) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM forms"); err != nil {
		return fmt.Errorf("clear forms index: %v: %w", err, types.ErrStorage)
	}
	return nil
}

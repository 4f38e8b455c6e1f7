package manager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/CCShambots/5907-scouting-api/pkg/events"
	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// FormsAdd validates the form against the template, mints its uuid,
// stamps it in, and records blob, index row, and Add transaction. The
// index upsert and the log append commit in one database transaction.
func (m *Manager) FormsAdd(ctx context.Context, template string, form types.Form) (uuid.UUID, error) {
	tmpl, err := m.GetTemplate(ctx, template)
	if err != nil {
		return uuid.Nil, err
	}
	if err := tmpl.Validate(&form); err != nil {
		return uuid.Nil, err
	}

	formID := uuid.New()
	form.ID = &formID
	form.Template = template

	data, err := types.EncodeJSON(&form)
	if err != nil {
		return uuid.Nil, err
	}
	blobID, err := m.blobs.Put(data)
	if err != nil {
		return uuid.Nil, err
	}

	txn := types.NewTransaction(types.DataTypeForm, types.ActionAdd, blobID, formID.String())
	err = m.meta.WithTx(ctx, func(tx *sql.Tx) error {
		if err := m.meta.UpsertForm(ctx, tx, form.Row(blobID), nil); err != nil {
			return err
		}
		_, err := m.txns.Append(ctx, tx, txn)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	m.publish(types.DataTypeForm, types.ActionAdd, formID.String())
	return formID, nil
}

// FormsEdit validates and stores a new version of an existing live form.
// The prior version's index row is removed inside the same database
// transaction that records the new row and the Edit.
func (m *Manager) FormsEdit(ctx context.Context, template string, form types.Form, formID uuid.UUID) error {
	tmpl, err := m.GetTemplate(ctx, template)
	if err != nil {
		return fmt.Errorf("load template for edit: %w", err)
	}
	if err := tmpl.Validate(&form); err != nil {
		return err
	}

	latest, err := m.meta.Latest(ctx, types.DataTypeForm, formID.String())
	if err != nil {
		return err
	}
	if !latest.Action.Live() {
		return fmt.Errorf("form %s: %w", formID, types.ErrNotFound)
	}
	prior := latest.BlobID

	form.ID = &formID
	form.Template = template

	data, err := types.EncodeJSON(&form)
	if err != nil {
		return err
	}
	blobID, err := m.blobs.Put(data)
	if err != nil {
		return err
	}

	txn := types.NewTransaction(types.DataTypeForm, types.ActionEdit, blobID, formID.String())
	err = m.meta.WithTx(ctx, func(tx *sql.Tx) error {
		if err := m.meta.UpsertForm(ctx, tx, form.Row(blobID), &prior); err != nil {
			return err
		}
		_, err := m.txns.Append(ctx, tx, txn)
		return err
	})
	if err != nil {
		return err
	}

	m.publish(types.DataTypeForm, types.ActionEdit, formID.String())
	return nil
}

// FormsDelete tombstones a form. Deleting an already tombstoned form is
// a successful no-op.
func (m *Manager) FormsDelete(ctx context.Context, _ string, formID uuid.UUID) error {
	latest, err := m.meta.Latest(ctx, types.DataTypeForm, formID.String())
	if err != nil {
		return err
	}
	if latest.Action == types.ActionDelete {
		return nil
	}

	txn := types.NewTransaction(types.DataTypeForm, types.ActionDelete, latest.BlobID, formID.String())
	err = m.meta.WithTx(ctx, func(tx *sql.Tx) error {
		if err := m.meta.RemoveForm(ctx, tx, latest.BlobID); err != nil {
			return err
		}
		_, err := m.txns.Append(ctx, tx, txn)
		return err
	})
	if err != nil {
		return err
	}

	m.publish(types.DataTypeForm, types.ActionDelete, formID.String())
	return nil
}

// FormsGetSerialized returns the stored payload of a live form
func (m *Manager) FormsGetSerialized(ctx context.Context, _ string, formID uuid.UUID) ([]byte, error) {
	return m.GetSerialized(ctx, formID.String(), types.DataTypeForm)
}

// FormsList returns the live form uuids recorded under a template
func (m *Manager) FormsList(ctx context.Context, template string) ([]string, error) {
	return m.meta.ListFormUUIDs(ctx, template)
}

// FormsFilter returns the live forms for a template matching the filter.
// Team, match number, and event resolve through the forms index; the
// scouter predicate is applied over the candidate payloads because the
// index does not carry a scouter column.
func (m *Manager) FormsFilter(ctx context.Context, template string, filter types.Filter) ([]types.Form, error) {
	blobIDs, err := m.meta.FilterForms(ctx, template, filter)
	if err != nil {
		return nil, err
	}

	var out []types.Form
	for _, blobID := range blobIDs {
		data, err := m.blobs.Get(blobID)
		if err != nil {
			return nil, err
		}
		var form types.Form
		if err := types.DecodeJSON(data, &form); err != nil {
			return nil, err
		}
		if filter.Scouter != nil && form.Scouter != *filter.Scouter {
			continue
		}
		out = append(out, form)
	}
	return out, nil
}

// RebuildFormsIndex replays every Form Add/Edit transaction in timestamp
// order and upserts each row, reproducing the current index from the log
// and blobs alone. Rows whose form ended up tombstoned are dropped at
// the end, matching the eager removal done by FormsDelete.
func (m *Manager) RebuildFormsIndex(ctx context.Context) error {
	txns, err := m.meta.FormTransactionsInOrder(ctx)
	if err != nil {
		return err
	}

	return m.meta.WithTx(ctx, func(tx *sql.Tx) error {
		if err := m.meta.ClearForms(ctx, tx); err != nil {
			return err
		}

		current := make(map[string]uuid.UUID)
		for _, txn := range txns {
			data, err := m.blobs.Get(txn.BlobID)
			if err != nil {
				if types.IsNotFound(err) {
					// Blob not transferred yet; the row appears once
					// replication completes.
					m.logger.Warn().
						Str("blob_id", txn.BlobID.String()).
						Str("alt_key", txn.AltKey).
						Msg("skipping index row for missing blob")
					continue
				}
				return err
			}

			var form types.Form
			if err := types.DecodeJSON(data, &form); err != nil {
				return err
			}

			var prior *uuid.UUID
			if p, ok := current[txn.AltKey]; ok {
				prior = &p
			}
			if err := m.meta.UpsertForm(ctx, tx, form.Row(txn.BlobID), prior); err != nil {
				return err
			}
			current[txn.AltKey] = txn.BlobID
		}

		for altKey, blobID := range current {
			action, err := m.meta.LatestAction(ctx, types.DataTypeForm, altKey)
			if err != nil {
				return err
			}
			if action == types.ActionDelete {
				if err := m.meta.RemoveForm(ctx, tx, blobID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ApplyReplicated appends a transaction received from a peer, preserving
// every field but the timestamp, which the log reassigns to the local
// clock. A Form Add/Edit whose blob is present also updates the index
// row in the same database transaction.
func (m *Manager) ApplyReplicated(ctx context.Context, txn types.Transaction) error {
	isForm := txn.DataType == types.DataTypeForm && txn.Action != types.ActionDelete

	var row *types.FormRow
	var prior *uuid.UUID
	if isForm {
		data, err := m.blobs.Get(txn.BlobID)
		if err != nil && !types.IsNotFound(err) {
			return err
		}
		if err == nil {
			var form types.Form
			if err := types.DecodeJSON(data, &form); err != nil {
				return err
			}
			r := form.Row(txn.BlobID)
			row = &r

			if latest, err := m.meta.Latest(ctx, types.DataTypeForm, txn.AltKey); err == nil {
				prior = &latest.BlobID
			} else if !types.IsNotFound(err) {
				return err
			}
		}
	}

	err := m.meta.WithTx(ctx, func(tx *sql.Tx) error {
		if row != nil {
			if err := m.meta.UpsertForm(ctx, tx, *row, prior); err != nil {
				return err
			}
		}
		if txn.DataType == types.DataTypeForm && txn.Action == types.ActionDelete {
			if err := m.meta.RemoveForm(ctx, tx, txn.BlobID); err != nil {
				return err
			}
		}
		_, err := m.txns.Append(ctx, tx, txn)
		return err
	})
	if err != nil {
		return err
	}

	if m.broker != nil {
		m.broker.Publish(&events.Event{Type: events.EventSyncApplied, AltKey: txn.AltKey})
	}
	return nil
}

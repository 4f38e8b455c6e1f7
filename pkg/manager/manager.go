package manager

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/CCShambots/5907-scouting-api/pkg/blob"
	"github.com/CCShambots/5907-scouting-api/pkg/events"
	"github.com/CCShambots/5907-scouting-api/pkg/log"
	"github.com/CCShambots/5907-scouting-api/pkg/metastore"
	"github.com/CCShambots/5907-scouting-api/pkg/txlog"
	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// Manager is the public storage API. It composes the blob store, the
// relational metastore, and the transaction log into per-kind CRUD plus
// list and filter. Entity mutations go through it; the syncer also writes
// watermarks, needed-blob entries, and replicated blobs through Meta and
// Blobs.
type Manager struct {
	blobs  *blob.Store
	meta   *metastore.Store
	txns   *txlog.Log
	broker *events.Broker
	logger zerolog.Logger
}

// New assembles a storage manager. broker may be nil; mutation events
// are then dropped.
func New(blobs *blob.Store, meta *metastore.Store, txns *txlog.Log, broker *events.Broker) *Manager {
	return &Manager{
		blobs:  blobs,
		meta:   meta,
		txns:   txns,
		broker: broker,
		logger: log.WithComponent("manager"),
	}
}

// Meta exposes the metastore to the syncer: peer-facing reads, plus the
// watermark and needed-blob bookkeeping of the pull loop
func (m *Manager) Meta() *metastore.Store { return m.meta }

// Blobs exposes the blob store to the syncer: the peer-facing blob
// endpoint and the pull loop's presence check and blob transfer
func (m *Manager) Blobs() *blob.Store { return m.blobs }

// Txns exposes the transaction log for replication appends
func (m *Manager) Txns() *txlog.Log { return m.txns }

// Add stores a new template or schedule. Fails with Conflict when the
// alt-key is already live.
func (m *Manager) Add(ctx context.Context, s types.Storable) error {
	live, _, err := m.liveBlob(ctx, s.Kind(), s.AltKey())
	if err != nil {
		return err
	}
	if live {
		return fmt.Errorf("%s %q: %w", s.Kind(), s.AltKey(), types.ErrConflict)
	}

	data, err := types.EncodeJSON(s)
	if err != nil {
		return err
	}
	blobID, err := m.blobs.Put(data)
	if err != nil {
		return err
	}

	txn := types.NewTransaction(s.Kind(), types.ActionAdd, blobID, s.AltKey())
	if _, err := m.txns.Append(ctx, m.meta.DB(), txn); err != nil {
		return err
	}

	m.publish(s.Kind(), types.ActionAdd, s.AltKey())
	return nil
}

// Edit replaces the live version of a template or schedule. Fails with
// NotFound when the alt-key is not live, and with Immutable for a
// template that has live forms.
func (m *Manager) Edit(ctx context.Context, s types.Storable) error {
	live, _, err := m.liveBlob(ctx, s.Kind(), s.AltKey())
	if err != nil {
		return err
	}
	if !live {
		return fmt.Errorf("%s %q: %w", s.Kind(), s.AltKey(), types.ErrNotFound)
	}

	if s.Kind() == types.DataTypeTemplate {
		if err := m.requireTemplateMutable(ctx, s.AltKey()); err != nil {
			return err
		}
	}

	data, err := types.EncodeJSON(s)
	if err != nil {
		return err
	}
	blobID, err := m.blobs.Put(data)
	if err != nil {
		return err
	}

	txn := types.NewTransaction(s.Kind(), types.ActionEdit, blobID, s.AltKey())
	if _, err := m.txns.Append(ctx, m.meta.DB(), txn); err != nil {
		return err
	}

	m.publish(s.Kind(), types.ActionEdit, s.AltKey())
	return nil
}

// Delete tombstones an alt-key of the given kind, referencing the blob
// of the last live version. Deleting an already tombstoned entity
// succeeds and records a second Delete row; an alt-key with no history
// at all is NotFound.
func (m *Manager) Delete(ctx context.Context, altKey string, kind types.DataType) error {
	latest, err := m.meta.Latest(ctx, kind, altKey)
	if err != nil {
		return err
	}

	if kind == types.DataTypeTemplate && latest.Action.Live() {
		if err := m.requireTemplateMutable(ctx, altKey); err != nil {
			return err
		}
	}

	txn := types.NewTransaction(kind, types.ActionDelete, latest.BlobID, altKey)
	if _, err := m.txns.Append(ctx, m.meta.DB(), txn); err != nil {
		return err
	}

	m.publish(kind, types.ActionDelete, altKey)
	return nil
}

// GetSerialized resolves the latest live version of an alt-key and
// returns the stored payload bytes
func (m *Manager) GetSerialized(ctx context.Context, altKey string, kind types.DataType) ([]byte, error) {
	live, blobID, err := m.liveBlob(ctx, kind, altKey)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, fmt.Errorf("%s %q: %w", kind, altKey, types.ErrNotFound)
	}
	return m.blobs.Get(blobID)
}

// List returns the live alt-keys of a kind
func (m *Manager) List(ctx context.Context, kind types.DataType) ([]string, error) {
	return m.meta.ListLive(ctx, kind)
}

// GetTemplate fetches and decodes the live template with the given name
func (m *Manager) GetTemplate(ctx context.Context, name string) (*types.Template, error) {
	data, err := m.GetSerialized(ctx, name, types.DataTypeTemplate)
	if err != nil {
		return nil, err
	}
	var t types.Template
	if err := types.DecodeJSON(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetSchedule fetches and decodes the live schedule for an event
func (m *Manager) GetSchedule(ctx context.Context, event string) (*types.Schedule, error) {
	data, err := m.GetSerialized(ctx, event, types.DataTypeSchedule)
	if err != nil {
		return nil, err
	}
	var s types.Schedule
	if err := types.DecodeJSON(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ScheduleShifts returns the shifts one scouter holds in an event's
// schedule
func (m *Manager) ScheduleShifts(ctx context.Context, event, scouter string) ([]types.Shift, error) {
	schedule, err := m.GetSchedule(ctx, event)
	if err != nil {
		return nil, err
	}
	return schedule.ShiftsFor(scouter), nil
}

// CountByAltKey reports the total transaction count for an alt-key
func (m *Manager) CountByAltKey(ctx context.Context, altKey string, kind types.DataType) (int, error) {
	return m.meta.CountByAltKey(ctx, altKey, kind)
}

// Restore re-asserts a historical transaction per the log's restore
// semantics
func (m *Manager) Restore(ctx context.Context, txnID uuid.UUID) (types.Transaction, error) {
	txn, err := m.txns.Restore(ctx, txnID)
	if err != nil {
		return types.Transaction{}, err
	}
	if m.broker != nil {
		m.broker.Publish(&events.Event{Type: events.EventRestored, AltKey: txn.AltKey})
	}
	return txn, nil
}

// liveBlob resolves whether (kind, altKey) is currently live and, when
// so, the blob of the live version. A missing alt-key is live=false with
// no error; storage failures propagate.
func (m *Manager) liveBlob(ctx context.Context, kind types.DataType, altKey string) (bool, uuid.UUID, error) {
	latest, err := m.meta.Latest(ctx, kind, altKey)
	if err != nil {
		if types.IsNotFound(err) {
			return false, uuid.Nil, nil
		}
		return false, uuid.Nil, err
	}
	return latest.Action.Live(), latest.BlobID, nil
}

// requireTemplateMutable refuses template mutations while the template
// has live forms
func (m *Manager) requireTemplateMutable(ctx context.Context, name string) error {
	forms, err := m.meta.ListFormUUIDs(ctx, name)
	if err != nil {
		return err
	}
	if len(forms) > 0 {
		return fmt.Errorf("template %q has %d live forms: %w", name, len(forms), types.ErrImmutable)
	}
	return nil
}

func (m *Manager) publish(kind types.DataType, action types.Action, altKey string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{Type: eventType(kind, action), AltKey: altKey})
}

var mutationEvents = map[types.DataType]map[types.Action]events.EventType{
	types.DataTypeTemplate: {
		types.ActionAdd:    events.EventTemplateAdded,
		types.ActionEdit:   events.EventTemplateEdited,
		types.ActionDelete: events.EventTemplateDeleted,
	},
	types.DataTypeSchedule: {
		types.ActionAdd:    events.EventScheduleAdded,
		types.ActionEdit:   events.EventScheduleEdited,
		types.ActionDelete: events.EventScheduleDeleted,
	},
	types.DataTypeForm: {
		types.ActionAdd:    events.EventFormAdded,
		types.ActionEdit:   events.EventFormEdited,
		types.ActionDelete: events.EventFormDeleted,
	},
	types.DataTypeBytes: {
		types.ActionAdd:    events.EventBytesAdded,
		types.ActionEdit:   events.EventBytesEdited,
		types.ActionDelete: events.EventBytesDeleted,
	},
}

func eventType(kind types.DataType, action types.Action) events.EventType {
	return mutationEvents[kind][action]
}

package manager

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CCShambots/5907-scouting-api/pkg/blob"
	"github.com/CCShambots/5907-scouting-api/pkg/metastore"
	"github.com/CCShambots/5907-scouting-api/pkg/txlog"
	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	base := t.TempDir()

	meta, err := metastore.Open(base)
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	blobs, err := blob.NewStore(base)
	require.NoError(t, err)

	txns, err := txlog.Open(meta, base, false)
	require.NoError(t, err)

	return New(blobs, meta, txns, nil)
}

func checkBoxTemplate(name string) *types.Template {
	tmpl := &types.Template{Name: name, Year: 2024}
	tmpl.AddField("auto", types.FieldDescriptor{Kind: types.FieldCheckBox})
	return tmpl
}

// TestTemplateCRUD runs the template lifecycle scenario: add, get, edit,
// get, delete, get
func TestTemplateCRUD(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	tmpl := checkBoxTemplate("T1")
	require.NoError(t, m.Add(ctx, tmpl))

	data, err := m.GetSerialized(ctx, "T1", types.DataTypeTemplate)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"name":"T1","year":2024,"fields":[{"name":"auto","field_type":"CheckBox"}]}`,
		string(data))

	tmpl.Year = 2025
	require.NoError(t, m.Edit(ctx, tmpl))

	edited, err := m.GetTemplate(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, int64(2025), edited.Year)

	require.NoError(t, m.Delete(ctx, "T1", types.DataTypeTemplate))
	_, err = m.GetSerialized(ctx, "T1", types.DataTypeTemplate)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// TestAddConflict tests that adding a live alt-key fails
func TestAddConflict(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, checkBoxTemplate("T1")))
	assert.ErrorIs(t, m.Add(ctx, checkBoxTemplate("T1")), types.ErrConflict)
}

// TestEditMissing tests that editing a missing alt-key fails
func TestEditMissing(t *testing.T) {
	m := newTestManager(t)
	assert.ErrorIs(t, m.Edit(context.Background(), checkBoxTemplate("nope")), types.ErrNotFound)
}

// TestLastWriterWins tests that reads agree with the newest transaction
func TestLastWriterWins(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sched := &types.Schedule{Event: "2024mil"}
	require.NoError(t, m.Add(ctx, sched))

	for i := 1; i <= 3; i++ {
		sched.Shifts = append(sched.Shifts, types.Shift{
			Scouter: "a", Station: uint8(i), MatchStart: 1, MatchEnd: 10,
		})
		require.NoError(t, m.Edit(ctx, sched))
	}

	got, err := m.GetSchedule(ctx, "2024mil")
	require.NoError(t, err)
	assert.Len(t, got.Shifts, 3)

	require.NoError(t, m.Delete(ctx, "2024mil", types.DataTypeSchedule))
	_, err = m.GetSchedule(ctx, "2024mil")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// TestScheduleShifts tests the per-scouter shift lookup
func TestScheduleShifts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sched := &types.Schedule{
		Event: "2024mil",
		Shifts: []types.Shift{
			{Scouter: "a", Station: 1, MatchStart: 1, MatchEnd: 10},
			{Scouter: "b", Station: 2, MatchStart: 1, MatchEnd: 10},
		},
	}
	require.NoError(t, m.Add(ctx, sched))

	shifts, err := m.ScheduleShifts(ctx, "2024mil", "b")
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, uint8(2), shifts[0].Station)
}

// TestBytesDeleteRevives runs the delete-revive scenario: add, delete,
// NotFound, re-add, read the new payload
func TestBytesDeleteRevives(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.BytesAdd(ctx, "k", []byte("payload_a")))
	require.NoError(t, m.BytesDelete(ctx, "k"))

	_, err := m.BytesGet(ctx, "k")
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, m.BytesAdd(ctx, "k", []byte("payload_b")))

	got, err := m.BytesGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload_b"), got)
}

// TestIdempotentDelete tests that a second delete succeeds and is
// observable only as a second Delete row
func TestIdempotentDelete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.BytesAdd(ctx, "k", []byte("v")))
	require.NoError(t, m.BytesDelete(ctx, "k"))
	require.NoError(t, m.BytesDelete(ctx, "k"))

	count, err := m.CountByAltKey(ctx, "k", types.DataTypeBytes)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Deleting something that never existed is still NotFound.
	assert.ErrorIs(t, m.BytesDelete(ctx, "ghost"), types.ErrNotFound)
}

// TestBytesRoundTrip tests the self-describing frame end to end
func TestBytesRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, m.BytesAdd(ctx, "raw", payload))

	got, err := m.BytesGet(ctx, "raw")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	keys, err := m.BytesList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"raw"}, keys)

	// The stored blob itself carries the key for cold reads.
	latest, err := m.meta.Latest(ctx, types.DataTypeBytes, "raw")
	require.NoError(t, err)
	stored, err := m.blobs.Get(latest.BlobID)
	require.NoError(t, err)
	key, data, err := types.DecodeBytesBlob(stored)
	require.NoError(t, err)
	assert.Equal(t, "raw", key)
	assert.Equal(t, payload, data)
}

// TestBytesEdit tests replacing a payload under a live key
func TestBytesEdit(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	assert.ErrorIs(t, m.BytesEdit(ctx, "k", []byte("v")), types.ErrNotFound)

	require.NoError(t, m.BytesAdd(ctx, "k", []byte("v1")))
	require.NoError(t, m.BytesEdit(ctx, "k", []byte("v2")))

	got, err := m.BytesGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

// TestRestore tests re-asserting a historical version
func TestRestore(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.BytesAdd(ctx, "k", []byte("v1")))
	first, err := m.meta.Latest(ctx, types.DataTypeBytes, "k")
	require.NoError(t, err)

	require.NoError(t, m.BytesEdit(ctx, "k", []byte("v2")))

	// Restoring the original version re-points the key at the old blob.
	restored, err := m.Restore(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ActionEdit, restored.Action)

	got, err := m.BytesGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}

// TestGetSerializedRoundTrip tests that stored payloads decode back to
// the values that were written
func TestGetSerializedRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sched := &types.Schedule{
		Event:  "2024mil",
		Shifts: []types.Shift{{Scouter: "a", Station: 1, MatchStart: 1, MatchEnd: 4}},
	}
	require.NoError(t, m.Add(ctx, sched))

	data, err := m.GetSerialized(ctx, "2024mil", types.DataTypeSchedule)
	require.NoError(t, err)

	var back types.Schedule
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *sched, back)
}

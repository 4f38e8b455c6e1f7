package metastore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

func formRow(blobID uuid.UUID, team, match int64, event string) types.FormRow {
	return types.FormRow{
		BlobID:      blobID,
		Team:        team,
		MatchNumber: match,
		EventKey:    event,
		Template:    "T1",
	}
}

// TestUpsertRemovesPrior tests that an edit leaves one row per form
func TestUpsertRemovesPrior(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	formID := "f1"
	v1 := uuid.New()
	v2 := uuid.New()

	appendTxn(t, s, types.DataTypeForm, types.ActionAdd, v1, formID, 100)
	require.NoError(t, s.UpsertForm(ctx, s.DB(), formRow(v1, 10, 1, "e"), nil))

	appendTxn(t, s, types.DataTypeForm, types.ActionEdit, v2, formID, 200)
	require.NoError(t, s.UpsertForm(ctx, s.DB(), formRow(v2, 10, 2, "e"), &v1))

	rows, err := s.AllFormRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, v2, rows[0].BlobID)
	assert.Equal(t, int64(2), rows[0].MatchNumber)
}

// TestFilterFormsPredicates tests multi-attribute filtering over forms
// at (team, match) = (10,1), (10,2), (11,1)
func TestFilterFormsPredicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	blobs := make([]uuid.UUID, 3)
	specs := []struct {
		team, match int64
	}{{10, 1}, {10, 2}, {11, 1}}

	for i, spec := range specs {
		blobs[i] = uuid.New()
		formID := uuid.New().String()
		appendTxn(t, s, types.DataTypeForm, types.ActionAdd, blobs[i], formID, int64(100+i))
		require.NoError(t, s.UpsertForm(ctx, s.DB(), formRow(blobs[i], spec.team, spec.match, "e"), nil))
	}

	team10 := int64(10)
	got, err := s.FilterForms(ctx, "T1", types.Filter{Team: &team10})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{blobs[0], blobs[1]}, got)

	team11, match1 := int64(11), int64(1)
	got, err = s.FilterForms(ctx, "T1", types.Filter{Team: &team11, MatchNumber: &match1})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{blobs[2]}, got)

	got, err = s.FilterForms(ctx, "T1", types.Filter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, blobs, got)

	got, err = s.FilterForms(ctx, "other", types.Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

// TestFilterExcludesDeleted tests that the log join hides tombstoned
// forms even when their index row was not removed eagerly
func TestFilterExcludesDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	formID := "f1"
	blobID := uuid.New()
	appendTxn(t, s, types.DataTypeForm, types.ActionAdd, blobID, formID, 100)
	require.NoError(t, s.UpsertForm(ctx, s.DB(), formRow(blobID, 10, 1, "e"), nil))

	// Tombstone the form but leave its index row in place.
	appendTxn(t, s, types.DataTypeForm, types.ActionDelete, blobID, formID, 200)

	got, err := s.FilterForms(ctx, "T1", types.Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)

	ids, err := s.ListFormUUIDs(ctx, "T1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// TestListFormUUIDs tests that list returns form identities, not blobs
func TestListFormUUIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	formID := uuid.New().String()
	v1, v2 := uuid.New(), uuid.New()

	appendTxn(t, s, types.DataTypeForm, types.ActionAdd, v1, formID, 100)
	require.NoError(t, s.UpsertForm(ctx, s.DB(), formRow(v1, 10, 1, "e"), nil))
	appendTxn(t, s, types.DataTypeForm, types.ActionEdit, v2, formID, 200)
	require.NoError(t, s.UpsertForm(ctx, s.DB(), formRow(v2, 10, 1, "e"), &v1))

	ids, err := s.ListFormUUIDs(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, []string{formID}, ids)
}

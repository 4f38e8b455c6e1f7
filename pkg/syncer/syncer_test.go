package syncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CCShambots/5907-scouting-api/pkg/blob"
	"github.com/CCShambots/5907-scouting-api/pkg/manager"
	"github.com/CCShambots/5907-scouting-api/pkg/metastore"
	"github.com/CCShambots/5907-scouting-api/pkg/txlog"
	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

func newNode(t *testing.T) *manager.Manager {
	t.Helper()
	base := t.TempDir()

	meta, err := metastore.Open(base)
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	blobs, err := blob.NewStore(base)
	require.NoError(t, err)

	txns, err := txlog.Open(meta, base, false)
	require.NoError(t, err)

	return manager.New(blobs, meta, txns, nil)
}

// serveParent exposes a node's peer surface the way pkg/api does, on a
// test listener
func serveParent(t *testing.T, parent *Syncer) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	authorized := func(w http.ResponseWriter, r *http.Request) (ok bool) {
		childID, err := uuid.Parse(r.Header.Get("child_id"))
		if err != nil || parent.Authorize(childID) != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		return true
	}

	mux.HandleFunc("/sync/id", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"` + parent.ID().String() + `"}`))
	})

	mux.HandleFunc("/sync/next", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		var after *uuid.UUID
		if raw := r.URL.Query().Get("after"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			after = &id
		}
		txn, err := parent.NextAfter(r.Context(), after)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if txn == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		data, _ := types.EncodeJSON(txn)
		w.Write(data)
	})

	mux.HandleFunc("/sync/blob/", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		id, err := uuid.Parse(r.URL.Path[len("/sync/blob/"):])
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, err := parent.GetBlob(r.Context(), id)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func seedParent(t *testing.T, mgr *manager.Manager) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	tmpl := &types.Template{Name: "T1", Year: 2024}
	tmpl.AddField("auto", types.FieldDescriptor{Kind: types.FieldCheckBox})
	require.NoError(t, mgr.Add(ctx, tmpl))

	require.NoError(t, mgr.BytesAdd(ctx, "k", []byte("payload")))

	form := types.Form{
		Fields:      map[string]types.FieldValue{"auto": types.CheckBoxValue(true)},
		Scouter:     "s",
		Team:        10,
		MatchNumber: 1,
		EventKey:    "e",
	}
	formID, err := mgr.FormsAdd(ctx, "T1", form)
	require.NoError(t, err)
	return formID
}

// drain pulls until the parent reports its tail
func drain(t *testing.T, child *Syncer) int {
	t.Helper()
	applied := 0
	for {
		more, err := child.Pull(context.Background())
		require.NoError(t, err)
		if !more {
			return applied
		}
		applied++
	}
}

// TestSyncBootstrap runs the bootstrap scenario: a child with no
// watermark converges to its parent's state
func TestSyncBootstrap(t *testing.T) {
	ctx := context.Background()

	parentMgr := newNode(t)
	formID := seedParent(t, parentMgr)

	parentID, childID := uuid.New(), uuid.New()
	parent := New(Config{NodeID: parentID, ApprovedChildren: []uuid.UUID{childID}}, parentMgr)
	server := serveParent(t, parent)

	childMgr := newNode(t)
	child := New(Config{NodeID: childID, Parent: server.URL}, childMgr)

	assert.Equal(t, 3, drain(t, child))

	// The watermark sits at the parent's tail.
	parentIDs, err := parentMgr.Meta().AllTransactionIDs(ctx)
	require.NoError(t, err)
	wm, ok, err := childMgr.Meta().Watermark(ctx, parentID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, parentIDs[len(parentIDs)-1], wm)

	// Ids are preserved; every kind lists identically on both nodes.
	childIDs, err := childMgr.Meta().AllTransactionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, parentIDs, childIDs)

	for _, kind := range types.DataTypes {
		parentList, err := parentMgr.List(ctx, kind)
		require.NoError(t, err)
		childList, err := childMgr.List(ctx, kind)
		require.NoError(t, err)
		assert.Equal(t, parentList, childList, "kind %s", kind)
	}

	// Payloads transferred, including the form with its index row.
	got, err := childMgr.BytesGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	forms, err := childMgr.FormsFilter(ctx, "T1", types.Filter{})
	require.NoError(t, err)
	require.Len(t, forms, 1)
	assert.Equal(t, formID, *forms[0].ID)

	// Local timestamps were reassigned monotonically.
	var last int64
	for _, id := range childIDs {
		txn, err := childMgr.Meta().GetTransaction(ctx, id)
		require.NoError(t, err)
		assert.Greater(t, txn.Timestamp, last)
		last = txn.Timestamp
	}

	// Nothing left owed.
	needed, err := childMgr.Meta().NeededBlobs(ctx, parentID)
	require.NoError(t, err)
	assert.Empty(t, needed)
}

// TestSyncPartialFailure runs the partial-failure scenario: a blob fetch
// fails, the watermark holds, and a retry completes the transfer
func TestSyncPartialFailure(t *testing.T) {
	ctx := context.Background()

	parentMgr := newNode(t)
	require.NoError(t, parentMgr.BytesAdd(ctx, "a", []byte("blob_a")))
	require.NoError(t, parentMgr.BytesAdd(ctx, "b", []byte("blob_b")))

	parentID, childID := uuid.New(), uuid.New()
	parent := New(Config{NodeID: parentID, ApprovedChildren: []uuid.UUID{childID}}, parentMgr)
	upstream := serveParent(t, parent)

	// Fail every blob fetch after the first transaction's until allowed.
	var served, failing atomic.Int64
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/sync/blob") && failing.Load() > 0 {
			failing.Add(-1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		served.Add(1)
		req, _ := http.NewRequest(r.Method, upstream.URL+r.URL.RequestURI(), r.Body)
		req.Header = r.Header
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		w.WriteHeader(resp.StatusCode)
		buf := make([]byte, 32*1024)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				w.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}))
	t.Cleanup(proxy.Close)

	childMgr := newNode(t)
	child := New(Config{
		NodeID: childID, Parent: proxy.URL,
		MaxRetries: 1, RequestTimeout: 5 * time.Second,
	}, childMgr)

	// First transaction replicates cleanly.
	more, err := child.Pull(ctx)
	require.NoError(t, err)
	require.True(t, more)

	t1, err := parentMgr.Meta().First(ctx)
	require.NoError(t, err)
	t2, err := parentMgr.Meta().After(ctx, t1.ID)
	require.NoError(t, err)

	// Second iteration: blob fetch fails past the bounded retries.
	failing.Store(2)
	_, err = child.Pull(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransient)

	// The watermark did not advance and the blob stays owed.
	wm, ok, err := childMgr.Meta().Watermark(ctx, parentID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, t1.ID, wm)

	needed, err := childMgr.Meta().NeededBlobs(ctx, parentID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{t2.BlobID}, needed)

	// Retry succeeds, appends the transaction, and advances the mark.
	more, err = child.Pull(ctx)
	require.NoError(t, err)
	require.True(t, more)

	wm, _, err = childMgr.Meta().Watermark(ctx, parentID)
	require.NoError(t, err)
	assert.Equal(t, t2.ID, wm)

	got, err := childMgr.BytesGet(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob_b"), got)

	needed, err = childMgr.Meta().NeededBlobs(ctx, parentID)
	require.NoError(t, err)
	assert.Empty(t, needed)
}

// TestSyncAuthDenied tests that an unapproved child is refused
func TestSyncAuthDenied(t *testing.T) {
	parentMgr := newNode(t)
	parent := New(Config{NodeID: uuid.New(), ApprovedChildren: nil}, parentMgr)
	server := serveParent(t, parent)

	childMgr := newNode(t)
	child := New(Config{NodeID: uuid.New(), Parent: server.URL, MaxRetries: 1}, childMgr)

	_, err := child.Pull(context.Background())
	assert.ErrorIs(t, err, types.ErrAuthDenied)
}

// TestAuthorize tests the approved-children gate directly
func TestAuthorize(t *testing.T) {
	childID := uuid.New()
	s := New(Config{NodeID: uuid.New(), ApprovedChildren: []uuid.UUID{childID}}, newNode(t))

	assert.NoError(t, s.Authorize(childID))
	assert.ErrorIs(t, s.Authorize(uuid.New()), types.ErrAuthDenied)
}

// TestDiff tests bootstrap reconciliation's symmetric difference
func TestDiff(t *testing.T) {
	ctx := context.Background()
	mgr := newNode(t)

	require.NoError(t, mgr.BytesAdd(ctx, "a", []byte("a")))
	require.NoError(t, mgr.BytesAdd(ctx, "b", []byte("b")))
	own, err := mgr.Meta().AllTransactionIDs(ctx)
	require.NoError(t, err)

	s := New(Config{NodeID: uuid.New()}, mgr)

	foreign := uuid.New()
	here, there, err := s.Diff(ctx, []uuid.UUID{own[0], foreign})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{own[1]}, here)
	assert.Equal(t, []uuid.UUID{foreign}, there)

	// An empty peer set owes everything and is owed nothing.
	here, there, err = s.Diff(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, own, here)
	assert.Empty(t, there)
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CCShambots/5907-scouting-api/pkg/blob"
	"github.com/CCShambots/5907-scouting-api/pkg/events"
	"github.com/CCShambots/5907-scouting-api/pkg/manager"
	"github.com/CCShambots/5907-scouting-api/pkg/metastore"
	"github.com/CCShambots/5907-scouting-api/pkg/txlog"
)

// TestWatchInvalidates tests broker-driven invalidation
func TestWatchInvalidates(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	c := New(newTestManager(t), time.Minute)
	stop := c.Watch(broker)
	defer stop()

	c.Put("k", EntryBytes, 1)
	broker.Publish(&events.Event{Type: events.EventBytesEdited, AltKey: "k"})

	assert.Eventually(t, func() bool {
		_, ok := c.Get("k")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func newTestManager(t *testing.T) *manager.Manager {
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

// TestGetPut tests basic entry storage
func TestGetPut(t *testing.T) {
	c := New(newTestManager(t), time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("id", EntryBytes, 3)
	entry, ok := c.Get("id")
	require.True(t, ok)
	assert.Equal(t, 3, entry.Count)
	assert.Equal(t, EntryBytes, entry.Type)

	c.Invalidate("id")
	_, ok = c.Get("id")
	assert.False(t, ok)
}

// TestTTLExpiry tests that stale entries are dropped on read
func TestTTLExpiry(t *testing.T) {
	c := New(newTestManager(t), 10*time.Millisecond)

	c.Put("id", EntryForm, 1)
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("id")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

// TestFreshTracksCount tests invalidation through the transaction count
func TestFreshTracksCount(t *testing.T) {
	mgr := newTestManager(t)
	c := New(mgr, time.Minute)
	ctx := context.Background()

	// First observation is never fresh.
	fresh, err := c.Fresh(ctx, "cache-k", "k", "Bytes", EntryBytes)
	require.NoError(t, err)
	assert.False(t, fresh)

	// No mutations since: the entry is fresh.
	fresh, err = c.Fresh(ctx, "cache-k", "k", "Bytes", EntryBytes)
	require.NoError(t, err)
	assert.True(t, fresh)

	// A mutation bumps the count and invalidates.
	require.NoError(t, mgr.BytesAdd(ctx, "k", []byte("v")))
	fresh, err = c.Fresh(ctx, "cache-k", "k", "Bytes", EntryBytes)
	require.NoError(t, err)
	assert.False(t, fresh)
}

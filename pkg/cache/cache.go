package cache

import (
	"context"
	"sync"
	"time"

	"github.com/CCShambots/5907-scouting-api/pkg/events"
	"github.com/CCShambots/5907-scouting-api/pkg/manager"
	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// EntryType labels what a cached count describes
type EntryType string

const (
	EntryTemplate EntryType = "template"
	EntrySchedule EntryType = "schedule"
	EntryForm     EntryType = "form"
	EntryBytes    EntryType = "bytes"
)

// Entry is one cached count observation
type Entry struct {
	Timestamp time.Time
	Type      EntryType
	Count     int
}

// Cache is the TTL-bounded presentational count cache. It never feeds
// writes: entries are revalidated against the transaction log's
// per-alt-key count, reported stale and replaced when the count moved,
// and dropped when the TTL lapsed.
type Cache struct {
	mgr *manager.Manager
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]Entry
}

// New builds a cache over the storage manager. ttl <= 0 defaults to one
// minute.
func New(mgr *manager.Manager, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{
		mgr:     mgr,
		ttl:     ttl,
		entries: make(map[string]Entry),
	}
}

// Get returns the cached entry for a cache id if it is still fresh
func (c *Cache) Get(cacheID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[cacheID]
	if !ok {
		return Entry{}, false
	}
	if time.Since(entry.Timestamp) > c.ttl {
		delete(c.entries, cacheID)
		return Entry{}, false
	}
	return entry, true
}

// Put stores an observation under a cache id
func (c *Cache) Put(cacheID string, entryType EntryType, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheID] = Entry{
		Timestamp: time.Now(),
		Type:      entryType,
		Count:     count,
	}
}

// Invalidate drops an entry
func (c *Cache) Invalidate(cacheID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheID)
}

// Fresh reports whether the cached count for an alt-key still matches
// the log, refreshing the entry either way
func (c *Cache) Fresh(ctx context.Context, cacheID, altKey string, kind types.DataType, entryType EntryType) (bool, error) {
	count, err := c.mgr.CountByAltKey(ctx, altKey, kind)
	if err != nil {
		return false, err
	}

	entry, ok := c.Get(cacheID)
	fresh := ok && entry.Count == count
	c.Put(cacheID, entryType, count)
	return fresh, nil
}

// Watch subscribes to the mutation broker and invalidates the entry
// registered under each event's alt-key. It returns a stop function.
func (c *Cache) Watch(broker *events.Broker) func() {
	sub := broker.Subscribe()
	done := make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-sub:
				if !ok {
					return
				}
				c.Invalidate(event.AltKey)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		broker.Unsubscribe(sub)
	}
}

// Len reports the number of cached entries, expired or not
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

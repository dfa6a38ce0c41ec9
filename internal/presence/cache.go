// Package presence maintains a last-seen cache for devices that cannot be
// probed directly. A background MQTT subscriber (Zigbee2MQTT-style topics)
// feeds the cache; probe cycles read it through defensive copies.
package presence

import (
	"maps"
	"sync"
	"time"
)

// StaleTTL marks a cache entry as stale once it has not been refreshed for
// this long. Stale entries are still returned, flagged: stale data beats no
// data, but the caller deserves to know.
const StaleTTL = 5 * time.Minute

// maxEntries bounds the cache. Topics beyond the bound are dropped rather
// than evicting live devices; a fleet this large belongs on multiple agents.
const maxEntries = 4096

// DeviceState is a snapshot of one device's most recent retained message.
type DeviceState struct {
	LastSeen   time.Time
	Fields     map[string]any
	Stale      bool
	CacheAge   time.Duration
	ReceivedAt time.Time
}

// Cache is the shared state between the single-writer subscriber and the
// many-reader probe cycles.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	lastSeen   time.Time
	fields     map[string]any
	receivedAt time.Time
}

// NewCache returns an empty cache using the real clock.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry), now: time.Now}
}

// newCacheWithClock is used by tests to control staleness.
func newCacheWithClock(now func() time.Time) *Cache {
	return &Cache{entries: make(map[string]cacheEntry), now: now}
}

// Put records the latest message for a device. Called only from the
// subscriber goroutine.
func (c *Cache) Put(name string, lastSeen time.Time, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[name]; !exists && len(c.entries) >= maxEntries {
		return
	}
	c.entries[name] = cacheEntry{
		lastSeen:   lastSeen,
		fields:     maps.Clone(fields),
		receivedAt: c.now(),
	}
}

// Get returns a copy of the device's state. The second return is false when
// the device has never been observed.
func (c *Cache) Get(name string) (DeviceState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[name]
	if !ok {
		return DeviceState{}, false
	}
	age := c.now().Sub(e.receivedAt)
	return DeviceState{
		LastSeen:   e.lastSeen,
		Fields:     maps.Clone(e.fields),
		Stale:      age > StaleTTL,
		CacheAge:   age,
		ReceivedAt: e.receivedAt,
	}, true
}

// Len returns the number of cached devices.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

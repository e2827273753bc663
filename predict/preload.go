package predict

import (
	"sync"
	"time"

	"github.com/contextware/recall/core"
)

// PreloadCache holds predicted items so a later fetch is a memory hit.
// The cache is bounded; at capacity the entry with the oldest load
// time is evicted, regardless of how often it was hit.
type PreloadCache struct {
	mu      sync.Mutex
	entries map[string]*preloadEntry
	maxSize int
	clock   func() time.Time
}

type preloadEntry struct {
	item     *core.MemoryItem
	loadedAt time.Time
	accesses int
}

// NewPreloadCache creates a cache holding up to maxSize items.
func NewPreloadCache(maxSize int, clock func() time.Time) *PreloadCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if clock == nil {
		clock = time.Now
	}
	return &PreloadCache{
		entries: make(map[string]*preloadEntry),
		maxSize: maxSize,
		clock:   clock,
	}
}

// Add inserts an item, evicting the oldest entry when full. Re-adding
// an id refreshes its load time and resets its access count.
func (c *PreloadCache) Add(item *core.MemoryItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[item.ID]; !ok && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[item.ID] = &preloadEntry{
		item:     item,
		loadedAt: c.clock(),
	}
}

// Get returns the cached item and records the hit.
func (c *PreloadCache) Get(id string) (*core.MemoryItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	entry.accesses++
	return entry.item, true
}

// Contains reports presence without recording a hit.
func (c *PreloadCache) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// Len returns the number of cached entries.
func (c *PreloadCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MaxSize returns the cache capacity.
func (c *PreloadCache) MaxSize() int {
	return c.maxSize
}

// HitRate is the fraction of cached entries that have been accessed at
// least once, 0 for an empty cache.
func (c *PreloadCache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) == 0 {
		return 0.0
	}
	hit := 0
	for _, entry := range c.entries {
		if entry.accesses > 0 {
			hit++
		}
	}
	return float64(hit) / float64(len(c.entries))
}

// evictOldestLocked removes the entry with the earliest load time,
// ties broken by smallest id.
func (c *PreloadCache) evictOldestLocked() {
	oldestID := ""
	var oldestAt time.Time
	for id, entry := range c.entries {
		if oldestID == "" ||
			entry.loadedAt.Before(oldestAt) ||
			(entry.loadedAt.Equal(oldestAt) && id < oldestID) {
			oldestID = id
			oldestAt = entry.loadedAt
		}
	}
	if oldestID != "" {
		delete(c.entries, oldestID)
	}
}

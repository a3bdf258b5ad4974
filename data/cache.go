package data

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rpcmux/rpcmux/health"
	"github.com/rs/zerolog"
)

type cacheEntry struct {
	key        string
	value      []byte
	insertedAt time.Time

	// Exactly one of the two validity modes is set.
	validUntil         time.Time // zero when height-bound
	validThroughHeight int64     // zero when time-bound
}

// Cache is a bounded in-memory store of raw json-rpc results. Validity is
// checked lazily at read time; only capacity eviction is eager. Entries are
// node-agnostic: nothing refers back to the node that produced a value.
type Cache struct {
	logger   *zerolog.Logger
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used

	// Highest block height any node has reported; entries bound to an older
	// height are expired lazily on read.
	bestHeight atomic.Int64
}

func NewCache(logger *zerolog.Logger, capacity int) *Cache {
	lg := logger.With().Str("component", "cache").Logger()
	return &Cache{
		logger:   &lg,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached value for key if its validity condition still holds.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)

	if !c.isValid(entry) {
		// Lazy expiry
		c.removeLocked(elem)
		return nil, false
	}

	c.lru.MoveToFront(elem)
	return entry.value, true
}

func (c *Cache) isValid(entry *cacheEntry) bool {
	if !entry.validUntil.IsZero() {
		return time.Now().Before(entry.validUntil)
	}
	if entry.validThroughHeight > 0 {
		return c.bestHeight.Load() <= entry.validThroughHeight
	}
	return false
}

// Set stores a value under the given policy. Height-bound entries record the
// current best height; they become invalid as soon as any node reports a
// newer head.
func (c *Cache) Set(key string, value []byte, policy CachePolicy) {
	if policy.Mode == ValidityNone || len(value) == 0 {
		return
	}

	entry := &cacheEntry{
		key:        key,
		value:      value,
		insertedAt: time.Now(),
	}
	switch policy.Mode {
	case ValidityTTL:
		entry.validUntil = entry.insertedAt.Add(policy.TTL)
	case ValidityHeight:
		height := c.bestHeight.Load()
		if height == 0 {
			// No height observed yet; nothing to anchor validity to.
			return
		}
		entry.validThroughHeight = height
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value = entry
		c.lru.MoveToFront(elem)
		return
	}

	for c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		health.MetricCacheEvictionTotal.Inc()
	}

	c.entries[key] = c.lru.PushFront(entry)
}

// ObserveHeight tells the cache that a node reported a new chain head. The
// height only moves forward; height-bound entries inserted at an older head
// expire lazily on their next read.
func (c *Cache) ObserveHeight(height int64) {
	for {
		old := c.bestHeight.Load()
		if height <= old {
			return
		}
		if c.bestHeight.CompareAndSwap(old, height) {
			return
		}
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.entries, entry.key)
}

// Len reports the number of entries currently held (valid or lazily expired).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

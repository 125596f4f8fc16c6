// Package cache implements the four bounded, in-memory lookup caches a
// mounted volume keeps in front of the remote tree API: resolved nodes,
// a parent's ordered child list, the reverse parent index used to
// invalidate a parent's children precisely, and negative (not-found)
// lookups.
//
// All four share one generic eviction engine (entryCache) modeled on
// the teacher's weighted LRUCache: a container/list eviction order, a
// sync.RWMutex, and a types.CacheStats accumulator. The weighting and
// byte-range keying the teacher used for cached object content don't
// apply here - entries are small, fixed-shape metadata - so eviction
// is plain recency order, and TTL is set per Put call rather than
// fixed at construction, since nodes and children expire on a mutable
// policy while negative entries expire on an immutable one.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/objectfs/roset/pkg/types"
)

// Config bounds one entryCache instance.
type Config struct {
	MaxEntries      int           `yaml:"max_entries"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

func (c *Config) withDefaults() *Config {
	if c == nil {
		c = &Config{}
	}
	out := *c
	if out.MaxEntries <= 0 {
		out.MaxEntries = 100000
	}
	if out.CleanupInterval <= 0 {
		out.CleanupInterval = time.Minute
	}
	return &out
}

type entry[V any] struct {
	key      string
	value    V
	expires  time.Time // zero means never expires
	element  *list.Element
}

// entryCache is a generic, thread-safe LRU store keyed by string with
// a per-entry expiry. It is the shared engine behind NodeCache,
// ChildrenCache, ParentIndex and NegativeCache.
type entryCache[V any] struct {
	mu        sync.RWMutex
	config    *Config
	items     map[string]*entry[V]
	evictList *list.List
	stats     types.CacheStats

	stopCh chan struct{}
}

func newEntryCache[V any](config *Config) *entryCache[V] {
	cfg := config.withDefaults()
	c := &entryCache[V]{
		config:    cfg,
		items:     make(map[string]*entry[V]),
		evictList: list.New(),
		stats:     types.CacheStats{Capacity: int64(cfg.MaxEntries)},
		stopCh:    make(chan struct{}),
	}
	go c.cleanupExpired()
	return c
}

func (c *entryCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		c.updateHitRate()
		return zero, false
	}
	if c.isExpired(e) {
		c.removeLocked(key)
		c.stats.Misses++
		c.updateHitRate()
		return zero, false
	}

	c.evictList.MoveToFront(e.element)
	c.stats.Hits++
	c.updateHitRate()
	return e.value, true
}

func (c *entryCache[V]) put(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	if e, ok := c.items[key]; ok {
		e.value = value
		e.expires = expires
		c.evictList.MoveToFront(e.element)
		return
	}

	e := &entry[V]{key: key, value: value, expires: expires}
	e.element = c.evictList.PushFront(key)
	c.items[key] = e

	c.evictIfNeeded()
}

func (c *entryCache[V]) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

func (c *entryCache[V]) statsSnapshot() types.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.Size = int64(len(c.items))
	if s.Capacity > 0 {
		s.Utilization = float64(s.Size) / float64(s.Capacity)
	}
	return s
}

func (c *entryCache[V]) isExpired(e *entry[V]) bool {
	return !e.expires.IsZero() && time.Now().After(e.expires)
}

func (c *entryCache[V]) removeLocked(key string) {
	e, ok := c.items[key]
	if !ok {
		return
	}
	c.evictList.Remove(e.element)
	delete(c.items, key)
	c.stats.Evictions++
}

func (c *entryCache[V]) evictIfNeeded() {
	max := c.config.MaxEntries
	for max > 0 && len(c.items) > max && c.evictList.Len() > 0 {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		c.removeLocked(back.Value.(string))
	}
}

func (c *entryCache[V]) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}

func (c *entryCache[V]) cleanupExpired() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			var expired []string
			for key, e := range c.items {
				if c.isExpired(e) {
					expired = append(expired, key)
				}
			}
			for _, key := range expired {
				c.removeLocked(key)
			}
			c.mu.Unlock()
		}
	}
}

func (c *entryCache[V]) close() {
	close(c.stopCh)
}

// NodeCache caches resolved nodes by node ID. Entries carry a mutable
// TTL supplied at Put time: a node freshly confirmed by the API gets a
// longer TTL than one merely touched in passing.
type NodeCache struct {
	inner *entryCache[*types.Node]
}

// NewNodeCache creates a node cache bounded by config.
func NewNodeCache(config *Config) *NodeCache {
	return &NodeCache{inner: newEntryCache[*types.Node](config)}
}

func (n *NodeCache) Get(nodeID string) (*types.Node, bool) { return n.inner.get(nodeID) }

func (n *NodeCache) Put(node *types.Node, ttl time.Duration) {
	n.inner.put(node.ID, node, ttl)
}

func (n *NodeCache) Invalidate(nodeID string) { n.inner.invalidate(nodeID) }

func (n *NodeCache) Stats() types.CacheStats { return n.inner.statsSnapshot() }

// Close stops the cache's background expiry sweep.
func (n *NodeCache) Close() { n.inner.close() }

// ChildrenCache caches a parent's ordered child list.
type ChildrenCache struct {
	inner *entryCache[[]*types.Node]
}

// NewChildrenCache creates a children cache bounded by config.
func NewChildrenCache(config *Config) *ChildrenCache {
	return &ChildrenCache{inner: newEntryCache[[]*types.Node](config)}
}

func (c *ChildrenCache) Get(parentID string) ([]*types.Node, bool) { return c.inner.get(parentID) }

func (c *ChildrenCache) Put(parentID string, children []*types.Node, ttl time.Duration) {
	c.inner.put(parentID, children, ttl)
}

func (c *ChildrenCache) Invalidate(parentID string) { c.inner.invalidate(parentID) }

func (c *ChildrenCache) Stats() types.CacheStats { return c.inner.statsSnapshot() }

// Close stops the cache's background expiry sweep.
func (c *ChildrenCache) Close() { c.inner.close() }

// ParentIndex is the reverse index from a node ID to its parent ID. It
// never expires on its own; entries are invalidated explicitly on
// rename or delete, since a stale parent mapping would misdirect a
// children-cache invalidation rather than merely return stale data.
type ParentIndex struct {
	inner *entryCache[string]
}

// NewParentIndex creates a parent index bounded by config.
func NewParentIndex(config *Config) *ParentIndex {
	return &ParentIndex{inner: newEntryCache[string](config)}
}

func (p *ParentIndex) Get(nodeID string) (string, bool) { return p.inner.get(nodeID) }

func (p *ParentIndex) Put(nodeID, parentID string) { p.inner.put(nodeID, parentID, 0) }

func (p *ParentIndex) Invalidate(nodeID string) { p.inner.invalidate(nodeID) }

// Close stops the index's background expiry sweep.
func (p *ParentIndex) Close() { p.inner.close() }

// NegativeCache memoizes failed (parent_id, name) lookups so repeated
// misses against nonexistent paths don't round-trip to the remote API.
// Entries carry an immutable TTL fixed at construction: unlike a node's
// freshness, a negative result's confidence doesn't vary call to call.
type NegativeCache struct {
	inner *entryCache[struct{}]
	ttl   time.Duration
}

// NewNegativeCache creates a negative-lookup cache with a fixed TTL.
func NewNegativeCache(config *Config, ttl time.Duration) *NegativeCache {
	return &NegativeCache{inner: newEntryCache[struct{}](config), ttl: ttl}
}

func negativeKey(parentID, name string) string { return parentID + "\x00" + name }

func (n *NegativeCache) IsNegative(parentID, name string) bool {
	_, ok := n.inner.get(negativeKey(parentID, name))
	return ok
}

func (n *NegativeCache) PutNegative(parentID, name string) {
	n.inner.put(negativeKey(parentID, name), struct{}{}, n.ttl)
}

func (n *NegativeCache) InvalidateNegative(parentID, name string) {
	n.inner.invalidate(negativeKey(parentID, name))
}

// Close stops the cache's background expiry sweep.
func (n *NegativeCache) Close() { n.inner.close() }

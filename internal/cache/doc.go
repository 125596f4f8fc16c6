/*
Package cache provides the four bounded, in-memory lookup caches a
mounted volume keeps in front of the remote tree API.

# Cache Architecture

NodeCache: resolved Node values keyed by node ID, TTL set per entry so
a node confirmed fresh by a write can outlive one merely read.

ChildrenCache: a parent's ordered child list keyed by parent ID,
invalidated as a whole whenever a child is added, removed, or renamed
under that parent.

ParentIndex: the reverse of ChildrenCache - node ID to parent ID -
kept so a single child mutation can invalidate exactly the one
ChildrenCache entry it affects instead of the whole cache.

NegativeCache: memoizes failed (parent_id, name) lookups behind a
fixed TTL, so repeated stats against a path that doesn't exist (a
common pattern from tools that probe before creating) don't each
round-trip to the remote API.

All four are built on one generic eviction engine (see lru.go) that
tracks size, hits, misses and evictions as a types.CacheStats, evicts
in strict least-recently-used order, and sweeps expired entries on a
background interval rather than only on access.

# Usage

	nodes := cache.NewNodeCache(&cache.Config{MaxEntries: 50000})
	defer nodes.Close()

	if n, ok := nodes.Get(nodeID); ok {
		return n, nil
	}
	n, err := client.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	nodes.Put(n, 30*time.Second)

# Thread Safety

Every exported method is safe for concurrent use.
*/
package cache

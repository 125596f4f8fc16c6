/*
Package inode maps opaque remote node IDs to the 64-bit inode numbers
the kernel filesystem interface requires.

The root is pinned at inode 1 with a refcount of 1 that forget never
touches. Every other entry is created on first exposure to the kernel
via GetOrCreate, which also increments its refcount; the kernel's
forget notification is the only path that decrements it, and an entry
is removed when its refcount reaches zero, or at once by Remove when
its node is deleted remotely - TTL plays no part in
eviction here, unlike the four caches in internal/cache.

# Usage

	ino := m.GetOrCreate(node.ID) // on lookup/create/readdir entry
	...
	nodeID, ok := m.GetNodeID(ino) // on any operation addressed by inode
	...
	m.Forget(ino, nlookup) // on a kernel FORGET notification

# Thread Safety

Map is safe for concurrent use; a single mutex orders node_to_ino,
ino_to_node and refcounts updates together, per spec.md §5's lock-
ordering requirement.
*/
package inode

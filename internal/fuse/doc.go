/*
Package fuse provides the POSIX filesystem translator for roset, a
remote tenant-scoped node tree exposed as a mountable filesystem.

Unlike a path-addressed object store, every inode in this package is
addressed by an opaque remote node ID rather than a path. Lookup
walks the tree one (parent ID, name) pair at a time, and the kernel's
own inode numbers are allocated and refcounted separately from those
node IDs by the internal/inode package.

# Architecture Overview

The FUSE layer bridges POSIX applications and the remote node tree:

	┌─────────────────────────────────────────────┐
	│              User Applications              │
	│        (ls, cat, cp, vim, databases)       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              Kernel VFS Layer              │
	│           (POSIX System Calls)             │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│               FUSE Driver                   │
	│          (Platform-specific)               │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              roset FUSE Layer               │  ← This Package
	│  ┌─────────────────────────────────────────┐  │
	│  │        Cross-Platform Abstraction      │  │
	│  │  ┌─────────────┐ ┌─────────────────┐   │  │
	│  │  │ go-fuse     │ │ cgofuse         │   │  │
	│  │  │ (Linux)     │ │ (macOS/Windows) │   │  │
	│  │  └─────────────┘ └─────────────────┘   │  │
	│  └─────────────────────────────────────────┘  │
	│                     │                       │
	│  ┌─────────────────────────────────────────┐  │
	│  │         Node Resolution Layer          │  │
	│  │  • Lookup/Readdir   • Create/Mkdir     │  │
	│  │  • Getattr/Setattr  • Rename/Unlink    │  │
	│  └─────────────────────────────────────────┘  │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│          Cache + Inode Map + Stager          │
	│    (internal/cache, internal/inode,          │
	│     internal/staging)                        │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Remote Tenant-Scoped API           │
	│        (internal/apiclient, HTTPS/JSON)      │
	└─────────────────────────────────────────────┘

# Platform Support

Multi-platform FUSE implementation with build constraints:

Default Build (go-fuse):
- Target: Linux (primary platform)
- Implementation: github.com/hanwen/go-fuse/v2
- Performance: native inode-based dispatch, no path re-walk per call

CGO Build (cgofuse):
- Target: macOS, Windows, Linux (fallback)
- Implementation: github.com/winfsp/cgofuse
- Resolution: path re-walked on every call against the same node tree
  API and the shared children/negative caches, since cgofuse's
  FileSystemBase callbacks are path-addressed, not inode-addressed

Build Selection:
	// Linux with go-fuse
	go build -tags default ./...

	// Cross-platform, winfsp/cgofuse backend
	go build -tags cgofuse ./...

# FileSystem Operations

Complete POSIX filesystem operation support, translated into remote
tree-API calls:

File Operations:
- open(), read(), write(), close() - signed-URL ranged reads, local
  temp-file staged writes
- truncate() - handled in Setattr against the write handle's temp file
- fsync(), fdatasync() - durability-mode dependent multipart upload

Directory Operations:
- opendir(), readdir(), closedir() - manifest fetch or paginated
  listing depending on whether the directory subtree is committed
- mkdir(), rmdir() - folder node creation/deletion
- rename() - node move/rename via a single remote patch call

Metadata Operations:
- stat(), fstat(), lstat() - node attribute retrieval, cached per the
  configured mutable-node TTL
- utimes() - accepted but not propagated; the remote node's timestamps
  are server-assigned

Extended Attributes:
- getxattr(), setxattr() - backed by the node's metadata map
- listxattr(), removexattr() - enumerate/clear metadata-backed xattrs

# Configuration

	cfg := &fuse.Config{
		ReadOnly:         false,
		AllowOther:       true,
		AttrTTL:          time.Second,
		MutableTTL:       5 * time.Second,
		URLRefreshBuffer: 60 * time.Second,
		Durability:       config.DurabilityAsync,
		StagingDir:       "/var/lib/roset/staging",
	}

# Usage Examples

Basic filesystem mounting:

	filesystem := fuse.NewFileSystem(rootID, api, nodes, children,
		parents, negative, stager, metrics, cfg)

	mountManager := fuse.NewMountManager(filesystem, mountConfig)
	if err := mountManager.Mount(ctx); err != nil {
		log.Fatal(err)
	}
	defer mountManager.Unmount()

File operations through the mounted filesystem behave like any POSIX
filesystem - create, write, and read work transparently once mounted:

	file, err := os.Create("/mnt/roset/data.txt")
	...
	_, err = file.WriteString("hello")
	...
	file.Close()

	data, err := os.ReadFile("/mnt/roset/data.txt")

# Durability Modes

Write-mode handle release behaves differently depending on the
configured durability mode:

- sync: Release blocks until the multipart upload completes
- async: Release enqueues the upload and returns immediately
- sync_on_fsync: Release enqueues; an explicit fsync() call blocks

# Caching

Four bounded caches sit between the translator and the remote API:

- Node cache: resolved Node values, keyed by node ID
- Children cache: ordered child listings, keyed by parent ID
- Parent index: reverse lookup from node ID to parent ID, used to
  invalidate precisely the right children-cache entry on mutation
- Negative cache: memoized (parent ID, name) misses

# Node Tree Mapping

Translation between POSIX concepts and the remote node tree:

Files and Folders:
- Kernel inode → internal/inode-assigned integer, mapped to a remote
  node ID
- File content → ranged GETs against a signed, time-limited URL
- Folder listing → remote children or manifest call

Special Files:
- Symbolic links, hard links, and device files are not supported by
  the remote tree and are rejected at creation time
*/
package fuse

package fuse

import (
	"bytes"
	"context"
	goerrors "errors"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/objectfs/roset/internal/config"
	"github.com/objectfs/roset/internal/inode"
	"github.com/objectfs/roset/pkg/errors"
	"github.com/objectfs/roset/pkg/types"
)

const xattrPrefix = "xattr."

// safeInt64ToUint64 safely converts int64 to uint64, clamping negatives to 0.
func safeInt64ToUint64(i int64) uint64 {
	if i < 0 {
		return 0
	}
	return uint64(i)
}

// safeIntToUint32 safely converts int to uint32, clamping out-of-range values.
func safeIntToUint32(i int) uint32 {
	if i < 0 {
		return 0
	}
	if i > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(i)
}

// Config configures the filesystem translator's kernel-facing and
// durability behavior. The zero caller should use DefaultConfig.
type Config struct {
	ReadOnly         bool
	AllowOther       bool
	DefaultUID       uint32
	DefaultGID       uint32
	AttrTTL          time.Duration
	MutableTTL       time.Duration
	URLRefreshBuffer time.Duration
	Durability       config.DurabilityMode
	StagingDir       string
	ReaddirCap       int
}

// DefaultConfig returns sane defaults, mirroring spec.md's stated defaults
// (5s mutable node/children freshness, 60s URL refresh buffer, async
// durability).
func DefaultConfig() *Config {
	return &Config{
		DefaultUID:       safeIntToUint32(os.Getuid()),
		DefaultGID:       safeIntToUint32(os.Getgid()),
		AttrTTL:          time.Second,
		MutableTTL:       5 * time.Second,
		URLRefreshBuffer: 60 * time.Second,
		Durability:       config.DurabilityAsync,
		ReaddirCap:       10000,
	}
}

// Stats tracks cumulative filesystem operation counters, exported by the
// supervisor/metrics layer for observability.
type Stats struct {
	Lookups      atomic.Int64
	Opens        atomic.Int64
	Reads        atomic.Int64
	Writes       atomic.Int64
	Creates      atomic.Int64
	Deletes      atomic.Int64
	BytesRead    atomic.Int64
	BytesWritten atomic.Int64
	Errors       atomic.Int64
}

// FileSystem implements the go-fuse NodeFS bridge over a remote
// tenant-scoped node tree: every inode is addressed by opaque node ID
// rather than path, resolved and cached through the four caches and
// driven by an APIClient.
type FileSystem struct {
	api      types.APIClient
	nodes    types.NodeCache
	children types.ChildrenCache
	parents  types.ParentIndex
	negative types.NegativeCache
	stager   types.UploadStager
	metrics  types.MetricsCollector
	inodes   *inode.Map

	config *Config
	rootID string

	mu         sync.Mutex
	handles    map[uint64]*types.OpenHandle
	nextHandle uint64

	stats *Stats
}

// NewFileSystem wires the node-tree API, the four lookup caches, the
// inode map, and the upload stager into a go-fuse-mountable filesystem.
func NewFileSystem(
	rootNodeID string,
	api types.APIClient,
	nodes types.NodeCache,
	children types.ChildrenCache,
	parents types.ParentIndex,
	negative types.NegativeCache,
	stager types.UploadStager,
	metrics types.MetricsCollector,
	cfg *Config,
) *FileSystem {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &FileSystem{
		api:        api,
		nodes:      nodes,
		children:   children,
		parents:    parents,
		negative:   negative,
		stager:     stager,
		metrics:    metrics,
		inodes:     inode.New(rootNodeID),
		config:     cfg,
		rootID:     rootNodeID,
		handles:    make(map[uint64]*types.OpenHandle),
		nextHandle: 1,
		stats:      &Stats{},
	}
}

// Root returns the mount's root inode embedder, per fs.Mount's contract.
func (f *FileSystem) Root() fs.InodeEmbedder {
	return &Node{fsys: f, id: f.rootID}
}

// GetStats returns a point-in-time snapshot of operation counters.
func (f *FileSystem) GetStats() Stats {
	return Stats{
		Lookups:      atomicCopy(&f.stats.Lookups),
		Opens:        atomicCopy(&f.stats.Opens),
		Reads:        atomicCopy(&f.stats.Reads),
		Writes:       atomicCopy(&f.stats.Writes),
		Creates:      atomicCopy(&f.stats.Creates),
		Deletes:      atomicCopy(&f.stats.Deletes),
		BytesRead:    atomicCopy(&f.stats.BytesRead),
		BytesWritten: atomicCopy(&f.stats.BytesWritten),
		Errors:       atomicCopy(&f.stats.Errors),
	}
}

func atomicCopy(src *atomic.Int64) atomic.Int64 {
	var dst atomic.Int64
	dst.Store(src.Load())
	return dst
}

func (f *FileSystem) recordOp(op string, start time.Time) {
	switch op {
	case "lookup":
		f.stats.Lookups.Add(1)
	case "open":
		f.stats.Opens.Add(1)
	case "read":
		f.stats.Reads.Add(1)
	case "write":
		f.stats.Writes.Add(1)
	case "create":
		f.stats.Creates.Add(1)
	case "delete":
		f.stats.Deletes.Add(1)
	}
	if f.metrics != nil {
		f.metrics.RecordOperation(op, time.Since(start), true)
	}
}

func (f *FileSystem) recordError(op string, err error) {
	f.stats.Errors.Add(1)
	if f.metrics == nil {
		return
	}
	code := "EIO"
	var rosetErr *errors.RosetError
	if goerrors.As(err, &rosetErr) {
		code = string(rosetErr.Code)
	}
	f.metrics.RecordError(op, code)
}

// mapError translates the closed remote error taxonomy into the fixed
// syscall.Errno set spec.md §4.4/§7 require, in the one place this
// mapping happens.
func mapError(err error) syscall.Errno {
	var rosetErr *errors.RosetError
	if goerrors.As(err, &rosetErr) {
		switch rosetErr.Code {
		case errors.ErrCodeNotFound:
			return syscall.ENOENT
		case errors.ErrCodeUnauthorized, errors.ErrCodeForbidden:
			return syscall.EACCES
		case errors.ErrCodeLeaseConflict:
			return syscall.EBUSY
		case errors.ErrCodeRateLimited:
			return syscall.EAGAIN
		default:
			return syscall.EIO
		}
	}
	return syscall.EIO
}

// fetchNode resolves a node by ID, preferring the node cache.
func (f *FileSystem) fetchNode(ctx context.Context, nodeID string) (*types.Node, syscall.Errno) {
	if cached, ok := f.nodes.Get(nodeID); ok {
		return cached, 0
	}
	node, err := f.api.GetNode(ctx, nodeID)
	if err != nil {
		f.recordError("getattr", err)
		return nil, mapError(err)
	}
	f.cacheNode(node)
	return node, 0
}

func (f *FileSystem) cacheNode(node *types.Node) {
	f.nodes.Put(node, f.config.MutableTTL)
	if node.ParentID != "" {
		f.parents.Put(node.ID, node.ParentID)
	}
}

func sanitizeNodeID(id string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(id) + "_*"
}

func fillAttr(node *types.Node, cfg *Config, attr *fuse.Attr) {
	attr.Size = safeInt64ToUint64(node.Size)
	attr.Blocks = (attr.Size + 511) / 512
	attr.Blksize = 4096
	attr.Nlink = 1
	attr.Uid = cfg.DefaultUID
	attr.Gid = cfg.DefaultGID
	if node.IsDir() {
		attr.Mode = fuse.S_IFDIR | 0755
	} else {
		attr.Mode = fuse.S_IFREG | 0644
	}
	mtime := safeInt64ToUint64(node.UpdatedAt.Unix())
	ctime := safeInt64ToUint64(node.CreatedAt.Unix())
	attr.Mtime, attr.Atime, attr.Ctime = mtime, mtime, ctime
}

// Node is a single inode embedder addressed by remote node ID, serving
// both file and folder roles - there is no separate DirectoryNode/
// FileNode split because identity here comes entirely from the node
// tree, not from a path or on-disk type.
type Node struct {
	fs.Inode
	fsys *FileSystem
	id   string
}

// newChildInode allocates (or reuses) the stable inode for child and
// wraps it as a go-fuse Inode beneath n, filling out's attributes.
func (n *Node) newChildInode(ctx context.Context, child *types.Node, out *fuse.EntryOut) *fs.Inode {
	ino := n.fsys.inodes.GetOrCreate(child.ID)
	mode := uint32(fuse.S_IFREG)
	if child.IsDir() {
		mode = fuse.S_IFDIR
	}
	childEmbedder := &Node{fsys: n.fsys, id: child.ID}
	childInode := n.NewInode(ctx, childEmbedder, fs.StableAttr{Mode: mode, Ino: ino})
	if out != nil {
		fillAttr(child, n.fsys.config, &out.Attr)
		out.SetEntryTimeout(n.fsys.config.AttrTTL)
		out.SetAttrTimeout(n.fsys.config.AttrTTL)
	}
	return childInode
}

// Lookup resolves name under n via the negative cache, then the
// children cache, then a remote resolve call, per spec.md §4.4.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	start := time.Now()
	defer n.fsys.recordOp("lookup", start)

	if n.fsys.negative.IsNegative(n.id, name) {
		return nil, syscall.ENOENT
	}

	if cached, ok := n.fsys.children.Get(n.id); ok {
		for _, child := range cached {
			if child.Name == name {
				n.fsys.cacheNode(child)
				return n.newChildInode(ctx, child, out), 0
			}
		}
	}

	child, err := n.fsys.api.Resolve(ctx, n.id, name)
	if err != nil {
		n.fsys.recordError("lookup", err)
		return nil, mapError(err)
	}
	if child == nil {
		n.fsys.negative.PutNegative(n.id, name)
		return nil, syscall.ENOENT
	}

	n.fsys.cacheNode(child)
	return n.newChildInode(ctx, child, out), 0
}

// Getattr fills out with the node's current attributes.
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	node, errno := n.fsys.fetchNode(ctx, n.id)
	if errno != 0 {
		return errno
	}
	fillAttr(node, n.fsys.config, &out.Attr)
	out.SetTimeout(n.fsys.config.AttrTTL)
	return 0
}

// Setattr handles truncation of an open write handle. mtime updates are
// accepted but not propagated to the remote node, matching spec.md §4.4.
func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if n.fsys.config.ReadOnly {
		return syscall.EROFS
	}

	if size, ok := in.GetSize(); ok {
		handle, ok := f.(*FileHandle)
		if !ok || handle.open.Mode != types.HandleModeWrite {
			return syscall.EBADF
		}
		if err := handle.file.Truncate(int64(size)); err != nil {
			return syscall.EIO
		}
		handle.open.Size = int64(size)
		handle.open.Dirty = true
	}

	node, errno := n.fsys.fetchNode(ctx, n.id)
	if errno != 0 {
		return errno
	}
	fillAttr(node, n.fsys.config, &out.Attr)
	return 0
}

// Readdir lists n's children, choosing between a single manifest fetch
// for committed subtrees and paginated listing otherwise, synthesizing
// "." and ".." per spec.md §4.4.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	node, errno := n.fsys.fetchNode(ctx, n.id)
	if errno != 0 {
		return nil, errno
	}
	if !node.IsDir() {
		return nil, syscall.ENOTDIR
	}

	children, ok := n.fsys.children.Get(n.id)
	if !ok {
		var err error
		if node.Metadata["committed"] == "true" {
			children, err = n.fsys.api.GetManifest(ctx, n.id)
		} else {
			children, err = n.fsys.api.ListAllChildren(ctx, n.id, n.fsys.config.ReaddirCap)
		}
		if err != nil {
			n.fsys.recordError("readdir", err)
			return nil, mapError(err)
		}
		n.fsys.children.Put(n.id, children, n.fsys.config.MutableTTL)
		for _, child := range children {
			// Keep nodes in sync with children per the coherence
			// invariant: anything listed here must also be found by a
			// standalone getattr/fetchNode without a round trip.
			n.fsys.nodes.Put(child, n.fsys.config.MutableTTL)
			n.fsys.parents.Put(child.ID, n.id)
		}
	}

	entries := make([]fuse.DirEntry, 0, len(children)+2)
	entries = append(entries, fuse.DirEntry{Name: ".", Mode: fuse.S_IFDIR})
	entries = append(entries, fuse.DirEntry{Name: "..", Mode: fuse.S_IFDIR})
	for _, child := range children {
		mode := uint32(fuse.S_IFREG)
		if child.IsDir() {
			mode = fuse.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: child.Name, Mode: mode})
	}
	return fs.NewListDirStream(entries), 0
}

// Mkdir creates a folder node beneath n.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if n.fsys.config.ReadOnly {
		return nil, syscall.EROFS
	}
	created, err := n.fsys.api.CreateNode(ctx, n.id, name, types.NodeKindFolder)
	if err != nil {
		return nil, mapError(err)
	}
	n.fsys.cacheNode(created)
	n.fsys.children.Invalidate(n.id)
	n.fsys.negative.InvalidateNegative(n.id, name)
	return n.newChildInode(ctx, created, out), 0
}

// Create creates a file node and an associated write-mode handle backed
// by a fresh local temp file, initializing a multipart upload token
// upfront per spec.md §4.5.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	start := time.Now()
	defer n.fsys.recordOp("create", start)

	if n.fsys.config.ReadOnly {
		return nil, nil, 0, syscall.EROFS
	}

	created, err := n.fsys.api.CreateNode(ctx, n.id, name, types.NodeKindFile)
	if err != nil {
		n.fsys.recordError("create", err)
		return nil, nil, 0, mapError(err)
	}
	n.fsys.cacheNode(created)
	n.fsys.children.Invalidate(n.id)
	n.fsys.negative.InvalidateNegative(n.id, name)

	token, _, err := n.fsys.api.InitUpload(ctx, n.id, name, 0, true)
	if err != nil {
		return nil, nil, 0, mapError(err)
	}

	tmp, ferr := os.CreateTemp(n.fsys.config.StagingDir, sanitizeNodeID(created.ID))
	if ferr != nil {
		return nil, nil, 0, syscall.EIO
	}

	open := &types.OpenHandle{
		NodeID:      created.ID,
		Mode:        types.HandleModeWrite,
		TempFile:    tmp.Name(),
		UploadToken: token,
	}
	handleID := n.fsys.registerHandle(open)

	childInode := n.newChildInode(ctx, created, out)
	return childInode, &FileHandle{fsys: n.fsys, open: open, handle: handleID, file: tmp}, 0, 0
}

// Open opens an existing node for read or write. Write-mode opens that
// don't truncate pull the node's existing content into the local temp
// file first, so subsequent partial writes see the right bytes.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	start := time.Now()
	defer n.fsys.recordOp("open", start)

	node, errno := n.fsys.fetchNode(ctx, n.id)
	if errno != 0 {
		return nil, 0, errno
	}
	if node.IsDir() {
		return nil, 0, syscall.EISDIR
	}

	writeMode := flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0
	if writeMode && n.fsys.config.ReadOnly {
		return nil, 0, syscall.EROFS
	}

	if writeMode {
		tmp, err := os.CreateTemp(n.fsys.config.StagingDir, sanitizeNodeID(n.id))
		if err != nil {
			return nil, 0, syscall.EIO
		}
		open := &types.OpenHandle{NodeID: n.id, Mode: types.HandleModeWrite, Size: node.Size}
		if flags&syscall.O_TRUNC == 0 && node.Size > 0 {
			if err := n.fsys.pullInto(ctx, node, tmp); err != nil {
				tmp.Close()
				os.Remove(tmp.Name())
				return nil, 0, syscall.EIO
			}
			open.ContentPulled = true
		} else {
			open.Size = 0
		}
		open.TempFile = tmp.Name()
		handleID := n.fsys.registerHandle(open)
		return &FileHandle{fsys: n.fsys, open: open, handle: handleID, file: tmp}, 0, 0
	}

	url, expiresAt, size, err := n.fsys.api.GetDownloadURL(ctx, n.id)
	if err != nil {
		return nil, 0, mapError(err)
	}
	open := &types.OpenHandle{
		NodeID:       n.id,
		Mode:         types.HandleModeRead,
		Size:         size,
		DownloadURL:  url,
		URLExpiresAt: expiresAt,
	}
	handleID := n.fsys.registerHandle(open)
	return &FileHandle{fsys: n.fsys, open: open, handle: handleID}, 0, 0
}

// pullInto downloads node's full current content into dst, used when a
// write-mode open without O_TRUNC needs to preserve existing bytes.
func (f *FileSystem) pullInto(ctx context.Context, node *types.Node, dst *os.File) error {
	if node.Size == 0 {
		return nil
	}
	url, _, size, err := f.api.GetDownloadURL(ctx, node.ID)
	if err != nil {
		return err
	}
	const chunk = 8 * 1024 * 1024
	for off := int64(0); off < size; off += chunk {
		n := int64(chunk)
		if off+n > size {
			n = size - off
		}
		data, err := f.api.DownloadRange(ctx, url, off, n)
		if err != nil {
			return err
		}
		if _, err := dst.WriteAt(data, off); err != nil {
			return err
		}
	}
	return nil
}

// Unlink removes a file child.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return n.removeChild(ctx, name)
}

// Rmdir removes a folder child.
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return n.removeChild(ctx, name)
}

func (n *Node) removeChild(ctx context.Context, name string) syscall.Errno {
	start := time.Now()
	defer n.fsys.recordOp("delete", start)

	if n.fsys.config.ReadOnly {
		return syscall.EROFS
	}
	child, err := n.fsys.api.Resolve(ctx, n.id, name)
	if err != nil {
		return mapError(err)
	}
	if child == nil {
		return syscall.ENOENT
	}
	if err := n.fsys.api.DeleteNode(ctx, child.ID); err != nil {
		n.fsys.recordError("delete", err)
		return mapError(err)
	}

	n.fsys.nodes.Invalidate(child.ID)
	n.fsys.children.Invalidate(n.id)
	n.fsys.children.Invalidate(child.ID)
	n.fsys.parents.Invalidate(child.ID)
	n.fsys.negative.PutNegative(n.id, name)
	n.fsys.inodes.Remove(child.ID)
	return 0
}

// Rename moves and/or renames a child, computing the minimal patch and
// invalidating both parents' children caches.
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	if n.fsys.config.ReadOnly {
		return syscall.EROFS
	}
	destDir, ok := newParent.(*Node)
	if !ok {
		return syscall.EINVAL
	}

	child, err := n.fsys.api.Resolve(ctx, n.id, name)
	if err != nil {
		return mapError(err)
	}
	if child == nil {
		return syscall.ENOENT
	}

	var newParentID, newNameArg string
	if destDir.id != child.ParentID {
		newParentID = destDir.id
	}
	if newName != name {
		newNameArg = newName
	}

	updated, err := n.fsys.api.MoveNode(ctx, child.ID, newParentID, newNameArg)
	if err != nil {
		return mapError(err)
	}
	n.fsys.cacheNode(updated)
	n.fsys.children.Invalidate(n.id)
	n.fsys.children.Invalidate(destDir.id)
	n.fsys.negative.InvalidateNegative(n.id, name)
	n.fsys.negative.InvalidateNegative(destDir.id, newName)
	return 0
}

// Getxattr reads a node's extended attribute from its Metadata map.
func (n *Node) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	node, errno := n.fsys.fetchNode(ctx, n.id)
	if errno != 0 {
		return 0, errno
	}
	value, ok := node.Metadata[xattrPrefix+attr]
	if !ok {
		return 0, syscall.ENODATA
	}
	if len(dest) < len(value) {
		return uint32(len(value)), syscall.ERANGE
	}
	return uint32(copy(dest, value)), 0
}

// Setxattr writes an extended attribute via a metadata patch.
func (n *Node) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	if n.fsys.config.ReadOnly {
		return syscall.EROFS
	}
	updated, err := n.fsys.api.UpdateMetadata(ctx, n.id, map[string]string{xattrPrefix + attr: string(data)})
	if err != nil {
		return mapError(err)
	}
	n.fsys.cacheNode(updated)
	return 0
}

// Listxattr enumerates the node's extended attribute names.
func (n *Node) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	node, errno := n.fsys.fetchNode(ctx, n.id)
	if errno != 0 {
		return 0, errno
	}
	var names []string
	for key := range node.Metadata {
		if strings.HasPrefix(key, xattrPrefix) {
			names = append(names, strings.TrimPrefix(key, xattrPrefix))
		}
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range names {
		buf.WriteString(name)
		buf.WriteByte(0)
	}
	if len(dest) < buf.Len() {
		return uint32(buf.Len()), syscall.ERANGE
	}
	return uint32(copy(dest, buf.Bytes())), 0
}

// Removexattr clears an extended attribute. The remote API has no
// delete-metadata-key operation, so removal is represented by patching
// the key to an empty value and dropping it from the cached node.
func (n *Node) Removexattr(ctx context.Context, attr string) syscall.Errno {
	if n.fsys.config.ReadOnly {
		return syscall.EROFS
	}
	node, errno := n.fsys.fetchNode(ctx, n.id)
	if errno != 0 {
		return errno
	}
	if _, ok := node.Metadata[xattrPrefix+attr]; !ok {
		return syscall.ENODATA
	}
	updated, err := n.fsys.api.UpdateMetadata(ctx, n.id, map[string]string{xattrPrefix + attr: ""})
	if err != nil {
		return mapError(err)
	}
	if updated.Metadata != nil {
		delete(updated.Metadata, xattrPrefix+attr)
	}
	n.fsys.cacheNode(updated)
	return 0
}

// Forget releases this node's kernel-held references from the inode map.
// go-fuse itself coalesces the kernel's lookup count and invokes this
// exactly once when it reaches zero, while the map counted one reference
// per GetOrCreate call, so the entry's whole remaining refcount is
// released here.
func (n *Node) Forget() {
	n.fsys.inodes.Forget(n.StableAttr().Ino, ^uint64(0))
}

var (
	_ fs.InodeEmbedder   = (*Node)(nil)
	_ fs.NodeLookuper    = (*Node)(nil)
	_ fs.NodeGetattrer   = (*Node)(nil)
	_ fs.NodeSetattrer   = (*Node)(nil)
	_ fs.NodeReaddirer   = (*Node)(nil)
	_ fs.NodeMkdirer     = (*Node)(nil)
	_ fs.NodeCreater     = (*Node)(nil)
	_ fs.NodeOpener      = (*Node)(nil)
	_ fs.NodeUnlinker    = (*Node)(nil)
	_ fs.NodeRmdirer     = (*Node)(nil)
	_ fs.NodeRenamer     = (*Node)(nil)
	_ fs.NodeGetxattrer  = (*Node)(nil)
	_ fs.NodeSetxattrer  = (*Node)(nil)
	_ fs.NodeListxattrer = (*Node)(nil)
	_ fs.NodeForgetter   = (*Node)(nil)
)

func (f *FileSystem) registerHandle(open *types.OpenHandle) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.nextHandle
	f.nextHandle++
	open.FH = h
	f.handles[h] = open
	return h
}

func (f *FileSystem) unregisterHandle(h uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handles, h)
}

// buildUploadJob stats the handle's temp file and assembles the durable
// job record the staging engine persists and drives to completion.
func (f *FileSystem) buildUploadJob(open *types.OpenHandle) (*types.UploadJob, error) {
	info, err := os.Stat(open.TempFile)
	if err != nil {
		return nil, err
	}
	parentID, _ := f.parents.Get(open.NodeID)
	return &types.UploadJob{
		JobID:       open.TempFile,
		FilePath:    open.TempFile,
		NodeID:      open.NodeID,
		ParentID:    parentID,
		UploadToken: open.UploadToken,
		TotalSize:   info.Size(),
		CreatedAt:   time.Now(),
	}, nil
}

func (f *FileSystem) uploadAsync(open *types.OpenHandle) error {
	job, err := f.buildUploadJob(open)
	if err != nil {
		return err
	}
	return f.stager.Submit(job)
}

func (f *FileSystem) uploadSync(ctx context.Context, open *types.OpenHandle) (*types.Node, error) {
	job, err := f.buildUploadJob(open)
	if err != nil {
		return nil, err
	}
	node, err := f.stager.SubmitAndWait(ctx, job)
	if err != nil {
		return nil, err
	}
	f.nodes.Invalidate(open.NodeID)
	return node, nil
}

// FileHandle is an open handle on a file node: write-mode handles own a
// local temp file absorbing every write; read-mode handles hold a
// signed download URL refreshed as it nears expiry.
type FileHandle struct {
	fsys   *FileSystem
	open   *types.OpenHandle
	handle uint64
	file   *os.File
}

// Read serves from the local temp file for write-mode handles, or from
// a ranged GET against the signed download URL for read-mode handles,
// refreshing the URL when it's near expiry or rejected as forbidden.
func (fh *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	start := time.Now()
	defer fh.fsys.recordOp("read", start)

	if fh.open.Mode == types.HandleModeWrite {
		n, err := fh.file.ReadAt(dest, off)
		if err != nil && !goerrors.Is(err, io.EOF) {
			return nil, syscall.EIO
		}
		return fuse.ReadResultData(dest[:n]), 0
	}

	if off >= fh.open.Size {
		return fuse.ReadResultData(nil), 0
	}
	size := int64(len(dest))
	if off+size > fh.open.Size {
		size = fh.open.Size - off
	}

	if time.Until(fh.open.URLExpiresAt) < fh.fsys.config.URLRefreshBuffer {
		if err := fh.refreshURL(ctx); err != nil {
			return nil, mapError(err)
		}
	}

	data, err := fh.fsys.api.DownloadRange(ctx, fh.open.DownloadURL, off, size)
	if err != nil {
		var rosetErr *errors.RosetError
		if goerrors.As(err, &rosetErr) && rosetErr.Code == errors.ErrCodeForbidden {
			if rerr := fh.refreshURL(ctx); rerr != nil {
				return nil, mapError(rerr)
			}
			data, err = fh.fsys.api.DownloadRange(ctx, fh.open.DownloadURL, off, size)
		}
		if err != nil {
			fh.fsys.recordError("read", err)
			return nil, mapError(err)
		}
	}

	fh.fsys.stats.BytesRead.Add(int64(len(data)))
	return fuse.ReadResultData(data), 0
}

func (fh *FileHandle) refreshURL(ctx context.Context) error {
	url, expiresAt, _, err := fh.fsys.api.GetDownloadURL(ctx, fh.open.NodeID)
	if err != nil {
		return err
	}
	fh.open.DownloadURL = url
	fh.open.URLExpiresAt = expiresAt
	return nil
}

// Write absorbs data into the handle's local temp file.
func (fh *FileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if fh.fsys.config.ReadOnly || fh.open.Mode != types.HandleModeWrite {
		return 0, syscall.EBADF
	}

	start := time.Now()
	defer fh.fsys.recordOp("write", start)

	n, err := fh.file.WriteAt(data, off)
	if err != nil {
		return 0, syscall.EIO
	}
	fh.open.Dirty = true
	if newSize := off + int64(n); newSize > fh.open.Size {
		fh.open.Size = newSize
	}
	fh.fsys.stats.BytesWritten.Add(int64(n))
	return safeIntToUint32(n), 0
}

// Flush is a no-op: durability is decided at Fsync/Release, not Flush,
// since a single open file descriptor may be flushed many times before
// the handle that actually owns the upload is released.
func (fh *FileHandle) Flush(ctx context.Context) syscall.Errno {
	return 0
}

// Fsync blocks on the remote upload for sync and sync-on-fsync durability,
// per the durability mode table in spec.md §4.5. Async durability's row
// reads "immediate" at fsync() precisely because nothing is submitted
// here: the staging engine only ever takes ownership of open.TempFile
// once, at Release, and submitting it a second time here would leave
// Release holding a path some worker may already be uploading (or have
// deleted on completion) once Dirty was cleared - fsync() then close()
// would race the upload against Release's own temp-file cleanup. So
// async fsync() is a true no-op: the write stays dirty and un-enqueued
// until Release, same as if fsync() had never been called.
func (fh *FileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	if fh.open.Mode != types.HandleModeWrite || !fh.open.Dirty {
		return 0
	}
	if fh.fsys.config.Durability == config.DurabilitySync || fh.fsys.config.Durability == config.DurabilitySyncOnFsync {
		if _, err := fh.fsys.uploadSync(ctx, fh.open); err != nil {
			return mapError(err)
		}
		fh.open.Dirty = false
	}
	return 0
}

// Release closes the handle. For write handles this triggers the
// upload per durability mode: sync blocks until the remote upload
// completes; async and sync-on-fsync both just enqueue. This is the
// only place a dirty async (or sync-on-fsync) write ever gets submitted
// to the staging engine, so there is exactly one path that hands
// open.TempFile's ownership off to a worker - Release never deletes a
// file it has also just queued for upload.
func (fh *FileHandle) Release(ctx context.Context) syscall.Errno {
	defer fh.fsys.unregisterHandle(fh.handle)

	if fh.open.Mode != types.HandleModeWrite {
		return 0
	}
	if fh.file != nil {
		fh.file.Close()
	}
	if !fh.open.Dirty {
		os.Remove(fh.open.TempFile)
		return 0
	}

	if fh.fsys.config.Durability == config.DurabilitySync {
		if _, err := fh.fsys.uploadSync(ctx, fh.open); err != nil {
			return mapError(err)
		}
		return 0
	}
	if err := fh.fsys.uploadAsync(fh.open); err != nil {
		return syscall.EIO
	}
	return 0
}

var (
	_ fs.FileHandle  = (*FileHandle)(nil)
	_ fs.FileReader  = (*FileHandle)(nil)
	_ fs.FileWriter  = (*FileHandle)(nil)
	_ fs.FileFlusher = (*FileHandle)(nil)
	_ fs.FileFsyncer = (*FileHandle)(nil)
	_ fs.FileReleaser = (*FileHandle)(nil)
)

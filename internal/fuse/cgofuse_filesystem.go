//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	stderrors "errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/objectfs/roset/internal/config"
	"github.com/objectfs/roset/pkg/types"
)

var (
	errAlreadyMounted = stderrors.New("filesystem already mounted")
	errNotMounted     = stderrors.New("filesystem not mounted")
)

// CgoFuseFS implements roset over winfsp/cgofuse, for platforms without a
// native go-fuse kernel driver. cgofuse's FileSystemBase callbacks are
// path-addressed rather than inode-addressed, so every operation here
// re-resolves the path against the same node tree and caches the
// filesystem.go Node-based backend shares, instead of consulting a
// kernel-maintained inode table.
type CgoFuseFS struct {
	fuse.FileSystemBase

	api      types.APIClient
	nodes    types.NodeCache
	children types.ChildrenCache
	parents  types.ParentIndex
	negative types.NegativeCache
	stager   types.UploadStager
	metrics  types.MetricsCollector
	config   *Config
	rootID   string

	mountPoint string
	mu         sync.Mutex
	openFiles  map[uint64]*cgoOpenFile
	nextHandle uint64
	host       *fuse.FileSystemHost
	mounted    bool

	stats Stats
}

// cgoOpenFile tracks a path-addressed handle's underlying node and any
// local write staging file, mirroring types.OpenHandle for the path API.
type cgoOpenFile struct {
	path   string
	open   *types.OpenHandle
	file   *os.File
}

// NewCgoFuseFS creates a new cgofuse-based filesystem over the same
// remote node tree and caches the go-fuse backend uses.
func NewCgoFuseFS(
	rootNodeID string,
	api types.APIClient,
	nodes types.NodeCache,
	children types.ChildrenCache,
	parents types.ParentIndex,
	negative types.NegativeCache,
	stager types.UploadStager,
	metrics types.MetricsCollector,
	cfg *Config,
	mountPoint string,
) *CgoFuseFS {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &CgoFuseFS{
		api:        api,
		nodes:      nodes,
		children:   children,
		parents:    parents,
		negative:   negative,
		stager:     stager,
		metrics:    metrics,
		config:     cfg,
		rootID:     rootNodeID,
		mountPoint: mountPoint,
		openFiles:  make(map[uint64]*cgoOpenFile),
		nextHandle: 1,
	}
}

// Mount mounts the filesystem at its configured mount point via the
// cgofuse host.
func (cf *CgoFuseFS) Mount(ctx context.Context) error {
	cf.mu.Lock()
	if cf.mounted {
		cf.mu.Unlock()
		return errAlreadyMounted
	}
	cf.host = fuse.NewFileSystemHost(cf)
	cf.mu.Unlock()

	options := []string{"-o", "fsname=roset", "-o", "subtype=roset"}
	if cf.config.AllowOther {
		options = append(options, "-o", "allow_other")
	}

	go cf.host.Mount(cf.mountPoint, options)
	time.Sleep(100 * time.Millisecond)

	cf.mu.Lock()
	cf.mounted = true
	cf.mu.Unlock()
	return nil
}

// Unmount unmounts the filesystem.
func (cf *CgoFuseFS) Unmount() error {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	if !cf.mounted {
		return errNotMounted
	}
	if cf.host != nil {
		cf.host.Unmount()
	}
	cf.mounted = false
	return nil
}

// IsMounted reports whether Mount has succeeded and Unmount has not yet run.
func (cf *CgoFuseFS) IsMounted() bool {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return cf.mounted
}

// GetStats returns a snapshot of cumulative operation counters.
func (cf *CgoFuseFS) GetStats() *FilesystemStats {
	return &FilesystemStats{
		Lookups:      cf.stats.Lookups.Load(),
		Opens:        cf.stats.Opens.Load(),
		Reads:        cf.stats.Reads.Load(),
		Writes:       cf.stats.Writes.Load(),
		Creates:      cf.stats.Creates.Load(),
		Deletes:      cf.stats.Deletes.Load(),
		BytesRead:    cf.stats.BytesRead.Load(),
		BytesWritten: cf.stats.BytesWritten.Load(),
		Errors:       cf.stats.Errors.Load(),
	}
}

// resolvePath walks path's components against the remote tree, consulting
// the shared children/negative caches at every step.
func (cf *CgoFuseFS) resolvePath(ctx context.Context, path string) (*types.Node, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return cf.api.GetNode(ctx, cf.rootID)
	}

	parentID := cf.rootID
	var current *types.Node
	for _, part := range strings.Split(path, "/") {
		if cf.negative.IsNegative(parentID, part) {
			return nil, nil
		}
		if cached, ok := cf.children.Get(parentID); ok {
			current = nil
			for _, child := range cached {
				if child.Name == part {
					current = child
					break
				}
			}
		}
		if current == nil {
			child, err := cf.api.Resolve(ctx, parentID, part)
			if err != nil {
				return nil, err
			}
			if child == nil {
				cf.negative.PutNegative(parentID, part)
				return nil, nil
			}
			current = child
		}
		cf.nodes.Put(current, cf.config.MutableTTL)
		cf.parents.Put(current.ID, parentID)
		parentID = current.ID
	}
	return current, nil
}

func (cf *CgoFuseFS) registerHandle(of *cgoOpenFile) uint64 {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	h := cf.nextHandle
	cf.nextHandle++
	cf.openFiles[h] = of
	return h
}

func (cf *CgoFuseFS) handleFor(fh uint64) (*cgoOpenFile, bool) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	of, ok := cf.openFiles[fh]
	return of, ok
}

func (cf *CgoFuseFS) releaseHandle(fh uint64) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	delete(cf.openFiles, fh)
}

func (cf *CgoFuseFS) recordOp(op string, start time.Time) {
	switch op {
	case "lookup":
		cf.stats.Lookups.Add(1)
	case "open":
		cf.stats.Opens.Add(1)
	case "read":
		cf.stats.Reads.Add(1)
	case "write":
		cf.stats.Writes.Add(1)
	case "create":
		cf.stats.Creates.Add(1)
	case "delete":
		cf.stats.Deletes.Add(1)
	}
	if cf.metrics != nil {
		cf.metrics.RecordOperation(op, time.Since(start), true)
	}
}

// Getattr fills stat with the node's attributes.
func (cf *CgoFuseFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	defer cf.recordOp("lookup", time.Now())

	node, err := cf.resolvePath(context.Background(), path)
	if err != nil {
		cf.stats.Errors.Add(1)
		return -fuse.EIO
	}
	if node == nil {
		return -fuse.ENOENT
	}
	fillCgoStat(stat, node, cf.config)
	return 0
}

// Open opens an existing file for read or write.
func (cf *CgoFuseFS) Open(path string, flags int) (int, uint64) {
	defer cf.recordOp("open", time.Now())

	ctx := context.Background()
	node, err := cf.resolvePath(ctx, path)
	if err != nil || node == nil {
		return -fuse.ENOENT, 0
	}

	writeMode := flags&(os.O_WRONLY|os.O_RDWR) != 0
	open := &types.OpenHandle{NodeID: node.ID, Mode: types.HandleModeRead, Size: node.Size}
	var tmp *os.File
	if writeMode {
		open.Mode = types.HandleModeWrite
		tmp, err = os.CreateTemp(cf.config.StagingDir, sanitizeNodeID(node.ID))
		if err != nil {
			return -fuse.EIO, 0
		}
		open.TempFile = tmp.Name()
	} else {
		url, expiresAt, size, err := cf.api.GetDownloadURL(ctx, node.ID)
		if err != nil {
			return -fuse.EIO, 0
		}
		open.DownloadURL = url
		open.URLExpiresAt = expiresAt
		open.Size = size
	}

	handle := cf.registerHandle(&cgoOpenFile{path: path, open: open, file: tmp})
	return 0, handle
}

// Create creates a new file node and a write-mode handle for it.
func (cf *CgoFuseFS) Create(path string, flags int, mode uint32) (int, uint64) {
	defer cf.recordOp("create", time.Now())

	if cf.config.ReadOnly {
		return -fuse.EROFS, 0
	}
	ctx := context.Background()
	parentPath, name := splitCgoPath(path)
	parent, err := cf.resolvePath(ctx, parentPath)
	if err != nil || parent == nil {
		return -fuse.ENOENT, 0
	}

	created, err := cf.api.CreateNode(ctx, parent.ID, name, types.NodeKindFile)
	if err != nil {
		return -fuse.EIO, 0
	}
	cf.nodes.Put(created, cf.config.MutableTTL)
	cf.children.Invalidate(parent.ID)
	cf.negative.InvalidateNegative(parent.ID, name)

	token, _, err := cf.api.InitUpload(ctx, parent.ID, name, 0, true)
	if err != nil {
		return -fuse.EIO, 0
	}
	tmp, err := os.CreateTemp(cf.config.StagingDir, sanitizeNodeID(created.ID))
	if err != nil {
		return -fuse.EIO, 0
	}

	open := &types.OpenHandle{NodeID: created.ID, Mode: types.HandleModeWrite, TempFile: tmp.Name(), UploadToken: token}
	handle := cf.registerHandle(&cgoOpenFile{path: path, open: open, file: tmp})
	return 0, handle
}

// Read reads from the handle's local temp file (write mode) or via a
// ranged GET against the signed download URL (read mode).
func (cf *CgoFuseFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	defer cf.recordOp("read", time.Now())

	of, ok := cf.handleFor(fh)
	if !ok {
		return -fuse.EBADF
	}
	if of.open.Mode == types.HandleModeWrite {
		n, err := of.file.ReadAt(buff, ofst)
		if err != nil && n == 0 {
			return -fuse.EIO
		}
		return n
	}

	if ofst >= of.open.Size {
		return 0
	}
	size := int64(len(buff))
	if ofst+size > of.open.Size {
		size = of.open.Size - ofst
	}
	data, err := cf.api.DownloadRange(context.Background(), of.open.DownloadURL, ofst, size)
	if err != nil {
		return -fuse.EIO
	}
	copy(buff, data)
	cf.stats.BytesRead.Add(int64(len(data)))
	return len(data)
}

// Write absorbs data into the handle's local temp file.
func (cf *CgoFuseFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	defer cf.recordOp("write", time.Now())

	if cf.config.ReadOnly {
		return -fuse.EROFS
	}
	of, ok := cf.handleFor(fh)
	if !ok || of.open.Mode != types.HandleModeWrite {
		return -fuse.EBADF
	}
	n, err := of.file.WriteAt(buff, ofst)
	if err != nil {
		return -fuse.EIO
	}
	of.open.Dirty = true
	if newSize := ofst + int64(n); newSize > of.open.Size {
		of.open.Size = newSize
	}
	cf.stats.BytesWritten.Add(int64(n))
	return n
}

// Release closes the handle, triggering an upload for dirty write handles
// per the configured durability mode.
func (cf *CgoFuseFS) Release(path string, fh uint64) int {
	of, ok := cf.handleFor(fh)
	if !ok {
		return -fuse.EBADF
	}
	defer cf.releaseHandle(fh)

	if of.open.Mode != types.HandleModeWrite {
		return 0
	}
	if of.file != nil {
		of.file.Close()
	}
	if !of.open.Dirty {
		os.Remove(of.open.TempFile)
		return 0
	}

	info, err := os.Stat(of.open.TempFile)
	if err != nil {
		return -fuse.EIO
	}
	parentID, _ := cf.parents.Get(of.open.NodeID)
	job := &types.UploadJob{
		JobID:       of.open.TempFile,
		FilePath:    of.open.TempFile,
		NodeID:      of.open.NodeID,
		ParentID:    parentID,
		UploadToken: of.open.UploadToken,
		TotalSize:   info.Size(),
		CreatedAt:   time.Now(),
	}

	if cf.config.Durability == config.DurabilitySync {
		if _, err := cf.stager.SubmitAndWait(context.Background(), job); err != nil {
			return -fuse.EIO
		}
		cf.nodes.Invalidate(of.open.NodeID)
		return 0
	}
	if err := cf.stager.Submit(job); err != nil {
		return -fuse.EIO
	}
	return 0
}

// Mkdir creates a folder node.
func (cf *CgoFuseFS) Mkdir(path string, mode uint32) int {
	if cf.config.ReadOnly {
		return -fuse.EROFS
	}
	ctx := context.Background()
	parentPath, name := splitCgoPath(path)
	parent, err := cf.resolvePath(ctx, parentPath)
	if err != nil || parent == nil {
		return -fuse.ENOENT
	}
	created, err := cf.api.CreateNode(ctx, parent.ID, name, types.NodeKindFolder)
	if err != nil {
		return -fuse.EIO
	}
	cf.nodes.Put(created, cf.config.MutableTTL)
	cf.children.Invalidate(parent.ID)
	cf.negative.InvalidateNegative(parent.ID, name)
	return 0
}

// Unlink removes a file node.
func (cf *CgoFuseFS) Unlink(path string) int {
	return cf.removePath(path)
}

// Rmdir removes a folder node.
func (cf *CgoFuseFS) Rmdir(path string) int {
	return cf.removePath(path)
}

func (cf *CgoFuseFS) removePath(path string) int {
	defer cf.recordOp("delete", time.Now())
	if cf.config.ReadOnly {
		return -fuse.EROFS
	}
	ctx := context.Background()
	parentPath, name := splitCgoPath(path)
	parent, err := cf.resolvePath(ctx, parentPath)
	if err != nil || parent == nil {
		return -fuse.ENOENT
	}
	node, err := cf.api.Resolve(ctx, parent.ID, name)
	if err != nil {
		return -fuse.EIO
	}
	if node == nil {
		return -fuse.ENOENT
	}
	if err := cf.api.DeleteNode(ctx, node.ID); err != nil {
		return -fuse.EIO
	}
	cf.nodes.Invalidate(node.ID)
	cf.children.Invalidate(parent.ID)
	cf.parents.Invalidate(node.ID)
	cf.negative.PutNegative(parent.ID, name)
	return 0
}

// Rename moves and/or renames a node.
func (cf *CgoFuseFS) Rename(oldpath, newpath string) int {
	if cf.config.ReadOnly {
		return -fuse.EROFS
	}
	ctx := context.Background()
	oldParentPath, oldName := splitCgoPath(oldpath)
	newParentPath, newName := splitCgoPath(newpath)

	oldParent, err := cf.resolvePath(ctx, oldParentPath)
	if err != nil || oldParent == nil {
		return -fuse.ENOENT
	}
	node, err := cf.api.Resolve(ctx, oldParent.ID, oldName)
	if err != nil {
		return -fuse.EIO
	}
	if node == nil {
		return -fuse.ENOENT
	}
	newParent, err := cf.resolvePath(ctx, newParentPath)
	if err != nil || newParent == nil {
		return -fuse.ENOENT
	}

	var newParentID, newNameArg string
	if newParent.ID != node.ParentID {
		newParentID = newParent.ID
	}
	if newName != oldName {
		newNameArg = newName
	}
	updated, err := cf.api.MoveNode(ctx, node.ID, newParentID, newNameArg)
	if err != nil {
		return -fuse.EIO
	}
	cf.nodes.Put(updated, cf.config.MutableTTL)
	cf.children.Invalidate(oldParent.ID)
	cf.children.Invalidate(newParent.ID)
	cf.negative.InvalidateNegative(oldParent.ID, oldName)
	cf.negative.InvalidateNegative(newParent.ID, newName)
	return 0
}

// Readdir lists a folder's children.
func (cf *CgoFuseFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	ctx := context.Background()
	node, err := cf.resolvePath(ctx, path)
	if err != nil {
		return -fuse.EIO
	}
	if node == nil {
		return -fuse.ENOENT
	}

	fill(".", nil, 0)
	fill("..", nil, 0)

	children, ok := cf.children.Get(node.ID)
	if !ok {
		children, err = cf.api.ListAllChildren(ctx, node.ID, cf.config.ReaddirCap)
		if err != nil {
			return -fuse.EIO
		}
		cf.children.Put(node.ID, children, cf.config.MutableTTL)
		for _, child := range children {
			cf.parents.Put(child.ID, node.ID)
		}
	}
	for _, child := range children {
		stat := &fuse.Stat_t{}
		fillCgoStat(stat, child, cf.config)
		if !fill(child.Name, stat, 0) {
			break
		}
	}
	return 0
}

func fillCgoStat(stat *fuse.Stat_t, node *types.Node, cfg *Config) {
	if node.IsDir() {
		stat.Mode = fuse.S_IFDIR | 0755
		stat.Nlink = 2
	} else {
		stat.Mode = fuse.S_IFREG | 0644
		stat.Nlink = 1
	}
	stat.Size = node.Size
	stat.Uid = cfg.DefaultUID
	stat.Gid = cfg.DefaultGID
	stat.Mtim.Sec = node.UpdatedAt.Unix()
	stat.Ctim.Sec = node.CreatedAt.Unix()
}

func splitCgoPath(path string) (parent, name string) {
	path = strings.Trim(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "/", path
	}
	return "/" + path[:idx], path[idx+1:]
}

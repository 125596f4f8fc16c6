//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"

	"github.com/objectfs/roset/pkg/types"
)

// PlatformFileSystem is the mount lifecycle surface the supervisor drives,
// common to both the go-fuse and cgofuse backends.
type PlatformFileSystem interface {
	Mount(ctx context.Context) error
	Unmount() error
	IsMounted() bool
	GetStats() *FilesystemStats
}

// CreatePlatformMountManager builds the cgofuse-backed mount manager, used
// on platforms without a native go-fuse kernel driver (notably Windows).
func CreatePlatformMountManager(
	rootNodeID string,
	api types.APIClient,
	nodes types.NodeCache,
	children types.ChildrenCache,
	parents types.ParentIndex,
	negative types.NegativeCache,
	stager types.UploadStager,
	metrics types.MetricsCollector,
	fsCfg *Config,
	mountCfg *MountConfig,
) PlatformFileSystem {
	return NewCgoFuseMountManager(rootNodeID, api, nodes, children, parents, negative, stager, metrics, fsCfg, mountCfg)
}

//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"

	"github.com/objectfs/roset/pkg/types"
)

// CgoFuseMountManager manages cgofuse-based mounts.
type CgoFuseMountManager struct {
	filesystem *CgoFuseFS
	config     *MountConfig
}

// NewCgoFuseMountManager creates a new cgofuse mount manager wired to the
// same node tree API and caches as the go-fuse backend.
func NewCgoFuseMountManager(
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
) *CgoFuseMountManager {
	filesystem := NewCgoFuseFS(rootNodeID, api, nodes, children, parents, negative, stager, metrics, fsCfg, mountCfg.MountPoint)
	return &CgoFuseMountManager{filesystem: filesystem, config: mountCfg}
}

// Mount mounts the filesystem.
func (m *CgoFuseMountManager) Mount(ctx context.Context) error {
	return m.filesystem.Mount(ctx)
}

// Unmount unmounts the filesystem.
func (m *CgoFuseMountManager) Unmount() error {
	return m.filesystem.Unmount()
}

// IsMounted returns whether the filesystem is mounted.
func (m *CgoFuseMountManager) IsMounted() bool {
	return m.filesystem.IsMounted()
}

// GetStats returns filesystem statistics.
func (m *CgoFuseMountManager) GetStats() *FilesystemStats {
	return m.filesystem.GetStats()
}

package types

import (
	"context"
	"io"
	"time"
)

// APIClient defines the remote tenant-scoped tree API the filesystem
// translator drives. Implementations wrap retry, circuit breaking, and
// metrics around a single *http.Client.
type APIClient interface {
	Resolve(ctx context.Context, parentID, name string) (*Node, error)
	GetNode(ctx context.Context, nodeID string) (*Node, error)
	ListChildren(ctx context.Context, parentID, pageToken string, limit int) ([]*Node, string, error)
	ListAllChildren(ctx context.Context, parentID string, cap int) ([]*Node, error)
	GetManifest(ctx context.Context, nodeID string) ([]*Node, error)
	GetDownloadURL(ctx context.Context, nodeID string) (url string, expiresAt time.Time, size int64, err error)
	DownloadRange(ctx context.Context, url string, offset, size int64) ([]byte, error)
	CreateNode(ctx context.Context, parentID, name string, kind NodeKind) (*Node, error)
	DeleteNode(ctx context.Context, nodeID string) error
	MoveNode(ctx context.Context, nodeID, newParentID, newName string) (*Node, error)
	UpdateMetadata(ctx context.Context, nodeID string, patch map[string]string) (*Node, error)
	InitUpload(ctx context.Context, parentID, name string, size int64, multipart bool) (token string, partSize int64, err error)
	GetUploadPartURL(ctx context.Context, token string, partNumber int) (string, error)
	CompleteMultipartUpload(ctx context.Context, token string, parts []UploadPart) (*Node, error)
	AcquireLease(ctx context.Context, nodeID string) (leaseToken string, err error)
	ReleaseLease(ctx context.Context, nodeID, leaseToken string) error
}

// PartUploader is the minimal surface the staging engine needs to push part
// bytes to a signed URL, kept separate from APIClient so tests can fake it
// without an HTTP round trip. body is handed in as an io.ReaderAt plus the
// byte range to read rather than a pre-sliced io.Reader, so an
// implementation that retries can open a fresh, independently-seekable
// view of the same range on every attempt instead of resending whatever a
// previous attempt already consumed from a single-pass stream.
type PartUploader interface {
	UploadPart(ctx context.Context, url string, body io.ReaderAt, offset, size int64) (etag string, err error)
}

// NodeCache caches resolved Node values by node ID.
type NodeCache interface {
	Get(nodeID string) (*Node, bool)
	Put(node *Node, ttl time.Duration)
	Invalidate(nodeID string)
	Stats() CacheStats
}

// ChildrenCache caches a parent's ordered child list.
type ChildrenCache interface {
	Get(parentID string) ([]*Node, bool)
	Put(parentID string, children []*Node, ttl time.Duration)
	Invalidate(parentID string)
	Stats() CacheStats
}

// ParentIndex is the reverse index from a node to its parent, used to
// invalidate a parent's children cache precisely when a child changes.
type ParentIndex interface {
	Get(nodeID string) (string, bool)
	Put(nodeID, parentID string)
	Invalidate(nodeID string)
}

// NegativeCache memoizes failed (parent_id, name) lookups so repeated
// misses against nonexistent paths don't round-trip to the remote API.
type NegativeCache interface {
	IsNegative(parentID, name string) bool
	PutNegative(parentID, name string)
	InvalidateNegative(parentID, name string)
}

// MetricsCollector records per-operation outcomes for Prometheus export.
type MetricsCollector interface {
	RecordOperation(operation string, duration time.Duration, success bool)
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
	RecordError(operation string, code string)
	GetMetrics() map[string]interface{}
}

// HealthChecker is polled in-process by the mount supervisor; it is not
// exposed as an HTTP endpoint.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
	RegisterCheck(name string, check func(context.Context) error)
	GetStatus() map[string]HealthStatus
}

// UploadStager is the surface the filesystem translator drives to hand a
// completed write-mode temp file off for multipart upload. Submit matches
// async durability (returns once the job is durably queued); SubmitAndWait
// matches sync and sync-on-fsync durability (blocks until the remote upload
// completes or fails).
type UploadStager interface {
	Submit(job *UploadJob) error
	SubmitAndWait(ctx context.Context, job *UploadJob) (*Node, error)
}

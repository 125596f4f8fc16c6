package staging

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/objectfs/roset/internal/cache"
	"github.com/objectfs/roset/internal/config"
	"github.com/objectfs/roset/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI implements types.APIClient, recording part-upload and completion
// calls. Only the multipart-upload methods the engine drives are wired up;
// the rest are unused by these tests.
type fakeAPI struct {
	mu sync.Mutex

	partURLErr   error
	completeErr  error
	completeCall int
	parts        []types.UploadPart
	completed    bool
}

func (f *fakeAPI) Resolve(ctx context.Context, parentID, name string) (*types.Node, error) {
	return nil, nil
}
func (f *fakeAPI) GetNode(ctx context.Context, nodeID string) (*types.Node, error) { return nil, nil }
func (f *fakeAPI) ListChildren(ctx context.Context, parentID, pageToken string, limit int) ([]*types.Node, string, error) {
	return nil, "", nil
}
func (f *fakeAPI) ListAllChildren(ctx context.Context, parentID string, cap int) ([]*types.Node, error) {
	return nil, nil
}
func (f *fakeAPI) GetManifest(ctx context.Context, nodeID string) ([]*types.Node, error) {
	return nil, nil
}
func (f *fakeAPI) GetDownloadURL(ctx context.Context, nodeID string) (string, time.Time, int64, error) {
	return "", time.Time{}, 0, nil
}
func (f *fakeAPI) DownloadRange(ctx context.Context, url string, offset, size int64) ([]byte, error) {
	return nil, nil
}
func (f *fakeAPI) CreateNode(ctx context.Context, parentID, name string, kind types.NodeKind) (*types.Node, error) {
	return nil, nil
}
func (f *fakeAPI) DeleteNode(ctx context.Context, nodeID string) error { return nil }
func (f *fakeAPI) MoveNode(ctx context.Context, nodeID, newParentID, newName string) (*types.Node, error) {
	return nil, nil
}
func (f *fakeAPI) UpdateMetadata(ctx context.Context, nodeID string, patch map[string]string) (*types.Node, error) {
	return nil, nil
}
func (f *fakeAPI) InitUpload(ctx context.Context, parentID, name string, size int64, multipart bool) (string, int64, error) {
	return "", 0, nil
}
func (f *fakeAPI) GetUploadPartURL(ctx context.Context, token string, partNumber int) (string, error) {
	if f.partURLErr != nil {
		return "", f.partURLErr
	}
	return "https://upload.example/part", nil
}
func (f *fakeAPI) CompleteMultipartUpload(ctx context.Context, token string, parts []types.UploadPart) (*types.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCall++
	f.parts = parts
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	f.completed = true
	return &types.Node{ID: "node-1", Name: "file.bin", Kind: types.NodeKindFile}, nil
}
func (f *fakeAPI) AcquireLease(ctx context.Context, nodeID string) (string, error) { return "", nil }
func (f *fakeAPI) ReleaseLease(ctx context.Context, nodeID, leaseToken string) error { return nil }

var _ types.APIClient = (*fakeAPI)(nil)

// fakeUploader implements types.PartUploader, recording the bytes each
// part upload sent and optionally failing a fixed number of times before
// succeeding, to exercise the engine's retry path.
type fakeUploader struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	received  [][]byte
}

func (u *fakeUploader) UploadPart(ctx context.Context, url string, body io.ReaderAt, offset, size int64) (string, error) {
	u.mu.Lock()
	u.calls++
	attempt := u.calls
	u.mu.Unlock()

	data, err := io.ReadAll(io.NewSectionReader(body, offset, size))
	if err != nil {
		return "", err
	}

	if attempt <= u.failFirst {
		return "", assert.AnError
	}

	u.mu.Lock()
	u.received = append(u.received, data)
	u.mu.Unlock()
	return "etag-" + string(rune('a'+attempt)), nil
}

var _ types.PartUploader = (*fakeUploader)(nil)

func newTestEngine(t *testing.T, api types.APIClient, uploader types.PartUploader) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.StagingConfig{
		Directory:        dir,
		Durability:       config.DurabilityAsync,
		PartSize:         8,
		MaxParallelParts: 2,
		Workers:          2,
		QueueCapacity:    16,
		MaxAttempts:      3,
		DeadLetterDir:    filepath.Join(dir, "failed"),
	}
	e, err := NewEngine(cfg, api, uploader, cache.NewNodeCache(nil))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, dir
}

func writeStagedFile(t *testing.T, dir string, content []byte) string {
	t.Helper()
	f, err := os.CreateTemp(dir, "stage-*.tmp")
	require.NoError(t, err)
	_, err = f.Write(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestSubmitAndWaitUploadsAllPartsAndCompletes(t *testing.T) {
	api := &fakeAPI{}
	uploader := &fakeUploader{}
	engine, dir := newTestEngine(t, api, uploader)

	content := bytes.Repeat([]byte("x"), 20)
	path := writeStagedFile(t, dir, content)

	job := &types.UploadJob{
		JobID:       path,
		FilePath:    path,
		NodeID:      "node-1",
		UploadToken: "token-1",
		TotalSize:   int64(len(content)),
	}

	node, err := engine.SubmitAndWait(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "node-1", node.ID)

	assert.Equal(t, 1, api.completeCall)
	assert.Len(t, api.parts, 3) // 20 bytes / 8-byte parts = 3 parts

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "staged temp file should be removed after completion")
	_, err = os.Stat(sidecarPath(dir, job))
	assert.True(t, os.IsNotExist(err), "job sidecar should be removed after completion")
}

func TestSubmitAndWaitZeroByteFileUploadsOneEmptyPart(t *testing.T) {
	api := &fakeAPI{}
	uploader := &fakeUploader{}
	engine, dir := newTestEngine(t, api, uploader)

	path := writeStagedFile(t, dir, nil)
	job := &types.UploadJob{
		JobID:       path,
		FilePath:    path,
		NodeID:      "node-1",
		UploadToken: "token-1",
		TotalSize:   0,
	}

	_, err := engine.SubmitAndWait(context.Background(), job)
	require.NoError(t, err)
	assert.Len(t, api.parts, 1)
}

func TestSubmitAndWaitPartFailurePropagatesAndPersistsAttempt(t *testing.T) {
	api := &fakeAPI{}
	api.partURLErr = assert.AnError
	uploader := &fakeUploader{}
	engine, dir := newTestEngine(t, api, uploader)

	content := bytes.Repeat([]byte("y"), 8)
	path := writeStagedFile(t, dir, content)
	job := &types.UploadJob{
		JobID:       path,
		FilePath:    path,
		NodeID:      "node-1",
		UploadToken: "token-1",
		TotalSize:   int64(len(content)),
	}

	_, err := engine.SubmitAndWait(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, 1, job.Attempts)
	assert.NotEmpty(t, job.LastError)

	// Sidecar should persist with the failure recorded, not be removed.
	_, statErr := os.Stat(sidecarPath(dir, job))
	assert.NoError(t, statErr)
}

func TestSubmitEnqueuesAndEventuallyCompletes(t *testing.T) {
	api := &fakeAPI{}
	uploader := &fakeUploader{}
	engine, dir := newTestEngine(t, api, uploader)

	content := bytes.Repeat([]byte("z"), 8)
	path := writeStagedFile(t, dir, content)
	job := &types.UploadJob{
		JobID:       path,
		FilePath:    path,
		NodeID:      "node-1",
		UploadToken: "token-1",
		TotalSize:   int64(len(content)),
	}

	require.NoError(t, engine.Submit(job))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		api.mu.Lock()
		done := api.completed
		api.mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.True(t, api.completed)
}

func TestPlanPartsSkipsCompletedParts(t *testing.T) {
	job := &types.UploadJob{
		TotalSize: 24,
		CompletedParts: []types.UploadPart{
			{PartNumber: 1, ETag: "a"},
		},
	}
	plan := planParts(job, 8)
	require.Len(t, plan, 2)
	assert.Equal(t, 2, plan[0].PartNumber)
	assert.Equal(t, 3, plan[1].PartNumber)
}

func TestPersistJobThenListPendingJobsRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := writeStagedFile(t, dir, []byte("hello"))
	job := &types.UploadJob{
		JobID:     path,
		FilePath:  path,
		NodeID:    "node-1",
		TotalSize: 5,
		CreatedAt: time.Now(),
	}
	require.NoError(t, persistJob(dir, job))

	jobs, err := listPendingJobs(dir)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.NodeID, jobs[0].NodeID)
}

func TestListPendingJobsDropsOrphanedSidecar(t *testing.T) {
	dir := t.TempDir()
	job := &types.UploadJob{
		JobID:    filepath.Join(dir, "gone.tmp"),
		FilePath: filepath.Join(dir, "gone.tmp"),
		NodeID:   "node-1",
	}
	require.NoError(t, persistJob(dir, job))

	jobs, err := listPendingJobs(dir)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	_, statErr := os.Stat(sidecarPath(dir, job))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBackoffDelaySchedule(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoffDelay(1))
	assert.Equal(t, 4*time.Second, backoffDelay(2))
	assert.Equal(t, 8*time.Second, backoffDelay(3))
	assert.Equal(t, 16*time.Second, backoffDelay(4))
	assert.Equal(t, 32*time.Second, backoffDelay(5))
	assert.Equal(t, 32*time.Second, backoffDelay(6))
}

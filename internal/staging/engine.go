package staging

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/objectfs/roset/internal/apiclient"
	"github.com/objectfs/roset/internal/config"
	"github.com/objectfs/roset/pkg/types"
)

// Engine is the write-back staging engine: a durable on-disk queue of
// UploadJob records, drained by a bounded worker pool that splits each
// job's staged temp file into parts, uploads them with bounded
// parallelism, and completes the multipart upload against the remote
// tree API. It implements types.UploadStager.
type Engine struct {
	dir           string
	deadLetterDir string
	partSize      int64
	maxParallel   int
	maxAttempts   int

	api      types.APIClient
	uploader types.PartUploader
	nodes    types.NodeCache

	jobCh  chan *types.UploadJob
	sem    chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEngine creates a staging engine, ensures its directories exist, and
// starts cfg.Workers background workers draining the queue. It also scans
// the staging directory for job sidecars left behind by a prior process
// and resubmits them.
func NewEngine(cfg config.StagingConfig, api types.APIClient, uploader types.PartUploader, nodes types.NodeCache) (*Engine, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("staging: directory is required")
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("staging: create directory: %w", err)
	}
	deadLetterDir := cfg.DeadLetterDir
	if deadLetterDir == "" {
		deadLetterDir = cfg.Directory + "/failed"
	}

	partSize := cfg.PartSize
	if partSize <= 0 {
		partSize = apiclient.PartSize
	}
	maxParallel := cfg.MaxParallelParts
	if maxParallel <= 0 {
		maxParallel = 5
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueCap := cfg.QueueCapacity
	if queueCap <= 0 {
		queueCap = 256
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	e := &Engine{
		dir:           cfg.Directory,
		deadLetterDir: deadLetterDir,
		partSize:      partSize,
		maxParallel:   maxParallel,
		maxAttempts:   maxAttempts,
		api:           api,
		uploader:      uploader,
		nodes:         nodes,
		jobCh:         make(chan *types.UploadJob, queueCap),
		sem:           make(chan struct{}, maxParallel),
		stopCh:        make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	e.recover()
	return e, nil
}

// recover resubmits any job sidecar left on disk by a process that died
// before finishing it, so an async write-back doesn't silently vanish
// across a crash or restart.
func (e *Engine) recover() {
	jobs, err := listPendingJobs(e.dir)
	if err != nil {
		return
	}
	for _, job := range jobs {
		job := job
		select {
		case e.jobCh <- job:
		default:
			go func() { e.jobCh <- job }()
		}
	}
}

// Submit enqueues a job for asynchronous upload and returns once it is
// durably persisted to disk; the actual remote upload happens on a
// background worker. Matches async and sync-on-fsync durability at
// release() time.
func (e *Engine) Submit(job *types.UploadJob) error {
	e.normalize(job)
	if err := persistJob(e.dir, job); err != nil {
		return fmt.Errorf("staging: persist job: %w", err)
	}

	select {
	case e.jobCh <- job:
	default:
		go func() { e.jobCh <- job }()
	}
	return nil
}

// SubmitAndWait persists the job then drives it to completion on the
// calling goroutine, bypassing the queue. Matches sync durability at
// release(), and sync-on-fsync at fsync().
func (e *Engine) SubmitAndWait(ctx context.Context, job *types.UploadJob) (*types.Node, error) {
	e.normalize(job)
	if err := persistJob(e.dir, job); err != nil {
		return nil, fmt.Errorf("staging: persist job: %w", err)
	}
	return e.runToCompletion(ctx, job)
}

func (e *Engine) normalize(job *types.UploadJob) {
	if job.PartSize <= 0 {
		job.PartSize = e.partSize
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
}

// worker drains the queue, retrying a job with exponential backoff until
// it succeeds or exhausts maxAttempts, at which point it is moved to the
// dead letter directory.
func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case job, ok := <-e.jobCh:
			if !ok {
				return
			}
			e.drive(job)
		}
	}
}

func (e *Engine) drive(job *types.UploadJob) {
	_, err := e.runToCompletion(context.Background(), job)
	if err == nil {
		return
	}

	if job.Attempts >= e.maxAttempts {
		if derr := deadLetter(e.dir, e.deadLetterDir, job); derr != nil {
			_ = derr
		}
		return
	}

	delay := backoffDelay(job.Attempts)
	timer := time.NewTimer(delay)
	select {
	case <-e.stopCh:
		timer.Stop()
	case <-timer.C:
		select {
		case e.jobCh <- job:
		default:
			go func() { e.jobCh <- job }()
		}
	}
}

// backoffDelay implements the 2/4/8/16/32s schedule: 2s doubling per
// attempt, capped at 32s.
func backoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	seconds := 2 * math.Pow(2, float64(attempts-1))
	if seconds > 32 {
		seconds = 32
	}
	return time.Duration(seconds) * time.Second
}

// runToCompletion uploads every remaining part of job, completes the
// multipart upload, and cleans up on success. On failure it records the
// error and bumps job.Attempts in the persisted sidecar so a retry (or a
// dead-lettered job an operator inspects) carries its own history.
func (e *Engine) runToCompletion(ctx context.Context, job *types.UploadJob) (*types.Node, error) {
	job.Attempts++
	job.LastAttemptAt = time.Now()

	if err := e.uploadParts(ctx, job); err != nil {
		job.LastError = err.Error()
		persistJob(e.dir, job)
		return nil, err
	}

	node, err := e.api.CompleteMultipartUpload(ctx, job.UploadToken, sortedParts(job))
	if err != nil {
		job.LastError = err.Error()
		persistJob(e.dir, job)
		return nil, err
	}

	if e.nodes != nil {
		e.nodes.Invalidate(job.NodeID)
	}
	removeJob(e.dir, job)
	return node, nil
}

// uploadParts uploads every part in job's plan with up to maxParallel
// concurrent part uploads, persisting progress after each completed part
// so a crash mid-upload resumes instead of restarting from scratch.
func (e *Engine) uploadParts(ctx context.Context, job *types.UploadJob) error {
	plan := planParts(job, job.PartSize)
	if len(plan) == 0 {
		return nil
	}

	file, err := os.Open(job.FilePath)
	if err != nil {
		return fmt.Errorf("staging: open staged file: %w", err)
	}
	defer file.Close()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	for _, part := range plan {
		part := part
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e.sem <- struct{}{}:
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-e.sem }()

			etag, err := e.uploadOnePart(ctx, job, file, part)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			job.CompletedParts = append(job.CompletedParts, types.UploadPart{
				PartNumber: part.PartNumber,
				ETag:       etag,
			})
			persistJob(e.dir, job)
		}()
	}

	wg.Wait()
	return firstErr
}

func (e *Engine) uploadOnePart(ctx context.Context, job *types.UploadJob, file *os.File, part partPlan) (string, error) {
	url, err := e.api.GetUploadPartURL(ctx, job.UploadToken, part.PartNumber)
	if err != nil {
		return "", fmt.Errorf("staging: get part %d URL: %w", part.PartNumber, err)
	}

	etag, err := e.uploader.UploadPart(ctx, url, file, part.Offset, part.Size)
	if err != nil {
		return "", fmt.Errorf("staging: upload part %d: %w", part.PartNumber, err)
	}
	return etag, nil
}

// Close stops all workers, letting any job mid-upload finish its current
// attempt.
func (e *Engine) Close() error {
	close(e.stopCh)
	e.wg.Wait()
	return nil
}

var _ types.UploadStager = (*Engine)(nil)

// Package staging implements the write-back staging engine and multipart
// uploader (spec.md §4.5): a durable on-disk queue of UploadJob records,
// each backed by the write-mode temp file the fuse translator staged the
// write into, driven to completion against the remote tree API with
// bounded parallelism and retry.
//
// Grounded on scttfrdmn-objectfs's internal/storage/s3/multipart_state.go
// (per-part completion/failure tracking, progress accounting) and
// internal/buffer/writebuffer.go (channel-fed background worker loop with
// a bounded queue and a synchronous fallback path), generalized from S3
// object keys to the UploadJob/Node model.
package staging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/objectfs/roset/pkg/types"
)

// sidecarPath returns the on-disk path of a job's JSON sidecar, derived
// from its staged temp file's base name so the two live side by side and
// a directory scan can pair them back up after a crash.
func sidecarPath(dir string, job *types.UploadJob) string {
	base := filepath.Base(job.FilePath)
	return filepath.Join(dir, base+".job.json")
}

// persistJob writes a job's sidecar atomically: write to a temp file in
// the same directory, fsync, then rename over any prior sidecar. A crash
// mid-write leaves either the old sidecar or nothing, never a truncated
// one.
func persistJob(dir string, job *types.UploadJob) error {
	path := sidecarPath(dir, job)
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// removeJob deletes a job's sidecar and its staged temp file. Called once
// the remote upload has completed; a dead-lettered job is moved by
// deadLetter instead.
func removeJob(dir string, job *types.UploadJob) {
	os.Remove(sidecarPath(dir, job))
	os.Remove(job.FilePath)
}

// deadLetter moves a permanently failed job's sidecar and temp file into
// deadLetterDir for operator inspection, leaving no trace in dir.
func deadLetter(dir, deadLetterDir string, job *types.UploadJob) error {
	if err := os.MkdirAll(deadLetterDir, 0o755); err != nil {
		return err
	}
	if err := persistJob(deadLetterDir, job); err != nil {
		return err
	}
	os.Remove(sidecarPath(dir, job))

	dst := filepath.Join(deadLetterDir, filepath.Base(job.FilePath))
	if err := os.Rename(job.FilePath, dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// listPendingJobs scans dir for job sidecars left behind by a prior
// process (crash, restart, kill -9) and returns the jobs they describe,
// for the engine's startup recovery pass.
func listPendingJobs(dir string) ([]*types.UploadJob, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var jobs []*types.UploadJob
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".job.json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var job types.UploadJob
		if err := json.Unmarshal(data, &job); err != nil {
			continue
		}
		if _, err := os.Stat(job.FilePath); err != nil {
			// Temp file is gone; the sidecar is orphaned, not resumable.
			os.Remove(filepath.Join(dir, entry.Name()))
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// partPlan is one part of a job's multipart upload plan: its 1-based part
// number and the byte range of the staged temp file it covers.
type partPlan struct {
	PartNumber int
	Offset     int64
	Size       int64
}

// planParts splits a job's total size into parts of partSize bytes,
// skipping parts already recorded in job.CompletedParts so a resumed job
// only re-uploads what it hadn't finished. A zero-byte file still plans
// exactly one empty part, matching apiclient.PartSize's zero-byte-file
// convention.
func planParts(job *types.UploadJob, partSize int64) []partPlan {
	done := make(map[int]bool, len(job.CompletedParts))
	for _, p := range job.CompletedParts {
		done[p.PartNumber] = true
	}

	total := job.TotalSize
	if total == 0 {
		if done[1] {
			return nil
		}
		return []partPlan{{PartNumber: 1, Offset: 0, Size: 0}}
	}

	var plan []partPlan
	partNumber := 1
	for offset := int64(0); offset < total; offset += partSize {
		size := partSize
		if offset+size > total {
			size = total - offset
		}
		if !done[partNumber] {
			plan = append(plan, partPlan{PartNumber: partNumber, Offset: offset, Size: size})
		}
		partNumber++
	}
	return plan
}

// sortedParts returns a job's completed parts sorted by part number, the
// order CompleteMultipartUpload requires.
func sortedParts(job *types.UploadJob) []types.UploadPart {
	parts := make([]types.UploadPart, len(job.CompletedParts))
	copy(parts, job.CompletedParts)
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts
}

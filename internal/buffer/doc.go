// Package buffer provides a sized-bucket byte-slice pool. The API
// client's range-GET downloader (internal/apiclient.Client.DownloadRange)
// pulls its response-body scratch buffer from here instead of
// allocating fresh on every cache-miss read, keeping large transient
// allocations off the garbage collector on the read hot path.
//
// The teacher's write-coalescing WriteBuffer (flush worker, per-key
// dirty buffers, flush channel) has no home here: SPEC_FULL.md's write
// path hands every write straight to a per-handle temp file owned by
// internal/fuse, and its flush-worker/channel pattern is adapted
// directly into internal/staging's bounded upload worker pool instead
// of living a second time as a standalone buffering layer. See
// DESIGN.md for the full justification.
package buffer

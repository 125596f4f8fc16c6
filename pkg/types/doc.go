/*
Package types provides the core data structures shared across roset's
components: the API client, the inode map, the four-cache metadata layer,
the staging engine, the filesystem translator, and the mount supervisor.

# Data Structures

Node:
A remote-store object — a file or folder in the tenant-scoped tree, keyed
by an opaque identifier stable for its lifetime.

OpenHandle:
A filesystem handle open on a node, created on open/create and destroyed
on release. Write handles own a locally-created temp file that absorbs all
writes before upload.

UploadJob:
The durable, on-disk record of an in-flight or staged upload, persisted as
a JSON sidecar next to the staged temp file so a crash leaves both on disk
and the staging engine resumes the job on restart.

SupervisorState:
Per-volume bookkeeping kept by the mount lifecycle supervisor: process
liveness, restart counters, backoff state, and crash-loop status.

# Thread Safety

Values in this package are plain data; callers that share them across
goroutines (the caches, the inode map) are responsible for their own
synchronization.
*/
package types

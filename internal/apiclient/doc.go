// Package apiclient is documented in client.go; this file holds the
// few package-wide constants shared across its methods.
package apiclient

// PartSize is the fixed multipart upload part size, per spec.md §4.5.
// The final part is whatever remains after dividing total size by
// PartSize; a zero-byte file still uploads as exactly one empty part.
const PartSize int64 = 20 * 1024 * 1024

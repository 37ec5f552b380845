// Package blobstore abstracts the storage backing the fragment store and
// the export archive.
//
// The local filesystem implementation is the default for live capture;
// the in-memory implementation exists for tests. Object-storage backends
// (MinIO, S3) live in subpackages and are intended for archiving merged
// exports rather than for per-fragment writes.
package blobstore

// Package minio provides a blobstore backend for MinIO and other
// S3-compatible object storage. It is primarily used to archive merged
// exports off the capture device, but implements the full
// blobstore.Store interface so a fragment store can run against it too.
package minio

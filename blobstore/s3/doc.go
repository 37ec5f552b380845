// Package s3 provides an AWS S3 blobstore backend plus a
// DynamoDB-backed export catalog.
//
// The Store archives merged exports (or hosts a full fragment store)
// in an S3 bucket, streaming large uploads through the SDK's multipart
// upload manager. The ExportCatalog tracks the latest archived export
// per scan with DynamoDB conditional writes, so concurrent uploaders
// cannot silently overwrite each other's pointer.
package s3

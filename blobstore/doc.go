// Package blobstore provides storage abstraction for index snapshot backups.
//
// BlobStore is the interface for reading and writing named blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests
//   - LocalStore: local filesystem with atomic writes
//   - s3.Store: Amazon S3 with multipart uploads
//   - minio.Store: MinIO and other S3-compatible storage
//
// # Backups
//
// Backup copies the snapshot files of an index home into a store under a
// timestamped prefix and updates the LATEST pointer. Restore fetches the
// newest (or a named) backup back into a snapshot directory.
package blobstore

// Package persistence provides the durable file primitives behind index snapshots.
//
// Every file is written to a temporary sibling, synced, renamed over the
// target and the parent directory is fsynced, so readers observe either the
// previous or the new content. Multi-file snapshots use AtomicSaveToDir.
//
// Payloads may be wrapped in a compression frame (none, lz4 or zstd) and are
// protected by CRC32 checksums. A directory lock guards a snapshot directory
// against concurrent writers from other processes.
package persistence

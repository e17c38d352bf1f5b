// Package engine provides Index, the single-owner handle over a similarity
// structure and its slot-addressed metadata.
//
// # Lifecycle
//
//	idx, loaded, err := engine.Open(dir, 512, index.KindFlat)
//	slot, err := idx.Insert(ctx, vec, rec)
//	results, err := idx.Search(ctx, query, 10)
//	err = idx.Persist(ctx)
//
// # Concurrency
//
// One sync.RWMutex guards the handle. Insert, InsertBatch, Train, Clear and
// Deactivate take the write lock, so slot order equals lock acquisition
// order. Search, MetadataFor, Size and SaveTo take the read lock.
//
// # Snapshots
//
// A snapshot is two files in one directory: index.bin holds the serialized
// structure and metadata.bin holds the records, the inactive set and a CRC32
// of index.bin. Both are written to temp files and renamed; a mismatched pair
// is reported as ErrCorruptSnapshot.
package engine

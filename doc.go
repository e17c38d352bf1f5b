// Package facevault identifies people by comparing a face embedding against a
// growing collection of enrolled embeddings.
//
// An Engine owns one similarity index and its snapshot directory. Around it,
// facevault provides:
//
//   - Ingestion of named face images (identity, tax id, origin and display
//     name are parsed from the filename)
//   - Concurrent batch ingestion with a bounded worker pool, declared jobs
//     and directory watching
//   - Nearest-neighbour matching with configurable similarity thresholds
//   - Deterministic rebuild from an external system of record (SQL or
//     DynamoDB) that writes slot back-references to it
//   - Snapshot backups to a local directory, S3 or MinIO
//
// # Quick Start
//
//	ext, _ := remote.New("http://localhost:8001")
//	eng, err := facevault.Open(ctx, "./data/index", ext,
//	    facevault.WithDimension(512),
//	    facevault.WithKind(index.KindFlat),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
// Enroll a single image:
//
//	out, err := eng.Ingest(ctx, ingest.Artifact{Path: "/incoming/0010010071423400000001168MARIA_SILVA.jpg"})
//	if !out.Accepted {
//	    log.Printf("rejected: %s", out.Reason)
//	}
//
// Enroll a directory:
//
//	artifacts, _ := batch.ScanDir("/incoming")
//	report, err := eng.RunBatch(ctx, artifacts, 8)
//
// Identify a face:
//
//	matches, err := eng.MatchImage(ctx, image, 5)
//	for _, m := range matches {
//	    fmt.Println(m.Rank, m.Record.DisplayName, m.Similarity)
//	}
//
// # Snapshots
//
// The index lives in memory and is persisted as two files (index.bin and
// metadata.bin) in the home directory after every accepted single ingestion,
// after every batch and on Close. The directory is guarded by an advisory
// lock, so only one Engine can own it at a time.
//
// # Consistency
//
// Slot ids are dense and never reused. When the external store drifts from
// the index, Rebuild clears the index, re-extracts every eligible record and
// writes each record's new slot (or none) back to the store.
package facevault

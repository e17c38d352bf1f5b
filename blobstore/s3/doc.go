// Package s3 stores snapshot backups in an Amazon S3 bucket.
//
//	store, err := s3.New(ctx, "backups", s3.WithPrefix("facevault/"), s3.WithRegion("sa-east-1"))
//	if err != nil {
//	    return err
//	}
//	name, err := blobstore.Backup(ctx, store, home, facevault.SnapshotFiles, time.Now())
//
// Uploads go through the multipart uploader with CRC32-C checksums. Reads of
// a backup file are ranged GETs, so Restore never buffers more than one file.
// WithEndpoint points the store at any S3-compatible service.
package s3

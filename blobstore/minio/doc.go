// Package minio stores snapshot backups on a MinIO server (or any
// S3-compatible service reachable through minio-go).
//
//	store, err := minio.Connect(ctx, minio.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	    Bucket:    "facevault",
//	    Prefix:    "backups/",
//	})
//
// Connect creates the bucket when it does not exist. Use NewStore to wrap a
// client configured elsewhere.
package minio
